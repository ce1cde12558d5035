package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payroll-backend/internal/app"
	"payroll-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default config.yaml, or config.local.yaml when present)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "How long to wait for in-flight claims on shutdown")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig
	cfg.ConfigureLogging()
	if logrus.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := app.InitializeContainer()
	if err != nil {
		logrus.Fatalf("Failed to initialize services: %v", err)
	}
	container.StartBackground()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           container.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("🌐 HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logrus.WithField("signal", sig.String()).Info("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown did not complete cleanly")
	}
	if err := container.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Some claims were still in flight at shutdown; recovery will resume them")
	}
	logrus.Info("👋 Server stopped")
}
