package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"payroll-backend/internal/claimtoken"
	"payroll-backend/internal/clients"
	"payroll-backend/internal/config"
	"payroll-backend/internal/db"
	"payroll-backend/internal/events"
	"payroll-backend/internal/handlers"
	"payroll-backend/internal/repository"
	"payroll-backend/internal/router"
	"payroll-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer holds every long lived component of the backend.
type ServiceContainer struct {
	cfg *config.Config

	// Database
	DB    *gorm.DB
	Store repository.Store

	// External systems
	Ledger      *clients.LedgerClient
	Prover      *clients.ProverClient
	Relayer     *clients.RelayerClient
	Redis       *redis.Client
	NATSClient  *clients.NATSClient
	Publisher   *events.Publisher
	TokenCodec  *claimtoken.Codec
	Signer      *services.PayoutSigner
	IngestLock  services.IngestionLock
	ClaimHub    *services.ClaimHub
	BatchSvc    *services.BatchService
	ClaimSvc    *services.ClaimService
	RecoverySvc *services.ClaimRecoveryService
	Monitoring  *services.MonitoringService

	natsOnce     sync.Once
	cleanupOnce  sync.Once
	backgroundOn bool
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the global container from config.AppConfig.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		if config.AppConfig == nil {
			initErr = fmt.Errorf("configuration not loaded")
			return
		}
		c, err := NewContainer(config.AppConfig)
		if err != nil {
			initErr = err
			return
		}
		Container = c
	})

	return Container, initErr
}

// NewContainer connects to every dependency and builds the services. Background
// work does not run until StartBackground.
func NewContainer(cfg *config.Config) (*ServiceContainer, error) {
	logrus.Info("🚀 Initializing Service Container...")
	c := &ServiceContainer{cfg: cfg}

	// 1. Storage
	if err := c.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// 2. External clients
	if err := c.initClients(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	// 3. Event services are optional
	if err := c.initEventServices(); err != nil {
		logrus.WithError(err).Warn("⚠️ Event services initialization skipped")
	}

	// 4. Core services
	if err := c.initCoreServices(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize core services: %w", err)
	}

	logrus.Info("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initStore() error {
	switch c.cfg.Database.Driver {
	case "memory":
		logrus.Warn("⚠️ Using in-memory store, state is lost on restart")
		c.Store = repository.NewMemoryStore()
		return nil
	default:
		if err := db.InitDB(); err != nil {
			return err
		}
		c.DB = db.DB
		c.Store = repository.NewStore(c.DB)
		logrus.Info("✅ Repositories initialized")
		return nil
	}
}

func (c *ServiceContainer) initClients() error {
	var err error

	c.Ledger, err = clients.NewLedgerClient(c.cfg.Ledger)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}
	c.Prover = clients.NewProverClient(c.cfg.Prover.BaseURL, c.cfg.Prover.Timeout)
	c.Relayer = clients.NewRelayerClient(c.cfg.Relayer.BaseURL, c.cfg.Relayer.Timeout)

	c.TokenCodec, err = claimtoken.NewCodecFromHex(c.cfg.Claims.TokenKey)
	if err != nil {
		return fmt.Errorf("claims.tokenKey: %w", err)
	}
	c.Signer, err = services.NewPayoutSigner(c.cfg.Claims.PayoutSignerKey, c.cfg.Ledger.ChainID, common.HexToAddress(c.cfg.Ledger.Contract))
	if err != nil {
		return fmt.Errorf("claims.payoutSignerKey: %w", err)
	}
	logrus.WithField("authorizer", c.Signer.Address().Hex()).Info("🔑 Payout signer loaded")

	switch c.cfg.Ingestion.Lock {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Redis, err = services.NewRedisClient(ctx, c.cfg.Redis.URL)
		if err != nil {
			return err
		}
		c.IngestLock = services.NewRedisLock(c.Redis, c.cfg.Ingestion.LockKey, c.cfg.Ingestion.LockTTL)
	case "advisory":
		if c.DB == nil {
			return fmt.Errorf("advisory lock requires the postgres driver")
		}
		sqlDB, err := c.DB.DB()
		if err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		c.IngestLock = services.NewAdvisoryLock(sqlDB, c.cfg.Ingestion.LockKey)
	default:
		c.IngestLock = services.NewLocalLock()
	}
	logrus.WithField("lock", c.cfg.Ingestion.Lock).Info("🔒 Ingestion lock configured")
	return nil
}

// initEventServices connects NATS when configured.
func (c *ServiceContainer) initEventServices() error {
	if c.cfg.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}
	logrus.Info("📡 Initializing Event Services...")
	return c.InitNATSClient()
}

// InitNATSClient connects to NATS once and builds the event publisher.
func (c *ServiceContainer) InitNATSClient() error {
	var initErr error

	c.natsOnce.Do(func() {
		logrus.Info("🔌 Connecting to NATS...")
		natsClient, err := clients.NewNATSClient(c.cfg.NATS)
		if err != nil {
			logrus.WithError(err).Errorf("❌ Failed to connect to NATS at %s", c.cfg.NATS.URL)
			initErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}
		c.NATSClient = natsClient
		c.Publisher = events.NewPublisher(natsClient)
	})

	return initErr
}

func (c *ServiceContainer) initCoreServices() error {
	logrus.Info("🔧 Initializing Core Services...")

	c.ClaimHub = services.NewClaimHub()

	batchNotifiers := []services.BatchNotifier{}
	claimNotifiers := []services.ClaimNotifier{c.ClaimHub}
	if c.Publisher != nil {
		batchNotifiers = append(batchNotifiers, c.Publisher)
		claimNotifiers = append(claimNotifiers, c.Publisher)
	}

	c.BatchSvc = services.NewBatchService(c.Store, c.Ledger, c.IngestLock, c.TokenCodec, c.cfg.Tree.Depth, batchNotifiers...)

	var relayer common.Address
	if c.cfg.Relayer.Address != "" {
		relayer = common.HexToAddress(c.cfg.Relayer.Address)
	} else {
		logrus.Warn("⚠️ relayer.address not set, request hashes bind the zero address")
	}
	c.ClaimSvc = services.NewClaimService(c.Store, c.Ledger, c.Prover, c.Relayer, c.Signer, c.TokenCodec, services.ClaimServiceConfig{
		Relayer: relayer,
		Fee:     c.cfg.RelayerFee(),
		Poll: services.PollPolicy{
			InitialInterval: c.cfg.Claims.PollInitialInterval,
			Multiplier:      c.cfg.Claims.PollMultiplier,
			MaxInterval:     c.cfg.Claims.PollMaxInterval,
			MaxAttempts:     c.cfg.Claims.PollMaxAttempts,
		},
		RecoveryBatchSize:   c.cfg.Claims.RecoveryBatchSize,
		ReserveSettleWindow: c.cfg.Claims.ReserveSettleWindow,
	}, claimNotifiers...)

	c.RecoverySvc = services.NewClaimRecoveryService(c.ClaimSvc, c.cfg.Claims.RecoveryInterval, c.cfg.Claims.RecoveryGrace)

	var sqlDB *sql.DB
	if c.DB != nil {
		var err error
		if sqlDB, err = c.DB.DB(); err != nil {
			return err
		}
	}
	c.Monitoring = services.NewMonitoringService(sqlDB, c.Ledger, c.ClaimSvc, time.Minute)

	logrus.Info("✅ Core Services initialized")
	return nil
}

// StartBackground starts the claim recovery and monitoring loops.
func (c *ServiceContainer) StartBackground() {
	c.RecoverySvc.Start()
	c.Monitoring.Start()
	c.backgroundOn = true
	logrus.Info("✅ [ServiceContainer] Claim recovery service started")
}

// Router builds the HTTP engine over the container's services.
func (c *ServiceContainer) Router() *gin.Engine {
	var ping func(ctx context.Context) error
	if c.DB != nil {
		ping = func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	return router.SetupRouter(router.Dependencies{
		Batches:     handlers.NewBatchHandler(c.BatchSvc),
		Claims:      handlers.NewClaimHandler(c.ClaimSvc),
		AdminClaims: handlers.NewAdminClaimsHandler(c.ClaimSvc),
		WebSocket:   handlers.NewWebSocketHandler(c.ClaimSvc, c.ClaimHub),
		AdminAuth:   handlers.NewAdminAuthHandler(c.cfg.Admin),
		DBPing:      ping,
		CORS:        c.cfg.CORS,
		AllowedIPs:  c.cfg.Admin.AllowedIPs,
		JWTSecret:   c.cfg.Admin.JWTSecret,
	})
}

// Shutdown stops background work, lets in-flight claims reach a durable state
// and closes connections.
func (c *ServiceContainer) Shutdown(ctx context.Context) error {
	if c.backgroundOn {
		c.RecoverySvc.Stop()
		c.Monitoring.Stop()
	}
	var err error
	if c.ClaimSvc != nil {
		err = c.ClaimSvc.Shutdown(ctx)
	}
	c.Cleanup()
	return err
}

// Cleanup closes connections.
func (c *ServiceContainer) Cleanup() {
	c.cleanupOnce.Do(func() {
		logrus.Info("🧹 Cleaning up Service Container...")

		if c.NATSClient != nil {
			c.NATSClient.Close()
		}
		if c.Redis != nil {
			_ = c.Redis.Close()
		}
		if c.Ledger != nil {
			c.Ledger.Close()
		}
		if c.DB != nil {
			if sqlDB, err := c.DB.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}

		logrus.Info("✅ Service Container cleaned up")
	})
}
