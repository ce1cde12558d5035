package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"payroll-backend/internal/app"
	"payroll-backend/internal/config"
	"payroll-backend/internal/models"
)

func main() {
	var (
		claimIDs   = flag.String("ids", "", "Comma-separated list of claim IDs to reconcile")
		minAge     = flag.Duration("min-age", 0, "Only resume submitted claims older than this")
		dryRun     = flag.Bool("dry-run", false, "Only show which claims would be reconciled")
		timeout    = flag.Duration("timeout", 10*time.Minute, "Overall time limit")
		configPath = flag.String("config", "config.yaml", "Path to config file")
	)
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.AppConfig.ConfigureLogging()

	container, err := app.NewContainer(config.AppConfig)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	defer func() {
		if err := container.Shutdown(ctx); err != nil {
			log.Printf("⚠️  Shutdown: %v", err)
		}
	}()

	claims := container.ClaimSvc

	if *claimIDs != "" {
		failures := 0
		for _, id := range strings.Split(*claimIDs, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			view, err := claims.GetClaimStatus(ctx, id)
			if err != nil {
				log.Printf("⚠️  Failed to get claim %s: %v", id, err)
				failures++
				continue
			}
			log.Printf("  - ID: %s, Status: %s, Updated: %s", view.ClaimID, view.Status, view.UpdatedAt.Format(time.RFC3339))
			if *dryRun || view.Status != models.ClaimStatusSubmitted {
				continue
			}
			if err := claims.ReconcileClaim(ctx, id); err != nil {
				log.Printf("❌ Claim %s still unresolved: %v", id, err)
				failures++
				continue
			}
			view, _ = claims.GetClaimStatus(ctx, id)
			if view != nil {
				log.Printf("✅ Claim %s -> %s", id, view.Status)
			}
		}
		if failures > 0 {
			log.Fatalf("%d claim(s) could not be reconciled", failures)
		}
		return
	}

	pending, err := claims.PendingClaims(ctx)
	if err != nil {
		log.Fatalf("Failed to list submitted claims: %v", err)
	}
	if len(pending) == 0 {
		log.Println("No submitted claims found")
		return
	}

	cutoff := time.Now().Add(-*minAge)
	log.Printf("Found %d submitted claims:\n", len(pending))
	for _, c := range pending {
		marker := ""
		if c.UpdatedAt.After(cutoff) {
			marker = " (too recent, skipped)"
		}
		log.Printf("  - ID: %s, Recipient: %s, Payout: %s, Attempts: %d, Updated: %s%s",
			c.ClaimID, c.Recipient, c.PayoutAmount, c.RecoveryAttempts, c.UpdatedAt.Format(time.RFC3339), marker)
	}

	if *dryRun {
		log.Println("\n🔍 DRY RUN MODE - No claims were reconciled")
		return
	}

	resumed, err := claims.ResumePendingClaims(ctx, *minAge)
	if err != nil {
		log.Fatalf("Failed to resume claims: %v", err)
	}
	log.Printf("⏳ Waiting for %d resumed claim(s)...", resumed)
	claims.Wait()
	log.Println("✅ Reconciliation finished")
}
