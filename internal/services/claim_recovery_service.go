package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ClaimRecoveryService re-attaches confirmation tasks to submitted claims, once at
// startup and then on every tick.
type ClaimRecoveryService struct {
	claims   *ClaimService
	interval time.Duration
	grace    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewClaimRecoveryService creates the recovery loop. interval <= 0 runs the startup
// scan only. Claims updated less than grace ago are skipped on periodic scans so a
// claim still owned by a live request on another instance is left alone.
func NewClaimRecoveryService(claims *ClaimService, interval, grace time.Duration) *ClaimRecoveryService {
	return &ClaimRecoveryService{
		claims:   claims,
		interval: interval,
		grace:    grace,
	}
}

// Start begins the recovery loop
func (s *ClaimRecoveryService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	logrus.Infof("🚀 Starting ClaimRecoveryService (interval: %v, grace: %v)", s.interval, s.grace)
	go s.recoveryLoop(s.stopCh, s.doneCh)
}

// Stop ends the loop. Tasks already started keep running until ClaimService.Shutdown.
func (s *ClaimRecoveryService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	logrus.Info("🛑 ClaimRecoveryService stopped")
}

func (s *ClaimRecoveryService) recoveryLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	// Startup scan: with no periodic scan to come, nothing may be left behind.
	startupAge := s.grace
	if s.interval <= 0 {
		startupAge = 0
	}
	s.scan(startupAge)

	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.scan(s.grace)
		case <-stopCh:
			return
		}
	}
}

func (s *ClaimRecoveryService) scan(minAge time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.claims.ResumePendingClaims(ctx, minAge); err != nil {
		logrus.WithError(err).Error("❌ [ClaimRecovery] Scan failed")
	}
}
