package services

import (
	"context"
	"database/sql"
	"math/big"
	"sync"
	"time"

	"payroll-backend/internal/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"
)

// BalanceSource reports the native balance of the ledger transaction signer.
type BalanceSource interface {
	Signer() common.Address
	SignerBalance(ctx context.Context) (*big.Int, error)
}

// MonitoringService periodically refreshes the gauges that are not updated on
// the request path: database pool, signer balance and the settlement backlog.
type MonitoringService struct {
	db       *sql.DB
	balances BalanceSource
	claims   *ClaimService
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitoringService creates the service; db and balances may be nil.
func NewMonitoringService(db *sql.DB, balances BalanceSource, claims *ClaimService, interval time.Duration) *MonitoringService {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &MonitoringService{
		db:       db,
		balances: balances,
		claims:   claims,
		interval: interval,
	}
}

// Start begins refreshing; a second call is a no-op.
func (m *MonitoringService) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})

	logrus.Info("🚀 Starting monitoring service...")
	m.wg.Add(1)
	go m.loop(m.stopCh)
}

// Stop waits for the refresh loop to exit.
func (m *MonitoringService) Stop() {
	m.mu.Lock()
	stopCh := m.stopCh
	m.stopCh = nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	m.wg.Wait()
	logrus.Info("✅ Monitoring service stopped")
}

func (m *MonitoringService) loop(stopCh <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *MonitoringService) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m.updateDatabaseMetrics(ctx)
	m.updateBalance(ctx)
	m.updateBacklog(ctx)
}

func (m *MonitoringService) updateDatabaseMetrics(ctx context.Context) {
	if m.db == nil {
		return
	}
	metrics.DBConnectionOpen.Set(float64(m.db.Stats().OpenConnections))
	if err := m.db.PingContext(ctx); err != nil {
		metrics.DBConnectionStatus.Set(0)
		logrus.WithError(err).Warn("⚠️ [Monitor] Database ping failed")
		return
	}
	metrics.DBConnectionStatus.Set(1)
}

func (m *MonitoringService) updateBalance(ctx context.Context) {
	if m.balances == nil {
		return
	}
	address := m.balances.Signer().Hex()
	balance, err := m.balances.SignerBalance(ctx)
	if err != nil {
		logrus.WithError(err).WithField("address", address).Warn("⚠️ [Monitor] Failed to get signer balance")
		return
	}
	metrics.SignerBalance.WithLabelValues(address).Set(weiToFloat(balance))
}

func (m *MonitoringService) updateBacklog(ctx context.Context) {
	if m.claims == nil {
		return
	}
	pending, err := m.claims.PendingClaims(ctx)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ [Monitor] Failed to count submitted claims")
		return
	}
	metrics.ClaimsAwaitingSettlement.Set(float64(len(pending)))
}

// weiToFloat converts wei to ether for display; precision loss is acceptable for a gauge.
func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}
