package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"payroll-backend/internal/db"
	"payroll-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB connects to PAYROLL_TEST_DSN, skipping the test when it is unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("PAYROLL_TEST_DSN")
	if dsn == "" {
		t.Skip("PAYROLL_TEST_DSN not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func pgClaim(nh string) *models.Claim {
	return &models.Claim{
		ClaimID:         uuid.NewString(),
		NoteID:          uuid.NewString(),
		NullifierHash:   nh,
		RequestHash:     "1",
		AuthorizationID: "0x01",
		Recipient:       "0x1111111111111111111111111111111111111111",
		Relayer:         "0x2222222222222222222222222222222222222222",
		Fee:             "10",
		PayoutAmount:    "2990",
		Status:          models.ClaimStatusSubmitted,
	}
}

func TestClaimRepositoryUpsertOneLiveClaimPerNullifier(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(gdb)
	nh := uuid.NewString()
	t.Cleanup(func() { gdb.Where("nullifier_hash = ?", nh).Delete(&models.Claim{}) })

	first := pgClaim(nh)
	require.NoError(t, repo.Upsert(ctx, first))

	// submitted row blocks a second claim
	assert.ErrorIs(t, repo.Upsert(ctx, pgClaim(nh)), ErrConflict)

	require.NoError(t, repo.SetReserved(ctx, first.ClaimID, "0xreserve"))
	require.NoError(t, repo.MarkConfirmed(ctx, first.ClaimID, models.ClaimOutcome{RelayerTxHash: "0xpaid"}))
	assert.ErrorIs(t, repo.MarkFailed(ctx, first.ClaimID, models.ClaimOutcome{}), ErrNotPending)

	// confirmed row blocks too
	assert.ErrorIs(t, repo.Upsert(ctx, pgClaim(nh)), ErrConflict)
	got, err := repo.GetByNullifierHash(ctx, nh)
	require.NoError(t, err)
	assert.Equal(t, first.ClaimID, got.ClaimID)
	assert.Equal(t, models.ClaimStatusConfirmed, got.Status)
}

func TestClaimRepositoryUpsertReplacesFailedClaim(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(gdb)
	nh := uuid.NewString()
	t.Cleanup(func() { gdb.Where("nullifier_hash = ?", nh).Delete(&models.Claim{}) })

	first := pgClaim(nh)
	require.NoError(t, repo.Upsert(ctx, first))
	require.NoError(t, repo.IncrementRecoveryAttempts(ctx, first.ClaimID))
	require.NoError(t, repo.MarkFailed(ctx, first.ClaimID, models.ClaimOutcome{Error: "relayer failed"}))

	retry := pgClaim(nh)
	require.NoError(t, repo.Upsert(ctx, retry))

	got, err := repo.GetByNullifierHash(ctx, nh)
	require.NoError(t, err)
	assert.Equal(t, retry.ClaimID, got.ClaimID)
	assert.Equal(t, models.ClaimStatusSubmitted, got.Status)
	assert.Zero(t, got.RecoveryAttempts)
	assert.Empty(t, got.Error)

	_, err = repo.GetByID(ctx, first.ClaimID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimRepositoryListByStatusPages(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	repo := NewClaimRepository(gdb)

	var ids []string
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		c := pgClaim(uuid.NewString())
		c.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Upsert(ctx, c))
		ids = append(ids, c.ClaimID)
	}
	t.Cleanup(func() { gdb.Where("claim_id IN ?", ids).Delete(&models.Claim{}) })

	// other submitted rows may exist in a shared database; start just before ours
	cursor := ClaimCursor{CreatedAt: base.Add(-time.Nanosecond)}
	var seen []string
	for {
		page, err := repo.ListByStatus(ctx, models.ClaimStatusSubmitted, cursor, 2)
		require.NoError(t, err)
		for _, c := range page {
			if c.CreatedAt.Before(base.Add(3 * time.Second)) {
				seen = append(seen, c.ClaimID)
			}
		}
		if len(page) < 2 {
			break
		}
		cursor = CursorOf(page[len(page)-1])
	}
	assert.Equal(t, ids, seen)
}

func TestPendingTransitionsOnMissingRows(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()

	assert.ErrorIs(t, NewNoteRepository(gdb).MarkSpent(ctx, uuid.NewString(), time.Now()), ErrNotPending)
	assert.ErrorIs(t, NewClaimRepository(gdb).SetReserved(ctx, uuid.NewString(), "0xreserve"), ErrNotPending)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err := NewClaimRepository(gdb).IncrementRecoveryAttempts(canceled, uuid.NewString())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPending)
}
