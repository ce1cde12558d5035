package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories behind one transactional boundary. It is the only
// source of truth for batches, notes and claims.
type Store interface {
	Batches() BatchRepository
	Notes() NoteRepository
	Claims() ClaimRepository

	// WithinTx runs fn against a Store bound to a single transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a postgres-backed Store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Batches() BatchRepository { return NewBatchRepository(s.db) }
func (s *gormStore) Notes() NoteRepository     { return NewNoteRepository(s.db) }
func (s *gormStore) Claims() ClaimRepository   { return NewClaimRepository(s.db) }

func (s *gormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
