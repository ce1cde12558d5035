package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"payroll-backend/internal/claimtoken"
	"payroll-backend/internal/field"
	"payroll-backend/internal/merkle"
	"payroll-backend/internal/metrics"
	"payroll-backend/internal/models"
	"payroll-backend/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PaymentInput is one recipient of a batch.
type PaymentInput struct {
	Recipient string
	Amount    string
}

type CreateBatchInput struct {
	Employer   string
	FundingRef string
	Payments   []PaymentInput
}

// IssuedNote is a created note together with its claim token. The token is returned
// exactly once and is not stored.
type IssuedNote struct {
	Note       *models.Note
	ClaimToken string
}

type CreateBatchResult struct {
	Batch *models.Batch
	Notes []IssuedNote
}

// BatchService ingests funding batches into the commitment tree.
type BatchService struct {
	store     repository.Store
	ledger    Ledger
	lock      IngestionLock
	codec     *claimtoken.Codec
	depth     int
	notifiers []BatchNotifier
}

func NewBatchService(store repository.Store, ledger Ledger, lock IngestionLock, codec *claimtoken.Codec, depth int, notifiers ...BatchNotifier) *BatchService {
	return &BatchService{
		store:     store,
		ledger:    ledger,
		lock:      lock,
		codec:     codec,
		depth:     depth,
		notifiers: notifiers,
	}
}

type parsedPayment struct {
	recipient common.Address
	amount    *big.Int
}

func parsePayments(in CreateBatchInput) ([]parsedPayment, *big.Int, error) {
	if in.Employer == "" {
		return nil, nil, validationError(CodeInvalidInput, "employer is required")
	}
	if len(in.Payments) == 0 {
		return nil, nil, validationError(CodeInvalidInput, "batch needs at least one payment")
	}
	total := new(big.Int)
	out := make([]parsedPayment, 0, len(in.Payments))
	for i, p := range in.Payments {
		if !common.IsHexAddress(p.Recipient) {
			return nil, nil, validationError(CodeInvalidInput, fmt.Sprintf("payment %d: invalid recipient address", i))
		}
		amount, err := field.FromDecimal(p.Amount)
		if err != nil || amount.Sign() <= 0 {
			return nil, nil, validationError(CodeInvalidInput, fmt.Sprintf("payment %d: amount must be a positive integer below the field modulus", i))
		}
		total.Add(total, amount)
		out = append(out, parsedPayment{recipient: common.HexToAddress(p.Recipient), amount: amount})
	}
	if !field.InField(total) {
		return nil, nil, validationError(CodeInvalidInput, "batch total exceeds the field modulus")
	}
	return out, total, nil
}

// CreateBatch creates one note per payment, appends their commitments to the tree,
// registers the new root on the ledger and persists everything in one transaction.
// Ingestion is serialized by the ingestion lock.
func (s *BatchService) CreateBatch(ctx context.Context, in CreateBatchInput) (*CreateBatchResult, error) {
	payments, total, err := parsePayments(in)
	if err != nil {
		return nil, err
	}

	release, err := acquireTimed(ctx, s.lock)
	if err != nil {
		return nil, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	defer release()

	var result *CreateBatchResult
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		var txErr error
		result, txErr = s.ingest(ctx, tx, in, payments, total)
		return txErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, newServiceError(KindConflict, CodePersistenceConflict, "batch conflicts with existing notes", err)
		}
		return nil, err
	}

	metrics.BatchesCreated.Inc()
	metrics.NotesCreated.Add(float64(len(result.Notes)))
	logrus.WithFields(logrus.Fields{
		"batch_id":    result.Batch.BatchID,
		"notes":       result.Batch.NoteCount,
		"root":        result.Batch.Root,
		"register_tx": result.Batch.RegisterTx,
	}).Info("✅ Batch registered")

	for _, n := range s.notifiers {
		n.BatchRegistered(ctx, result.Batch)
	}
	return result, nil
}

func (s *BatchService) ingest(ctx context.Context, tx repository.Store, in CreateBatchInput, payments []parsedPayment, total *big.Int) (*CreateBatchResult, error) {
	existing, err := tx.Notes().Commitments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaf set: %w", err)
	}
	leaves := make([]*big.Int, 0, len(existing)+len(payments))
	for i, c := range existing {
		leaf, err := field.FromDecimal(c)
		if err != nil {
			return nil, fmt.Errorf("stored commitment at leaf %d: %w", i, err)
		}
		leaves = append(leaves, leaf)
	}

	base := uint64(len(leaves))
	if base+uint64(len(payments)) > merkle.Capacity(s.depth) {
		return nil, validationError(CodeTreeFull, fmt.Sprintf("tree of depth %d cannot hold %d more leaves", s.depth, len(payments)))
	}

	batchID := uuid.NewString()
	notes := make([]*models.Note, len(payments))
	indices := make([]uint64, len(payments))
	for i, p := range payments {
		note, commitment, err := newNote(batchID, p)
		if err != nil {
			return nil, err
		}
		note.LeafIndex = int64(base) + int64(i)
		notes[i] = note
		indices[i] = base + uint64(i)
		leaves = append(leaves, commitment)
	}

	proofs, root, err := merkle.ComputeProofs(leaves, s.depth, indices)
	if err != nil {
		return nil, fmt.Errorf("compute tree: %w", err)
	}
	rootStr := root.String()

	issued := make([]IssuedNote, len(notes))
	for i, note := range notes {
		note.Root = rootStr
		note.PathElements = make(pq.StringArray, len(proofs[i].PathElements))
		note.PathIndices = make(pq.Int64Array, len(proofs[i].PathIndices))
		for l, e := range proofs[i].PathElements {
			note.PathElements[l] = e.String()
			note.PathIndices[l] = int64(proofs[i].PathIndices[l])
		}
		token, err := s.codec.Seal(note.ClaimTokenID, common.HexToAddress(note.Recipient))
		if err != nil {
			return nil, fmt.Errorf("seal claim token: %w", err)
		}
		issued[i] = IssuedNote{Note: note, ClaimToken: token}
	}

	if err := tx.Notes().CreateMany(ctx, notes); err != nil {
		return nil, fmt.Errorf("insert notes: %w", err)
	}

	registerTx, err := s.ledger.RegisterRoot(ctx, root, crypto.Keccak256Hash([]byte(batchID)), big.NewInt(int64(len(notes))), total)
	if err != nil {
		logrus.WithError(err).WithField("batch_id", batchID).Error("❌ Root registration failed, batch discarded")
		return nil, externalError(CodeLedgerError, "root registration failed", err)
	}

	batch := &models.Batch{
		BatchID:             batchID,
		Employer:            in.Employer,
		TotalAmount:         total.String(),
		NoteCount:           len(notes),
		Root:                rootStr,
		CumulativeLeafCount: int64(len(leaves)),
		FundingRef:          in.FundingRef,
		RegisterTx:          registerTx,
		Status:              models.BatchStatusRegistered,
	}
	if err := tx.Batches().Create(ctx, batch); err != nil {
		// The root is already on the ledger; a replay of the same root is rejected there.
		logrus.WithError(err).WithFields(logrus.Fields{
			"batch_id":    batchID,
			"register_tx": registerTx,
		}).Error("❌ Batch persistence failed after root registration")
		return nil, fmt.Errorf("insert batch: %w", err)
	}
	return &CreateBatchResult{Batch: batch, Notes: issued}, nil
}

func newNote(batchID string, p parsedPayment) (*models.Note, *big.Int, error) {
	secret, err := field.Random()
	if err != nil {
		return nil, nil, err
	}
	nullifier, err := field.Random()
	if err != nil {
		return nil, nil, err
	}
	nullifierHash, err := field.Hash(nullifier)
	if err != nil {
		return nil, nil, err
	}
	commitment, err := field.Hash(p.amount, secret, nullifier)
	if err != nil {
		return nil, nil, err
	}
	return &models.Note{
		ID:            uuid.NewString(),
		BatchID:       batchID,
		Recipient:     p.recipient.Hex(),
		Amount:        p.amount.String(),
		Secret:        secret.String(),
		Nullifier:     nullifier.String(),
		NullifierHash: nullifierHash.String(),
		Commitment:    commitment.String(),
		ClaimTokenID:  uuid.NewString(),
	}, commitment, nil
}

func (s *BatchService) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	batch, err := s.store.Batches().GetByID(ctx, batchID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newServiceError(KindNotFound, CodeBatchNotFound, "batch not found", nil)
	}
	return batch, err
}

// GetBatchByRoot looks a batch up by its registered root (decimal or 0x hex).
func (s *BatchService) GetBatchByRoot(ctx context.Context, root string) (*models.Batch, error) {
	r, err := field.FromDecimal(root)
	if hex, ok := strings.CutPrefix(root, "0x"); ok {
		r, ok = new(big.Int).SetString(hex, 16)
		if ok && field.InField(r) {
			err = nil
		}
	}
	if err != nil {
		return nil, validationError(CodeInvalidInput, "root must be a field element")
	}
	batch, err := s.store.Batches().GetByRoot(ctx, r.String())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newServiceError(KindNotFound, CodeBatchNotFound, "root not registered", nil)
	}
	return batch, err
}

func (s *BatchService) ListBatches(ctx context.Context, page, pageSize int) ([]*models.Batch, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.Batches().List(ctx, page, pageSize)
}

func (s *BatchService) ListNotes(ctx context.Context, batchID string) ([]*models.Note, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.Notes().ListByBatch(ctx, batchID)
}
