package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"payroll-backend/internal/models"

	"github.com/lib/pq"
)

// MemoryStore is a process-local Store with the same constraint and conditional
// update semantics as the postgres store. It backs the server's in-memory mode and
// the service tests. Transactions are serialized and applied copy-on-commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	batches map[string]*models.Batch
	notes   map[string]*models.Note
	claims  map[string]*models.Claim // keyed by claim id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		batches: make(map[string]*models.Batch),
		notes:   make(map[string]*models.Note),
		claims:  make(map[string]*models.Claim),
	}}
}

func (s *memState) clone() *memState {
	out := &memState{
		batches: make(map[string]*models.Batch, len(s.batches)),
		notes:   make(map[string]*models.Note, len(s.notes)),
		claims:  make(map[string]*models.Claim, len(s.claims)),
	}
	for k, v := range s.batches {
		out.batches[k] = copyBatch(v)
	}
	for k, v := range s.notes {
		out.notes[k] = copyNote(v)
	}
	for k, v := range s.claims {
		out.claims[k] = copyClaim(v)
	}
	return out
}

func copyBatch(b *models.Batch) *models.Batch {
	c := *b
	return &c
}

func copyNote(n *models.Note) *models.Note {
	c := *n
	c.PathElements = append(pq.StringArray{}, n.PathElements...)
	c.PathIndices = append(pq.Int64Array{}, n.PathIndices...)
	if n.SpentAt != nil {
		t := *n.SpentAt
		c.SpentAt = &t
	}
	return &c
}

func copyClaim(cl *models.Claim) *models.Claim {
	c := *cl
	if cl.RelayerSubmittedAt != nil {
		t := *cl.RelayerSubmittedAt
		c.RelayerSubmittedAt = &t
	}
	return &c
}

// memView reads and writes one state. Outside a transaction every call takes the
// store mutex; inside a transaction the mutex is already held by WithinTx.
type memView struct {
	store *MemoryStore
	tx    *memState
}

type memBatches struct{ *memView }
type memNotes struct{ *memView }
type memClaims struct{ *memView }

func (s *MemoryStore) Batches() BatchRepository { return memBatches{&memView{store: s}} }
func (s *MemoryStore) Notes() NoteRepository     { return memNotes{&memView{store: s}} }
func (s *MemoryStore) Claims() ClaimRepository   { return memClaims{&memView{store: s}} }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTxStore{view: &memView{store: s, tx: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTxStore struct {
	view *memView
}

func (t *memTxStore) Batches() BatchRepository { return memBatches{t.view} }
func (t *memTxStore) Notes() NoteRepository     { return memNotes{t.view} }
func (t *memTxStore) Claims() ClaimRepository   { return memClaims{t.view} }
func (t *memTxStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (v *memView) with(fn func(st *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

// ---- batches

func (v memBatches) Create(ctx context.Context, batch *models.Batch) error {
	return v.with(func(st *memState) error {
		if _, ok := st.batches[batch.BatchID]; ok {
			return ErrConflict
		}
		for _, b := range st.batches {
			if b.Root == batch.Root {
				return ErrConflict
			}
		}
		if batch.CreatedAt.IsZero() {
			batch.CreatedAt = time.Now()
		}
		st.batches[batch.BatchID] = copyBatch(batch)
		return nil
	})
}

func (v memBatches) getBatch(match func(*models.Batch) bool) (*models.Batch, error) {
	var out *models.Batch
	err := v.with(func(st *memState) error {
		for _, b := range st.batches {
			if match(b) {
				out = copyBatch(b)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (v memBatches) GetByID(ctx context.Context, batchID string) (*models.Batch, error) {
	return v.getBatch(func(b *models.Batch) bool { return b.BatchID == batchID })
}

func (v memBatches) GetByRoot(ctx context.Context, root string) (*models.Batch, error) {
	return v.getBatch(func(b *models.Batch) bool { return b.Root == root })
}

func (v memBatches) List(ctx context.Context, page, pageSize int) ([]*models.Batch, int64, error) {
	var out []*models.Batch
	var total int64
	err := v.with(func(st *memState) error {
		all := make([]*models.Batch, 0, len(st.batches))
		for _, b := range st.batches {
			all = append(all, copyBatch(b))
		}
		sort.Slice(all, func(i, j int) bool { return all[i].CumulativeLeafCount > all[j].CumulativeLeafCount })
		total = int64(len(all))
		start := (page - 1) * pageSize
		if start < 0 {
			start = 0
		}
		if start >= len(all) {
			return nil
		}
		end := start + pageSize
		if end > len(all) {
			end = len(all)
		}
		out = all[start:end]
		return nil
	})
	return out, total, err
}

// ---- notes

func (v memNotes) CreateMany(ctx context.Context, notes []*models.Note) error {
	return v.with(func(st *memState) error {
		seen := make(map[string]bool)
		key := func(kind, val string) string { return kind + ":" + val }
		for _, n := range st.notes {
			seen[key("id", n.ID)] = true
			seen[key("nh", n.NullifierHash)] = true
			seen[key("ct", n.ClaimTokenID)] = true
			seen[key("li", strconv.FormatInt(n.LeafIndex, 10))] = true
		}
		for _, n := range notes {
			for _, k := range []string{
				key("id", n.ID), key("nh", n.NullifierHash), key("ct", n.ClaimTokenID),
				key("li", strconv.FormatInt(n.LeafIndex, 10)),
			} {
				if seen[k] {
					return ErrConflict
				}
				seen[k] = true
			}
		}
		now := time.Now()
		for _, n := range notes {
			if n.CreatedAt.IsZero() {
				n.CreatedAt = now
			}
			st.notes[n.ID] = copyNote(n)
		}
		return nil
	})
}

func (v memNotes) getNote(match func(*models.Note) bool) (*models.Note, error) {
	var out *models.Note
	err := v.with(func(st *memState) error {
		for _, n := range st.notes {
			if match(n) {
				out = copyNote(n)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (v memNotes) GetByID(ctx context.Context, id string) (*models.Note, error) {
	return v.getNote(func(n *models.Note) bool { return n.ID == id })
}

func (v memNotes) GetByNullifierHash(ctx context.Context, nullifierHash string) (*models.Note, error) {
	return v.getNote(func(n *models.Note) bool { return n.NullifierHash == nullifierHash })
}

func (v memNotes) GetByClaimTokenID(ctx context.Context, claimTokenID string) (*models.Note, error) {
	return v.getNote(func(n *models.Note) bool { return n.ClaimTokenID == claimTokenID })
}

func (v memNotes) ListByBatch(ctx context.Context, batchID string) ([]*models.Note, error) {
	var out []*models.Note
	err := v.with(func(st *memState) error {
		for _, n := range st.notes {
			if n.BatchID == batchID {
				out = append(out, copyNote(n))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LeafIndex < out[j].LeafIndex })
	return out, err
}

func (v memNotes) Commitments(ctx context.Context) ([]string, error) {
	var out []string
	err := v.with(func(st *memState) error {
		notes := make([]*models.Note, 0, len(st.notes))
		for _, n := range st.notes {
			notes = append(notes, n)
		}
		sort.Slice(notes, func(i, j int) bool { return notes[i].LeafIndex < notes[j].LeafIndex })
		out = make([]string, len(notes))
		for i, n := range notes {
			out[i] = n.Commitment
		}
		return nil
	})
	return out, err
}

func (v memNotes) MarkSpent(ctx context.Context, id string, at time.Time) error {
	return v.with(func(st *memState) error {
		n, ok := st.notes[id]
		if !ok || n.Spent {
			return ErrNotPending
		}
		n.Spent = true
		n.SpentAt = &at
		return nil
	})
}

// ---- claims

func (v memClaims) Upsert(ctx context.Context, claim *models.Claim) error {
	return v.with(func(st *memState) error {
		if _, ok := st.claims[claim.ClaimID]; ok {
			return ErrConflict
		}
		for id, c := range st.claims {
			if c.NullifierHash != claim.NullifierHash {
				continue
			}
			if c.Status != models.ClaimStatusFailed {
				return ErrConflict
			}
			delete(st.claims, id)
		}
		now := time.Now()
		if claim.CreatedAt.IsZero() {
			claim.CreatedAt = now
		}
		claim.UpdatedAt = now
		st.claims[claim.ClaimID] = copyClaim(claim)
		return nil
	})
}

func (v memClaims) getClaim(match func(*models.Claim) bool) (*models.Claim, error) {
	var out *models.Claim
	err := v.with(func(st *memState) error {
		for _, c := range st.claims {
			if match(c) {
				out = copyClaim(c)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func (v memClaims) GetByID(ctx context.Context, claimID string) (*models.Claim, error) {
	return v.getClaim(func(c *models.Claim) bool { return c.ClaimID == claimID })
}

func (v memClaims) GetByNullifierHash(ctx context.Context, nullifierHash string) (*models.Claim, error) {
	return v.getClaim(func(c *models.Claim) bool { return c.NullifierHash == nullifierHash })
}

func (v memClaims) ListByStatus(ctx context.Context, status models.ClaimStatus, after ClaimCursor, limit int) ([]*models.Claim, error) {
	var out []*models.Claim
	err := v.with(func(st *memState) error {
		for _, c := range st.claims {
			if c.Status == status && after.precedes(c) {
				out = append(out, copyClaim(c))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ClaimID < out[j].ClaimID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (v memClaims) updatePending(claimID string, fn func(c *models.Claim)) error {
	return v.with(func(st *memState) error {
		c, ok := st.claims[claimID]
		if !ok || c.Status != models.ClaimStatusSubmitted {
			return ErrNotPending
		}
		fn(c)
		c.UpdatedAt = time.Now()
		return nil
	})
}

func (v memClaims) SetReserved(ctx context.Context, claimID, reserveTxHash string) error {
	return v.updatePending(claimID, func(c *models.Claim) { c.ReserveTxHash = reserveTxHash })
}

func (v memClaims) SetRelayerSubmitted(ctx context.Context, claimID string, at time.Time) error {
	return v.updatePending(claimID, func(c *models.Claim) { c.RelayerSubmittedAt = &at })
}

func (v memClaims) IncrementRecoveryAttempts(ctx context.Context, claimID string) error {
	return v.updatePending(claimID, func(c *models.Claim) { c.RecoveryAttempts++ })
}

func (v memClaims) MarkConfirmed(ctx context.Context, claimID string, outcome models.ClaimOutcome) error {
	return v.updatePending(claimID, func(c *models.Claim) {
		c.Status = models.ClaimStatusConfirmed
		c.RelayerTxHash = outcome.RelayerTxHash
		c.FinalizeTxHash = outcome.FinalizeTxHash
	})
}

func (v memClaims) MarkFailed(ctx context.Context, claimID string, outcome models.ClaimOutcome) error {
	return v.updatePending(claimID, func(c *models.Claim) {
		c.Status = models.ClaimStatusFailed
		c.RelayerTxHash = outcome.RelayerTxHash
		c.CancelTxHash = outcome.CancelTxHash
		c.Error = outcome.Error
	})
}
