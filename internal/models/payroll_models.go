package models

import (
	"time"

	"github.com/lib/pq"
)

type BatchStatus string

const (
	BatchStatusRegistered BatchStatus = "registered" // root accepted by the ledger, notes persisted
)

// Batch is one funding event. Created together with its notes and never updated.
type Batch struct {
	BatchID             string      `json:"batch_id" gorm:"primaryKey;type:varchar(36)"`
	Employer            string      `json:"employer" gorm:"not null;index"`
	TotalAmount         string      `json:"total_amount" gorm:"type:numeric(78,0);not null"` // sum of note amounts, decimal
	NoteCount           int         `json:"note_count" gorm:"not null"`
	Root                string      `json:"root" gorm:"type:varchar(80);not null;uniqueIndex"` // tree root after this batch, decimal
	CumulativeLeafCount int64       `json:"cumulative_leaf_count" gorm:"not null"`           // leaves in the tree including this batch
	FundingRef          string      `json:"funding_ref"`
	RegisterTx          string      `json:"register_tx" gorm:"type:varchar(66)"`
	Status              BatchStatus `json:"status" gorm:"type:varchar(20);not null"`
	CreatedAt           time.Time   `json:"created_at"`
}

func (Batch) TableName() string { return "batches" }

// Note is one recipient's entitlement. Secret and Nullifier never leave the backend
// except as prover inputs.
type Note struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	BatchID       string         `json:"batch_id" gorm:"type:varchar(36);not null;index"`
	Recipient     string         `json:"recipient" gorm:"type:varchar(42);not null;index"` // checksummed address
	Amount        string         `json:"amount" gorm:"type:numeric(78,0);not null"`
	Secret        string         `json:"-" gorm:"type:varchar(80);not null"`
	Nullifier     string         `json:"-" gorm:"type:varchar(80);not null"`
	NullifierHash string         `json:"nullifier_hash" gorm:"type:varchar(80);not null;uniqueIndex"`
	Commitment    string         `json:"commitment" gorm:"type:varchar(80);not null"`
	LeafIndex     int64          `json:"leaf_index" gorm:"not null;uniqueIndex"`
	Root          string         `json:"root" gorm:"type:varchar(80);not null"` // root the path below authenticates against
	PathElements  pq.StringArray `json:"path_elements" gorm:"type:text[];not null"`
	PathIndices   pq.Int64Array  `json:"path_indices" gorm:"type:integer[];not null"`
	ClaimTokenID  string         `json:"-" gorm:"type:varchar(36);not null;uniqueIndex"`
	Spent         bool           `json:"spent" gorm:"not null;default:false"`
	SpentAt       *time.Time     `json:"spent_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Note) TableName() string { return "notes" }

// ClaimStatus is monotone: submitted -> confirmed | failed.
type ClaimStatus string

const (
	ClaimStatusSubmitted ClaimStatus = "submitted"
	ClaimStatusConfirmed ClaimStatus = "confirmed"
	ClaimStatusFailed    ClaimStatus = "failed"
)

func (s ClaimStatus) Terminal() bool {
	return s == ClaimStatusConfirmed || s == ClaimStatusFailed
}

// Claim is the durable record of one withdrawal attempt. One row per nullifier hash;
// a retry after failure replaces the failed row with a fresh claim id.
type Claim struct {
	ClaimID         string      `json:"claim_id" gorm:"primaryKey;type:varchar(36)"`
	NoteID          string      `json:"note_id" gorm:"type:varchar(36);not null;index"`
	NullifierHash   string      `json:"nullifier_hash" gorm:"type:varchar(80);not null;uniqueIndex"`
	RequestHash     string      `json:"request_hash" gorm:"type:varchar(80);not null"`
	AuthorizationID string      `json:"authorization_id" gorm:"type:varchar(66);not null;index"`
	Recipient       string      `json:"recipient" gorm:"type:varchar(42);not null"`
	Relayer         string      `json:"relayer" gorm:"type:varchar(42);not null"`
	Fee             string      `json:"fee" gorm:"type:numeric(78,0);not null"`
	PayoutAmount    string      `json:"payout_amount" gorm:"type:numeric(78,0);not null"` // amount - fee
	Status          ClaimStatus `json:"status" gorm:"type:varchar(20);not null;index"`

	// progress markers, written as the protocol advances
	ReserveTxHash      string     `json:"reserve_tx_hash" gorm:"type:varchar(66)"`
	RelayerSubmittedAt *time.Time `json:"relayer_submitted_at"`
	RelayerTxHash      string     `json:"relayer_tx_hash" gorm:"type:varchar(130)"`
	FinalizeTxHash     string     `json:"finalize_tx_hash" gorm:"type:varchar(66)"`
	CancelTxHash       string     `json:"cancel_tx_hash" gorm:"type:varchar(66)"`

	Error            string    `json:"-" gorm:"type:text"`
	RecoveryAttempts int       `json:"recovery_attempts" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Claim) TableName() string { return "claims" }

// ClaimOutcome carries what a terminal transition records.
type ClaimOutcome struct {
	RelayerTxHash  string
	FinalizeTxHash string
	CancelTxHash   string
	Error          string
}
