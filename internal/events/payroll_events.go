package events

import (
	"context"
	"time"

	"payroll-backend/internal/clients"
	"payroll-backend/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	SubjectBatchRegistered = "batch.registered"
	SubjectClaimPrefix     = "claim." // followed by the status
)

// BatchRegisteredEvent is published once a batch is committed.
type BatchRegisteredEvent struct {
	BatchID             string    `json:"batch_id"`
	Employer            string    `json:"employer"`
	Root                string    `json:"root"`
	NoteCount           int       `json:"note_count"`
	TotalAmount         string    `json:"total_amount"`
	CumulativeLeafCount int64     `json:"cumulative_leaf_count"`
	RegisterTx          string    `json:"register_tx"`
	Timestamp           time.Time `json:"timestamp"`
}

// ClaimStatusEvent is published on every claim status change. It never carries
// error text or note secrets.
type ClaimStatusEvent struct {
	ClaimID        string             `json:"claim_id"`
	NullifierHash  string             `json:"nullifier_hash"`
	Status         models.ClaimStatus `json:"status"`
	RelayerTxHash  string             `json:"relayer_tx_hash,omitempty"`
	FinalizeTxHash string             `json:"finalize_tx_hash,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Publisher sends payroll events to NATS. Publish failures are logged and never
// fail the operation that produced the event.
type Publisher struct {
	client *clients.NATSClient
}

func NewPublisher(client *clients.NATSClient) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) BatchRegistered(ctx context.Context, batch *models.Batch) {
	ev := BatchRegisteredEvent{
		BatchID:             batch.BatchID,
		Employer:            batch.Employer,
		Root:                batch.Root,
		NoteCount:           batch.NoteCount,
		TotalAmount:         batch.TotalAmount,
		CumulativeLeafCount: batch.CumulativeLeafCount,
		RegisterTx:          batch.RegisterTx,
		Timestamp:           time.Now().UTC(),
	}
	subject := p.client.Subject(SubjectBatchRegistered)
	if err := p.client.PublishJSON(subject, ev); err != nil {
		logrus.WithError(err).WithField("batch_id", batch.BatchID).Warn("⚠️ Failed to publish batch event")
	}
}

func (p *Publisher) ClaimUpdated(ctx context.Context, claim *models.Claim) {
	subject := p.client.Subject(SubjectClaimPrefix + string(claim.Status))
	if err := p.client.PublishJSON(subject, NewClaimStatusEvent(claim)); err != nil {
		logrus.WithError(err).WithField("claim_id", claim.ClaimID).Warn("⚠️ Failed to publish claim event")
	}
}

func NewClaimStatusEvent(claim *models.Claim) ClaimStatusEvent {
	return ClaimStatusEvent{
		ClaimID:        claim.ClaimID,
		NullifierHash:  claim.NullifierHash,
		Status:         claim.Status,
		RelayerTxHash:  claim.RelayerTxHash,
		FinalizeTxHash: claim.FinalizeTxHash,
		Timestamp:      time.Now().UTC(),
	}
}
