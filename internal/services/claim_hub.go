package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"payroll-backend/internal/models"
)

var ErrClientNotFound = errors.New("client not found")

// ClaimStatusMessage is pushed to websocket subscribers on every status change.
type ClaimStatusMessage struct {
	Type      string             `json:"type"`
	ClaimID   string             `json:"claim_id"`
	Status    models.ClaimStatus `json:"status"`
	Timestamp int64              `json:"timestamp"`
}

// ClaimSubscriber is one websocket connection following one claim.
type ClaimSubscriber struct {
	ClientID    string
	ClaimID     string
	MessageChan chan interface{}
}

// ClaimHub fans claim status changes out to websocket subscribers.
type ClaimHub struct {
	mu      sync.RWMutex
	clients map[string]*ClaimSubscriber
	byClaim map[string]map[string]bool // claimID -> clientID set
}

func NewClaimHub() *ClaimHub {
	return &ClaimHub{
		clients: make(map[string]*ClaimSubscriber),
		byClaim: make(map[string]map[string]bool),
	}
}

// RegisterClient registers a connection for claimID.
func (h *ClaimHub) RegisterClient(clientID, claimID string, messageChan chan interface{}) *ClaimSubscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &ClaimSubscriber{ClientID: clientID, ClaimID: claimID, MessageChan: messageChan}
	h.clients[clientID] = sub
	if h.byClaim[claimID] == nil {
		h.byClaim[claimID] = make(map[string]bool)
	}
	h.byClaim[claimID][clientID] = true
	return sub
}

// UnregisterClient removes a connection
func (h *ClaimHub) UnregisterClient(clientID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	delete(h.clients, clientID)
	delete(h.byClaim[sub.ClaimID], clientID)
	if len(h.byClaim[sub.ClaimID]) == 0 {
		delete(h.byClaim, sub.ClaimID)
	}
	return nil
}

// ClientsForClaim returns the ids of connections following claimID.
func (h *ClaimHub) ClientsForClaim(claimID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	for id := range h.byClaim[claimID] {
		ids = append(ids, id)
	}
	return ids
}

// ClaimUpdated implements ClaimNotifier. Slow subscribers miss messages rather than
// block the coordinator.
func (h *ClaimHub) ClaimUpdated(_ context.Context, claim *models.Claim) {
	msg := ClaimStatusMessage{
		Type:      "claim_status",
		ClaimID:   claim.ClaimID,
		Status:    claim.Status,
		Timestamp: time.Now().Unix(),
	}

	h.mu.RLock()
	subs := make([]*ClaimSubscriber, 0, len(h.byClaim[claim.ClaimID]))
	for id := range h.byClaim[claim.ClaimID] {
		subs = append(subs, h.clients[id])
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.MessageChan <- msg:
		default:
			// Channel full, skip to avoid blocking
		}
	}
}
