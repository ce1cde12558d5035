package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"payroll-backend/internal/claimtoken"
	"payroll-backend/internal/clients"
	"payroll-backend/internal/field"
	"payroll-backend/internal/metrics"
	"payroll-backend/internal/models"
	"payroll-backend/internal/repository"
	"payroll-backend/internal/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Compensation reasons. Their keccak256 is passed to cancelReservation.
const (
	ReasonReserveFailed       = "reserve_failed"
	ReasonRelayerSubmitFailed = "relayer_submit_failed"
	ReasonRelayerRejected     = "relayer_rejected"
	ReasonRelayerFailed       = "relayer_failed"
	ReasonRelayerNotFound     = "relayer_not_found"
)

// PollPolicy bounds relayer status polling for one confirmation run.
type PollPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxAttempts     int
}

func (p PollPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

type ClaimServiceConfig struct {
	Relayer           common.Address
	Fee               *big.Int
	Poll              PollPolicy
	RecoveryBatchSize int
	// ReserveSettleWindow is how long a claim with no known reserve transaction is
	// assumed to possibly have one in flight. Zero disables the wait.
	ReserveSettleWindow time.Duration
}

// errReservationUnsettled leaves a claim submitted until its reserve transaction
// can no longer land.
var errReservationUnsettled = errors.New("reserve transaction not settled")

// ClaimStatusView is what callers may see of a claim.
type ClaimStatusView struct {
	ClaimID   string             `json:"claim_id"`
	Status    models.ClaimStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ClaimService coordinates withdrawals: proof, reservation, relayer payout and
// settlement. Every step after validation is recorded on the claim row so an
// interrupted claim is resumed from the store, never from memory.
type ClaimService struct {
	store     repository.Store
	ledger    Ledger
	prover    Prover
	relayer   Relayer
	signer    *PayoutSigner
	codec     *claimtoken.Codec
	cfg       ClaimServiceConfig
	notifiers []ClaimNotifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
}

func NewClaimService(store repository.Store, ledger Ledger, prover Prover, relayer Relayer, signer *PayoutSigner, codec *claimtoken.Codec, cfg ClaimServiceConfig, notifiers ...ClaimNotifier) *ClaimService {
	if cfg.Fee == nil {
		cfg.Fee = new(big.Int)
	}
	if cfg.RecoveryBatchSize <= 0 {
		cfg.RecoveryBatchSize = 500
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ClaimService{
		store:     store,
		ledger:    ledger,
		prover:    prover,
		relayer:   relayer,
		signer:    signer,
		codec:     codec,
		cfg:       cfg,
		notifiers: notifiers,
		ctx:       ctx,
		cancel:    cancel,
		inflight:  make(map[string]struct{}),
	}
}

// InitiateClaim validates the claim, proves it, reserves the nullifier and hands the
// payout to the relayer. It returns once the relayer accepted the authorization;
// settlement continues in the background.
func (s *ClaimService) InitiateClaim(ctx context.Context, token, recipientAddr string) (*models.Claim, error) {
	if !common.IsHexAddress(recipientAddr) {
		return nil, validationError(CodeInvalidInput, "invalid recipient address")
	}
	recipient := common.HexToAddress(recipientAddr)

	payload, err := s.codec.Open(token)
	if err != nil {
		return nil, validationError(CodeInvalidClaimToken, "invalid claim token")
	}
	if payload.Recipient != recipient {
		return nil, validationError(CodeWalletMismatch, "recipient does not match claim token")
	}

	note, err := s.store.Notes().GetByClaimTokenID(ctx, payload.ClaimTokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newServiceError(KindNotFound, CodeNoteNotFound, "note not found", nil)
		}
		return nil, err
	}
	if note.Spent {
		return nil, validationError(CodeAlreadyClaimed, "note already claimed")
	}
	if common.HexToAddress(note.Recipient) != recipient {
		return nil, validationError(CodeWalletMismatch, "recipient does not match note")
	}
	if err := s.checkNoLiveClaim(ctx, note.NullifierHash); err != nil {
		return nil, err
	}

	amount := field.MustDecimal(note.Amount)
	fee := s.cfg.Fee
	if fee.Cmp(amount) >= 0 {
		return nil, validationError(CodeFeeTooHigh, "relayer fee exceeds note amount")
	}
	root := field.MustDecimal(note.Root)
	nullifierHash := field.MustDecimal(note.NullifierHash)

	requestHash, err := s.checkRequestHash(ctx, root, nullifierHash, recipient, fee, amount)
	if err != nil {
		return nil, err
	}
	proof, err := s.prove(ctx, note, requestHash, recipient, fee)
	if err != nil {
		return nil, err
	}
	ok, err := s.ledger.VerifyWithdrawal(ctx, proof, root, nullifierHash, requestHash)
	if err != nil {
		return nil, externalError(CodeLedgerError, "proof verification unavailable", err)
	}
	if !ok {
		return nil, mismatchError(CodeInvalidProof, "proof rejected by verifier")
	}

	claimID := uuid.NewString()
	payout := new(big.Int).Sub(amount, fee)
	auth, err := s.signer.Authorize(claimID, nullifierHash, recipient, s.cfg.Relayer, payout, fee)
	if err != nil {
		return nil, err
	}

	claim := &models.Claim{
		ClaimID:         claimID,
		NoteID:          note.ID,
		NullifierHash:   note.NullifierHash,
		RequestHash:     requestHash.String(),
		AuthorizationID: auth.IDHex(),
		Recipient:       recipient.Hex(),
		Relayer:         s.cfg.Relayer.Hex(),
		Fee:             fee.String(),
		PayoutAmount:    payout.String(),
		Status:          models.ClaimStatusSubmitted,
	}

	if !s.track(claimID) {
		return nil, errors.New("claim service is shutting down")
	}
	launched := false
	defer func() {
		if !launched {
			s.untrack(claimID)
		}
	}()

	// Write-ahead: from here on every crash point is visible to recovery.
	if err := s.store.Claims().Upsert(ctx, claim); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, newServiceError(KindConflict, CodeClaimInProgress, "a claim for this note is already in progress", err)
		}
		return nil, fmt.Errorf("record claim: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{
		"claim_id":       claimID,
		"nullifier_hash": note.NullifierHash,
		"auth_id":        claim.AuthorizationID,
	})
	log.Info("📝 Claim recorded")

	// Detached from the request so a client disconnect cannot strand a reservation.
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	reserveTx, err := s.ledger.ReserveWithdrawal(opCtx, proof, root, nullifierHash, requestHash, auth.ID)
	if err != nil {
		if reserveTx != "" && !errors.Is(err, clients.ErrTxReverted) {
			// Sent but not confirmed: the reservation may still land.
			if setErr := s.store.Claims().SetReserved(opCtx, claimID, reserveTx); setErr != nil {
				log.WithError(setErr).Warn("⚠️ Failed to record reservation tx")
			}
			log.WithError(err).WithField("reserve_tx", reserveTx).Warn("⚠️ Reservation unconfirmed, claim left for recovery")
			return nil, externalError(CodeLedgerError, "reservation not confirmed, claim left for recovery", err)
		}
		// Reverted, or never sent: nothing can land later.
		log.WithError(err).Error("❌ Reservation failed")
		if relErr := s.release(opCtx, claim, ReasonReserveFailed, err.Error(), ""); relErr != nil {
			log.WithError(relErr).Error("❌ Compensation failed, claim left for recovery")
		}
		return nil, externalError(CodeLedgerError, "reservation failed", err)
	}
	if err := s.store.Claims().SetReserved(opCtx, claimID, reserveTx); err != nil {
		log.WithError(err).Warn("⚠️ Failed to record reservation tx")
	}
	claim.ReserveTxHash = reserveTx
	log.WithField("reserve_tx", reserveTx).Info("🔒 Nullifier reserved")

	resp, err := s.relayer.Submit(opCtx, auth.Authorization, auth.IDHex(), auth.SignatureHex())
	if err == nil && resp.AuthorizationID != "" && resp.AuthorizationID != auth.IDHex() {
		err = fmt.Errorf("relayer acknowledged authorization %s, expected %s", resp.AuthorizationID, auth.IDHex())
	}
	if err != nil {
		log.WithError(err).Error("❌ Relayer submission failed, cancelling reservation")
		s.compensateOrDefer(opCtx, claim, ReasonRelayerSubmitFailed, err.Error(), "")
		return nil, externalError(CodeRelayerError, "relayer submission failed", err)
	}
	if resp.Status == clients.RelayerStatusFailed {
		log.Warn("⚠️ Relayer rejected authorization, cancelling reservation")
		s.compensateOrDefer(opCtx, claim, ReasonRelayerRejected, "relayer rejected authorization", "")
		return nil, externalError(CodeRelayerError, "relayer rejected the payout", nil)
	}

	now := time.Now()
	if err := s.store.Claims().SetRelayerSubmitted(opCtx, claimID, now); err != nil {
		log.WithError(err).Warn("⚠️ Failed to record relayer submission")
	}
	claim.RelayerSubmittedAt = &now
	log.Info("🚀 Payout submitted to relayer")

	metrics.ClaimsTotal.WithLabelValues(string(models.ClaimStatusSubmitted)).Inc()
	s.notify(opCtx, claim)

	launched = true
	s.wg.Add(1)
	go s.runConfirm(claimID)
	return claim, nil
}

func (s *ClaimService) checkNoLiveClaim(ctx context.Context, nullifierHash string) error {
	existing, err := s.store.Claims().GetByNullifierHash(ctx, nullifierHash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch existing.Status {
	case models.ClaimStatusSubmitted:
		return newServiceError(KindConflict, CodeClaimInProgress, "a claim for this note is already in progress", nil)
	case models.ClaimStatusConfirmed:
		return validationError(CodeAlreadyClaimed, "note already claimed")
	}
	return nil
}

// checkRequestHash computes the request hash locally and requires the ledger to agree.
func (s *ClaimService) checkRequestHash(ctx context.Context, root, nullifierHash *big.Int, recipient common.Address, fee, amount *big.Int) (*big.Int, error) {
	local, err := field.RequestHash(root, nullifierHash, recipient, s.cfg.Relayer, fee, amount)
	if err != nil {
		return nil, fmt.Errorf("compute request hash: %w", err)
	}
	remote, err := s.ledger.ComputeRequestHash(ctx, root, nullifierHash, recipient, s.cfg.Relayer, fee, amount)
	if err != nil {
		return nil, externalError(CodeLedgerError, "request hash oracle unavailable", err)
	}
	if local.Cmp(remote) != 0 {
		logrus.WithFields(logrus.Fields{
			"local":  local.String(),
			"ledger": remote.String(),
		}).Error("❌ Request hash parity check failed")
		return nil, mismatchError(CodeHashMismatch, "request hash mismatch")
	}
	return local, nil
}

func (s *ClaimService) prove(ctx context.Context, note *models.Note, requestHash *big.Int, recipient common.Address, fee *big.Int) ([8]*big.Int, error) {
	var calldata [8]*big.Int
	indices := make([]int, len(note.PathIndices))
	for i, v := range note.PathIndices {
		indices[i] = int(v)
	}
	inputs := &types.WithdrawCircuitInputs{
		Root:          note.Root,
		NullifierHash: note.NullifierHash,
		RequestHash:   requestHash.String(),
		Amount:        note.Amount,
		Secret:        note.Secret,
		Nullifier:     note.Nullifier,
		Recipient:     field.AddressToField(recipient).String(),
		Relayer:       field.AddressToField(s.cfg.Relayer).String(),
		Fee:           fee.String(),
		PathElements:  []string(note.PathElements),
		PathIndices:   indices,
	}
	result, err := s.prover.Prove(ctx, inputs)
	if err != nil {
		return calldata, externalError(CodeProverError, "proof generation failed", err)
	}

	expected := []string{note.Root, note.NullifierHash, requestHash.String()}
	if len(result.PublicSignals) != len(expected) {
		return calldata, mismatchError(CodeSignalMismatch, "unexpected public signal count")
	}
	for i, want := range expected {
		got, err := field.FromDecimal(result.PublicSignals[i])
		if err != nil || got.String() != want {
			return calldata, mismatchError(CodeSignalMismatch, "public signals do not match claim")
		}
	}

	calldata, err = result.Proof.Calldata()
	if err != nil {
		return calldata, mismatchError(CodeInvalidProof, "malformed proof")
	}
	return calldata, nil
}

func (s *ClaimService) track(claimID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.inflight[claimID]; ok {
		return false
	}
	s.inflight[claimID] = struct{}{}
	metrics.ClaimsInflight.Inc()
	return true
}

func (s *ClaimService) untrack(claimID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[claimID]; ok {
		delete(s.inflight, claimID)
		metrics.ClaimsInflight.Dec()
	}
}

// InFlight reports whether a task is currently driving claimID.
func (s *ClaimService) InFlight(claimID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[claimID]
	return ok
}

func (s *ClaimService) runConfirm(claimID string) {
	defer s.wg.Done()
	defer s.untrack(claimID)
	if err := s.confirmProgress(s.ctx, claimID); err != nil {
		logrus.WithError(err).WithField("claim_id", claimID).Warn("⚠️ Claim left pending for recovery")
	}
}

// relayerOutcome is the relayer's last word on an authorization.
type relayerOutcome struct {
	status   string // success | failed | not_found
	txHash   string
	errorMsg string
}

// confirmProgress drives a submitted claim to a terminal state. A nil error means the
// claim is terminal or was already terminal; any error leaves it submitted.
func (s *ClaimService) confirmProgress(ctx context.Context, claimID string) error {
	claim, err := s.store.Claims().GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("load claim: %w", err)
	}
	if claim.Status.Terminal() {
		return nil
	}
	log := logrus.WithFields(logrus.Fields{"claim_id": claimID, "auth_id": claim.AuthorizationID})

	outcome, err := s.pollRelayer(ctx, claim.AuthorizationID)
	if err != nil {
		if incErr := s.store.Claims().IncrementRecoveryAttempts(context.WithoutCancel(ctx), claimID); incErr != nil {
			log.WithError(incErr).Warn("⚠️ Failed to count recovery attempt")
		}
		return fmt.Errorf("relayer status: %w", err)
	}

	switch outcome.status {
	case clients.RelayerStatusSuccess:
		return s.settle(ctx, claim, outcome.txHash)
	case clients.RelayerStatusFailed:
		log.WithField("relayer_error", outcome.errorMsg).Warn("⚠️ Relayer payout failed")
		return s.compensate(ctx, claim, ReasonRelayerFailed, outcome.errorMsg, outcome.txHash)
	default:
		log.Warn("⚠️ Relayer has no record of authorization")
		return s.compensate(ctx, claim, ReasonRelayerNotFound, "relayer has no record of the authorization", "")
	}
}

// pollRelayer polls until the relayer reports a terminal status. It returns an error
// once the attempt ceiling is hit or ctx is done.
func (s *ClaimService) pollRelayer(ctx context.Context, authorizationID string) (*relayerOutcome, error) {
	var outcome *relayerOutcome
	errPending := errors.New("payout pending")

	op := func() error {
		metrics.ClaimPollAttempts.Inc()
		st, err := s.relayer.Status(ctx, authorizationID)
		if errors.Is(err, clients.ErrAuthorizationNotFound) {
			outcome = &relayerOutcome{status: "not_found"}
			return nil
		}
		if err != nil {
			return err
		}
		switch st.Status {
		case clients.RelayerStatusSuccess, clients.RelayerStatusFailed:
			outcome = &relayerOutcome{status: st.Status, txHash: st.TxHash, errorMsg: st.Error}
			return nil
		}
		return errPending
	}
	if err := backoff.Retry(op, s.cfg.Poll.backOff(ctx)); err != nil {
		return nil, err
	}
	return outcome, nil
}

// settle finalizes the reservation, unless the ledger already shows the nullifier
// as claimed, then marks the note spent and the claim confirmed together.
func (s *ClaimService) settle(ctx context.Context, claim *models.Claim, relayerTx string) error {
	log := logrus.WithFields(logrus.Fields{"claim_id": claim.ClaimID, "relayer_tx": relayerTx})
	nullifierHash := field.MustDecimal(claim.NullifierHash)
	authID, err := ParseAuthorizationID(claim.AuthorizationID)
	if err != nil {
		return err
	}

	claimed, err := s.ledger.IsClaimed(ctx, nullifierHash)
	if err != nil {
		return fmt.Errorf("check claimed: %w", err)
	}
	var finalizeTx string
	if !claimed {
		finalizeTx, err = s.ledger.FinalizeWithdrawal(ctx, nullifierHash, authID)
		if err != nil {
			// A concurrent run may have finalized first.
			if again, checkErr := s.ledger.IsClaimed(ctx, nullifierHash); checkErr != nil || !again {
				return fmt.Errorf("finalize withdrawal: %w", err)
			}
			finalizeTx = ""
		}
	}

	now := time.Now()
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Notes().MarkSpent(ctx, claim.NoteID, now); err != nil && !errors.Is(err, repository.ErrNotPending) {
			return err
		}
		return tx.Claims().MarkConfirmed(ctx, claim.ClaimID, models.ClaimOutcome{
			RelayerTxHash:  relayerTx,
			FinalizeTxHash: finalizeTx,
		})
	})
	if errors.Is(err, repository.ErrNotPending) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}

	claim.Status = models.ClaimStatusConfirmed
	claim.RelayerTxHash = relayerTx
	claim.FinalizeTxHash = finalizeTx
	claim.UpdatedAt = now
	metrics.ClaimsTotal.WithLabelValues(string(models.ClaimStatusConfirmed)).Inc()
	log.WithField("finalize_tx", finalizeTx).Info("✅ Claim confirmed")
	s.notify(ctx, claim)
	return nil
}

// compensate releases the reservation if this claim holds it, then marks the claim
// failed. It waits for the claim's reserve transaction to be final first, so a late
// reservation is never left without a claim to cancel it. An error leaves the claim
// submitted.
func (s *ClaimService) compensate(ctx context.Context, claim *models.Claim, reason, detail, relayerTx string) error {
	if err := s.reservationSettled(ctx, claim); err != nil {
		return err
	}
	return s.release(ctx, claim, reason, detail, relayerTx)
}

// release cancels the reservation if this claim holds it and marks the claim failed.
func (s *ClaimService) release(ctx context.Context, claim *models.Claim, reason, detail, relayerTx string) error {
	log := logrus.WithFields(logrus.Fields{"claim_id": claim.ClaimID, "reason": reason})
	nullifierHash := field.MustDecimal(claim.NullifierHash)
	authID, err := ParseAuthorizationID(claim.AuthorizationID)
	if err != nil {
		return err
	}

	held, active, err := s.ledger.Reservation(ctx, nullifierHash)
	if err != nil {
		return fmt.Errorf("read reservation: %w", err)
	}
	var cancelTx string
	if active && held == authID {
		cancelTx, err = s.ledger.CancelReservation(ctx, nullifierHash, authID, crypto.Keccak256Hash([]byte(reason)))
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		log.WithField("cancel_tx", cancelTx).Info("🔓 Reservation cancelled")
	}

	err = s.store.Claims().MarkFailed(ctx, claim.ClaimID, models.ClaimOutcome{
		RelayerTxHash: relayerTx,
		CancelTxHash:  cancelTx,
		Error:         detail,
	})
	if errors.Is(err, repository.ErrNotPending) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	claim.Status = models.ClaimStatusFailed
	claim.CancelTxHash = cancelTx
	claim.RelayerTxHash = relayerTx
	claim.UpdatedAt = time.Now()
	metrics.ClaimCompensations.WithLabelValues(reason).Inc()
	metrics.ClaimsTotal.WithLabelValues(string(models.ClaimStatusFailed)).Inc()
	log.Warn("⚠️ Claim failed")
	s.notify(ctx, claim)
	return nil
}

// reservationSettled returns nil once no reserve transaction for the claim can still
// be mined.
func (s *ClaimService) reservationSettled(ctx context.Context, claim *models.Claim) error {
	if claim.ReserveTxHash == "" {
		if s.cfg.ReserveSettleWindow > 0 && time.Since(claim.CreatedAt) < s.cfg.ReserveSettleWindow {
			return errReservationUnsettled
		}
		return nil
	}
	final, err := s.ledger.TxFinal(ctx, claim.ReserveTxHash)
	if err != nil {
		return fmt.Errorf("reserve tx status: %w", err)
	}
	if !final {
		return fmt.Errorf("%w: %s", errReservationUnsettled, claim.ReserveTxHash)
	}
	return nil
}

// compensateOrDefer compensates on the synchronous path. If that fails too the claim
// stays submitted and recovery picks it up.
func (s *ClaimService) compensateOrDefer(ctx context.Context, claim *models.Claim, reason, detail, relayerTx string) {
	if err := s.compensate(ctx, claim, reason, detail, relayerTx); err != nil {
		logrus.WithError(err).WithField("claim_id", claim.ClaimID).Error("❌ Compensation failed, claim left for recovery")
	}
}

func (s *ClaimService) notify(ctx context.Context, claim *models.Claim) {
	for _, n := range s.notifiers {
		n.ClaimUpdated(ctx, claim)
	}
}

// ResumePendingClaims attaches a confirmation task to every submitted claim that is
// not already being driven and was last updated at least minAge ago.
func (s *ClaimService) ResumePendingClaims(ctx context.Context, minAge time.Duration) (int, error) {
	resumed := 0
	err := s.eachSubmitted(ctx, func(claim *models.Claim) {
		if time.Since(claim.UpdatedAt) < minAge {
			return
		}
		if !s.track(claim.ClaimID) {
			return
		}
		s.wg.Add(1)
		go s.runConfirm(claim.ClaimID)
		resumed++
	})
	if resumed > 0 {
		logrus.WithField("count", resumed).Info("🔄 Resumed pending claims")
	}
	if err != nil {
		return resumed, fmt.Errorf("list submitted claims: %w", err)
	}
	return resumed, nil
}

// PendingClaims lists submitted claims without acting on them.
func (s *ClaimService) PendingClaims(ctx context.Context) ([]*models.Claim, error) {
	var out []*models.Claim
	err := s.eachSubmitted(ctx, func(claim *models.Claim) { out = append(out, claim) })
	return out, err
}

// eachSubmitted visits every submitted claim, oldest first, one page at a time.
func (s *ClaimService) eachSubmitted(ctx context.Context, fn func(*models.Claim)) error {
	var cursor repository.ClaimCursor
	for {
		page, err := s.store.Claims().ListByStatus(ctx, models.ClaimStatusSubmitted, cursor, s.cfg.RecoveryBatchSize)
		if err != nil {
			return err
		}
		for _, claim := range page {
			fn(claim)
		}
		if len(page) < s.cfg.RecoveryBatchSize {
			return nil
		}
		cursor = repository.CursorOf(page[len(page)-1])
	}
}

// ReconcileClaim drives one claim synchronously.
func (s *ClaimService) ReconcileClaim(ctx context.Context, claimID string) error {
	if !s.track(claimID) {
		return newServiceError(KindConflict, CodeClaimInProgress, "claim is already being processed", nil)
	}
	defer s.untrack(claimID)
	return s.confirmProgress(ctx, claimID)
}

func (s *ClaimService) GetClaimStatus(ctx context.Context, claimID string) (*ClaimStatusView, error) {
	claim, err := s.store.Claims().GetByID(ctx, claimID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newServiceError(KindNotFound, CodeClaimNotFound, "claim not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return &ClaimStatusView{ClaimID: claim.ClaimID, Status: claim.Status, UpdatedAt: claim.UpdatedAt}, nil
}

// Shutdown stops accepting new work, cancels polling and waits for running tasks.
// Interrupted claims stay submitted.
func (s *ClaimService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every running confirmation task has returned.
func (s *ClaimService) Wait() {
	s.wg.Wait()
}
