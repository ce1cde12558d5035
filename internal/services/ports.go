package services

import (
	"context"
	"math/big"

	"payroll-backend/internal/clients"
	"payroll-backend/internal/models"
	"payroll-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the on-chain payroll contract. Write calls return the transaction hash
// once mined; the contract rejects duplicate roots, finalize or cancel without a
// matching reservation, and a second finalize or cancel of the same reservation.
// A write that fails after signing still returns the hash it was sent under.
type Ledger interface {
	RegisterRoot(ctx context.Context, root *big.Int, batchID [32]byte, noteCount, totalAmount *big.Int) (string, error)
	ReserveWithdrawal(ctx context.Context, proof [8]*big.Int, root, nullifierHash, requestHash *big.Int, authorizationID [32]byte) (string, error)
	FinalizeWithdrawal(ctx context.Context, nullifierHash *big.Int, authorizationID [32]byte) (string, error)
	CancelReservation(ctx context.Context, nullifierHash *big.Int, authorizationID, reasonHash [32]byte) (string, error)
	VerifyWithdrawal(ctx context.Context, proof [8]*big.Int, root, nullifierHash, requestHash *big.Int) (bool, error)
	ComputeRequestHash(ctx context.Context, root, nullifierHash *big.Int, recipient, relayer common.Address, fee, amount *big.Int) (*big.Int, error)
	IsClaimed(ctx context.Context, nullifierHash *big.Int) (bool, error)
	Reservation(ctx context.Context, nullifierHash *big.Int) ([32]byte, bool, error)
	// TxFinal reports whether a sent transaction can no longer change ledger state.
	TxFinal(ctx context.Context, txHash string) (bool, error)
}

// Prover generates withdraw circuit proofs.
type Prover interface {
	Prove(ctx context.Context, inputs *types.WithdrawCircuitInputs) (*types.ProofResult, error)
}

// Relayer moves funds off-chain against a signed payout authorization.
type Relayer interface {
	Submit(ctx context.Context, auth *types.PayoutAuthorization, authorizationID, signature string) (*clients.RelayerSubmitResponse, error)
	Status(ctx context.Context, authorizationID string) (*clients.RelayerStatusResponse, error)
}

// BatchNotifier is told about every committed batch.
type BatchNotifier interface {
	BatchRegistered(ctx context.Context, batch *models.Batch)
}

// ClaimNotifier is told about every claim status change.
type ClaimNotifier interface {
	ClaimUpdated(ctx context.Context, claim *models.Claim)
}
