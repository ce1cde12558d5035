package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers; the HTTP layer maps kinds to status codes.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindProofMismatch ErrorKind = "proof_mismatch"
	KindExternal      ErrorKind = "external_service"
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
)

const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidClaimToken   = "INVALID_CLAIM_TOKEN"
	CodeAlreadyClaimed      = "ALREADY_CLAIMED"
	CodeWalletMismatch      = "WALLET_MISMATCH"
	CodeFeeTooHigh          = "FEE_TOO_HIGH"
	CodeHashMismatch        = "HASH_MISMATCH"
	CodeSignalMismatch      = "SIGNAL_MISMATCH"
	CodeInvalidProof        = "INVALID_PROOF"
	CodeClaimInProgress     = "CLAIM_IN_PROGRESS"
	CodeNoteNotFound        = "NOTE_NOT_FOUND"
	CodeClaimNotFound       = "CLAIM_NOT_FOUND"
	CodeBatchNotFound       = "BATCH_NOT_FOUND"
	CodeTreeFull            = "TREE_FULL"
	CodeLedgerError         = "LEDGER_ERROR"
	CodeRelayerError        = "RELAYER_ERROR"
	CodeProverError         = "PROVER_ERROR"
	CodePersistenceConflict = "PERSISTENCE_CONFLICT"
)

// ServiceError is returned by every service operation that fails for a reason the
// caller can act on. Message is safe to show to users; Err is for logs only.
type ServiceError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newServiceError(kind ErrorKind, code, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, Err: err}
}

func validationError(code, message string) *ServiceError {
	return newServiceError(KindValidation, code, message, nil)
}

func externalError(code, message string, err error) *ServiceError {
	return newServiceError(KindExternal, code, message, err)
}

func mismatchError(code, message string) *ServiceError {
	return newServiceError(KindProofMismatch, code, message, nil)
}

// AsServiceError unwraps err to a *ServiceError if it carries one.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err is a ServiceError with the given code.
func IsCode(err error, code string) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}
