// Package types provides common type definitions used across the backend
package types

// PaymentRequest is one (recipient, amount) entry of a batch. Amount is a decimal string
// in the token's smallest unit.
type PaymentRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

// CreateBatchRequest is the admin request to fund a new batch of notes.
type CreateBatchRequest struct {
	Employer   string           `json:"employer" binding:"required"`
	FundingRef string           `json:"funding_ref"`
	Payments   []PaymentRequest `json:"payments" binding:"required,min=1,dive"`
}

// InitiateClaimRequest starts a withdrawal for the note bound to ClaimToken.
type InitiateClaimRequest struct {
	ClaimToken string `json:"claim_token" binding:"required"`
	Recipient  string `json:"recipient" binding:"required"`
}

// AdminLoginRequest is the admin credential exchange for a JWT.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// PayoutAuthorization is the signed instruction handed to the relayer. Amount is the
// net payout (note amount minus fee). Numeric fields are decimal strings.
type PayoutAuthorization struct {
	ClaimID       string `json:"claim_id"`
	NullifierHash string `json:"nullifier_hash"`
	Recipient     string `json:"recipient"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	Relayer       string `json:"relayer"`
	ChainID       int64  `json:"chain_id"`
	Ledger        string `json:"ledger"`
}
