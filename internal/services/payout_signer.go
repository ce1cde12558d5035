package services

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"payroll-backend/internal/types"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func abiType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

var authorizationArgs = abi.Arguments{
	{Type: abiType("bytes32")}, // claimId
	{Type: abiType("uint256")}, // nullifierHash
	{Type: abiType("address")}, // recipient
	{Type: abiType("uint256")}, // amount (net of fee)
	{Type: abiType("uint256")}, // fee
	{Type: abiType("address")}, // relayer
	{Type: abiType("uint256")}, // chainId
	{Type: abiType("address")}, // ledger
}

// PayoutSigner signs payout authorizations for the relayer. The authorization id is
// keccak256 of the ABI encoded authorization and doubles as the reservation id on
// the ledger; the signature is EIP-191 over that id.
type PayoutSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
	ledger  common.Address
}

func NewPayoutSigner(hexKey string, chainID int64, ledger common.Address) (*PayoutSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid payout signer key: %w", err)
	}
	return &PayoutSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		ledger:  ledger,
	}, nil
}

func (s *PayoutSigner) Address() common.Address { return s.address }

// SignedAuthorization is an authorization plus its id and signature.
type SignedAuthorization struct {
	Authorization *types.PayoutAuthorization
	ID            [32]byte
	Signature     []byte
}

// IDHex returns the authorization id as 0x-prefixed hex.
func (a *SignedAuthorization) IDHex() string { return hexutil.Encode(a.ID[:]) }

// SignatureHex returns the signature as 0x-prefixed hex.
func (a *SignedAuthorization) SignatureHex() string { return hexutil.Encode(a.Signature) }

// Authorize builds and signs the authorization for one claim.
func (s *PayoutSigner) Authorize(claimID string, nullifierHash *big.Int, recipient, relayer common.Address, amount, fee *big.Int) (*SignedAuthorization, error) {
	auth := &types.PayoutAuthorization{
		ClaimID:       claimID,
		NullifierHash: nullifierHash.String(),
		Recipient:     recipient.Hex(),
		Amount:        amount.String(),
		Fee:           fee.String(),
		Relayer:       relayer.Hex(),
		ChainID:       s.chainID,
		Ledger:        s.ledger.Hex(),
	}
	id, err := AuthorizationID(auth)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(id[:]), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign payout authorization: %w", err)
	}
	return &SignedAuthorization{Authorization: auth, ID: id, Signature: sig}, nil
}

// AuthorizationID is the keccak256 of the ABI encoded authorization.
func AuthorizationID(auth *types.PayoutAuthorization) ([32]byte, error) {
	var id [32]byte
	nh, ok := new(big.Int).SetString(auth.NullifierHash, 10)
	if !ok {
		return id, fmt.Errorf("authorization nullifier hash is not decimal: %q", auth.NullifierHash)
	}
	amount, ok := new(big.Int).SetString(auth.Amount, 10)
	if !ok {
		return id, fmt.Errorf("authorization amount is not decimal: %q", auth.Amount)
	}
	fee, ok := new(big.Int).SetString(auth.Fee, 10)
	if !ok {
		return id, fmt.Errorf("authorization fee is not decimal: %q", auth.Fee)
	}
	packed, err := authorizationArgs.Pack(
		crypto.Keccak256Hash([]byte(auth.ClaimID)),
		nh,
		common.HexToAddress(auth.Recipient),
		amount,
		fee,
		common.HexToAddress(auth.Relayer),
		big.NewInt(auth.ChainID),
		common.HexToAddress(auth.Ledger),
	)
	if err != nil {
		return id, fmt.Errorf("encode payout authorization: %w", err)
	}
	copy(id[:], crypto.Keccak256(packed))
	return id, nil
}

// RecoverAuthorizer returns the address that signed the authorization id.
func RecoverAuthorizer(id [32]byte, signature []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(accounts.TextHash(id[:]), signature)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ParseAuthorizationID decodes a 0x-prefixed 32 byte id.
func ParseAuthorizationID(s string) ([32]byte, error) {
	var id [32]byte
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != 32 {
		return id, fmt.Errorf("invalid authorization id %q", s)
	}
	copy(id[:], b)
	return id, nil
}
