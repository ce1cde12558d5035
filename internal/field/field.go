// Package field holds the BN254 scalar-field helpers shared by the commitment tree,
// the note ingestor and the withdrawal coordinator. Every value that reaches the
// prover or the ledger contract goes through here, so encoding and hashing stay in
// one place.
package field

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

var (
	ErrNotInField = errors.New("value is not a canonical field element")
	ErrBadNumber  = errors.New("invalid decimal number")
)

var modulus = fr.Modulus()

// RequestDomain separates withdrawal request hashes from every other Poseidon use.
var RequestDomain = new(big.Int).Mod(
	new(big.Int).SetBytes(crypto.Keccak256([]byte("payroll.withdraw.v1"))),
	modulus,
)

// Modulus returns a copy of the BN254 scalar field modulus.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

// InField reports whether x is in [0, p).
func InField(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(modulus) < 0
}

// Hash is circomlib Poseidon over 1..16 inputs. Input order is significant and
// must match the circuit and the on-chain verifier.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	for i, in := range inputs {
		if !InField(in) {
			return nil, fmt.Errorf("poseidon input %d: %w", i, ErrNotInField)
		}
	}
	out, err := poseidon.Hash(inputs)
	if err != nil {
		return nil, fmt.Errorf("poseidon: %w", err)
	}
	return out, nil
}

// Random samples a uniformly distributed element strictly below the modulus.
func Random() (*big.Int, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, fmt.Errorf("sample field element: %w", err)
	}
	out := new(big.Int)
	e.BigInt(out)
	return out, nil
}

// FromDecimal parses the decimal encoding used in the database and by the prover.
func FromDecimal(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	if !InField(x) {
		return nil, fmt.Errorf("%s: %w", s, ErrNotInField)
	}
	return x, nil
}

// MustDecimal is FromDecimal for values that were produced by this package.
func MustDecimal(s string) *big.Int {
	x, err := FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return x
}

// ToBytes32 left-pads x to 32 big-endian bytes.
func ToBytes32(x *big.Int) [32]byte {
	var out [32]byte
	x.FillBytes(out[:])
	return out
}

// ToHex renders x as a 0x-prefixed 32 byte hex string.
func ToHex(x *big.Int) string {
	return fmt.Sprintf("0x%064x", x)
}

// AddressToField maps an EVM address to its uint160 value.
func AddressToField(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

// RequestHash binds the withdrawal parameters into the proof:
// H(H(root, nullifierHash, recipient), H(relayer, fee, amount), RequestDomain).
func RequestHash(root, nullifierHash *big.Int, recipient, relayer common.Address, fee, amount *big.Int) (*big.Int, error) {
	left, err := Hash(root, nullifierHash, AddressToField(recipient))
	if err != nil {
		return nil, fmt.Errorf("request hash (left): %w", err)
	}
	right, err := Hash(AddressToField(relayer), fee, amount)
	if err != nil {
		return nil, fmt.Errorf("request hash (right): %w", err)
	}
	return Hash(left, right, RequestDomain)
}
