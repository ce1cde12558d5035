// Package types provides common type definitions used across the backend
package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrMalformedProof = errors.New("malformed groth16 proof")

// Groth16Proof is the snarkjs JSON encoding returned by the prover service.
// Coordinates are decimal strings, projective with a trailing "1".
type Groth16Proof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol,omitempty"`
	Curve    string     `json:"curve,omitempty"`
}

// ProofResult is what the prover returns for one withdrawal.
type ProofResult struct {
	Proof         Groth16Proof `json:"proof"`
	PublicSignals []string     `json:"publicSignals"`
}

// WithdrawCircuitInputs are the prover inputs for the withdraw circuit.
// Field elements are decimal strings; addresses are passed as their uint160 value.
type WithdrawCircuitInputs struct {
	Root          string   `json:"root"`
	NullifierHash string   `json:"nullifierHash"`
	RequestHash   string   `json:"requestHash"`
	Amount        string   `json:"amount"`
	Secret        string   `json:"secret"`
	Nullifier     string   `json:"nullifier"`
	Recipient     string   `json:"recipient"`
	Relayer       string   `json:"relayer"`
	Fee           string   `json:"fee"`
	PathElements  []string `json:"pathElements"`
	PathIndices   []int    `json:"pathIndices"`
}

// ProofCalldata mirrors the ar/bs/krs layout used by the solidity verifier tooling.
type ProofCalldata struct {
	Ar  [2]string    `json:"ar"`
	Bs  [2][2]string `json:"bs"`
	Krs [2]string    `json:"krs"`
}

func parseCoord(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") {
		s = s[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad coordinate %q", ErrMalformedProof, s)
	}
	return v, nil
}

// Calldata flattens the proof into the 8 uint256 words expected by the verifier.
// G2 coordinates are swapped within each pair: [a0, a1, b0[1], b0[0], b1[1], b1[0], c0, c1].
func (p *Groth16Proof) Calldata() ([8]*big.Int, error) {
	var out [8]*big.Int
	if len(p.PiA) < 2 || len(p.PiC) < 2 || len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 {
		return out, ErrMalformedProof
	}
	raw := []string{
		p.PiA[0], p.PiA[1],
		p.PiB[0][1], p.PiB[0][0],
		p.PiB[1][1], p.PiB[1][0],
		p.PiC[0], p.PiC[1],
	}
	for i, s := range raw {
		v, err := parseCoord(s)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// HexCalldata renders Calldata in the ar/bs/krs layout.
func (p *Groth16Proof) HexCalldata() (*ProofCalldata, error) {
	words, err := p.Calldata()
	if err != nil {
		return nil, err
	}
	h := func(i int) string { return fmt.Sprintf("0x%064x", words[i]) }
	return &ProofCalldata{
		Ar:  [2]string{h(0), h(1)},
		Bs:  [2][2]string{{h(2), h(3)}, {h(4), h(5)}},
		Krs: [2]string{h(6), h(7)},
	}, nil
}
