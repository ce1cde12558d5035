// Package merkle implements the fixed-depth Poseidon accumulator over note
// commitments. Functions are pure and recompute from the full leaf set.
package merkle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"payroll-backend/internal/field"
)

const MaxDepth = 32

var (
	ErrOutOfRange = errors.New("leaf index out of range")
	ErrTreeFull   = errors.New("merkle tree capacity exceeded")
	ErrBadDepth   = errors.New("invalid tree depth")
	ErrBadProof   = errors.New("malformed merkle proof")
)

// Proof is the authentication path of one leaf. PathIndices[i] is 0 when the
// node at level i is a left child and 1 when it is a right child.
type Proof struct {
	LeafIndex    uint64
	PathElements []*big.Int
	PathIndices  []uint8
}

var (
	zerosMu    sync.Mutex
	zerosCache []*big.Int
)

// Zeros returns zero[0..depth], where zero[0]=0 and zero[i]=H(zero[i-1], zero[i-1]).
// The returned slice is shared and must not be modified.
func Zeros(depth int) ([]*big.Int, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrBadDepth, depth)
	}
	zerosMu.Lock()
	defer zerosMu.Unlock()
	if len(zerosCache) == 0 {
		zerosCache = []*big.Int{big.NewInt(0)}
	}
	for len(zerosCache) <= depth {
		prev := zerosCache[len(zerosCache)-1]
		next, err := field.Hash(prev, prev)
		if err != nil {
			return nil, err
		}
		zerosCache = append(zerosCache, next)
	}
	return zerosCache[:depth+1], nil
}

// Capacity is 2^depth.
func Capacity(depth int) uint64 {
	return uint64(1) << uint(depth)
}

// layers folds the leaves upward and returns every level, level 0 being the leaves.
// The top level holds exactly one node unless the tree is empty.
func layers(leaves []*big.Int, depth int) ([][]*big.Int, []*big.Int, error) {
	zeros, err := Zeros(depth)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(leaves)) > Capacity(depth) {
		return nil, nil, fmt.Errorf("%w: %d leaves, depth %d", ErrTreeFull, len(leaves), depth)
	}
	out := make([][]*big.Int, 0, depth+1)
	out = append(out, leaves)
	level := leaves
	for l := 0; l < depth; l++ {
		next := make([]*big.Int, (len(level)+1)/2)
		for k := range next {
			left := level[2*k]
			right := zeros[l]
			if 2*k+1 < len(level) {
				right = level[2*k+1]
			}
			h, err := field.Hash(left, right)
			if err != nil {
				return nil, nil, fmt.Errorf("level %d node %d: %w", l, k, err)
			}
			next[k] = h
		}
		out = append(out, next)
		level = next
	}
	return out, zeros, nil
}

// ComputeRoot returns the root over leaves padded with zero subtrees to depth.
func ComputeRoot(leaves []*big.Int, depth int) (*big.Int, error) {
	ls, zeros, err := layers(leaves, depth)
	if err != nil {
		return nil, err
	}
	top := ls[depth]
	if len(top) == 0 {
		return new(big.Int).Set(zeros[depth]), nil
	}
	return top[0], nil
}

// ComputeProof returns the authentication path of leaves[index].
func ComputeProof(leaves []*big.Int, depth int, index uint64) (*Proof, error) {
	proofs, _, err := ComputeProofs(leaves, depth, []uint64{index})
	if err != nil {
		return nil, err
	}
	return proofs[0], nil
}

// ComputeProofs builds the level set once and returns a proof per index along
// with the root. Batch ingestion uses it to avoid one full fold per note.
func ComputeProofs(leaves []*big.Int, depth int, indices []uint64) ([]*Proof, *big.Int, error) {
	for _, idx := range indices {
		if idx >= uint64(len(leaves)) {
			return nil, nil, fmt.Errorf("%w: %d >= %d", ErrOutOfRange, idx, len(leaves))
		}
	}
	ls, zeros, err := layers(leaves, depth)
	if err != nil {
		return nil, nil, err
	}
	proofs := make([]*Proof, 0, len(indices))
	for _, idx := range indices {
		p := &Proof{
			LeafIndex:    idx,
			PathElements: make([]*big.Int, depth),
			PathIndices:  make([]uint8, depth),
		}
		cur := idx
		for l := 0; l < depth; l++ {
			sib := cur ^ 1
			if sib < uint64(len(ls[l])) {
				p.PathElements[l] = ls[l][sib]
			} else {
				p.PathElements[l] = zeros[l]
			}
			p.PathIndices[l] = uint8(cur & 1)
			cur >>= 1
		}
		proofs = append(proofs, p)
	}
	root := zeros[depth]
	if top := ls[depth]; len(top) > 0 {
		root = top[0]
	}
	return proofs, root, nil
}

// Fold hashes leaf up the path and returns the implied root.
func (p *Proof) Fold(leaf *big.Int) (*big.Int, error) {
	if len(p.PathElements) != len(p.PathIndices) || len(p.PathElements) == 0 {
		return nil, ErrBadProof
	}
	cur := leaf
	for i, sib := range p.PathElements {
		var err error
		switch p.PathIndices[i] {
		case 0:
			cur, err = field.Hash(cur, sib)
		case 1:
			cur, err = field.Hash(sib, cur)
		default:
			return nil, fmt.Errorf("%w: path index %d at level %d", ErrBadProof, p.PathIndices[i], i)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// VerifyProof reports whether leaf with proof p hashes to root.
func VerifyProof(leaf *big.Int, p *Proof, root *big.Int) bool {
	got, err := p.Fold(leaf)
	if err != nil {
		return false
	}
	return got.Cmp(root) == 0
}
