package merkle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroll-backend/internal/field"
)

func randomLeaves(t *testing.T, n int) []*big.Int {
	t.Helper()
	out := make([]*big.Int, n)
	for i := range out {
		x, err := field.Random()
		require.NoError(t, err)
		out[i] = x
	}
	return out
}

func TestZeros(t *testing.T) {
	zeros, err := Zeros(4)
	require.NoError(t, err)
	require.Len(t, zeros, 5)
	assert.Equal(t, int64(0), zeros[0].Int64())
	assert.Equal(t, "14744269619966411208579211824598458697587494354926760081771325075741142829156", zeros[1].String())
	for i := 1; i < len(zeros); i++ {
		h, err := field.Hash(zeros[i-1], zeros[i-1])
		require.NoError(t, err)
		assert.Equal(t, 0, h.Cmp(zeros[i]))
	}

	_, err = Zeros(0)
	assert.ErrorIs(t, err, ErrBadDepth)
	_, err = Zeros(MaxDepth + 1)
	assert.ErrorIs(t, err, ErrBadDepth)
}

func TestComputeRootEmpty(t *testing.T) {
	zeros, err := Zeros(20)
	require.NoError(t, err)
	root, err := ComputeRoot(nil, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, root.Cmp(zeros[20]))
}

func TestComputeRootSingleLeafMatchesManualFold(t *testing.T) {
	leaf := big.NewInt(7)
	zeros, err := Zeros(3)
	require.NoError(t, err)

	want := leaf
	for l := 0; l < 3; l++ {
		want, err = field.Hash(want, zeros[l])
		require.NoError(t, err)
	}
	got, err := ComputeRoot([]*big.Int{leaf}, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(got))
}

func TestProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		leaves := randomLeaves(t, n)
		root, err := ComputeRoot(leaves, 6)
		require.NoError(t, err)
		for i := range leaves {
			p, err := ComputeProof(leaves, 6, uint64(i))
			require.NoError(t, err)
			require.Len(t, p.PathElements, 6)
			assert.True(t, VerifyProof(leaves[i], p, root), "n=%d i=%d", n, i)
		}
	}
}

func TestComputeProofsMatchesSingleProofs(t *testing.T) {
	leaves := randomLeaves(t, 7)
	proofs, root, err := ComputeProofs(leaves, 5, []uint64{4, 5, 6})
	require.NoError(t, err)

	want, err := ComputeRoot(leaves, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(root))

	for _, p := range proofs {
		single, err := ComputeProof(leaves, 5, p.LeafIndex)
		require.NoError(t, err)
		assert.Equal(t, single.PathIndices, p.PathIndices)
		for i := range p.PathElements {
			assert.Equal(t, 0, single.PathElements[i].Cmp(p.PathElements[i]))
		}
	}
}

func TestPathIndicesFollowLeafIndexBits(t *testing.T) {
	leaves := randomLeaves(t, 6)
	p, err := ComputeProof(leaves, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 0, 1, 0}, p.PathIndices)
}

func TestProofRejectsWrongLeafOrRoot(t *testing.T) {
	leaves := randomLeaves(t, 4)
	root, err := ComputeRoot(leaves, 4)
	require.NoError(t, err)
	p, err := ComputeProof(leaves, 4, 2)
	require.NoError(t, err)

	assert.False(t, VerifyProof(leaves[1], p, root))
	assert.False(t, VerifyProof(leaves[2], p, big.NewInt(1)))

	p.PathIndices[0] = 2
	assert.False(t, VerifyProof(leaves[2], p, root))
}

func TestOutOfRangeAndCapacity(t *testing.T) {
	leaves := randomLeaves(t, 3)
	_, err := ComputeProof(leaves, 4, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = ComputeProof(nil, 4, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = ComputeRoot(randomLeaves(t, 5), 2)
	assert.ErrorIs(t, err, ErrTreeFull)

	_, err = ComputeRoot(randomLeaves(t, 4), 2)
	assert.NoError(t, err)
}

func TestAppendChangesRootButKeepsEarlierPathsConsistent(t *testing.T) {
	leaves := randomLeaves(t, 3)
	before, err := ComputeRoot(leaves, 8)
	require.NoError(t, err)

	combined := append(append([]*big.Int{}, leaves...), randomLeaves(t, 2)...)
	after, err := ComputeRoot(combined, 8)
	require.NoError(t, err)
	assert.NotEqual(t, 0, before.Cmp(after))

	p, err := ComputeProof(combined, 8, 0)
	require.NoError(t, err)
	assert.True(t, VerifyProof(combined[0], p, after))
	assert.False(t, VerifyProof(combined[0], p, before))
}
