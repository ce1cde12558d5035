package field

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashMatchesCircomlibVector(t *testing.T) {
	out, err := Hash(big.NewInt(1), big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "7853200120776062878684798364095072458815029376092732009249414926327459813530", out.String())
}

func TestHashRejectsValuesOutsideField(t *testing.T) {
	_, err := Hash(Modulus(), big.NewInt(1))
	assert.ErrorIs(t, err, ErrNotInField)

	_, err = Hash(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrNotInField)
}

func TestRandomStaysBelowModulus(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 256; i++ {
		x, err := Random()
		require.NoError(t, err)
		require.True(t, InField(x))
		seen[x.String()] = struct{}{}
	}
	// 256 draws from ~2^254 values: any collision means the sampler is broken.
	assert.Len(t, seen, 256)
}

func TestFromDecimal(t *testing.T) {
	x, err := FromDecimal(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), x.Int64())

	_, err = FromDecimal("0x2a")
	assert.ErrorIs(t, err, ErrBadNumber)

	_, err = FromDecimal(Modulus().String())
	assert.ErrorIs(t, err, ErrNotInField)
}

func TestToBytes32AndHex(t *testing.T) {
	b := ToBytes32(big.NewInt(0x0102))
	assert.Equal(t, byte(0x01), b[30])
	assert.Equal(t, byte(0x02), b[31])
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000102", ToHex(big.NewInt(0x0102)))
}

func TestRequestHashDependsOnEveryParameter(t *testing.T) {
	root := big.NewInt(11)
	nh := big.NewInt(22)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	relayer := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	fee := big.NewInt(10)
	amount := big.NewInt(4000)

	base, err := RequestHash(root, nh, recipient, relayer, fee, amount)
	require.NoError(t, err)
	assert.True(t, InField(base))

	again, err := RequestHash(root, nh, recipient, relayer, fee, amount)
	require.NoError(t, err)
	assert.Equal(t, 0, base.Cmp(again))

	variants := []func() (*big.Int, error){
		func() (*big.Int, error) { return RequestHash(big.NewInt(12), nh, recipient, relayer, fee, amount) },
		func() (*big.Int, error) { return RequestHash(root, big.NewInt(23), recipient, relayer, fee, amount) },
		func() (*big.Int, error) { return RequestHash(root, nh, relayer, relayer, fee, amount) },
		func() (*big.Int, error) { return RequestHash(root, nh, recipient, recipient, fee, amount) },
		func() (*big.Int, error) { return RequestHash(root, nh, recipient, relayer, big.NewInt(11), amount) },
		func() (*big.Int, error) { return RequestHash(root, nh, recipient, relayer, fee, big.NewInt(4001)) },
	}
	for i, v := range variants {
		got, err := v()
		require.NoError(t, err)
		assert.NotEqual(t, 0, base.Cmp(got), "variant %d", i)
	}
}
