package services

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutSigner_AuthorizeAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ledger := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	signer, err := NewPayoutSigner(hexutil.Encode(crypto.FromECDSA(key)), 1, ledger)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	auth, err := signer.Authorize("claim-1", big.NewInt(42), alice, bob, big.NewInt(3990), big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, "3990", auth.Authorization.Amount)
	assert.Equal(t, ledger.Hex(), auth.Authorization.Ledger)

	id, err := AuthorizationID(auth.Authorization)
	require.NoError(t, err)
	assert.Equal(t, auth.ID, id)

	got, err := RecoverAuthorizer(auth.ID, auth.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)

	parsed, err := ParseAuthorizationID(auth.IDHex())
	require.NoError(t, err)
	assert.Equal(t, auth.ID, parsed)
}

func TestAuthorizationID_BindsEveryField(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewPayoutSigner(hexutil.Encode(crypto.FromECDSA(key)), 1, common.Address{})
	require.NoError(t, err)

	base, err := signer.Authorize("claim-1", big.NewInt(42), alice, bob, big.NewInt(3990), big.NewInt(10))
	require.NoError(t, err)

	variants := []func() (*SignedAuthorization, error){
		func() (*SignedAuthorization, error) {
			return signer.Authorize("claim-2", big.NewInt(42), alice, bob, big.NewInt(3990), big.NewInt(10))
		},
		func() (*SignedAuthorization, error) {
			return signer.Authorize("claim-1", big.NewInt(43), alice, bob, big.NewInt(3990), big.NewInt(10))
		},
		func() (*SignedAuthorization, error) {
			return signer.Authorize("claim-1", big.NewInt(42), carol, bob, big.NewInt(3990), big.NewInt(10))
		},
		func() (*SignedAuthorization, error) {
			return signer.Authorize("claim-1", big.NewInt(42), alice, bob, big.NewInt(3991), big.NewInt(10))
		},
		func() (*SignedAuthorization, error) {
			return signer.Authorize("claim-1", big.NewInt(42), alice, bob, big.NewInt(3990), big.NewInt(9))
		},
		func() (*SignedAuthorization, error) {
			return signer.Authorize("claim-1", big.NewInt(42), alice, carol, big.NewInt(3990), big.NewInt(10))
		},
	}
	for i, v := range variants {
		other, err := v()
		require.NoError(t, err)
		assert.NotEqual(t, base.ID, other.ID, "variant %d", i)
	}
}

func TestParseAuthorizationID_Invalid(t *testing.T) {
	_, err := ParseAuthorizationID("0x1234")
	assert.Error(t, err)
	_, err = ParseAuthorizationID("zz")
	assert.Error(t, err)
}

func TestNewPayoutSigner_BadKey(t *testing.T) {
	_, err := NewPayoutSigner("not-hex", 1, common.Address{})
	assert.Error(t, err)
}
