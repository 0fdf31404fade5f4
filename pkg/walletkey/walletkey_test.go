package walletkey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privaterag/privaterag/pkg/walletkey"
)

const testWallet = "0xAbC1234567890dEf1234567890AbCdEf12345678"

func TestDeriveKeyDeterministic(t *testing.T) {
	deriver, err := walletkey.NewDeriver("server-secret")
	require.NoError(t, err)

	first := deriver.DeriveKey(testWallet)
	second := deriver.DeriveKey(testWallet)

	assert.Len(t, first, 32)
	assert.Equal(t, first, second)
}

func TestDeriveKeyCaseFolded(t *testing.T) {
	deriver, err := walletkey.NewDeriver("server-secret")
	require.NoError(t, err)

	mixed := deriver.DeriveKey(testWallet)
	lower := deriver.DeriveKey("0xabc1234567890def1234567890abcdef12345678")

	assert.Equal(t, mixed, lower)
}

func TestDeriveKeyWalletsDiffer(t *testing.T) {
	deriver, err := walletkey.NewDeriver("server-secret")
	require.NoError(t, err)

	a := deriver.DeriveKey("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := deriver.DeriveKey("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	assert.NotEqual(t, a, b)
}

func TestSecretRotationChangesKeys(t *testing.T) {
	before, err := walletkey.NewDeriver("secret-one")
	require.NoError(t, err)
	after, err := walletkey.NewDeriver("secret-two")
	require.NoError(t, err)

	assert.NotEqual(t, before.DeriveKey(testWallet), after.DeriveKey(testWallet))
}

func TestEmptySecretRefused(t *testing.T) {
	_, err := walletkey.NewDeriver("")
	assert.ErrorIs(t, err, walletkey.ErrNoSecret)
}
