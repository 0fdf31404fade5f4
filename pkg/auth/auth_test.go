package auth_test

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privaterag/privaterag/internal/keyValStore"
	"github.com/privaterag/privaterag/pkg/auth"
)

func newTestService(t *testing.T, opts ...auth.Option) *auth.Service {
	t.Helper()
	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(kv.Close)

	service, err := auth.NewService(kv, "test-signing-secret", opts...)
	require.NoError(t, err)
	return service
}

// newWallet generates a key pair and returns the lowercase address.
func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}

// signChallenge produces the EIP-191 personal-sign signature a wallet
// client would send, with the recovery byte in the 27/28 form.
func signChallenge(t *testing.T, key *ecdsa.PrivateKey, wallet, nonce string) string {
	t.Helper()
	message := auth.LoginMessage(wallet, nonce)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func TestChallengeVerifyFlow(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)
	assert.Len(t, nonce, 32) // 16 random bytes, hex encoded

	token, err := service.Verify(wallet, signChallenge(t, key, wallet, nonce))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := service.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, wallet, subject)
}

func TestVerifyProvisionsUser(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	_, err := service.Users().Get(wallet)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)
	_, err = service.Verify(wallet, signChallenge(t, key, wallet, nonce))
	require.NoError(t, err)

	user, err := service.Users().Get(wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, user.WalletAddress)
	assert.Equal(t, "wallet", user.Metadata["auth"])
}

func TestVerifyMixedCaseWallet(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	// Checksummed form as a browser wallet would submit it.
	checksummed := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := service.RequestChallenge(checksummed)
	require.NoError(t, err)

	token, err := service.Verify(checksummed, signChallenge(t, key, wallet, nonce))
	require.NoError(t, err)

	subject, err := service.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, wallet, subject)
}

func TestNonceSingleUse(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)
	signature := signChallenge(t, key, wallet, nonce)

	_, err = service.Verify(wallet, signature)
	require.NoError(t, err)

	// Replaying the same signature must fail: the nonce is gone.
	_, err = service.Verify(wallet, signature)
	assert.ErrorIs(t, err, auth.ErrChallengeNotFound)
}

func TestNonceReplacedByNewChallenge(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	first, err := service.RequestChallenge(wallet)
	require.NoError(t, err)
	_, err = service.RequestChallenge(wallet)
	require.NoError(t, err)

	// The signature over the first nonce no longer matches the
	// outstanding challenge.
	_, err = service.Verify(wallet, signChallenge(t, key, wallet, first))
	assert.Error(t, err)
}

func TestChallengeExpiry(t *testing.T) {
	now := time.Now()
	clock := &now
	service := newTestService(t, auth.WithClock(func() time.Time { return *clock }))
	key, wallet := newWallet(t)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)

	expired := now.Add(auth.NonceTTL + time.Second)
	clock = &expired

	_, err = service.Verify(wallet, signChallenge(t, key, wallet, nonce))
	assert.ErrorIs(t, err, auth.ErrChallengeExpired)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	_, err := service.Verify(wallet, signChallenge(t, key, wallet, "deadbeef"))
	assert.ErrorIs(t, err, auth.ErrChallengeNotFound)
}

func TestVerifyWrongSigner(t *testing.T) {
	service := newTestService(t)
	_, wallet := newWallet(t)
	otherKey, _ := newWallet(t)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)

	_, err = service.Verify(wallet, signChallenge(t, otherKey, wallet, nonce))
	assert.ErrorIs(t, err, auth.ErrWalletMismatch)
}

func TestVerifyMalformedSignature(t *testing.T) {
	service := newTestService(t)
	_, wallet := newWallet(t)

	_, err := service.RequestChallenge(wallet)
	require.NoError(t, err)

	_, err = service.Verify(wallet, "0xnothex")
	assert.ErrorIs(t, err, auth.ErrSignatureInvalid)

	_, err = service.Verify(wallet, "0x0011")
	assert.ErrorIs(t, err, auth.ErrSignatureInvalid)
}

func TestAuthenticateTokenExpired(t *testing.T) {
	now := time.Now()
	clock := &now
	service := newTestService(t, auth.WithClock(func() time.Time { return *clock }))
	key, wallet := newWallet(t)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)
	token, err := service.Verify(wallet, signChallenge(t, key, wallet, nonce))
	require.NoError(t, err)

	expired := now.Add(auth.TokenTTL + time.Minute)
	clock = &expired

	_, err = service.Authenticate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	service := newTestService(t)

	_, err := service.Authenticate("not-a-token")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestAuthenticateForeignToken(t *testing.T) {
	service := newTestService(t)
	key, wallet := newWallet(t)

	nonce, err := service.RequestChallenge(wallet)
	require.NoError(t, err)
	token, err := service.Verify(wallet, signChallenge(t, key, wallet, nonce))
	require.NoError(t, err)

	// A service with a different secret must reject the token.
	other := newTestService(t)
	_, err = other.Authenticate(token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestLoginMessageBindsNonce(t *testing.T) {
	a := auth.LoginMessage("0xabc", "nonce-one")
	b := auth.LoginMessage("0xabc", "nonce-two")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "nonce-one")
	assert.Contains(t, a, "0xabc")
}

func TestUserList(t *testing.T) {
	service := newTestService(t)

	for i := 0; i < 3; i++ {
		key, wallet := newWallet(t)
		nonce, err := service.RequestChallenge(wallet)
		require.NoError(t, err)
		_, err = service.Verify(wallet, signChallenge(t, key, wallet, nonce))
		require.NoError(t, err)
	}

	users, err := service.Users().List(10, 0)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	page, err := service.Users().List(2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
