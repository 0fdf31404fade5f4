// Package walletkey derives per-wallet symmetric keys from the server
// secret. Derivation is deterministic: the same wallet and the same secret
// always yield the same key, so rotating the secret invalidates everything
// sealed before the rotation.
package walletkey

import (
	"crypto/sha256"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 100000
	saltLength = 16
)

var ErrNoSecret = errors.New("walletkey: server secret is not set")

// Deriver computes wallet-scoped encryption keys. It holds only the salt
// derived from the server secret, never the secret itself.
type Deriver struct {
	salt []byte
}

// NewDeriver builds a Deriver from the server secret. An empty secret is
// refused so a weak key can never be derived silently.
func NewDeriver(secret string) (*Deriver, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	sum := sha256.Sum256([]byte(secret))
	return &Deriver{salt: sum[:saltLength]}, nil
}

// DeriveKey returns the 32-byte key for a wallet address. The address is
// case-folded first so mixed-case inputs map to the same key.
func (d *Deriver) DeriveKey(walletAddress string) []byte {
	wallet := strings.ToLower(walletAddress)
	return pbkdf2.Key([]byte(wallet), d.salt, iterations, keyLength, sha256.New)
}
