// Package treeseal encrypts and decrypts a document's indexed tree
// structure under a wallet-derived key. Sealed values and legacy plaintext
// JSON coexist in the same storage field, so Open reports a tagged outcome
// instead of failing on pre-encryption records.
package treeseal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/privaterag/privaterag/pkg/walletkey"
)

// Tree is a document's indexed structure. The canonical encoding is its
// JSON form.
type Tree map[string]any

// Outcome tags how Open interpreted a stored value.
type Outcome int

const (
	// OutcomeSealed means the value decrypted and parsed under the
	// wallet's key.
	OutcomeSealed Outcome = iota
	// OutcomeLegacy means the value was not decryptable but parsed as
	// plain canonical JSON, i.e. a record written before encryption was
	// introduced. An empty stored value is also reported as legacy with a
	// nil tree.
	OutcomeLegacy
	// OutcomeInvalid means neither interpretation applied.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSealed:
		return "sealed"
	case OutcomeLegacy:
		return "legacy"
	default:
		return "invalid"
	}
}

// OpenResult carries the recovered tree and how it was recovered. Tree is
// nil unless Outcome is Sealed or Legacy.
type OpenResult struct {
	Outcome Outcome
	Tree    Tree
}

// Sealer seals and opens trees with keys from a walletkey.Deriver.
type Sealer struct {
	deriver *walletkey.Deriver
}

func NewSealer(deriver *walletkey.Deriver) *Sealer {
	return &Sealer{deriver: deriver}
}

// Seal serializes tree to JSON, encrypts it under the wallet's derived key
// and returns a storage-safe base64 string. An empty or nil tree seals to
// the empty string without touching the cipher.
func (s *Sealer) Seal(tree Tree, walletAddress string) (string, error) {
	if len(tree) == 0 {
		return "", nil
	}

	plaintext, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("treeseal: cannot serialize tree: %w", err)
	}

	key := s.deriver.DeriveKey(walletAddress)
	sealed, err := encrypt(key, plaintext)
	if err != nil {
		return "", fmt.Errorf("treeseal: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Decryption or parse failures never surface as
// errors: the value is retried as legacy plaintext JSON, and only a value
// that fits neither interpretation comes back as OutcomeInvalid.
func (s *Sealer) Open(stored string, walletAddress string) OpenResult {
	if stored == "" {
		return OpenResult{Outcome: OutcomeLegacy}
	}

	if raw, err := base64.StdEncoding.DecodeString(stored); err == nil {
		key := s.deriver.DeriveKey(walletAddress)
		if plaintext, err := decrypt(key, raw); err == nil {
			var tree Tree
			if err := json.Unmarshal(plaintext, &tree); err == nil {
				return OpenResult{Outcome: OutcomeSealed, Tree: tree}
			}
		}
	}

	// Records written before encryption hold the canonical JSON directly.
	var tree Tree
	if err := json.Unmarshal([]byte(stored), &tree); err == nil {
		return OpenResult{Outcome: OutcomeLegacy, Tree: tree}
	}

	return OpenResult{Outcome: OutcomeInvalid}
}

// encrypt seals plaintext with AES-256-GCM, framed as nonce||ciphertext.
func encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func decrypt(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, nil)
}
