package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/privaterag/privaterag/internal/keyValStore"
)

// NonceTTL is how long an issued challenge stays valid.
const NonceTTL = 300 * time.Second

const noncePrefix = "nonce:"

type nonceRecord struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// NonceStore holds at most one outstanding challenge per wallet. Issuing a
// new challenge replaces the previous one; consuming deletes the record so
// a nonce can satisfy exactly one verification attempt.
type NonceStore struct {
	kv  *keyValStore.KeyValStore
	now func() time.Time
}

func NewNonceStore(kv *keyValStore.KeyValStore) *NonceStore {
	return &NonceStore{kv: kv, now: time.Now}
}

func nonceKey(wallet string) []byte {
	return []byte(noncePrefix + strings.ToLower(wallet))
}

// Issue generates a fresh 16-byte hex nonce for the wallet and stores it
// with an expiry, overwriting any prior challenge.
func (s *NonceStore) Issue(wallet string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: cannot generate nonce: %w", err)
	}
	value := hex.EncodeToString(buf)

	record, err := json.Marshal(nonceRecord{
		Value:     value,
		ExpiresAt: s.now().Add(NonceTTL).Unix(),
	})
	if err != nil {
		return "", err
	}

	if err := s.kv.Write(nonceKey(wallet), record); err != nil {
		return "", fmt.Errorf("auth: cannot store nonce: %w", err)
	}
	return value, nil
}

// Peek returns the outstanding nonce value for the wallet without
// consuming it.
func (s *NonceStore) Peek(wallet string) (string, error) {
	raw, err := s.kv.Read(nonceKey(wallet))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return "", ErrChallengeNotFound
	}
	if err != nil {
		return "", err
	}

	var record nonceRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", ErrChallengeNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		return "", ErrChallengeExpired
	}
	return record.Value, nil
}

// Consume atomically checks that the presented nonce matches the stored,
// unexpired record and deletes it. A mismatch is reported the same as an
// absent challenge.
func (s *NonceStore) Consume(wallet, presented string) error {
	err := s.kv.Consume(nonceKey(wallet), func(raw []byte) error {
		var record nonceRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return ErrChallengeNotFound
		}
		if record.Value != presented {
			return ErrChallengeNotFound
		}
		if s.now().Unix() > record.ExpiresAt {
			return ErrChallengeExpired
		}
		return nil
	})
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return ErrChallengeNotFound
	}
	return err
}
