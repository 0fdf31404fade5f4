package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/privaterag/privaterag/internal/keyValStore"
)

const userPrefix = "user:"

var ErrUserNotFound = errors.New("auth: user not found")

// User is the minimal account record provisioned on first successful
// wallet verification. The wallet address is the identity anchor; there is
// no password.
type User struct {
	WalletAddress string            `json:"wallet_address"`
	Username      string            `json:"username"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// UserStore persists account records keyed by lowercase wallet address.
type UserStore struct {
	kv  *keyValStore.KeyValStore
	now func() time.Time
}

func NewUserStore(kv *keyValStore.KeyValStore) *UserStore {
	return &UserStore{kv: kv, now: time.Now}
}

func userKey(wallet string) []byte {
	return []byte(userPrefix + strings.ToLower(wallet))
}

// Ensure creates a minimal account for the wallet if none exists. Existing
// accounts are left untouched, so repeated calls are safe.
func (s *UserStore) Ensure(wallet string) error {
	wallet = strings.ToLower(wallet)

	exists, err := s.kv.Has(userKey(wallet))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	record, err := json.Marshal(User{
		WalletAddress: wallet,
		Username:      wallet,
		Metadata:      map[string]string{"auth": "wallet"},
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.kv.Write(userKey(wallet), record)
}

// Get returns the account record for a wallet.
func (s *UserStore) Get(wallet string) (User, error) {
	raw, err := s.kv.Read(userKey(wallet))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// List returns up to limit users starting at offset, in wallet order.
func (s *UserStore) List(limit, offset int) ([]User, error) {
	pairs, err := s.kv.ReadPrefix([]byte(userPrefix))
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(pairs))
	for _, pair := range pairs {
		var user User
		if err := json.Unmarshal(pair[1], &user); err != nil {
			continue
		}
		users = append(users, user)
	}

	if offset >= len(users) {
		return nil, nil
	}
	users = users[offset:]
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}
