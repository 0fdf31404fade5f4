// Package vault keeps the per-document records: title, page count, the
// sealed index tree and the durable reference to the stored blob. A vault
// is owned by exactly one wallet and addressed by the sha256 of the
// original document; the tree field is sealed under the owner's derived
// key before it ever touches the store.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/privaterag/privaterag/internal/keyValStore"
	"github.com/privaterag/privaterag/pkg/treeseal"
)

const vaultPrefix = "vault:"

var (
	ErrVaultNotFound = errors.New("vault: not found")
	ErrTreeInvalid   = errors.New("vault: stored tree is neither sealed nor plaintext")
)

// Vault is one document record. SealedTree is opaque ciphertext (or
// legacy plaintext JSON for records written before encryption existed).
type Vault struct {
	OwnerWallet  string    `json:"owner_wallet"`
	DocHash      string    `json:"doc_hash"`
	Title        string    `json:"title"`
	NumPages     int       `json:"num_pages,omitempty"`
	SealedTree   string    `json:"sealed_tree,omitempty"`
	TocSignature string    `json:"toc_signature,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"` // blob store reference
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the tree-less view used for list endpoints.
type Summary struct {
	DocHash   string    `json:"doc_hash"`
	Title     string    `json:"title"`
	NumPages  int       `json:"num_pages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UpsertRequest carries the mutable fields of a vault.
type UpsertRequest struct {
	Title        string
	NumPages     int
	Tree         treeseal.Tree
	TocSignature string
	ContentHash  string
}

// Store persists vaults on the key-value layer and seals trees through
// the sealer on every write.
type Store struct {
	kv     *keyValStore.KeyValStore
	sealer *treeseal.Sealer
	now    func() time.Time
}

func NewStore(kv *keyValStore.KeyValStore, sealer *treeseal.Sealer) *Store {
	return &Store{kv: kv, sealer: sealer, now: time.Now}
}

func vaultKey(wallet, docHash string) []byte {
	return []byte(vaultPrefix + strings.ToLower(wallet) + ":" + docHash)
}

// Upsert creates the vault or re-seals and updates an existing one. The
// whole tree is replaced on every write; there is no partial update.
func (s *Store) Upsert(wallet, docHash string, req UpsertRequest) (Vault, error) {
	wallet = strings.ToLower(wallet)

	sealed, err := s.sealer.Seal(req.Tree, wallet)
	if err != nil {
		return Vault{}, err
	}

	now := s.now().UTC()
	v := Vault{
		OwnerWallet:  wallet,
		DocHash:      docHash,
		Title:        req.Title,
		NumPages:     req.NumPages,
		SealedTree:   sealed,
		TocSignature: req.TocSignature,
		ContentHash:  req.ContentHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if existing, err := s.get(wallet, docHash); err == nil {
		v.CreatedAt = existing.CreatedAt
		if req.TocSignature == "" {
			v.TocSignature = existing.TocSignature
		}
		if req.ContentHash == "" {
			v.ContentHash = existing.ContentHash
		}
	}

	record, err := json.Marshal(v)
	if err != nil {
		return Vault{}, err
	}
	if err := s.kv.Write(vaultKey(wallet, docHash), record); err != nil {
		return Vault{}, fmt.Errorf("vault: cannot persist record: %w", err)
	}
	return v, nil
}

// Get returns the vault record together with its opened tree. Legacy
// plaintext records are returned as-is; a tree that fits neither
// interpretation surfaces ErrTreeInvalid.
func (s *Store) Get(wallet, docHash string) (Vault, treeseal.Tree, error) {
	wallet = strings.ToLower(wallet)

	v, err := s.get(wallet, docHash)
	if err != nil {
		return Vault{}, nil, err
	}

	result := s.sealer.Open(v.SealedTree, wallet)
	if result.Outcome == treeseal.OutcomeInvalid {
		return Vault{}, nil, ErrTreeInvalid
	}
	return v, result.Tree, nil
}

func (s *Store) get(wallet, docHash string) (Vault, error) {
	raw, err := s.kv.Read(vaultKey(wallet, docHash))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return Vault{}, ErrVaultNotFound
	}
	if err != nil {
		return Vault{}, err
	}

	var v Vault
	if err := json.Unmarshal(raw, &v); err != nil {
		return Vault{}, err
	}
	return v, nil
}

// List returns tree-less summaries of the wallet's vaults, newest first.
func (s *Store) List(wallet string, limit, offset int) ([]Summary, error) {
	wallet = strings.ToLower(wallet)

	pairs, err := s.kv.ReadPrefix([]byte(vaultPrefix + wallet + ":"))
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(pairs))
	for _, pair := range pairs {
		var v Vault
		if err := json.Unmarshal(pair[1], &v); err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			DocHash:   v.DocHash,
			Title:     v.Title,
			NumPages:  v.NumPages,
			CreatedAt: v.CreatedAt,
		})
	}

	// newest first
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	if offset >= len(summaries) {
		return nil, nil
	}
	summaries = summaries[offset:]
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Delete removes a vault record.
func (s *Store) Delete(wallet, docHash string) error {
	wallet = strings.ToLower(wallet)

	exists, err := s.kv.Has(vaultKey(wallet, docHash))
	if err != nil {
		return err
	}
	if !exists {
		return ErrVaultNotFound
	}
	return s.kv.Delete(vaultKey(wallet, docHash))
}
