// Package blobstore persists encrypted file contents in a local
// content-addressed directory and anchors their hashes on an external
// ledger. Each blob is encrypted under its own freshly generated key; the
// key artifact lives next to the ciphertext, both named by the sha256 of
// the plaintext. Anchoring is best-effort: its failure never invalidates a
// completed local store.
package blobstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/privaterag/privaterag/pkg/anchor"
)

var (
	// ErrBlobNotFound means one or both artifacts for the hash are
	// missing: the blob was never stored here.
	ErrBlobNotFound = errors.New("blobstore: blob not found")
	// ErrBlobCorrupted means the artifacts exist but decryption or
	// decompression failed: the storage was tampered with or damaged.
	ErrBlobCorrupted = errors.New("blobstore: blob corrupted")
)

// AnchorFailedMarker is returned in place of a transaction id when the
// anchoring step fails. The blob itself is stored and retrievable.
const AnchorFailedMarker = "anchoring-failed"

const (
	blobExt = ".blob"
	keyExt  = ".key"
)

// keyArtifact is the JSON sidecar holding the per-blob key and bookkeeping
// for one ciphertext. Its lifetime is tied to the ciphertext artifact.
type keyArtifact struct {
	Key       string    `json:"key"` // base64, 32 bytes
	BlobID    uuid.UUID `json:"blob_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt reports the outcome of a store operation.
type Receipt struct {
	ContentHash  string
	BlobID       uuid.UUID
	TxID         string // ledger transaction id, or AnchorFailedMarker
	ExplorerLink string
}

type Config struct {
	Dir     string // content-addressed directory, created if missing
	GroupID string // caller-scoped group carried into the anchor payload
	UserID  string // ledger account carried into the anchor payload

	Anchorer anchor.Anchorer // nil disables anchoring entirely
	Logger   *slog.Logger
}

// Store is the local encrypted blob store.
type Store struct {
	config Config
	log    *slog.Logger
}

func New(config Config) (*Store, error) {
	if config.Dir == "" {
		return nil, errors.New("blobstore: no directory configured")
	}
	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("blobstore: cannot create directory: %w", err)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Store{config: config, log: config.Logger}, nil
}

// Store encrypts plaintext under a fresh per-blob key, persists both
// artifacts keyed by the plaintext's sha256, and anchors the hash on the
// ledger. Re-storing identical bytes overwrites the same artifacts, which
// is harmless. Anchoring failure degrades the receipt to
// AnchorFailedMarker; it is logged but never propagated as an error.
func (s *Store) Store(ctx context.Context, plaintext []byte, name string) (Receipt, error) {
	sum := sha256.Sum256(plaintext)
	contentHash := hex.EncodeToString(sum[:])

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return Receipt{}, fmt.Errorf("blobstore: cannot generate blob key: %w", err)
	}

	compressed, err := compress(plaintext)
	if err != nil {
		return Receipt{}, fmt.Errorf("blobstore: compression failed: %w", err)
	}
	sealed, err := encrypt(key, compressed)
	if err != nil {
		return Receipt{}, fmt.Errorf("blobstore: encryption failed: %w", err)
	}

	artifact := keyArtifact{
		Key:       base64.StdEncoding.EncodeToString(key),
		BlobID:    uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	artifactJSON, err := json.Marshal(artifact)
	if err != nil {
		return Receipt{}, err
	}

	// Ciphertext first, key second. A crash in between leaves a blob
	// without its key, which Retrieve reports as not found.
	if err := writeFileAtomic(s.artifactPath(contentHash, blobExt), sealed); err != nil {
		return Receipt{}, fmt.Errorf("blobstore: cannot persist ciphertext: %w", err)
	}
	if err := writeFileAtomic(s.artifactPath(contentHash, keyExt), artifactJSON); err != nil {
		return Receipt{}, fmt.Errorf("blobstore: cannot persist key artifact: %w", err)
	}

	receipt := Receipt{
		ContentHash: contentHash,
		BlobID:      artifact.BlobID,
		TxID:        AnchorFailedMarker,
	}

	if s.config.Anchorer != nil {
		anchored, err := s.config.Anchorer.Anchor(ctx, anchor.Request{
			GroupID:   s.config.GroupID,
			UserID:    s.config.UserID,
			FileHash:  contentHash,
			ContentID: artifact.BlobID.String(),
		})
		if err != nil {
			s.log.Warn("anchoring failed, blob stored locally",
				"content_hash", contentHash, "error", err)
		} else {
			receipt.TxID = anchored.TxID
			receipt.ExplorerLink = anchored.ExplorerLink
		}
	}

	return receipt, nil
}

// Retrieve loads, decrypts and decompresses the blob stored under
// contentHash.
func (s *Store) Retrieve(contentHash string) ([]byte, error) {
	sealed, err := os.ReadFile(s.artifactPath(contentHash, blobExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: cannot read ciphertext: %w", err)
	}

	artifactJSON, err := os.ReadFile(s.artifactPath(contentHash, keyExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: cannot read key artifact: %w", err)
	}

	var artifact keyArtifact
	if err := json.Unmarshal(artifactJSON, &artifact); err != nil {
		return nil, ErrBlobCorrupted
	}
	key, err := base64.StdEncoding.DecodeString(artifact.Key)
	if err != nil || len(key) != 32 {
		return nil, ErrBlobCorrupted
	}

	compressed, err := decrypt(key, sealed)
	if err != nil {
		return nil, ErrBlobCorrupted
	}
	plaintext, err := decompress(compressed)
	if err != nil {
		return nil, ErrBlobCorrupted
	}
	return plaintext, nil
}

// Has reports whether both artifacts for contentHash are present.
func (s *Store) Has(contentHash string) bool {
	for _, ext := range []string{blobExt, keyExt} {
		if _, err := os.Stat(s.artifactPath(contentHash, ext)); err != nil {
			return false
		}
	}
	return true
}

func (s *Store) artifactPath(contentHash, ext string) string {
	return filepath.Join(s.config.Dir, contentHash+ext)
}

// writeFileAtomic writes via a temp file in the same directory, then
// renames over the target, so a partial write is never observable.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
