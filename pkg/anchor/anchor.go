// Package anchor records content hashes on an external ledger as a
// tamper-evident custody attestation. The ledger interaction is isolated
// behind the Anchorer interface so the CLI-based adapter can be swapped
// for a structured API without touching callers.
package anchor

import (
	"context"
	"errors"
)

// Request is the structured payload anchored on the ledger.
type Request struct {
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	FileHash  string `json:"file_hash"`
	ContentID string `json:"ipfs_hash"`
}

// Receipt attests that a hash was recorded externally.
type Receipt struct {
	FileHash     string
	TxID         string
	ExplorerLink string
}

var (
	// ErrAnchorParse means the ledger tool exited cleanly but its output
	// carried no transaction id. No synthetic id is ever invented.
	ErrAnchorParse = errors.New("anchor: transaction id not found in output")
)

// Anchorer submits an anchoring transaction. Implementations must honor
// the context deadline.
type Anchorer interface {
	Anchor(ctx context.Context, req Request) (Receipt, error)
}
