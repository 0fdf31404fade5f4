package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"time"
)

// DefaultTimeout bounds a single ledger CLI invocation.
const DefaultTimeout = 60 * time.Second

// The NEAR CLI prints transaction details, including the id, to stderr;
// stdout carries the contract return value.
var txIDPattern = regexp.MustCompile(`Transaction ID: ([a-zA-Z0-9]+)`)

// runner executes an external command and returns its stdout and stderr.
// Injected in tests.
type runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

type CLIConfig struct {
	Binary   string // ledger CLI binary, default "near"
	Contract string // anchoring contract account
	Method   string // contract method, default "record_transaction"
	SignAs   string // signing account
	Network  string // network config name, e.g. "testnet"
	Gas      string // prepaid gas budget, default "30.0 Tgas"
	Deposit  string // attached deposit, default "0.01 NEAR"

	Timeout     time.Duration // per-call bound, default DefaultTimeout
	MaxInFlight int           // concurrent CLI processes, default 4
	Logger      *slog.Logger
}

// CLIAnchorer anchors hashes by shelling out to the ledger's signed-
// transaction CLI and pattern-matching the transaction id from its
// diagnostic output.
type CLIAnchorer struct {
	config CLIConfig
	log    *slog.Logger
	run    runner
	slots  chan struct{}
}

func NewCLIAnchorer(config CLIConfig) *CLIAnchorer {
	if config.Binary == "" {
		config.Binary = "near"
	}
	if config.Method == "" {
		config.Method = "record_transaction"
	}
	if config.Gas == "" {
		config.Gas = "30.0 Tgas"
	}
	if config.Deposit == "" {
		config.Deposit = "0.01 NEAR"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = 4
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &CLIAnchorer{
		config: config,
		log:    config.Logger,
		run:    runCommand,
		slots:  make(chan struct{}, config.MaxInFlight),
	}
}

// Anchor submits one anchoring transaction. Concurrent calls beyond
// MaxInFlight wait for a slot so parallel uploads cannot fork an unbounded
// number of CLI processes.
func (a *CLIAnchorer) Anchor(ctx context.Context, req Request) (Receipt, error) {
	select {
	case a.slots <- struct{}{}:
		defer func() { <-a.slots }()
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	args, err := a.buildArgs(req)
	if err != nil {
		return Receipt{}, err
	}

	stdout, stderr, err := a.run(ctx, a.config.Binary, args...)
	if err != nil {
		return Receipt{}, fmt.Errorf("anchor: ledger call failed: %w", err)
	}

	txID := extractTxID(stderr)
	if txID == "" {
		txID = extractTxID(stdout)
	}
	if txID == "" {
		return Receipt{}, ErrAnchorParse
	}

	a.log.Info("hash anchored", "file_hash", req.FileHash, "tx_id", txID)

	return Receipt{
		FileHash:     req.FileHash,
		TxID:         txID,
		ExplorerLink: a.explorerLink(txID),
	}, nil
}

func (a *CLIAnchorer) buildArgs(req Request) ([]string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anchor: cannot encode payload: %w", err)
	}

	return []string{
		"contract", "call-function", "as-transaction",
		a.config.Contract, a.config.Method,
		"json-args", string(payload),
		"prepaid-gas", a.config.Gas,
		"attached-deposit", a.config.Deposit,
		"sign-as", a.config.SignAs,
		"network-config", a.config.Network,
		"sign-with-keychain", "send",
	}, nil
}

func (a *CLIAnchorer) explorerLink(txID string) string {
	if a.config.Network == "mainnet" {
		return "https://nearblocks.io/tx/" + txID
	}
	return fmt.Sprintf("https://%s.nearblocks.io/tx/%s", a.config.Network, txID)
}

func extractTxID(output []byte) string {
	match := txIDPattern.FindSubmatch(output)
	if match == nil {
		return ""
	}
	return string(match[1])
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return stdout.Bytes(), stderr.Bytes(),
			fmt.Errorf("%w (stderr: %s)", err, truncate(stderr.Bytes(), 512))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
