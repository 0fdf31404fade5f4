package anchor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnchorer(run runner) *CLIAnchorer {
	a := NewCLIAnchorer(CLIConfig{
		Contract: "anchor.testnet",
		SignAs:   "service.testnet",
		Network:  "testnet",
	})
	a.run = run
	return a
}

func testRequest() Request {
	return Request{
		GroupID:   "group-1",
		UserID:    "service.testnet",
		FileHash:  "abc123",
		ContentID: "f1b2c3d4",
	}
}

func TestAnchorParsesTxIDFromStderr(t *testing.T) {
	var gotName string
	var gotArgs []string
	a := testAnchorer(func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotName = name
		gotArgs = args
		stderr := []byte("Transaction sent ...\nTransaction ID: 9XyzAbc123\nTo see the transaction...")
		return nil, stderr, nil
	})

	receipt, err := a.Anchor(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "9XyzAbc123", receipt.TxID)
	assert.Equal(t, "abc123", receipt.FileHash)
	assert.Equal(t, "https://testnet.nearblocks.io/tx/9XyzAbc123", receipt.ExplorerLink)

	assert.Equal(t, "near", gotName)
	assert.Contains(t, gotArgs, "anchor.testnet")
	assert.Contains(t, gotArgs, "record_transaction")
	assert.Contains(t, gotArgs, "30.0 Tgas")
	assert.Contains(t, gotArgs, "0.01 NEAR")
	assert.Contains(t, gotArgs, "sign-with-keychain")
}

func TestAnchorFallsBackToStdout(t *testing.T) {
	a := testAnchorer(func(context.Context, string, ...string) ([]byte, []byte, error) {
		return []byte("Transaction ID: FromStdout1"), []byte("no id here"), nil
	})

	receipt, err := a.Anchor(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "FromStdout1", receipt.TxID)
}

func TestAnchorNoTransactionID(t *testing.T) {
	a := testAnchorer(func(context.Context, string, ...string) ([]byte, []byte, error) {
		return []byte("ok"), []byte("call succeeded but output changed"), nil
	})

	_, err := a.Anchor(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrAnchorParse)
}

func TestAnchorCommandFailure(t *testing.T) {
	bootErr := errors.New("exit status 1")
	a := testAnchorer(func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, []byte("keychain locked"), bootErr
	})

	_, err := a.Anchor(context.Background(), testRequest())
	assert.ErrorIs(t, err, bootErr)
}

func TestAnchorCancelledContext(t *testing.T) {
	a := testAnchorer(func(ctx context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Anchor(ctx, testRequest())
	assert.Error(t, err)
}

func TestAnchorPayloadCarriesRequestFields(t *testing.T) {
	var payload string
	a := testAnchorer(func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		for i, arg := range args {
			if arg == "json-args" && i+1 < len(args) {
				payload = args[i+1]
			}
		}
		return nil, []byte("Transaction ID: Abc"), nil
	})

	_, err := a.Anchor(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Contains(t, payload, `"group_id":"group-1"`)
	assert.Contains(t, payload, `"file_hash":"abc123"`)
	assert.Contains(t, payload, `"ipfs_hash":"f1b2c3d4"`)
}

func TestExplorerLinkMainnet(t *testing.T) {
	a := NewCLIAnchorer(CLIConfig{Contract: "anchor.near", Network: "mainnet"})
	assert.Equal(t, "https://nearblocks.io/tx/Abc", a.explorerLink("Abc"))
}
