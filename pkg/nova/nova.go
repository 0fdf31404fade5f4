// Package nova is a client for the Nova encrypted-storage gateway. Files
// are encrypted locally before upload and decrypted locally after
// retrieval; the gateway only ever sees ciphertext. Wire format for
// payloads is AES-256-GCM as IV(12)||ciphertext||tag(16), base64 encoded.
package nova

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAuthURL = "https://testnet.nova-sdk.com"
	defaultMCPURL  = "https://nova-mcp.fastmcp.app"

	authTimeout     = 15 * time.Second
	transferTimeout = 60 * time.Second
)

var (
	ErrNoAPIKey    = errors.New("nova: API key is not configured")
	ErrNoAccountID = errors.New("nova: account id is not configured")
)

type Config struct {
	APIKey    string
	AccountID string
	BaseURL   string // auth endpoint base, defaults to the testnet gateway
	MCPURL    string // tool endpoint base

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the gateway. Safe for concurrent use; the session token
// is cached process-wide and refreshed lazily.
type Client struct {
	config Config
	http   *http.Client
	log    *slog.Logger
	tokens tokenCache
}

func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if config.AccountID == "" {
		return nil, ErrNoAccountID
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultAuthURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MCPURL == "" {
		config.MCPURL = defaultMCPURL
	}
	config.MCPURL = strings.TrimRight(config.MCPURL, "/")
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		http:   config.HTTPClient,
		log:    config.Logger,
	}, nil
}

// UploadResult identifies an uploaded file on the gateway and ledger.
type UploadResult struct {
	CID      string
	TransID  string
	FileHash string
}

// Upload encrypts data locally and pushes it to the gateway. The gateway
// issues the per-upload key during prepare; the plaintext never leaves
// this process.
func (c *Client) Upload(ctx context.Context, data []byte, filename, groupID string) (UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	var prep struct {
		UploadID string `json:"upload_id"`
		Key      string `json:"key"`
	}
	err := c.postTool(ctx, "/tools/prepare_upload", map[string]string{
		"group_id": groupID,
		"filename": filename,
	}, &prep)
	if err != nil {
		return UploadResult{}, fmt.Errorf("nova: prepare_upload failed: %w", err)
	}

	encrypted, err := encryptPayload(data, prep.Key)
	if err != nil {
		return UploadResult{}, fmt.Errorf("nova: %w", err)
	}
	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	var fin struct {
		CID      string `json:"cid"`
		TransID  string `json:"trans_id"`
		FileHash string `json:"file_hash"`
	}
	err = c.postTool(ctx, "/api/finalize-upload", map[string]string{
		"upload_id":      prep.UploadID,
		"encrypted_data": encrypted,
		"file_hash":      fileHash,
	}, &fin)
	if err != nil {
		return UploadResult{}, fmt.Errorf("nova: finalize_upload failed: %w", err)
	}

	if fin.FileHash == "" {
		fin.FileHash = fileHash
	}
	c.log.Info("nova upload complete", "cid", fin.CID)

	return UploadResult{CID: fin.CID, TransID: fin.TransID, FileHash: fin.FileHash}, nil
}

// Retrieve fetches and decrypts a file by its content identifier.
func (c *Client) Retrieve(ctx context.Context, cid, groupID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	var body struct {
		Key          string `json:"key"`
		EncryptedB64 string `json:"encrypted_b64"`
	}
	err := c.postTool(ctx, "/tools/prepare_retrieve", map[string]string{
		"group_id":  groupID,
		"ipfs_hash": cid,
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("nova: prepare_retrieve failed: %w", err)
	}

	plaintext, err := decryptPayload(body.EncryptedB64, body.Key)
	if err != nil {
		return nil, fmt.Errorf("nova: %w", err)
	}

	c.log.Info("nova retrieve complete", "cid", cid, "bytes", len(plaintext))
	return plaintext, nil
}

// RegisterGroup registers a new group; the calling account becomes the
// owner. Required once before uploading into a fresh group.
func (c *Client) RegisterGroup(ctx context.Context, groupID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var body struct {
		Message string `json:"message"`
	}
	err := c.postTool(ctx, "/tools/register_group", map[string]string{
		"group_id": groupID,
	}, &body)
	if err != nil {
		return "", fmt.Errorf("nova: register_group failed: %w", err)
	}

	if body.Message == "" {
		body.Message = fmt.Sprintf("Group '%s' registered", groupID)
	}
	return body.Message, nil
}

// postTool POSTs a JSON body to a gateway tool endpoint with the session
// bearer token attached.
func (c *Client) postTool(ctx context.Context, path string, payload any, out any) error {
	token, err := c.sessionToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.MCPURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Account-Id", c.config.AccountID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, detail)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
