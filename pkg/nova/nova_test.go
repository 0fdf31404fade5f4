package nova

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGateway fakes both the auth endpoint and the tool endpoint.
type testGateway struct {
	t         *testing.T
	authCalls atomic.Int64
	key       string // base64 payload key handed out on prepare
	stored    string // last encrypted payload finalize received
}

func newTestGateway(t *testing.T) (*testGateway, *httptest.Server) {
	t.Helper()

	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)

	gw := &testGateway{t: t, key: base64.StdEncoding.EncodeToString(raw)}
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)
	return gw, server
}

func (g *testGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/session-token":
		g.authCalls.Add(1)
		assert.Equal(g.t, "api-key-1", r.Header.Get("X-API-Key"))
		writeBody(w, map[string]string{"token": "session-token-1", "expires_in": "24h"})

	case "/tools/prepare_upload":
		assert.Equal(g.t, "Bearer session-token-1", r.Header.Get("Authorization"))
		assert.Equal(g.t, "account-1", r.Header.Get("X-Account-Id"))
		writeBody(w, map[string]string{"upload_id": "up-1", "key": g.key})

	case "/api/finalize-upload":
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		g.stored = req["encrypted_data"]
		writeBody(w, map[string]string{
			"cid":       "bafy-test-cid",
			"trans_id":  "Tx999",
			"file_hash": req["file_hash"],
		})

	case "/tools/prepare_retrieve":
		writeBody(w, map[string]string{"key": g.key, "encrypted_b64": g.stored})

	case "/tools/register_group":
		writeBody(w, map[string]string{"message": "Group 'g' registered"})

	default:
		http.NotFound(w, r)
	}
}

func writeBody(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:    "api-key-1",
		AccountID: "account-1",
		BaseURL:   url,
		MCPURL:    url,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{AccountID: "a"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewClient(Config{APIKey: "k"})
	assert.ErrorIs(t, err, ErrNoAccountID)
}

func TestUploadRetrieveRoundTrip(t *testing.T) {
	gw, server := newTestGateway(t)
	client := newTestClient(t, server.URL)

	payload := []byte("document destined for the gateway")
	result, err := client.Upload(context.Background(), payload, "doc.pdf", "group-1")
	require.NoError(t, err)

	assert.Equal(t, "bafy-test-cid", result.CID)
	assert.Equal(t, "Tx999", result.TransID)
	assert.NotEmpty(t, result.FileHash)

	// The gateway only ever saw ciphertext.
	assert.NotEmpty(t, gw.stored)
	assert.NotContains(t, gw.stored, "document destined")
	plaintext, err := decryptPayload(gw.stored, gw.key)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)

	recovered, err := client.Retrieve(context.Background(), result.CID, "group-1")
	require.NoError(t, err)
	assert.Equal(t, payload, recovered)
}

func TestSessionTokenCached(t *testing.T) {
	gw, server := newTestGateway(t)
	client := newTestClient(t, server.URL)

	for i := 0; i < 3; i++ {
		_, err := client.RegisterGroup(context.Background(), "group-1")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), gw.authCalls.Load())
}

func TestSessionTokenRefreshedNearExpiry(t *testing.T) {
	gw, server := newTestGateway(t)
	client := newTestClient(t, server.URL)

	_, err := client.RegisterGroup(context.Background(), "group-1")
	require.NoError(t, err)

	// Move the cached expiry inside the refresh margin.
	client.tokens.expiresAt = time.Now().Add(refreshMargin - time.Second)

	_, err = client.RegisterGroup(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gw.authCalls.Load())
}

func TestSessionTokenMissingAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, map[string]string{"token": ""})
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.RegisterGroup(context.Background(), "group-1")
	assert.ErrorContains(t, err, "no token")
}

func TestPostToolGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/session-token" {
			writeBody(w, map[string]string{"token": "tok", "expires_in": "24h"})
			return
		}
		http.Error(w, "group not registered", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.Upload(context.Background(), []byte("x"), "f", "missing-group")
	assert.ErrorContains(t, err, "403")
}

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"30m", 30 * time.Minute},
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"", 23 * time.Hour},
		{"soon", 23 * time.Hour},
		{"12x", 23 * time.Hour},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, parseExpiry(tc.input), "input %q", tc.input)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	key := base64.StdEncoding.EncodeToString(raw)

	sealed, err := encryptPayload([]byte("payload"), key)
	require.NoError(t, err)

	plaintext, err := decryptPayload(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), plaintext)

	_, err = decryptPayload(sealed, base64.StdEncoding.EncodeToString(make([]byte, 32)))
	assert.Error(t, err)

	_, err = decryptPayload("AAAA", key)
	assert.Error(t, err)
}
