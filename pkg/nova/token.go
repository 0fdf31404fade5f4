package nova

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// refreshMargin: a cached token within this margin of its expiry is
// treated as stale and refreshed.
const refreshMargin = 5 * time.Minute

var expiryPattern = regexp.MustCompile(`^(\d+)([hmd])$`)

// tokenCache holds the process-wide session token. Concurrent refreshes
// would be harmless duplicate work; the mutex just avoids hammering the
// auth endpoint under load.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// sessionToken returns a valid gateway session token, refreshing the
// cached one when it is absent or near expiry.
func (c *Client) sessionToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.token != "" && time.Now().Add(refreshMargin).Before(c.tokens.expiresAt) {
		return c.tokens.token, nil
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	c.log.Info("fetching nova session token", "account", c.config.AccountID)

	payload, err := json.Marshal(map[string]string{"account_id": c.config.AccountID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/auth/session-token", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("nova: session-token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("nova: session-token returned %d: %s", resp.StatusCode, detail)
	}

	var body struct {
		Token     string `json:"token"`
		ExpiresIn string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", errors.New("nova: auth returned no token, account may not exist")
	}

	c.tokens.token = body.Token
	c.tokens.expiresAt = time.Now().Add(parseExpiry(body.ExpiresIn))

	c.log.Info("nova session token obtained", "expires_in", body.ExpiresIn)
	return c.tokens.token, nil
}

// parseExpiry converts "24h", "30m" or "1d" into a duration, falling back
// to 23h for anything unrecognized.
func parseExpiry(s string) time.Duration {
	match := expiryPattern.FindStringSubmatch(s)
	if match == nil {
		return 23 * time.Hour
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 23 * time.Hour
	}
	switch match[2] {
	case "h":
		return time.Duration(value) * time.Hour
	case "m":
		return time.Duration(value) * time.Minute
	case "d":
		return time.Duration(value) * 24 * time.Hour
	}
	return 23 * time.Hour
}
