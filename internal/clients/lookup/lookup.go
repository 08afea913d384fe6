// Package lookup fetches the full forum record for notifications that carry
// only a correlation id.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/forum-responder/internal/retry"
)

// Config holds the lookup service settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client resolves correlation ids to full payloads.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
}

// New builds a client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: retry.DefaultPolicy(),
	}
}

// FetchByID returns the raw payload for a correlation id. The gateway
// treats any error here as a hard rejection: no Job is created.
func (c *Client) FetchByID(ctx context.Context, correlationID string) (map[string]any, error) {
	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + url.PathEscape(correlationID)

	var payload map[string]any
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		if c.cfg.APIKey != "" {
			req.Header.Set("X-API-Key", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("lookup request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("lookup returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
		}

		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("lookup response is not a JSON object: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", correlationID, err)
	}
	return payload, nil
}
