// Package forumpost posts finished replies back to the forum service.
package forumpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/forum-responder/internal/retry"
)

// Config holds the forum-posting service settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client posts replies. Implements processor.ForumPoster.
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

// replyPayload is the posting service's wire format.
type replyPayload struct {
	CorrelationID string `json:"correlationId"`
	ParentID      int64  `json:"parentId"`
	PostSubject   string `json:"postSubject"`
	QueryState    string `json:"queryState"`
	PostText      string `json:"postText"`
}

// PostReply posts the reply under its parent post. When the service rejects
// the body with a parsing-flavored error, the HTML is sanitized and posted
// once more; repaired reports whether that fallback ran.
func (c *Client) PostReply(ctx context.Context, correlationID string, parentID int64, html string) (repaired bool, err error) {
	err = c.post(ctx, correlationID, parentID, html)
	if err == nil {
		return false, nil
	}
	if !isParsingError(err.Error()) {
		return false, err
	}

	cleaned, repairErr := RepairHTML(html)
	if repairErr != nil || cleaned == "" {
		return false, err
	}
	log.Printf("[%s] forum post rejected as unparsable, retrying with repaired HTML", correlationID)

	if err := c.post(ctx, correlationID, parentID, cleaned); err != nil {
		return true, err
	}
	return true, nil
}

func (c *Client) post(ctx context.Context, correlationID string, parentID int64, html string) error {
	encoded, err := json.Marshal(replyPayload{
		CorrelationID: correlationID,
		ParentID:      parentID,
		PostSubject:   "Re:",
		QueryState:    "REPLY_READY",
		PostText:      html,
	})
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	policy := c.policy
	// A parsing rejection is deterministic; retrying the same body is
	// pointless.
	policy.Retryable = func(err error) bool { return !isParsingError(err.Error()) }

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("X-API-Key", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("forum post request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("forum post returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
		}
		return nil
	})
}
