// Package teams delivers the per-job operational notification to a Teams
// relay. Fire-and-forget: the pipeline logs failures and moves on.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/forum-responder/internal/payload"
	"github.com/jonathan/forum-responder/internal/processor"
	"github.com/jonathan/forum-responder/internal/retry"
)

// Config holds the notification relay settings.
type Config struct {
	WebhookURL string
	ChatID     string
	Email      string
	Timeout    time.Duration
}

// Client sends notifications. Implements processor.Notifier.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
}

// New builds a client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: retry.DefaultPolicy(),
	}
}

// message is the relay's wire format.
type message struct {
	ChatID      string `json:"chat_id"`
	Email       string `json:"email"`
	MessageBody string `json:"message_body"`
}

var statusEmoji = map[processor.Status]string{
	processor.StatusCompleted:    "✅",
	processor.StatusHILException: "🙋",
	processor.StatusURLDetected:  "🔗",
	processor.StatusError:        "❌",
}

var statusText = map[processor.Status]string{
	processor.StatusCompleted:    "Completed",
	processor.StatusHILException: "Needs human review",
	processor.StatusURLDetected:  "URL detected, held for review",
	processor.StatusError:        "Processing failed",
}

// NotifyResult sends exactly one summary message for a finished job.
func (c *Client) NotifyResult(ctx context.Context, f *payload.Forum, res *processor.Result, save *processor.SaveStatus) error {
	encoded, err := json.Marshal(message{
		ChatID:      c.cfg.ChatID,
		Email:       c.cfg.Email,
		MessageBody: FormatMessage(f, res, save),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(encoded))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("notification request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("notification returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
		}
		return nil
	})
}

// FormatMessage renders the summary body: status, classification, image
// work, posting outcome, and the tail of any error.
func FormatMessage(f *payload.Forum, res *processor.Result, save *processor.SaveStatus) string {
	emoji := statusEmoji[res.Status]
	if emoji == "" {
		emoji = "ℹ️"
	}
	text := statusText[res.Status]
	if text == "" {
		text = string(res.Status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", emoji, text)
	fmt.Fprintf(&sb, "Correlation ID: %s\n", res.CorrelationID)
	if f.PostedBy != "" {
		fmt.Fprintf(&sb, "Posted by: %s\n", f.PostedBy)
	}
	if res.Classification != "" {
		fmt.Fprintf(&sb, "Classification: %s\n", res.Classification)
	}
	if len(res.URLsFound) > 0 {
		fmt.Fprintf(&sb, "URLs found: %s\n", strings.Join(res.URLsFound, ", "))
	}
	if res.ImagesTranscribed > 0 {
		fmt.Fprintf(&sb, "Images transcribed: %d\n", res.ImagesTranscribed)
	}
	if save != nil {
		fmt.Fprintf(&sb, "Forum post: %s\n", save.ForumPostStatus)
		if save.HTMLRepaired {
			sb.WriteString("HTML auto-repaired before posting\n")
		}
	}
	if res.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", tail(res.Error, 200))
	}
	fmt.Fprintf(&sb, "Processing time: %v", res.Duration.Round(time.Millisecond))
	return sb.String()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
