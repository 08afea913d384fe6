// Package airtable upserts job summaries to the external record store,
// keyed by correlation id.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/forum-responder/internal/payload"
	"github.com/jonathan/forum-responder/internal/processor"
	"github.com/jonathan/forum-responder/internal/retry"
)

// DefaultBaseURL is the Airtable REST endpoint.
const DefaultBaseURL = "https://api.airtable.com/v0"

// Config holds the record-store connection settings.
type Config struct {
	APIKey string
	BaseID string
	// Table is the main per-post summary table.
	Table string
	// OutputsTable receives the per-stage raw tool outputs.
	OutputsTable string
	BaseURL      string
	Timeout      time.Duration
}

// Client is the Airtable record-store client.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
}

// New builds a client. Missing optional settings get defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: retry.DefaultPolicy(),
	}
}

// SaveResult upserts the job summary, and the per-stage outputs when an
// outputs table is configured. Implements processor.RecordStore.
func (c *Client) SaveResult(ctx context.Context, f *payload.Forum, res *processor.Result) error {
	fields := map[string]any{
		"Forum_Corr_ID":      res.CorrelationID,
		"Status":             string(res.Status),
		"Classification":     res.Classification,
		"Response_Text":      res.FinalResponseText,
		"Response_HTML":      res.FinalResponseHTML,
		"URL_Check":          res.URLCheck,
		"Images_Transcribed": res.ImagesTranscribed,
		"Processing_Time_MS": res.Duration.Milliseconds(),
		"Total_Cost":         res.TotalCost(),
		"Posted_By":          f.PostedBy,
		"Subject":            f.Subject,
	}
	if res.ValidationVerdict != "" {
		fields["Validation_Verdict"] = res.ValidationVerdict
	}
	if res.Error != "" {
		fields["Error_Message"] = res.Error
	}

	if err := c.upsert(ctx, c.cfg.Table, res.CorrelationID, fields); err != nil {
		return err
	}

	if c.cfg.OutputsTable == "" {
		return nil
	}
	return c.upsert(ctx, c.cfg.OutputsTable, res.CorrelationID, outputFields(res))
}

// outputFields flattens urls and stage outputs for the outputs table.
func outputFields(res *processor.Result) map[string]any {
	fields := map[string]any{
		"Forum_Corr_ID": res.CorrelationID,
		"URLs_List":     strings.Join(res.URLsFound, "\n"),
	}
	for _, out := range res.ToolOutputs {
		raw := out.RawText
		if raw == "" && out.Error != "" {
			raw = "error: " + out.Error
		}
		fields[fmt.Sprintf("Stage_%d_%s", out.Sequence, out.ToolName)] = raw
	}
	return fields
}

// upsert finds the record by correlation id and patches it, or creates it.
func (c *Client) upsert(ctx context.Context, table, correlationID string, fields map[string]any) error {
	recordID, err := c.findRecordID(ctx, table, correlationID)
	if err != nil {
		return err
	}

	body := map[string]any{"fields": fields}
	if recordID == "" {
		return c.send(ctx, http.MethodPost, c.tableURL(table), body)
	}
	return c.send(ctx, http.MethodPatch, c.tableURL(table)+"/"+recordID, body)
}

// findRecordID resolves a correlation id to an Airtable record id, or ""
// when no record exists yet.
func (c *Client) findRecordID(ctx context.Context, table, correlationID string) (string, error) {
	formula := fmt.Sprintf("{Forum_Corr_ID}='%s'", strings.ReplaceAll(correlationID, "'", "\\'"))
	reqURL := c.tableURL(table) + "?maxRecords=1&filterByFormula=" + url.QueryEscape(formula)

	var found struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("airtable lookup failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return httpError("airtable lookup", resp)
		}
		return json.NewDecoder(resp.Body).Decode(&found)
	})
	if err != nil {
		return "", err
	}
	if len(found.Records) == 0 {
		return "", nil
	}
	return found.Records[0].ID, nil
}

func (c *Client) send(ctx context.Context, method, reqURL string, body map[string]any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode airtable record: %w", err)
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(encoded))
		if err != nil {
			return err
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("airtable request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return httpError("airtable save", resp)
		}
		return nil
	})
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.BaseID, url.PathEscape(table))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}

func httpError(op string, resp *http.Response) error {
	tail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(tail)))
}
