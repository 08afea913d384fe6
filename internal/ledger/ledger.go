// Package ledger provides the durable per-job record keyed by correlation
// id, backed by PostgreSQL.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/forum-responder/internal/processor"
	"github.com/jonathan/forum-responder/internal/queue"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the webhooks table and its indexes if absent.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS webhooks (
			id BIGSERIAL PRIMARY KEY,
			correlation_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'pending',
			classification TEXT,
			url_check BOOLEAN NOT NULL DEFAULT FALSE,
			urls_list JSONB,
			images_transcribed INTEGER NOT NULL DEFAULT 0,
			processing_time_ms BIGINT,
			error_message TEXT,
			forum_post_status TEXT,
			forum_post_error TEXT,
			request_ip TEXT,
			request_headers JSONB,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_webhooks_status ON webhooks (status);
		CREATE INDEX IF NOT EXISTS idx_webhooks_received_at ON webhooks (received_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize webhooks table: %w", err)
	}
	return nil
}

// SaveReceived writes the intake row for an accepted job. A re-received
// correlation id overwrites the previous row and resets it to pending.
func (s *Store) SaveReceived(ctx context.Context, job *queue.Job) error {
	headers, err := json.Marshal(job.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal request headers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhooks (correlation_id, status, request_ip, request_headers, received_at)
		VALUES ($1, 'pending', $2, $3, $4)
		ON CONFLICT (correlation_id) DO UPDATE SET
			status = 'pending',
			classification = NULL,
			error_message = NULL,
			forum_post_status = NULL,
			forum_post_error = NULL,
			processed_at = NULL,
			request_ip = $2,
			request_headers = $3,
			received_at = $4`,
		job.CorrelationID, job.RemoteAddr, headers, job.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save intake record for %s: %w", job.CorrelationID, err)
	}
	return nil
}

// RecordOutcome writes the terminal update for a processed job. Implements
// processor.Ledger. The upsert keeps the invariant that every accepted job
// has exactly one row even if the intake write was lost.
func (s *Store) RecordOutcome(ctx context.Context, job *queue.Job, res *processor.Result, save *processor.SaveStatus) error {
	urls, err := json.Marshal(res.URLsFound)
	if err != nil {
		return fmt.Errorf("failed to marshal urls list: %w", err)
	}
	headers, err := json.Marshal(job.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal request headers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhooks (
			correlation_id, status, classification, url_check, urls_list,
			images_transcribed, processing_time_ms, error_message,
			forum_post_status, forum_post_error, request_ip, request_headers,
			received_at, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13, NOW())
		ON CONFLICT (correlation_id) DO UPDATE SET
			status = $2,
			classification = $3,
			url_check = $4,
			urls_list = $5,
			images_transcribed = $6,
			processing_time_ms = $7,
			error_message = NULLIF($8, ''),
			forum_post_status = NULLIF($9, ''),
			forum_post_error = NULLIF($10, ''),
			processed_at = NOW()`,
		job.CorrelationID, string(res.Status), res.Classification, res.URLCheck, urls,
		res.ImagesTranscribed, res.Duration.Milliseconds(), res.Error,
		save.ForumPostStatus, save.ForumPostError, job.RemoteAddr, headers,
		job.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", job.CorrelationID, err)
	}
	return nil
}

// Record is one ledger row, as read back for the dashboard and stats.
type Record struct {
	CorrelationID     string
	Status            string
	Classification    string
	URLCheck          bool
	URLsList          []string
	ImagesTranscribed int
	ProcessingTimeMS  int64
	ErrorMessage      string
	ForumPostStatus   string
	ForumPostError    string
	RequestIP         string
	ReceivedAt        time.Time
	ProcessedAt       *time.Time
}

// Recent returns the newest rows, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT correlation_id, status, COALESCE(classification, ''),
		       url_check, COALESCE(urls_list, '[]'::jsonb),
		       images_transcribed, COALESCE(processing_time_ms, 0),
		       COALESCE(error_message, ''), COALESCE(forum_post_status, ''),
		       COALESCE(forum_post_error, ''), COALESCE(request_ip, ''),
		       received_at, processed_at
		FROM webhooks
		ORDER BY received_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var urls []byte
		if err := rows.Scan(
			&r.CorrelationID, &r.Status, &r.Classification,
			&r.URLCheck, &urls,
			&r.ImagesTranscribed, &r.ProcessingTimeMS,
			&r.ErrorMessage, &r.ForumPostStatus,
			&r.ForumPostError, &r.RequestIP,
			&r.ReceivedAt, &r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(urls, &r.URLsList); err != nil {
			r.URLsList = nil
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// StatusCounts tallies rows by status.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM webhooks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
