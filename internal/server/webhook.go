package server

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/jonathan/forum-responder/internal/payload"
	"github.com/jonathan/forum-responder/internal/queue"
)

// maxWebhookBody bounds the request body. Payloads carry base64 images, so
// the limit is generous.
const maxWebhookBody = 25 << 20

// intakeHeaders is the subset of request headers recorded with each job.
var intakeHeaders = []string{"Content-Type", "User-Agent", "X-Forwarded-For", "X-Request-Id"}

// handleWebhook accepts a forum notification, normalizes it, and enqueues a
// job. The caller gets 202 on acceptance; processing is asynchronous.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.metrics.AuthFailed()
		s.errorResponse(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	raw, err := payload.Unwrap(body)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	correlationID := payload.CorrelationID(raw)
	if correlationID == "" {
		s.errorResponse(w, http.StatusBadRequest, "correlationId is required")
		return
	}

	// Id-only notifications carry no post text. Resolve them through the
	// lookup service before decoding.
	if !payload.HasFullData(raw) {
		raw, err = s.fetchFullPayload(r, correlationID)
		if err != nil {
			s.errorResponse(w, http.StatusBadGateway, err.Error())
			return
		}
	}

	f, err := payload.Decode(raw)
	if err != nil {
		var verr *payload.ValidationError
		if errors.As(err, &verr) {
			s.errorResponse(w, http.StatusBadRequest, verr.Message)
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "payload failed validation")
		return
	}

	s.metrics.WebhookReceived()
	job := queue.NewJob(f, r.RemoteAddr, captureHeaders(r))

	if err := s.pool.Enqueue(job); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			s.metrics.QueueRejected()
			s.errorResponse(w, http.StatusServiceUnavailable, "queue is full, retry later")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	// Intake record is best-effort: a ledger outage never rejects a job.
	if s.ledger != nil {
		if err := s.ledger.SaveReceived(r.Context(), job); err != nil {
			log.Printf("[%s] intake record failed: %v", correlationID, err)
		}
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"status":         "queued",
		"correlation_id": correlationID,
		"queue_depth":    s.pool.Depth(),
	})
}

// handleReprocess fetches a record by correlation id and runs the pipeline
// synchronously, returning the terminal result.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.metrics.AuthFailed()
		s.errorResponse(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	correlationID := r.PathValue("correlationId")
	raw, err := s.fetchFullPayload(r, correlationID)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}

	f, err := payload.Decode(raw)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "payload failed validation")
		return
	}

	job := queue.NewJob(f, r.RemoteAddr, captureHeaders(r))
	res := s.runner.Run(r.Context(), job)

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"correlation_id":     res.CorrelationID,
		"status":             res.Status,
		"classification":     res.Classification,
		"images_transcribed": res.ImagesTranscribed,
		"processing_time_ms": res.Duration.Milliseconds(),
		"error":              res.Error,
	})
}

// fetchFullPayload resolves a correlation id through the lookup service.
func (s *Server) fetchFullPayload(r *http.Request, correlationID string) (map[string]any, error) {
	if s.lookup == nil {
		return nil, errors.New("payload lookup service is not configured")
	}
	raw, err := s.lookup.FetchByID(r.Context(), correlationID)
	if err != nil {
		return nil, err
	}
	s.metrics.FetchedByID()
	return raw, nil
}

func captureHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(intakeHeaders))
	for _, name := range intakeHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	return headers
}
