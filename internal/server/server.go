// Package server provides the HTTP gateway: webhook intake, reprocessing,
// stats, and the operational dashboard.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/forum-responder/internal/ledger"
	"github.com/jonathan/forum-responder/internal/metrics"
	"github.com/jonathan/forum-responder/internal/processor"
	"github.com/jonathan/forum-responder/internal/queue"
)

// LookupClient resolves a correlation id to the full raw payload when a
// webhook arrives without post data.
type LookupClient interface {
	FetchByID(ctx context.Context, correlationID string) (map[string]any, error)
}

// LedgerStore is the slice of the ledger the gateway uses.
type LedgerStore interface {
	SaveReceived(ctx context.Context, job *queue.Job) error
	Recent(ctx context.Context, limit int) ([]ledger.Record, error)
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

// JobRunner executes one job synchronously, used by the reprocess endpoint.
type JobRunner interface {
	Run(ctx context.Context, job *queue.Job) *processor.Result
}

// Server represents the HTTP gateway.
type Server struct {
	httpServer *http.Server
	apiKey     string
	pool       *queue.Pool
	runner     JobRunner
	lookup     LookupClient
	ledger     LedgerStore
	metrics    *metrics.Aggregator
}

// Config holds server configuration.
type Config struct {
	Port   int
	APIKey string
}

// New creates a new server instance. lookup and store may be nil when the
// matching integration is not configured.
func New(cfg Config, pool *queue.Pool, runner JobRunner, lookup LookupClient, store LedgerStore, agg *metrics.Aggregator) *Server {
	s := &Server{
		apiKey:  cfg.APIKey,
		pool:    pool,
		runner:  runner,
		lookup:  lookup,
		ledger:  store,
		metrics: agg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /reprocess/{correlationId}", s.handleReprocess)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // reprocess runs the pipeline inline
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the full middleware-wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and blocks until ctx is cancelled, then drains
// in-flight requests before returning.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s %s completed in %v", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

// authorized checks the shared API key. The key may arrive in the webhook
// header, the generic API key header, or as a bearer token.
func (s *Server) authorized(r *http.Request) bool {
	key := r.Header.Get("X-Webhook-API-Key")
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if key == "" || s.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

// handleHealth returns server health status. Unauthenticated, for probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRoot returns the service descriptor.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"service": "forum-responder",
		"endpoints": []string{
			"POST /webhook",
			"POST /reprocess/{correlationId}",
			"GET /stats",
			"GET /health",
			"GET /dashboard",
		},
	})
}

// handleStats returns the counters plus queue and ledger summaries.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.metrics.AuthFailed()
		s.errorResponse(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	stats := map[string]any{
		"counters": s.metrics.Snapshot(),
		"queue": map[string]int{
			"depth":    s.pool.Depth(),
			"capacity": s.pool.Capacity(),
			"workers":  s.pool.Workers(),
		},
	}

	if s.ledger != nil {
		counts, err := s.ledger.StatusCounts(r.Context())
		if err != nil {
			log.Printf("stats: ledger counts unavailable: %v", err)
		} else {
			stats["ledger"] = counts
		}
	}

	s.jsonResponse(w, http.StatusOK, stats)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
