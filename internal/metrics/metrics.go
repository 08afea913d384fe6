// Package metrics is the process-scoped counter aggregator. All mutation
// goes through typed methods under one mutex; readers get an isolated
// snapshot. No other component touches the counters directly.
package metrics

import (
	"sync"
	"time"
)

// Aggregator accumulates intake and processing tallies for the lifetime of
// the process.
type Aggregator struct {
	mu sync.Mutex

	startTime         time.Time
	lastWebhookAt     time.Time
	totalReceived     int64
	authFailed        int64
	queueRejected     int64
	fetchedByID       int64
	totalProcessed    int64
	completed         int64
	hilExceptions     int64
	urlDetected       int64
	errors            int64
	imagesTranscribed int64
}

// Snapshot is a read-only copy of the counters at one instant.
type Snapshot struct {
	UptimeSeconds     float64    `json:"uptime_seconds"`
	TotalReceived     int64      `json:"total_received"`
	AuthFailed        int64      `json:"auth_failed"`
	QueueRejected     int64      `json:"queue_rejected"`
	FetchedByID       int64      `json:"fetched_by_id"`
	TotalProcessed    int64      `json:"total_processed"`
	Completed         int64      `json:"completed"`
	HILExceptions     int64      `json:"hil_exceptions"`
	URLDetected       int64      `json:"url_detected"`
	Errors            int64      `json:"errors"`
	ImagesTranscribed int64      `json:"images_transcribed"`
	LastWebhookAt     *time.Time `json:"last_webhook_at,omitempty"`
}

// New builds an aggregator with the uptime clock started.
func New() *Aggregator {
	return &Aggregator{startTime: time.Now()}
}

// WebhookReceived counts an accepted intake request.
func (a *Aggregator) WebhookReceived() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalReceived++
	a.lastWebhookAt = time.Now().UTC()
}

// AuthFailed counts a rejected credential.
func (a *Aggregator) AuthFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authFailed++
}

// QueueRejected counts an enqueue refused at capacity.
func (a *Aggregator) QueueRejected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queueRejected++
}

// FetchedByID counts a payload recovered through the lookup collaborator.
func (a *Aggregator) FetchedByID() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchedByID++
}

// JobProcessed counts one terminal pipeline outcome by status name.
func (a *Aggregator) JobProcessed(status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalProcessed++
	switch status {
	case "completed":
		a.completed++
	case "hil_exception":
		a.hilExceptions++
	case "url_detected":
		a.urlDetected++
	default:
		a.errors++
	}
}

// ImagesTranscribed adds the per-job transcription count.
func (a *Aggregator) ImagesTranscribed(n int) {
	if n == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.imagesTranscribed += int64(n)
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		UptimeSeconds:     time.Since(a.startTime).Seconds(),
		TotalReceived:     a.totalReceived,
		AuthFailed:        a.authFailed,
		QueueRejected:     a.queueRejected,
		FetchedByID:       a.fetchedByID,
		TotalProcessed:    a.totalProcessed,
		Completed:         a.completed,
		HILExceptions:     a.hilExceptions,
		URLDetected:       a.urlDetected,
		Errors:            a.errors,
		ImagesTranscribed: a.imagesTranscribed,
	}
	if !a.lastWebhookAt.IsZero() {
		t := a.lastWebhookAt
		s.LastWebhookAt = &t
	}
	return s
}
