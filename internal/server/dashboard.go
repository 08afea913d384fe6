package server

import (
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/jonathan/forum-responder/internal/ledger"
	"github.com/jonathan/forum-responder/internal/metrics"
)

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="15">
<title>Forum Responder</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; font-size: 14px; }
th { background: #f4f4f4; }
.status-completed { color: #15803d; }
.status-hil_exception { color: #b45309; }
.status-url_detected { color: #1d4ed8; }
.status-error { color: #b91c1c; }
.counters span { display: inline-block; margin-right: 1.5em; }
</style>
</head>
<body>
<h1>Forum Responder</h1>
<p class="counters">
<span>Received: {{.Counters.TotalReceived}}</span>
<span>Processed: {{.Counters.TotalProcessed}}</span>
<span>Completed: {{.Counters.Completed}}</span>
<span>HIL: {{.Counters.HILExceptions}}</span>
<span>URL held: {{.Counters.URLDetected}}</span>
<span>Errors: {{.Counters.Errors}}</span>
<span>Queue: {{.QueueDepth}}/{{.QueueCapacity}}</span>
</p>
<table>
<tr><th>Correlation ID</th><th>Status</th><th>Classification</th><th>Images</th><th>Post</th><th>Time (ms)</th><th>Received</th><th>Error</th></tr>
{{range .Rows}}
<tr>
<td>{{.CorrelationID}}</td>
<td class="status-{{.Status}}">{{.Status}}</td>
<td>{{.Classification}}</td>
<td>{{.ImagesTranscribed}}</td>
<td>{{.ForumPostStatus}}</td>
<td>{{.ProcessingTimeMS}}</td>
<td>{{.ReceivedAt.Format "2006-01-02 15:04:05"}}</td>
<td>{{.ErrorMessage}}</td>
</tr>
{{else}}
<tr><td colspan="8">No records yet</td></tr>
{{end}}
</table>
</body>
</html>`

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

type dashboardData struct {
	Counters      metrics.Snapshot
	QueueDepth    int
	QueueCapacity int
	Rows          []ledger.Record
	GeneratedAt   time.Time
}

// handleDashboard renders the recent processing history as HTML.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Counters:      s.metrics.Snapshot(),
		QueueDepth:    s.pool.Depth(),
		QueueCapacity: s.pool.Capacity(),
		GeneratedAt:   time.Now(),
	}

	if s.ledger != nil {
		rows, err := s.ledger.Recent(r.Context(), 50)
		if err != nil {
			log.Printf("dashboard: ledger unavailable: %v", err)
		} else {
			data.Rows = rows
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		log.Printf("dashboard: render failed: %v", err)
	}
}
