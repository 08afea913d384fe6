package processor

import (
	"context"
	"log"

	"github.com/jonathan/forum-responder/internal/payload"
)

// RecordStore upserts the job summary keyed by correlation id.
type RecordStore interface {
	SaveResult(ctx context.Context, f *payload.Forum, res *Result) error
}

// ForumPoster posts the reply under its parent post. repaired reports
// whether the HTML had to be sanitized for a retry.
type ForumPoster interface {
	PostReply(ctx context.Context, correlationID string, parentID int64, html string) (repaired bool, err error)
}

// Notifier delivers the single operational notification per job.
// Fire-and-forget: failures are logged, never escalated.
type Notifier interface {
	NotifyResult(ctx context.Context, f *payload.Forum, res *Result, save *SaveStatus) error
}

// SaveStatus is the outcome of persistence and posting for one job.
type SaveStatus struct {
	AirtableSaved   bool
	ForumPostStatus string
	ForumPostError  string
	HTMLRepaired    bool
	TeamsNotified   bool
}

// Publisher fans a terminal result out to the collaborators: record store,
// forum post, notification. Each step is best-effort; one failing does not
// block the others.
type Publisher struct {
	records RecordStore
	forum   ForumPoster
	teams   Notifier
}

// NewPublisher builds a publisher. Any collaborator may be nil, in which
// case its step is skipped.
func NewPublisher(records RecordStore, forum ForumPoster, teams Notifier) *Publisher {
	return &Publisher{records: records, forum: forum, teams: teams}
}

// Publish runs the fan-out in order: record store, posting decision + post,
// notification. Exactly one notification is sent per job. Jobs that ended in
// url_detected or error produced no pipeline result: their only record is
// the ledger row, so the record store is skipped and the notification
// carries the detection or failure summary instead of a result.
func (p *Publisher) Publish(ctx context.Context, f *payload.Forum, res *Result) *SaveStatus {
	save := &SaveStatus{}

	if p.records != nil && res.Status != StatusURLDetected && res.Status != StatusError {
		if err := p.records.SaveResult(ctx, f, res); err != nil {
			log.Printf("[%s] record store save failed: %v", res.CorrelationID, err)
		} else {
			save.AirtableSaved = true
		}
	}

	post, skipReason := ShouldPost(res.Status, res.Classification, res.ValidationVerdict)
	switch {
	case !post:
		save.ForumPostStatus = skipReason
	case p.forum == nil:
		save.ForumPostStatus = PostStatusSkipped
	default:
		repaired, err := p.forum.PostReply(ctx, res.CorrelationID, f.ParentID, res.FinalResponseHTML)
		save.HTMLRepaired = repaired
		if err != nil {
			save.ForumPostStatus = PostStatusFailed
			save.ForumPostError = err.Error()
			log.Printf("[%s] forum post failed: %v", res.CorrelationID, err)
		} else {
			save.ForumPostStatus = PostStatusPosted
		}
	}

	if p.teams != nil {
		if err := p.teams.NotifyResult(ctx, f, res, save); err != nil {
			log.Printf("[%s] notification failed: %v", res.CorrelationID, err)
		} else {
			save.TeamsNotified = true
		}
	}

	return save
}
