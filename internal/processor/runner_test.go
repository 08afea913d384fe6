package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/forum-responder/internal/payload"
	"github.com/jonathan/forum-responder/internal/queue"
)

type fakeRecords struct {
	calls int
	err   error
}

func (f *fakeRecords) SaveResult(context.Context, *payload.Forum, *Result) error {
	f.calls++
	return f.err
}

type fakePoster struct {
	calls    int
	lastHTML string
	parentID int64
	repaired bool
	err      error
}

func (f *fakePoster) PostReply(_ context.Context, _ string, parentID int64, html string) (bool, error) {
	f.calls++
	f.parentID = parentID
	f.lastHTML = html
	return f.repaired, f.err
}

type fakeNotifier struct {
	calls int
	last  *SaveStatus
}

func (f *fakeNotifier) NotifyResult(_ context.Context, _ *payload.Forum, _ *Result, save *SaveStatus) error {
	f.calls++
	f.last = save
	return nil
}

type fakeLedger struct {
	calls  int
	res    *Result
	save   *SaveStatus
	err    error
}

func (f *fakeLedger) RecordOutcome(_ context.Context, _ *queue.Job, res *Result, save *SaveStatus) error {
	f.calls++
	f.res = res
	f.save = save
	return f.err
}

type fakeCounters struct {
	statuses []string
	images   int
}

func (f *fakeCounters) JobProcessed(status string) { f.statuses = append(f.statuses, status) }
func (f *fakeCounters) ImagesTranscribed(n int)    { f.images += n }

func TestPublisher_CompletedJobPosts(t *testing.T) {
	records := &fakeRecords{}
	poster := &fakePoster{}
	notifier := &fakeNotifier{}
	pub := NewPublisher(records, poster, notifier)

	f := &payload.Forum{CorrelationID: "c", ParentID: 77}
	res := &Result{
		CorrelationID:     "c",
		Status:            StatusCompleted,
		Classification:    ClassGenuineDoubt,
		FinalResponseHTML: "<p>answer</p>",
	}

	save := pub.Publish(context.Background(), f, res)

	assert.True(t, save.AirtableSaved)
	assert.Equal(t, PostStatusPosted, save.ForumPostStatus)
	assert.True(t, save.TeamsNotified)
	assert.Equal(t, 1, poster.calls)
	assert.Equal(t, int64(77), poster.parentID)
	assert.Equal(t, "<p>answer</p>", poster.lastHTML)
	assert.Equal(t, 1, notifier.calls, "exactly one notification per job")
}

func TestPublisher_HILSkipsPosting(t *testing.T) {
	poster := &fakePoster{}
	pub := NewPublisher(&fakeRecords{}, poster, &fakeNotifier{})

	res := &Result{CorrelationID: "c", Status: StatusHILException}
	save := pub.Publish(context.Background(), &payload.Forum{CorrelationID: "c"}, res)

	assert.Equal(t, PostStatusSkippedHIL, save.ForumPostStatus)
	assert.Zero(t, poster.calls)
}

func TestPublisher_ValidationHoldback(t *testing.T) {
	poster := &fakePoster{}
	pub := NewPublisher(&fakeRecords{}, poster, &fakeNotifier{})

	res := &Result{
		CorrelationID:     "c",
		Status:            StatusCompleted,
		Classification:    ClassCorrections,
		ValidationVerdict: "VALID",
	}
	save := pub.Publish(context.Background(), &payload.Forum{CorrelationID: "c"}, res)

	assert.Equal(t, PostStatusSkippedValidation, save.ForumPostStatus)
	assert.Zero(t, poster.calls)
}

func TestPublisher_PostFailureRecorded(t *testing.T) {
	poster := &fakePoster{err: errors.New("service unavailable"), repaired: true}
	notifier := &fakeNotifier{}
	pub := NewPublisher(&fakeRecords{}, poster, notifier)

	res := &Result{Status: StatusCompleted, Classification: ClassGenuineDoubt, FinalResponseHTML: "<p>x</p>"}
	save := pub.Publish(context.Background(), &payload.Forum{}, res)

	assert.Equal(t, PostStatusFailed, save.ForumPostStatus)
	assert.Contains(t, save.ForumPostError, "service unavailable")
	assert.True(t, save.HTMLRepaired)
	assert.Equal(t, 1, notifier.calls, "failure still notifies")
}

func TestPublisher_URLDetectedSkipsRecordStore(t *testing.T) {
	records := &fakeRecords{}
	poster := &fakePoster{}
	notifier := &fakeNotifier{}
	pub := NewPublisher(records, poster, notifier)

	res := &Result{
		CorrelationID: "c",
		Status:        StatusURLDetected,
		URLCheck:      true,
		URLsFound:     []string{"https://bit.ly/xyz"},
	}
	save := pub.Publish(context.Background(), &payload.Forum{CorrelationID: "c"}, res)

	assert.Zero(t, records.calls, "held posts carry no result to store")
	assert.False(t, save.AirtableSaved)
	assert.Zero(t, poster.calls)
	assert.Equal(t, PostStatusSkipped, save.ForumPostStatus)
	assert.Equal(t, 1, notifier.calls, "detection notice still goes out")
	assert.Equal(t, save, notifier.last)
}

func TestPublisher_ErrorSkipsRecordStoreStillNotifies(t *testing.T) {
	records := &fakeRecords{}
	poster := &fakePoster{}
	notifier := &fakeNotifier{}
	pub := NewPublisher(records, poster, notifier)

	res := &Result{
		CorrelationID: "c",
		Status:        StatusError,
		Error:         "triage stage failed",
	}
	save := pub.Publish(context.Background(), &payload.Forum{CorrelationID: "c"}, res)

	assert.Zero(t, records.calls, "failed jobs are not persisted to the record store")
	assert.False(t, save.AirtableSaved)
	assert.Zero(t, poster.calls)
	assert.Equal(t, PostStatusSkipped, save.ForumPostStatus)
	assert.Equal(t, 1, notifier.calls)
}

func TestPublisher_RecordStoreFailureDoesNotBlockOthers(t *testing.T) {
	records := &fakeRecords{err: errors.New("record store down")}
	poster := &fakePoster{}
	notifier := &fakeNotifier{}
	pub := NewPublisher(records, poster, notifier)

	res := &Result{Status: StatusCompleted, Classification: ClassGenuineDoubt, FinalResponseHTML: "<p>x</p>"}
	save := pub.Publish(context.Background(), &payload.Forum{}, res)

	assert.False(t, save.AirtableSaved)
	assert.Equal(t, PostStatusPosted, save.ForumPostStatus)
	assert.True(t, save.TeamsNotified)
}

func TestRunner_InternalFaultBecomesErrorStatus(t *testing.T) {
	client := &fakeLLM{panicNow: true}
	proc := New(client, &fakeVision{})
	ledger := &fakeLedger{}
	counters := &fakeCounters{}
	runner := NewRunner(proc, NewPublisher(nil, nil, nil), ledger, counters)

	job := queue.NewJob(&payload.Forum{CorrelationID: "boom"}, "", nil)
	res := runner.Run(context.Background(), job)

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "internal fault")
	require.Equal(t, 1, ledger.calls, "terminal ledger update survives the fault")
	assert.Equal(t, StatusError, ledger.res.Status)
	assert.Equal(t, []string{string(StatusError)}, counters.statuses)
}

func TestRunner_LedgerFailureDoesNotAlterStatus(t *testing.T) {
	client := &fakeLLM{responses: []string{`{"classification": "No_Answer_Required"}`}}
	proc := New(client, &fakeVision{})
	ledger := &fakeLedger{err: errors.New("db down")}
	runner := NewRunner(proc, nil, ledger, nil)

	job := queue.NewJob(&payload.Forum{CorrelationID: "c"}, "", nil)
	res := runner.Run(context.Background(), job)

	assert.Equal(t, StatusHILException, res.Status)
	assert.Equal(t, 1, ledger.calls)
}
