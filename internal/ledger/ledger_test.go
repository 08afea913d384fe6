package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/forum-responder/internal/payload"
	"github.com/jonathan/forum-responder/internal/processor"
	"github.com/jonathan/forum-responder/internal/queue"
)

// testStore connects to TEST_DATABASE_URL or skips. These tests need a real
// PostgreSQL instance; they truncate the webhooks table.
func testStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping ledger integration tests")
	}

	ctx := context.Background()
	store, err := Connect(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Init(ctx))
	_, err = store.pool.Exec(ctx, `TRUNCATE webhooks`)
	require.NoError(t, err)

	return store
}

func testJob(corrID string) *queue.Job {
	return queue.NewJob(&payload.Forum{CorrelationID: corrID}, "127.0.0.1",
		map[string]string{"User-Agent": "test-agent"})
}

func TestSaveReceivedAndRecordOutcome(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	job := testJob("corr-ledger-1")

	require.NoError(t, store.SaveReceived(ctx, job))

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pending", records[0].Status)
	assert.Equal(t, "127.0.0.1", records[0].RequestIP)
	assert.Nil(t, records[0].ProcessedAt)

	res := &processor.Result{
		CorrelationID:     job.CorrelationID,
		Status:            processor.StatusCompleted,
		Classification:    processor.ClassGenuineDoubt,
		URLCheck:          true,
		ImagesTranscribed: 2,
		Duration:          1500 * time.Millisecond,
	}
	save := &processor.SaveStatus{ForumPostStatus: processor.PostStatusPosted}
	require.NoError(t, store.RecordOutcome(ctx, job, res, save))

	records, err = store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].Status)
	assert.Equal(t, "Genuine_Doubt", records[0].Classification)
	assert.Equal(t, 2, records[0].ImagesTranscribed)
	assert.Equal(t, int64(1500), records[0].ProcessingTimeMS)
	assert.Equal(t, "posted", records[0].ForumPostStatus)
	assert.NotNil(t, records[0].ProcessedAt)
}

func TestDuplicateCorrelationIDOverwrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	job := testJob("corr-ledger-dup")
	require.NoError(t, store.SaveReceived(ctx, job))

	res := &processor.Result{
		CorrelationID: job.CorrelationID,
		Status:        processor.StatusError,
		Error:         "model unavailable",
	}
	require.NoError(t, store.RecordOutcome(ctx, job, res, &processor.SaveStatus{
		ForumPostStatus: processor.PostStatusSkipped,
	}))

	// A re-received correlation id resets the same row rather than adding
	// a second one.
	require.NoError(t, store.SaveReceived(ctx, testJob("corr-ledger-dup")))

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pending", records[0].Status)
	assert.Empty(t, records[0].ErrorMessage)
}

func TestOutcomeWithoutIntakeRowStillWrites(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	job := testJob("corr-ledger-orphan")

	res := &processor.Result{
		CorrelationID: job.CorrelationID,
		Status:        processor.StatusURLDetected,
		URLCheck:      true,
		URLsFound:     []string{"https://bit.ly/xyz"},
	}
	require.NoError(t, store.RecordOutcome(ctx, job, res, &processor.SaveStatus{
		ForumPostStatus: processor.PostStatusSkipped,
	}))

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "url_detected", records[0].Status)
	assert.Equal(t, []string{"https://bit.ly/xyz"}, records[0].URLsList)
}

func TestStatusCounts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReceived(ctx, testJob("corr-a")))
	require.NoError(t, store.SaveReceived(ctx, testJob("corr-b")))

	jobC := testJob("corr-c")
	require.NoError(t, store.RecordOutcome(ctx, jobC, &processor.Result{
		CorrelationID: jobC.CorrelationID,
		Status:        processor.StatusCompleted,
	}, &processor.SaveStatus{ForumPostStatus: processor.PostStatusPosted}))

	counts, err := store.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["pending"])
	assert.Equal(t, int64(1), counts["completed"])
}
