package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/forum-responder/internal/payload"
)

// fakeTranscriber counts calls and returns canned transcriptions.
type fakeTranscriber struct {
	base64Calls int
	urlCalls    int
	failBase64  bool
	failURLs    map[string]bool
}

func (f *fakeTranscriber) FromBase64(_ context.Context, encoded, _ string) (string, error) {
	f.base64Calls++
	if f.failBase64 {
		return "", errors.New("vision model unavailable")
	}
	data, err := DecodeBase64(encoded)
	if err != nil {
		return "", err
	}
	return "text of " + string(data), nil
}

func (f *fakeTranscriber) FromURL(_ context.Context, url string) (string, error) {
	f.urlCalls++
	if f.failURLs[url] {
		return "", errors.New("fetch failed")
	}
	return "remote " + url, nil
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestScan_InlineBase64Image(t *testing.T) {
	tr := &fakeTranscriber{}
	f := &payload.Forum{
		CorrelationID: "c-1",
		PostText:      fmt.Sprintf(`Before <img src="data:image/png;base64,%s"> after`, b64("triangle")),
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, "Before [Image Transcription: text of triangle] after", f.PostText)
	assert.Equal(t, 1, stats.TotalImages)
	assert.Equal(t, []string{"forumPostText"}, stats.FieldsProcessed)
	assert.Equal(t, 1, tr.base64Calls)
}

func TestScan_RepeatedImageTranscribedOnce(t *testing.T) {
	tr := &fakeTranscriber{}
	img := fmt.Sprintf(`<img src="data:image/png;base64,%s">`, b64("same"))
	f := &payload.Forum{
		CorrelationID: "c-1",
		PostText:      img + " and " + img,
		Questions: []payload.Question{
			{QuestionText: img},
		},
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalImages, "each occurrence is replaced")
	assert.Equal(t, 1, tr.base64Calls, "identical image content hits the cache")
	assert.NotContains(t, f.PostText, "data:image")
	assert.Equal(t, "[Image Transcription: text of same]", f.Questions[0].QuestionText)
}

func TestScan_ImageURLTag(t *testing.T) {
	tr := &fakeTranscriber{}
	f := &payload.Forum{
		CorrelationID: "c-1",
		PostText:      `See <img src="https://cdn.example.com/fig1.png" alt="figure">`,
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, "See [Image Transcription: remote https://cdn.example.com/fig1.png]", f.PostText)
	assert.Equal(t, 1, stats.TotalImages)
	assert.Equal(t, 1, tr.urlCalls)
}

func TestScan_NonImageURLTagLeftAlone(t *testing.T) {
	tr := &fakeTranscriber{}
	original := `<img src="https://example.com/page">`
	f := &payload.Forum{CorrelationID: "c-1", PostText: original}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, original, f.PostText)
	assert.Zero(t, stats.TotalImages)
	assert.Zero(t, tr.urlCalls)
}

func TestScan_FetchFailureLeavesOccurrence(t *testing.T) {
	tr := &fakeTranscriber{failURLs: map[string]bool{"https://cdn.example.com/gone.png": true}}
	original := `<img src="https://cdn.example.com/gone.png">`
	f := &payload.Forum{CorrelationID: "c-1", PostText: original}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, original, f.PostText)
	assert.Zero(t, stats.TotalImages)
	assert.Empty(t, stats.FieldsProcessed)
}

func TestScan_StandaloneDataURI(t *testing.T) {
	tr := &fakeTranscriber{}
	encoded := b64("a reasonably long standalone payload for the scanner")
	f := &payload.Forum{
		CorrelationID: "c-1",
		PostText:      "pasted: data:image/jpeg;base64," + encoded,
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, "pasted: [Image Transcription: text of a reasonably long standalone payload for the scanner]", f.PostText)
	assert.Equal(t, 1, stats.TotalImages)
}

func TestScan_StandaloneGuardSkipsSrcAttribute(t *testing.T) {
	// A malformed img tag whose data URI failed rule one must not be
	// re-processed by the standalone rule.
	tr := &fakeTranscriber{failBase64: true}
	encoded := b64("a reasonably long standalone payload for the scanner")
	original := fmt.Sprintf(`<img src="data:image/png;base64,%s">`, encoded)
	f := &payload.Forum{CorrelationID: "c-1", PostText: original}

	_, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, original, f.PostText)
	assert.Equal(t, 1, tr.base64Calls, "only the img rule attempts it")
}

func TestScan_AttachmentsAppendedNotDeduped(t *testing.T) {
	tr := &fakeTranscriber{}
	encoded := b64("attachment payload")
	f := &payload.Forum{
		CorrelationID: "c-1",
		PostText:      fmt.Sprintf(`<img src="data:image/png;base64,%s">`, encoded),
		Attachments: []payload.Attachment{
			{Data: encoded, Extension: "png"},
			{Data: b64("second attachment")},
		},
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, f.AttachmentTranscripts, 2)
	assert.Equal(t, "text of attachment payload", f.AttachmentTranscripts[0])
	assert.Equal(t, "text of second attachment", f.AttachmentTranscripts[1])
	assert.Equal(t, 3, stats.TotalImages)
	assert.Contains(t, stats.FieldsProcessed, "base64EncodedImages[0]")
	assert.Contains(t, stats.FieldsProcessed, "base64EncodedImages[1]")
	// Attachments bypass the inline cache on purpose.
	assert.Equal(t, 3, tr.base64Calls)
}

func TestScan_AttachmentFailureSkipped(t *testing.T) {
	tr := &fakeTranscriber{failBase64: true}
	f := &payload.Forum{
		CorrelationID: "c-1",
		Attachments:   []payload.Attachment{{Data: b64("x")}},
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, f.AttachmentTranscripts)
	assert.Zero(t, stats.TotalImages)
}

func TestScan_AnswerChoicePaths(t *testing.T) {
	tr := &fakeTranscriber{}
	f := &payload.Forum{
		CorrelationID: "c-1",
		Questions: []payload.Question{
			{
				AnswerChoices: []payload.AnswerChoice{
					{Content: "plain"},
					{Feedback: fmt.Sprintf(`<img src="data:image/png;base64,%s">`, b64("choice fig"))},
				},
			},
		},
	}

	stats, err := NewScanner(tr).Scan(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"questionData[0].answerChoicesMap[1].answerFeedback"}, stats.FieldsProcessed)
}

func TestDecodeBase64(t *testing.T) {
	t.Run("padded", func(t *testing.T) {
		data, err := DecodeBase64(b64("hello"))
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
	})

	t.Run("embedded whitespace", func(t *testing.T) {
		encoded := b64("hello world hello world")
		wrapped := encoded[:10] + "\n" + encoded[10:20] + " " + encoded[20:]
		data, err := DecodeBase64(wrapped)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello world hello world"), data)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := DecodeBase64("!!! not base64 !!!")
		assert.Error(t, err)
	})
}
