package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/forum-responder/internal/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(Config{BaseURL: server.URL, APIKey: "lk-key"})
	client.policy = retry.Policy{Attempts: 2, Delay: time.Millisecond}
	return client
}

func TestFetchByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/corr-55", r.URL.Path)
		assert.Equal(t, "lk-key", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"correlationId": "corr-55", "forumPostText": "why B?"}`))
	})

	got, err := client.FetchByID(context.Background(), "corr-55")
	require.NoError(t, err)
	assert.Equal(t, "why B?", got["forumPostText"])
}

func TestFetchByID_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"correlationId": "corr-55"}`))
	})

	_, err := client.FetchByID(context.Background(), "corr-55")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestFetchByID_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`no such record`))
	})

	_, err := client.FetchByID(context.Background(), "corr-0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "corr-0")
}

func TestFetchByID_BadJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.FetchByID(context.Background(), "corr-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON")
}
