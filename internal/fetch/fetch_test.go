package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngbytes"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("pngbytes"), result.Body)
	assert.Equal(t, "image/png", result.ContentType)
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestURL_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.Error(t, err)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Message, "404")
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	_, err := URL(context.Background(), "not-a-url", nil)
	require.Error(t, err)

	var ferr *Error
	assert.ErrorAs(t, err, &ferr)
}

func TestImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write([]byte{0xFF, 0xD8})
	}))
	defer server.Close()

	body, ext, err := Image(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, body)
	assert.Equal(t, "jpeg", ext)
}

func TestImage_RejectsNonImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	_, _, err := Image(context.Background(), server.URL, nil)
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		want        string
	}{
		{name: "png content type", contentType: "image/png", want: "png"},
		{name: "jpg alias", contentType: "image/jpg", want: "jpeg"},
		{name: "charset suffix", contentType: "image/webp; charset=binary", want: "webp"},
		{name: "path fallback", contentType: "application/octet-stream", url: "https://x.com/a.GIF?v=2", want: "gif"},
		{name: "jpg path fallback", contentType: "", url: "https://x.com/pic.jpg", want: "jpeg"},
		{name: "no image anywhere", contentType: "text/html", url: "https://x.com/page", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtensionFor(tt.contentType, tt.url))
		})
	}
}
