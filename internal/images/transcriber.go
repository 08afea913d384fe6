// Package images finds embedded image content in forum payloads and replaces
// it with text transcriptions so the classifier works on text alone.
package images

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jonathan/forum-responder/internal/fetch"
	"github.com/jonathan/forum-responder/internal/llm"
	"github.com/jonathan/forum-responder/internal/prompts"
)

// Transcriber produces a text transcription of one image.
type Transcriber interface {
	FromBase64(ctx context.Context, encoded, extension string) (string, error)
	FromURL(ctx context.Context, url string) (string, error)
}

// VisionTranscriber transcribes images through the vision model.
type VisionTranscriber struct {
	llm       llm.Client
	fetchOpts *fetch.Options
	system    string
	user      string
}

// NewVisionTranscriber builds a transcriber over an LLM client.
func NewVisionTranscriber(client llm.Client) (*VisionTranscriber, error) {
	system, err := prompts.Forum(prompts.KeyTranscribeImage)
	if err != nil {
		return nil, err
	}
	user, err := prompts.Forum(prompts.KeyTranscribeUser)
	if err != nil {
		return nil, err
	}
	return &VisionTranscriber{
		llm:       client,
		fetchOpts: fetch.DefaultOptions(),
		system:    system,
		user:      user,
	}, nil
}

// FromBase64 decodes and transcribes an inline image. An empty extension
// defaults to png.
func (t *VisionTranscriber) FromBase64(ctx context.Context, encoded, extension string) (string, error) {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image data: %w", err)
	}
	if extension == "" {
		extension = "png"
	}
	return t.transcribe(ctx, data, normalizeExtension(extension))
}

// FromURL fetches and transcribes a remote image.
func (t *VisionTranscriber) FromURL(ctx context.Context, url string) (string, error) {
	data, extension, err := fetch.Image(ctx, url, t.fetchOpts)
	if err != nil {
		return "", err
	}
	return t.transcribe(ctx, data, extension)
}

func (t *VisionTranscriber) transcribe(ctx context.Context, data []byte, extension string) (string, error) {
	user := prompts.Format(t.user, map[string]string{"Format": extension})
	result, err := t.llm.GenerateVision(ctx, t.system, user, data, extension, llm.TierStandard)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}

// DecodeBase64 decodes image data, tolerating embedded whitespace and
// missing padding.
func DecodeBase64(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, encoded)

	if data, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}
