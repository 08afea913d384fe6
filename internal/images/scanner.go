package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/jonathan/forum-responder/internal/fetch"
	"github.com/jonathan/forum-responder/internal/payload"
)

// Match rules, applied per field in this order. Earlier rules consume their
// whole <img> tag so later rules cannot re-match the same content.
var (
	imgBase64Pattern = regexp.MustCompile(`(?is)<img[^>]*src=["']data:image/([a-z0-9.+-]+);base64,([^"']+)["'][^>]*>`)
	imgURLPattern    = regexp.MustCompile(`(?is)<img[^>]*src=["'](https?://[^"']+)["'][^>]*>`)
	standalonePattern = regexp.MustCompile(`(?i)data:image/([a-z0-9.+-]+);base64,([A-Za-z0-9+/=]{40,})`)
)

// Stats summarizes one scan pass.
type Stats struct {
	// TotalImages counts every occurrence replaced or appended.
	TotalImages int
	// FieldsProcessed lists the indexed paths of fields that were changed,
	// in scan order.
	FieldsProcessed []string
}

// Scanner walks a payload's scannable fields and replaces embedded images
// with transcriptions. A scanner is built per job; its fingerprint cache
// guarantees each distinct image is transcribed once even when it repeats
// across fields.
type Scanner struct {
	tr    Transcriber
	cache map[string]string
}

// NewScanner builds a per-job scanner.
func NewScanner(tr Transcriber) *Scanner {
	return &Scanner{
		tr:    tr,
		cache: make(map[string]string),
	}
}

// Scan processes every scannable field and the standalone attachment array.
// A failed fetch or transcription leaves that occurrence in place and the
// scan continues; Scan itself only fails on context cancellation.
func (s *Scanner) Scan(ctx context.Context, f *payload.Forum) (*Stats, error) {
	stats := &Stats{}

	for _, field := range f.ScannableFields() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		text := field.Get()
		if text == "" {
			continue
		}

		replaced, n := s.scanText(ctx, f.CorrelationID, text)
		if n > 0 {
			field.Set(replaced)
			stats.TotalImages += n
			stats.FieldsProcessed = append(stats.FieldsProcessed, field.Path)
		}
	}

	// Standalone attachments are transcribed unconditionally and appended,
	// never inline-replaced and never deduplicated against inline images.
	for i, att := range f.Attachments {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		text, err := s.tr.FromBase64(ctx, att.Data, att.Extension)
		if err != nil {
			log.Printf("[%s] attachment %d transcription failed: %v", f.CorrelationID, i, err)
			continue
		}
		f.AttachmentTranscripts = append(f.AttachmentTranscripts, text)
		stats.TotalImages++
		stats.FieldsProcessed = append(stats.FieldsProcessed, fmt.Sprintf("base64EncodedImages[%d]", i))
	}

	return stats, nil
}

// scanText applies the three match rules to one field's text and returns the
// rewritten text plus the number of occurrences replaced.
func (s *Scanner) scanText(ctx context.Context, corrID, text string) (string, int) {
	total := 0

	text = replaceMatches(text, imgBase64Pattern, func(groups []string) (string, bool) {
		transcript, err := s.inlineBase64(ctx, groups[2], groups[1])
		if err != nil {
			log.Printf("[%s] inline image transcription failed: %v", corrID, err)
			return "", false
		}
		total++
		return transcription(transcript), true
	})

	text = replaceMatches(text, imgURLPattern, func(groups []string) (string, bool) {
		url := groups[1]
		if fetch.ExtensionFor("", url) == "" {
			// Not a direct image link; leave it for the URL guard.
			return "", false
		}
		transcript, err := s.fromURL(ctx, url)
		if err != nil {
			log.Printf("[%s] image fetch/transcription failed for %s: %v", corrID, url, err)
			return "", false
		}
		total++
		return transcription(transcript), true
	})

	text = replaceStandalone(text, func(groups []string) (string, bool) {
		transcript, err := s.inlineBase64(ctx, groups[2], groups[1])
		if err != nil {
			log.Printf("[%s] standalone image transcription failed: %v", corrID, err)
			return "", false
		}
		total++
		return transcription(transcript), true
	})

	return text, total
}

func (s *Scanner) inlineBase64(ctx context.Context, encoded, extension string) (string, error) {
	key, err := fingerprintBase64(encoded)
	if err != nil {
		return "", err
	}
	if cached, ok := s.cache[key]; ok {
		return cached, nil
	}
	transcript, err := s.tr.FromBase64(ctx, encoded, extension)
	if err != nil {
		return "", err
	}
	s.cache[key] = transcript
	return transcript, nil
}

func (s *Scanner) fromURL(ctx context.Context, url string) (string, error) {
	key := fingerprintURL(url)
	if cached, ok := s.cache[key]; ok {
		return cached, nil
	}
	transcript, err := s.tr.FromURL(ctx, url)
	if err != nil {
		return "", err
	}
	s.cache[key] = transcript
	return transcript, nil
}

func transcription(text string) string {
	return "[Image Transcription: " + text + "]"
}

// fingerprintBase64 keys the cache on the full decoded payload.
func fingerprintBase64(encoded string) (string, error) {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func fingerprintURL(url string) string {
	sum := sha256.Sum256([]byte("url:" + url))
	return hex.EncodeToString(sum[:])
}

// replaceMatches rewrites each regex match through repl. When repl reports
// false the occurrence is left untouched.
func replaceMatches(text string, re *regexp.Regexp, repl func(groups []string) (string, bool)) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		groups := make([]string, 0, len(m)/2)
		for g := 0; g < len(m); g += 2 {
			if m[g] < 0 {
				groups = append(groups, "")
			} else {
				groups = append(groups, text[m[g]:m[g+1]])
			}
		}
		replacement, ok := repl(groups)
		if !ok {
			continue
		}
		sb.WriteString(text[last:m[0]])
		sb.WriteString(replacement)
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// replaceStandalone handles bare data URIs outside <img> tags. Occurrences
// still sitting in a src attribute are skipped so a malformed tag is not
// processed twice.
func replaceStandalone(text string, repl func(groups []string) (string, bool)) string {
	return replaceMatchesGuarded(text, standalonePattern, repl, func(start int) bool {
		prefix := text[:start]
		return strings.HasSuffix(prefix, `src="`) || strings.HasSuffix(prefix, `src='`)
	})
}

func replaceMatchesGuarded(text string, re *regexp.Regexp, repl func(groups []string) (string, bool), skip func(start int) bool) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		if skip(m[0]) {
			continue
		}
		groups := make([]string, 0, len(m)/2)
		for g := 0; g < len(m); g += 2 {
			if m[g] < 0 {
				groups = append(groups, "")
			} else {
				groups = append(groups, text[m[g]:m[g+1]])
			}
		}
		replacement, ok := repl(groups)
		if !ok {
			continue
		}
		sb.WriteString(text[last:m[0]])
		sb.WriteString(replacement)
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String()
}
