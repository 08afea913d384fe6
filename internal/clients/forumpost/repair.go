package forumpost

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Mojibake sequences seen in upstream content, produced by UTF-8 text read
// back through a single-byte encoding.
var artifactReplacements = []struct{ from, to string }{
	{"â€™", "'"},
	{"â€œ", "\""},
	{"â€", "\""},
	{"â€“", "-"},
	{"â€”", "-"},
	{"â€¦", "..."},
	{"Â ", " "},
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	// An ampersand is kept only when it already starts an entity.
	entityOrAmp = regexp.MustCompile(`&[a-zA-Z]{2,10};|&#\d{1,6};|&`)
)

// RepairHTML sanitizes a response body that a downstream parser rejected:
// encoding artifacts and control characters are removed, bare ampersands
// are escaped, script/style blocks are dropped, and the document is parsed
// and re-serialized, which closes unbalanced tags.
func RepairHTML(html string) (string, error) {
	for _, r := range artifactReplacements {
		html = strings.ReplaceAll(html, r.from, r.to)
	}
	html = controlChars.ReplaceAllString(html, "")
	html = entityOrAmp.ReplaceAllStringFunc(html, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()

	repaired, err := doc.Find("body").Html()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(repaired), nil
}

// Phrases a posting endpoint uses when it rejects a body for formatting
// rather than transport reasons.
var parsingErrorMarkers = []string{
	"parse",
	"parsing",
	"malformed",
	"invalid html",
	"unclosed",
	"unexpected tag",
	"not well-formed",
	"entity",
	"encoding",
}

// isParsingError reports whether an error message points at the HTML body
// itself, making a sanitized retry worthwhile.
func isParsingError(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range parsingErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
