// Package urlguard detects external links in forum posts. Posts carrying
// links are routed to human review instead of the automated pipeline, since
// the classifier cannot see what a link points at.
package urlguard

import (
	"regexp"
	"strings"

	"github.com/jonathan/forum-responder/internal/payload"
)

// Hosts that count as links even without a scheme: shorteners, cloud
// storage, image/video hosts, document sharing, paste sites.
var bareHosts = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd",
	"buff.ly", "rb.gy", "cutt.ly", "shorturl.at",
	"drive.google.com", "docs.google.com", "sheets.google.com",
	"slides.google.com", "forms.google.com",
	"dropbox.com", "onedrive.live.com", "1drv.ms", "box.com",
	"icloud.com",
	"imgur.com", "i.imgur.com", "imgbb.com", "postimg.cc",
	"flickr.com", "prnt.sc", "gyazo.com",
	"youtube.com", "youtu.be", "vimeo.com", "dailymotion.com",
	"scribd.com", "slideshare.net", "academia.edu", "researchgate.net",
	"pastebin.com", "hastebin.com",
}

// Direct image links are allowed: they are handled by the image scanner, not
// by human review.
var imageExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp", ".tiff",
}

var urlPattern = buildPattern()

func buildPattern() *regexp.Regexp {
	escaped := make([]string, len(bareHosts))
	for i, h := range bareHosts {
		escaped[i] = regexp.QuoteMeta(h)
	}
	expr := `(?i)(?:https?://[^\s<>"')]+` +
		`|www\.[^\s<>"')]+` +
		`|(?:^|[\s(])((?:` + strings.Join(escaped, "|") + `)/[^\s<>"')]*))`
	return regexp.MustCompile(expr)
}

// Check scans the post text and the parent question for external links.
// It returns whether any were found and the distinct matches in first-seen
// order. Dedup is case-insensitive; direct image links are excluded.
func Check(f *payload.Forum) (bool, []string) {
	urls := Scan(f.PostText)
	urls = append(urls, Scan(f.ParentPostQuery)...)
	urls = dedupe(urls)
	return len(urls) > 0, urls
}

// Scan extracts link candidates from a single text.
func Scan(text string) []string {
	if text == "" {
		return nil
	}

	var found []string
	for _, m := range urlPattern.FindAllStringSubmatch(text, -1) {
		url := m[0]
		if m[1] != "" {
			// Bare-host alternative: the leading separator is not part of
			// the link.
			url = m[1]
		}
		url = strings.TrimRight(url, ".,;:!?")
		if url == "" || isImageLink(url) {
			continue
		}
		found = append(found, url)
	}
	return found
}

// isImageLink reports whether the query-stripped path ends in an image
// extension.
func isImageLink(url string) bool {
	path := url
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func dedupe(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		key := strings.ToLower(u)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
