package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/STRATINT/feedpoller/internal/models"
)

const hashLength = 32

// baseURL returns the origin of fetchURL with the path reset to "/".
func baseURL(fetchURL string) string {
	u, err := url.Parse(fetchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fetchURL
	}
	u.Path = "/"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// resolveURL resolves ref against base. An empty ref yields "" and an
// unparsable one is returned as is.
func resolveURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func stableHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// hashJSON hashes the JSON encoding of v. Struct fields encode in declaration
// order and map keys are sorted, so equal values hash equally.
func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return stableHash(string(data))
}

// parseDate parses s leniently. Missing or unparsable dates yield nil.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// withHash sets the content hash over url, title, content and publication time.
func withHash(e models.NormalizedEntry) models.NormalizedEntry {
	published := ""
	if e.PublishedAt != nil {
		published = e.PublishedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	content := e.HTML
	if content == "" {
		content = e.Text
	}
	e.ContentHash = stableHash(strings.Join([]string{e.URL, e.Title, content, published}, "|"))
	return e
}
