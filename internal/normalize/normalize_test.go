package normalize

import (
	"strings"
	"testing"
	"time"
)

const fetchURL = "https://example.com/feeds/main.xml?page=2"

func TestNormalizeRSS(t *testing.T) {
	body := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title> Example </title>
    <link>https://example.com/</link>
    <item>
      <guid>g1</guid>
      <title>T</title>
      <link>/a</link>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <description>summary</description>
    </item>
  </channel>
</rss>`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if feed.Format != string(FormatRSS) {
		t.Errorf("expected rss format, got %q", feed.Format)
	}
	if feed.Title != "Example" {
		t.Errorf("expected trimmed title, got %q", feed.Title)
	}
	if feed.FeedURL != fetchURL {
		t.Errorf("expected feed url %q, got %q", fetchURL, feed.FeedURL)
	}
	if len(feed.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(feed.Entries))
	}

	entry := feed.Entries[0]
	if entry.GUID != "g1" {
		t.Errorf("expected guid g1, got %q", entry.GUID)
	}
	if entry.URL != "https://example.com/a" {
		t.Errorf("expected resolved url, got %q", entry.URL)
	}
	if entry.ContentHash == "" || len(entry.ContentHash) != hashLength {
		t.Errorf("expected %d-char content hash, got %q", hashLength, entry.ContentHash)
	}
	if entry.HTML != "summary" {
		t.Errorf("expected description as html, got %q", entry.HTML)
	}
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if entry.PublishedAt == nil || !entry.PublishedAt.Equal(want) {
		t.Errorf("expected published %v, got %v", want, entry.PublishedAt)
	}
	if entry.UpdatedAt == nil || !entry.UpdatedAt.Equal(want) {
		t.Errorf("expected updated to fall back to published, got %v", entry.UpdatedAt)
	}
}

func TestNormalizeRSSPrefersEncodedContent(t *testing.T) {
	body := `<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <item>
      <guid>g1</guid>
      <description>short</description>
      <content:encoded><![CDATA[<p>full</p>]]></content:encoded>
    </item>
  </channel>
</rss>`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := feed.Entries[0].HTML; got != "<p>full</p>" {
		t.Errorf("expected encoded content, got %q", got)
	}
}

func TestNormalizeRSSWithoutGUIDIsStable(t *testing.T) {
	body := `<rss version="2.0"><channel>
  <item><title>Hello</title><link>https://example.com/hello</link><pubDate>not a date</pubDate></item>
</channel></rss>`

	first, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	second, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	a, b := first.Entries[0], second.Entries[0]
	if a.GUID == "" {
		t.Fatal("expected derived guid")
	}
	if a.GUID != b.GUID || a.ContentHash != b.ContentHash {
		t.Errorf("expected identical identity across runs, got %q/%q and %q/%q", a.GUID, a.ContentHash, b.GUID, b.ContentHash)
	}
	if want := stableHash("https://example.com/hello|Hello|not a date"); a.GUID != want {
		t.Errorf("expected guid %q, got %q", want, a.GUID)
	}
	if a.PublishedAt != nil {
		t.Errorf("expected unparsable date to be absent, got %v", a.PublishedAt)
	}
}

func TestNormalizeAtomFallsBackToBaseURL(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom</title>
  <entry>
    <id>id1</id>
    <title>No links</title>
    <updated>2024-03-01T10:00:00Z</updated>
    <summary>sum</summary>
  </entry>
</feed>`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if feed.Format != string(FormatAtom) {
		t.Errorf("expected atom format, got %q", feed.Format)
	}
	if feed.SiteURL != "https://example.com/" {
		t.Errorf("expected site url to fall back to base, got %q", feed.SiteURL)
	}
	if len(feed.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(feed.Entries))
	}

	entry := feed.Entries[0]
	if entry.GUID != "id1" {
		t.Errorf("expected guid id1, got %q", entry.GUID)
	}
	if entry.URL != "https://example.com/" {
		t.Errorf("expected base url fallback, got %q", entry.URL)
	}
	if entry.HTML != "sum" {
		t.Errorf("expected summary as html, got %q", entry.HTML)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if entry.PublishedAt == nil || !entry.PublishedAt.Equal(want) {
		t.Errorf("expected published to fall back to updated, got %v", entry.PublishedAt)
	}
}

func TestNormalizeAtomLinkSelection(t *testing.T) {
	body := `<feed xmlns="http://www.w3.org/2005/Atom">
  <link rel="self" href="https://example.com/feed.atom"/>
  <link rel="alternate" href="https://example.com/blog/"/>
  <entry>
    <id>id1</id>
    <link rel="enclosure" href="/media.mp3"/>
    <link rel="alternate" href="posts/1"/>
    <content type="html">&lt;p&gt;body&lt;/p&gt;</content>
    <summary>ignored</summary>
  </entry>
  <entry>
    <id>id2</id>
    <link rel="related" href="https://other.example.org/x"/>
  </entry>
</feed>`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if feed.SiteURL != "https://example.com/blog/" {
		t.Errorf("expected alternate site url, got %q", feed.SiteURL)
	}
	if got := feed.Entries[0].URL; got != "https://example.com/posts/1" {
		t.Errorf("expected alternate link resolved against base, got %q", got)
	}
	if got := feed.Entries[0].HTML; got != "<p>body</p>" {
		t.Errorf("expected content over summary, got %q", got)
	}
	if got := feed.Entries[1].URL; got != "https://other.example.org/x" {
		t.Errorf("expected first link fallback, got %q", got)
	}
}

func TestNormalizeAtomWithoutIDHashesEntry(t *testing.T) {
	body := `<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>anon</title></entry></feed>`

	first, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	second, _ := Normalize(body, fetchURL)

	if first.Entries[0].GUID == "" {
		t.Fatal("expected derived guid")
	}
	if first.Entries[0].GUID != second.Entries[0].GUID {
		t.Errorf("expected stable derived guid, got %q and %q", first.Entries[0].GUID, second.Entries[0].GUID)
	}
}

func TestNormalizeJSONFeed(t *testing.T) {
	body := `{"items":[{"id":"1","content_html":"<p>x</p>","content_text":"x"}]}`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if feed.Format != string(FormatJSON) {
		t.Errorf("expected json format, got %q", feed.Format)
	}
	if len(feed.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(feed.Entries))
	}

	entry := feed.Entries[0]
	if entry.GUID != "1" {
		t.Errorf("expected guid 1, got %q", entry.GUID)
	}
	if entry.HTML != "<p>x</p>" {
		t.Errorf("expected html content, got %q", entry.HTML)
	}
	if entry.Text != "" {
		t.Errorf("expected text to be absent when html is set, got %q", entry.Text)
	}
	if entry.URL != "" {
		t.Errorf("expected no url, got %q", entry.URL)
	}
}

func TestNormalizeJSONFeedFields(t *testing.T) {
	body := `{
  "version": "https://jsonfeed.org/version/1.1",
  "title": "JF",
  "home_page_url": "https://example.com/home",
  "items": [
    {"id": "a", "external_url": "/ext", "content_text": "plain", "date_published": "2024-05-06T07:08:09+02:00"}
  ]
}`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if feed.Title != "JF" || feed.SiteURL != "https://example.com/home" {
		t.Errorf("unexpected feed metadata: %+v", feed)
	}

	entry := feed.Entries[0]
	if entry.URL != "https://example.com/ext" {
		t.Errorf("expected external url resolved, got %q", entry.URL)
	}
	if entry.Text != "plain" || entry.HTML != "" {
		t.Errorf("expected text content only, got html=%q text=%q", entry.HTML, entry.Text)
	}
	want := time.Date(2024, 5, 6, 5, 8, 9, 0, time.UTC)
	if entry.PublishedAt == nil || !entry.PublishedAt.Equal(want) {
		t.Errorf("expected published %v, got %v", want, entry.PublishedAt)
	}
	if entry.UpdatedAt == nil || !entry.UpdatedAt.Equal(want) {
		t.Errorf("expected updated to fall back to published, got %v", entry.UpdatedAt)
	}
}

func TestNormalizeUnknownFormat(t *testing.T) {
	tests := map[string]string{
		"html":        `<html><body>not a feed</body></html>`,
		"plain text":  "hello world",
		"empty":       "",
		"json object": `{"name":"not a feed"}`,
		"json array":  `[1,2,3]`,
		"null items":  `{"items":null}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			feed, err := Normalize(body, fetchURL)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if feed.Format != string(FormatUnknown) {
				t.Errorf("expected unknown format, got %q", feed.Format)
			}
			if feed.Entries == nil || len(feed.Entries) != 0 {
				t.Errorf("expected empty entry list, got %v", feed.Entries)
			}
			if feed.FeedURL != fetchURL {
				t.Errorf("expected feed url to be kept, got %q", feed.FeedURL)
			}
		})
	}
}

func TestNormalizeMalformedJSONFallsThroughToXML(t *testing.T) {
	body := `{ broken json
<rss version="2.0"><channel><item><guid>g</guid></item></channel></rss>`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("expected graceful handling, got %v", err)
	}
	if feed.Format == string(FormatJSON) {
		t.Fatalf("expected malformed json not to be treated as json feed")
	}
}

func TestNormalizeJSONFeedToleratesMistypedFields(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantGUIDs []string // "" means a derived hash is expected
		wantTitle string
	}{
		{
			name:      "numeric id",
			body:      `{"version":"https://jsonfeed.org/version/1","items":[{"id":1,"content_html":"<p>x</p>"},{"id":"2","title":"ok"}]}`,
			wantGUIDs: []string{"", "2"},
		},
		{
			name:      "string tags",
			body:      `{"items":[{"id":"1","tags":"x","title":"tagged"}]}`,
			wantGUIDs: []string{"1"},
		},
		{
			name:      "mistyped item fields",
			body:      `{"items":[{"id":"a","url":42,"title":["t"],"content_html":{"x":1},"date_published":7}]}`,
			wantGUIDs: []string{"a"},
		},
		{
			name:      "mistyped feed title",
			body:      `{"version":"https://jsonfeed.org/version/1.1","title":3,"items":[{"id":"a"}]}`,
			wantGUIDs: []string{"a"},
		},
		{
			name:      "non-object item",
			body:      `{"items":["just a string",null]}`,
			wantGUIDs: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, err := Normalize(tt.body, fetchURL)
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if feed.Format != string(FormatJSON) {
				t.Fatalf("expected json format, got %q", feed.Format)
			}
			if feed.Title != tt.wantTitle {
				t.Errorf("expected title %q, got %q", tt.wantTitle, feed.Title)
			}
			if len(feed.Entries) != len(tt.wantGUIDs) {
				t.Fatalf("expected %d entries, got %d", len(tt.wantGUIDs), len(feed.Entries))
			}
			for i, want := range tt.wantGUIDs {
				got := feed.Entries[i].GUID
				if want == "" {
					if len(got) != hashLength {
						t.Errorf("entry %d: expected derived guid, got %q", i, got)
					}
					continue
				}
				if got != want {
					t.Errorf("entry %d: expected guid %q, got %q", i, want, got)
				}
			}
		})
	}
}

func TestNormalizeJSONFeedDerivedGUIDIsStable(t *testing.T) {
	body := `{"items":[{"id":7,"title":"seven"}]}`
	reformatted := "{\"items\": [ {\"id\": 7,\n \"title\": \"seven\"} ]}"

	first, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	second, err := Normalize(reformatted, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if first.Entries[0].GUID != second.Entries[0].GUID {
		t.Errorf("whitespace changed the derived guid: %q vs %q", first.Entries[0].GUID, second.Entries[0].GUID)
	}
	if first.Entries[0].Title != "seven" {
		t.Errorf("expected other fields to be kept, got title %q", first.Entries[0].Title)
	}
}

func TestNormalizeRewritesTranscodedEncodingDeclaration(t *testing.T) {
	body := `<?xml version="1.0" encoding="ISO-8859-1"?>
<rss version="2.0"><channel><item><guid>g</guid><title>café</title></item></channel></rss>`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got := feed.Entries[0].Title; got != "café" {
		t.Errorf("expected title decoded once, got %q", got)
	}
}

func TestNormalizeStripsByteOrderMark(t *testing.T) {
	body := "\ufeff  " + `{"items":[{"id":"1"}]}`

	feed, err := Normalize(body, fetchURL)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if feed.Format != string(FormatJSON) || len(feed.Entries) != 1 {
		t.Errorf("expected one json entry, got format %q with %d entries", feed.Format, len(feed.Entries))
	}
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a/b?c=d#e": "https://example.com/",
		"http://example.com:8080/feed":  "http://example.com:8080/",
		"not a url":                     "not a url",
	}
	for input, want := range tests {
		if got := baseURL(input); got != want {
			t.Errorf("baseURL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://example.com/"
	tests := map[string]string{
		"":                        "",
		"/post":                   "https://example.com/post",
		"post?id=1":               "https://example.com/post?id=1",
		"https://other.org/x":     "https://other.org/x",
		"//cdn.example.com/asset": "https://cdn.example.com/asset",
	}
	for ref, want := range tests {
		if got := resolveURL(ref, base); got != want {
			t.Errorf("resolveURL(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestContentHashIgnoresGUID(t *testing.T) {
	rss := func(guid string) string {
		return `<rss version="2.0"><channel><item><guid>` + guid + `</guid><title>same</title></item></channel></rss>`
	}

	a, _ := Normalize(rss("one"), fetchURL)
	b, _ := Normalize(rss("two"), fetchURL)
	if a.Entries[0].ContentHash != b.Entries[0].ContentHash {
		t.Errorf("expected content hash to depend on content only")
	}

	c, _ := Normalize(strings.Replace(rss("one"), "same", "different", 1), fetchURL)
	if a.Entries[0].ContentHash == c.Entries[0].ContentHash {
		t.Errorf("expected content hash to change with title")
	}
}
