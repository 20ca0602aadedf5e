package models

import (
	"net/url"
	"time"
)

// Entry is one syndicated item belonging to a feed. (FeedID, GUID) is unique
// and entries are never updated once stored.
type Entry struct {
	ID          int64      `json:"id,omitempty"`
	FeedID      int64      `json:"feed_id"`
	GUID        string     `json:"guid"`
	URL         string     `json:"url,omitempty"`
	Title       string     `json:"title,omitempty"`
	HTML        string     `json:"html,omitempty"`
	Text        string     `json:"text,omitempty"` // Only set when HTML is empty
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ContentHash string     `json:"content_hash"` // SHA-256 prefix over url, title, content and published date
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

// NormalizedEntry is an entry produced by the normalizer before it is bound
// to a stored feed.
type NormalizedEntry struct {
	GUID        string
	URL         string
	Title       string
	HTML        string
	Text        string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
	ContentHash string
}

// ForFeed binds the normalized entry to a feed id.
func (e NormalizedEntry) ForFeed(feedID int64) Entry {
	return Entry{
		FeedID:      feedID,
		GUID:        e.GUID,
		URL:         e.URL,
		Title:       e.Title,
		HTML:        e.HTML,
		Text:        e.Text,
		PublishedAt: e.PublishedAt,
		UpdatedAt:   e.UpdatedAt,
		ContentHash: e.ContentHash,
	}
}

// NormalizedFeed is the canonical shape of a parsed RSS, Atom or JSON Feed document.
type NormalizedFeed struct {
	Format  string // "rss", "atom", "json" or "unknown"
	Title   string
	SiteURL string
	FeedURL string
	Entries []NormalizedEntry
}

// HostOf returns the hostname portion of rawURL, or "" when it does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
