package models

import (
	"time"
)

// Feed is a polled syndication source and its polling state.
type Feed struct {
	ID            int64      `json:"id"`
	FeedURL       string     `json:"feed_url"`
	Title         string     `json:"title,omitempty"`
	SiteURL       string     `json:"site_url,omitempty"`
	ETag          string     `json:"etag,omitempty"`          // Opaque validator from the last 2xx response
	LastModified  string     `json:"last_modified,omitempty"` // Opaque validator from the last 2xx response
	LastPolledAt  *time.Time `json:"last_polled_at,omitempty"`
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"` // Last poll that inserted at least one entry
	ErrorStreak   int        `json:"error_streak"`              // Consecutive failed polls
	NextPollAt    time.Time  `json:"next_poll_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsDue reports whether the feed is eligible for polling at now.
func (f *Feed) IsDue(now time.Time) bool {
	return !f.NextPollAt.After(now)
}

// Host returns the hostname of the feed URL, or "" if it cannot be parsed.
func (f *Feed) Host() string {
	return HostOf(f.FeedURL)
}

// FeedSuccess carries the feed columns written after a successful 2xx poll.
type FeedSuccess struct {
	ETag         string
	LastModified string
	Title        string
	SiteURL      string
	Changed      bool
	PolledAt     time.Time
	NextPollAt   time.Time
}
