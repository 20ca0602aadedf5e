package ingestion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/STRATINT/feedpoller/internal/models"
)

// FeedStore defines the storage operations used by the poller.
type FeedStore interface {
	// SelectDueFeeds returns up to limit feeds with next_poll_at <= now,
	// oldest due first.
	SelectDueFeeds(ctx context.Context, now time.Time, limit int) ([]models.Feed, error)

	// SelectFeedByID returns the feed, or nil if it does not exist.
	SelectFeedByID(ctx context.Context, id int64) (*models.Feed, error)

	// InsertEntryIfAbsent stores the entry unless (feed_id, guid) already
	// exists. It reports whether a row was inserted.
	InsertEntryIfAbsent(ctx context.Context, entry models.Entry) (bool, error)

	// UpdateFeedAfterNotModified records a 304 response.
	UpdateFeedAfterNotModified(ctx context.Context, id int64, polledAt, nextPollAt time.Time) error

	// UpdateFeedAfterSuccess records a fetched and ingested body.
	UpdateFeedAfterSuccess(ctx context.Context, id int64, result models.FeedSuccess) error

	// UpdateFeedAfterError records a failed attempt with the new error streak.
	UpdateFeedAfterError(ctx context.Context, id int64, streak int, polledAt, nextPollAt time.Time) error
}

type entryKey struct {
	feedID int64
	guid   string
}

// MemoryFeedStore implements FeedStore in memory for testing/development.
type MemoryFeedStore struct {
	mu       sync.RWMutex
	nextID   int64
	feeds    map[int64]models.Feed
	urlIdx   map[string]int64 // feed URL -> ID mapping
	entries  map[entryKey]models.Entry
	entrySeq int64
}

// NewMemoryFeedStore creates an empty in-memory store.
func NewMemoryFeedStore() *MemoryFeedStore {
	return &MemoryFeedStore{
		feeds:   make(map[int64]models.Feed),
		urlIdx:  make(map[string]int64),
		entries: make(map[entryKey]models.Entry),
	}
}

// AddFeed registers feedURL as due at nextPollAt and returns its id. Adding
// an existing URL returns the existing id unchanged.
func (s *MemoryFeedStore) AddFeed(feedURL string, nextPollAt time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.urlIdx[feedURL]; ok {
		return id
	}

	s.nextID++
	id := s.nextID
	s.feeds[id] = models.Feed{
		ID:         id,
		FeedURL:    feedURL,
		NextPollAt: nextPollAt,
		CreatedAt:  nextPollAt,
	}
	s.urlIdx[feedURL] = id
	return id
}

// DeleteFeed removes a feed and its entries.
func (s *MemoryFeedStore) DeleteFeed(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if feed, ok := s.feeds[id]; ok {
		delete(s.urlIdx, feed.FeedURL)
	}
	delete(s.feeds, id)
	for key := range s.entries {
		if key.feedID == id {
			delete(s.entries, key)
		}
	}
}

// Feed returns a copy of the stored feed.
func (s *MemoryFeedStore) Feed(id int64) (models.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[id]
	return feed, ok
}

// Entries returns the stored entries of a feed ordered by insertion.
func (s *MemoryFeedStore) Entries(feedID int64) []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Entry, 0)
	for key, entry := range s.entries {
		if key.feedID == feedID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryFeedStore) SelectDueFeeds(ctx context.Context, now time.Time, limit int) ([]models.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]models.Feed, 0)
	for _, feed := range s.feeds {
		if feed.IsDue(now) {
			due = append(due, feed)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].NextPollAt.Equal(due[j].NextPollAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextPollAt.Before(due[j].NextPollAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryFeedStore) SelectFeedByID(ctx context.Context, id int64) (*models.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed, ok := s.feeds[id]
	if !ok {
		return nil, nil
	}
	return &feed, nil
}

func (s *MemoryFeedStore) InsertEntryIfAbsent(ctx context.Context, entry models.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.feeds[entry.FeedID]; !ok {
		return false, fmt.Errorf("insert entry: feed %d does not exist", entry.FeedID)
	}

	key := entryKey{feedID: entry.FeedID, guid: entry.GUID}
	if _, exists := s.entries[key]; exists {
		return false, nil
	}

	s.entrySeq++
	entry.ID = s.entrySeq
	s.entries[key] = entry
	return true, nil
}

func (s *MemoryFeedStore) UpdateFeedAfterNotModified(ctx context.Context, id int64, polledAt, nextPollAt time.Time) error {
	return s.update(id, func(feed *models.Feed) {
		feed.LastPolledAt = &polledAt
		feed.ErrorStreak = 0
		feed.NextPollAt = nextPollAt
	})
}

func (s *MemoryFeedStore) UpdateFeedAfterSuccess(ctx context.Context, id int64, result models.FeedSuccess) error {
	return s.update(id, func(feed *models.Feed) {
		polledAt := result.PolledAt
		feed.ETag = result.ETag
		feed.LastModified = result.LastModified
		if result.Title != "" {
			feed.Title = result.Title
		}
		if result.SiteURL != "" {
			feed.SiteURL = result.SiteURL
		}
		feed.LastPolledAt = &polledAt
		if result.Changed {
			feed.LastChangedAt = &polledAt
		}
		feed.ErrorStreak = 0
		feed.NextPollAt = result.NextPollAt
	})
}

func (s *MemoryFeedStore) UpdateFeedAfterError(ctx context.Context, id int64, streak int, polledAt, nextPollAt time.Time) error {
	return s.update(id, func(feed *models.Feed) {
		feed.LastPolledAt = &polledAt
		feed.ErrorStreak = streak
		feed.NextPollAt = nextPollAt
	})
}

// update applies fn to a stored feed. Updating a missing feed is a no-op,
// matching an UPDATE that matches no rows.
func (s *MemoryFeedStore) update(id int64, fn func(feed *models.Feed)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feed, ok := s.feeds[id]
	if !ok {
		return nil
	}
	fn(&feed)
	s.feeds[id] = feed
	return nil
}
