package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/STRATINT/feedpoller/internal/models"
)

const feedColumns = `
	id, feed_url, title, site_url, etag, last_modified,
	last_polled_at, last_changed_at, error_streak, next_poll_at, created_at
`

// FeedRepository implements ingestion.FeedStore using PostgreSQL.
type FeedRepository struct {
	db *sql.DB
}

// NewFeedRepository creates a new PostgreSQL feed repository.
func NewFeedRepository(db *sql.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// SelectDueFeeds returns up to limit feeds with next_poll_at <= now, oldest due first.
func (r *FeedRepository) SelectDueFeeds(ctx context.Context, now time.Time, limit int) ([]models.Feed, error) {
	query := `SELECT ` + feedColumns + `
		FROM feeds
		WHERE next_poll_at <= $1
		ORDER BY next_poll_at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due feeds: %w", err)
	}
	defer rows.Close()

	feeds := make([]models.Feed, 0, limit)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due feeds: %w", err)
	}

	return feeds, nil
}

// SelectFeedByID retrieves a feed by its ID, or nil if it does not exist.
func (r *FeedRepository) SelectFeedByID(ctx context.Context, id int64) (*models.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds WHERE id = $1`

	feed, err := scanFeed(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// InsertEntryIfAbsent inserts the entry unless (feed_id, guid) exists and
// reports whether a row was written.
func (r *FeedRepository) InsertEntryIfAbsent(ctx context.Context, entry models.Entry) (bool, error) {
	query := `
		INSERT INTO entries (feed_id, guid, url, title, html, text, published_at, updated_at, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (feed_id, guid) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.FeedID,
		entry.GUID,
		nullString(entry.URL),
		nullString(entry.Title),
		nullString(entry.HTML),
		nullString(entry.Text),
		nullTime(entry.PublishedAt),
		nullTime(entry.UpdatedAt),
		entry.ContentHash,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read inserted rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateFeedAfterNotModified records a 304 response.
func (r *FeedRepository) UpdateFeedAfterNotModified(ctx context.Context, id int64, polledAt, nextPollAt time.Time) error {
	query := `
		UPDATE feeds
		SET last_polled_at = $1, error_streak = 0, next_poll_at = $2
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, polledAt, nextPollAt, id); err != nil {
		return fmt.Errorf("failed to update feed after not modified: %w", err)
	}
	return nil
}

// UpdateFeedAfterSuccess records a fetched body. Validators are replaced
// (cleared when absent); title and site URL are kept when the feed omits them.
func (r *FeedRepository) UpdateFeedAfterSuccess(ctx context.Context, id int64, result models.FeedSuccess) error {
	query := `
		UPDATE feeds
		SET etag = $1,
		    last_modified = $2,
		    title = COALESCE($3, title),
		    site_url = COALESCE($4, site_url),
		    last_polled_at = $5,
		    last_changed_at = CASE WHEN $6 THEN $5 ELSE last_changed_at END,
		    error_streak = 0,
		    next_poll_at = $7
		WHERE id = $8
	`

	_, err := r.db.ExecContext(ctx, query,
		nullString(result.ETag),
		nullString(result.LastModified),
		nullString(result.Title),
		nullString(result.SiteURL),
		result.PolledAt,
		result.Changed,
		result.NextPollAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed after success: %w", err)
	}
	return nil
}

// UpdateFeedAfterError records a failed poll with the new error streak.
func (r *FeedRepository) UpdateFeedAfterError(ctx context.Context, id int64, streak int, polledAt, nextPollAt time.Time) error {
	query := `
		UPDATE feeds
		SET last_polled_at = $1, error_streak = $2, next_poll_at = $3
		WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, polledAt, streak, nextPollAt, id); err != nil {
		return fmt.Errorf("failed to update feed after error: %w", err)
	}
	return nil
}

// SeedFeeds inserts feed URLs that are not yet known, due immediately. It
// returns the number of feeds added.
func (r *FeedRepository) SeedFeeds(ctx context.Context, urls []string) (int, error) {
	query := `
		INSERT INTO feeds (feed_url) VALUES ($1)
		ON CONFLICT (feed_url) DO NOTHING
	`

	added := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		result, err := r.db.ExecContext(ctx, query, u)
		if err != nil {
			return added, fmt.Errorf("failed to seed feed %s: %w", u, err)
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}
	return added, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*models.Feed, error) {
	var (
		feed                               models.Feed
		title, siteURL, etag, lastModified sql.NullString
		lastPolledAt, lastChangedAt        sql.NullTime
	)

	err := row.Scan(
		&feed.ID,
		&feed.FeedURL,
		&title,
		&siteURL,
		&etag,
		&lastModified,
		&lastPolledAt,
		&lastChangedAt,
		&feed.ErrorStreak,
		&feed.NextPollAt,
		&feed.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed: %w", err)
	}

	feed.Title = title.String
	feed.SiteURL = siteURL.String
	feed.ETag = etag.String
	feed.LastModified = lastModified.String
	if lastPolledAt.Valid {
		t := lastPolledAt.Time.UTC()
		feed.LastPolledAt = &t
	}
	if lastChangedAt.Valid {
		t := lastChangedAt.Time.UTC()
		feed.LastChangedAt = &t
	}
	feed.NextPollAt = feed.NextPollAt.UTC()
	feed.CreatedAt = feed.CreatedAt.UTC()

	return &feed, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
