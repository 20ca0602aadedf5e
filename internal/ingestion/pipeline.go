package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/STRATINT/feedpoller/internal/fetch"
	"github.com/STRATINT/feedpoller/internal/models"
	"github.com/STRATINT/feedpoller/internal/normalize"
)

// Outcome describes how one ingestion attempt ended.
type Outcome string

const (
	OutcomeNotModified Outcome = "not_modified"
	OutcomeChanged     Outcome = "changed"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeFailed      Outcome = "failed"
	OutcomeMissing     Outcome = "missing"   // feed row no longer exists
	OutcomeAbandoned   Outcome = "abandoned" // feed row could not be loaded
	OutcomeCanceled    Outcome = "canceled"  // caller context ended mid-attempt
)

// Fetcher performs one conditional GET.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, opts fetch.Options) (*fetch.Result, error)
}

// Recorder receives per-attempt observations.
type Recorder interface {
	ObservePoll(outcome, errorKind string, duration time.Duration)
	AddEntriesInserted(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObservePoll(string, string, time.Duration) {}
func (nopRecorder) AddEntriesInserted(int)                    {}

// PipelineConfig holds configuration for the ingestion pipeline.
type PipelineConfig struct {
	FetchTimeout   time.Duration
	StorageTimeout time.Duration // Per storage call; zero disables the deadline
	Schedule       SchedulePolicy
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		FetchTimeout:   fetch.DefaultTimeout,
		StorageTimeout: 30 * time.Second,
		Schedule:       DefaultSchedulePolicy(),
	}
}

// Pipeline drives fetch, normalize and store for one feed at a time. It is
// safe for concurrent use by multiple goroutines.
type Pipeline struct {
	store    FeedStore
	fetcher  Fetcher
	limiter  *fetch.Limiter
	clock    clockwork.Clock
	recorder Recorder
	logger   *slog.Logger
	config   PipelineConfig
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for poll timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	store FeedStore,
	fetcher Fetcher,
	limiter *fetch.Limiter,
	logger *slog.Logger,
	config PipelineConfig,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:    store,
		fetcher:  fetcher,
		limiter:  limiter,
		clock:    clockwork.NewRealClock(),
		recorder: nopRecorder{},
		logger:   logger,
		config:   config,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestOnce runs one fetch-parse-store cycle for feedID. Every failure is
// converted into feed state; nothing is returned to the caller but the
// outcome.
func (p *Pipeline) IngestOnce(ctx context.Context, feedID int64) Outcome {
	start := p.clock.Now()
	logger := p.logger.With("feed_id", feedID)

	outcome, kind := p.ingest(ctx, logger, feedID)
	p.recorder.ObservePoll(string(outcome), kind, p.clock.Now().Sub(start))
	return outcome
}

func (p *Pipeline) ingest(ctx context.Context, logger *slog.Logger, feedID int64) (Outcome, string) {
	var feed *models.Feed
	err := p.withStorage(ctx, func(ctx context.Context) error {
		var err error
		feed, err = p.store.SelectFeedByID(ctx, feedID)
		return storageErr("select feed", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled, KindCanceled
		}
		logger.Error("failed to load feed", "error", err)
		return OutcomeAbandoned, Classify(err)
	}
	if feed == nil {
		logger.Debug("feed no longer exists")
		return OutcomeMissing, ""
	}

	logger = logger.With("url", feed.FeedURL)

	outcome, err := p.safePoll(ctx, logger, feed)
	if err == nil {
		return outcome, ""
	}

	// Shutdown is not a feed failure; the feed stays due and is picked up
	// on the next start.
	if ctx.Err() != nil {
		logger.Info("ingestion interrupted", "error", err)
		return OutcomeCanceled, KindCanceled
	}

	kind := Classify(err)
	p.recordFailure(ctx, logger, feed, err, kind)
	return OutcomeFailed, kind
}

// safePoll runs poll and turns a panic into an error so the feed is backed
// off like any other failure.
func (p *Pipeline) safePoll(ctx context.Context, logger *slog.Logger, feed *models.Feed) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while polling feed",
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			outcome = ""
			err = fmt.Errorf("panic while polling feed: %v", r)
		}
	}()
	return p.poll(ctx, logger, feed)
}

func (p *Pipeline) poll(ctx context.Context, logger *slog.Logger, feed *models.Feed) (Outcome, error) {
	var res *fetch.Result
	err := p.limiter.Do(ctx, feed.Host(), func(ctx context.Context) error {
		var err error
		res, err = p.fetcher.Fetch(ctx, feed.FeedURL, fetch.Options{
			ETag:         feed.ETag,
			LastModified: feed.LastModified,
			Timeout:      p.config.FetchTimeout,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	if res.NotModified {
		now := p.clock.Now()
		next := now.Add(p.config.Schedule.NotModifiedInterval)
		err := p.withStorage(ctx, func(ctx context.Context) error {
			return storageErr("update not modified", p.store.UpdateFeedAfterNotModified(ctx, feed.ID, now, next))
		})
		if err != nil {
			return "", err
		}
		logger.Debug("feed not modified", "next_poll_at", next)
		return OutcomeNotModified, nil
	}

	parsed, err := normalize.Normalize(res.Body, res.FinalURL)
	if err != nil {
		return "", err
	}

	inserted := 0
	for _, entry := range parsed.Entries {
		var ok bool
		err := p.withStorage(ctx, func(ctx context.Context) error {
			var err error
			ok, err = p.store.InsertEntryIfAbsent(ctx, entry.ForFeed(feed.ID))
			return storageErr("insert entry", err)
		})
		if err != nil {
			p.recorder.AddEntriesInserted(inserted)
			return "", err
		}
		if ok {
			inserted++
		}
	}
	p.recorder.AddEntriesInserted(inserted)

	changed := inserted > 0
	now := p.clock.Now()
	success := models.FeedSuccess{
		ETag:         res.ETag,
		LastModified: res.LastModified,
		Title:        parsed.Title,
		SiteURL:      parsed.SiteURL,
		Changed:      changed,
		PolledAt:     now,
		NextPollAt:   now.Add(p.config.Schedule.AfterSuccess(changed)),
	}
	err = p.withStorage(ctx, func(ctx context.Context) error {
		return storageErr("update success", p.store.UpdateFeedAfterSuccess(ctx, feed.ID, success))
	})
	if err != nil {
		return "", err
	}

	logger.Info("feed ingested",
		"format", parsed.Format,
		"entries", len(parsed.Entries),
		"inserted", inserted,
		"next_poll_at", success.NextPollAt,
	)

	if changed {
		return OutcomeChanged, nil
	}
	return OutcomeUnchanged, nil
}

func (p *Pipeline) recordFailure(ctx context.Context, logger *slog.Logger, feed *models.Feed, cause error, kind string) {
	streak := feed.ErrorStreak + 1
	now := p.clock.Now()
	next := now.Add(p.config.Schedule.Backoff.Delay(streak))

	logger.Warn("feed poll failed",
		"error", cause,
		"error_kind", kind,
		"error_streak", streak,
		"next_poll_at", next,
	)

	err := p.withStorage(ctx, func(ctx context.Context) error {
		return p.store.UpdateFeedAfterError(ctx, feed.ID, streak, now, next)
	})
	if err != nil {
		logger.Error("failed to record poll failure", "error", err)
	}
}

// withStorage runs fn under the configured storage timeout.
func (p *Pipeline) withStorage(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.config.StorageTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.StorageTimeout)
	defer cancel()
	return fn(ctx)
}
