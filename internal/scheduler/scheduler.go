// Package scheduler selects due feeds and dispatches ingestion in bounded
// batches.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/STRATINT/feedpoller/internal/ingestion"
	"github.com/STRATINT/feedpoller/internal/models"
)

const (
	DefaultBatchSize    = 20
	DefaultIdleInterval = 2 * time.Second
)

// DueSelector returns feeds eligible for polling.
type DueSelector interface {
	SelectDueFeeds(ctx context.Context, now time.Time, limit int) ([]models.Feed, error)
}

// Ingester runs one ingestion cycle for a feed.
type Ingester interface {
	IngestOnce(ctx context.Context, feedID int64) ingestion.Outcome
}

// BatchRecorder receives per-batch observations.
type BatchRecorder interface {
	ObserveBatch(size int, duration time.Duration)
}

type nopBatchRecorder struct{}

func (nopBatchRecorder) ObserveBatch(int, time.Duration) {}

// Config controls batch size and the wait between empty selections.
type Config struct {
	BatchSize    int
	IdleInterval time.Duration
}

// PollScheduler repeatedly selects due feeds and ingests them concurrently,
// waiting for each batch to finish before selecting the next.
type PollScheduler struct {
	selector DueSelector
	ingester Ingester
	clock    clockwork.Clock
	recorder BatchRecorder
	logger   *slog.Logger
	config   Config

	mu       sync.Mutex
	nextWake time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a poll scheduler. A nil clock uses the system clock and a nil
// recorder discards batch observations.
func New(selector DueSelector, ingester Ingester, clk clockwork.Clock, recorder BatchRecorder, logger *slog.Logger, config Config) *PollScheduler {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultIdleInterval
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if recorder == nil {
		recorder = nopBatchRecorder{}
	}

	return &PollScheduler{
		selector: selector,
		ingester: ingester,
		clock:    clk,
		recorder: recorder,
		logger:   logger,
		config:   config,
		nextWake: clk.Now(),
		stopChan: make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called. It returns an error
// only when due feeds cannot be selected, which is fatal to the process.
func (s *PollScheduler) Run(ctx context.Context) error {
	s.logger.Info("starting poll scheduler",
		"batch_size", s.config.BatchSize,
		"idle_interval", s.config.IdleInterval,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poll scheduler stopping due to context cancellation")
			return nil
		case <-s.stopChan:
			s.logger.Info("poll scheduler stopped")
			return nil
		default:
		}

		n, err := s.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n > 0 {
			continue
		}

		select {
		case <-s.clock.After(s.config.IdleInterval):
		case <-s.stopChan:
			s.logger.Info("poll scheduler stopped")
			return nil
		case <-ctx.Done():
			s.logger.Info("poll scheduler stopping due to context cancellation")
			return nil
		}
	}
}

// Stop ends Run after the current batch.
func (s *PollScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// DueBatch selects up to BatchSize feeds due at the current time.
func (s *PollScheduler) DueBatch(ctx context.Context) ([]models.Feed, error) {
	feeds, err := s.selector.SelectDueFeeds(ctx, s.clock.Now(), s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select due feeds: %w", err)
	}
	return feeds, nil
}

// RunOnce ingests one batch of due feeds and returns its size.
func (s *PollScheduler) RunOnce(ctx context.Context) (int, error) {
	feeds, err := s.DueBatch(ctx)
	if err != nil {
		return 0, err
	}

	start := s.clock.Now()
	if len(feeds) == 0 {
		s.setNextWake(start.Add(s.config.IdleInterval))
		return 0, nil
	}

	batchID := uuid.New().String()
	logger := s.logger.With("batch_id", batchID)
	logger.Debug("dispatching batch", "feeds", len(feeds))

	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("ingestion panic",
						"feed_id", id,
						"panic", fmt.Sprintf("%v", r),
						"stack", string(debug.Stack()),
					)
				}
			}()
			s.ingester.IngestOnce(ctx, id)
		}(feed.ID)
	}
	wg.Wait()

	end := s.clock.Now()
	s.recorder.ObserveBatch(len(feeds), end.Sub(start))
	s.setNextWake(end)
	logger.Debug("batch complete", "feeds", len(feeds))

	return len(feeds), nil
}

// NextWakeTime reports when the scheduler next selects due feeds: now after
// a non-empty batch, or one idle interval after an empty selection.
func (s *PollScheduler) NextWakeTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextWake
}

func (s *PollScheduler) setNextWake(t time.Time) {
	s.mu.Lock()
	s.nextWake = t
	s.mu.Unlock()
}
