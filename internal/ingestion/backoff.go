package ingestion

import (
	"math"
	"time"
)

// SchedulePolicy decides when a feed is polled next.
type SchedulePolicy struct {
	// NotModifiedInterval applies after a 304 response.
	NotModifiedInterval time.Duration
	// ChangedInterval applies after a fetch that inserted at least one entry.
	ChangedInterval time.Duration
	// UnchangedInterval applies after a fetch that inserted nothing.
	UnchangedInterval time.Duration
	// Backoff applies after a failed attempt.
	Backoff BackoffPolicy
}

// BackoffPolicy defines the exponential delay applied to failing feeds.
type BackoffPolicy struct {
	Base          time.Duration
	Max           time.Duration
	BackoffFactor float64
}

// DefaultSchedulePolicy polls changed feeds every 10 minutes, quiet feeds
// hourly and backs failing feeds off up to a day.
func DefaultSchedulePolicy() SchedulePolicy {
	return SchedulePolicy{
		NotModifiedInterval: 10 * time.Minute,
		ChangedInterval:     10 * time.Minute,
		UnchangedInterval:   60 * time.Minute,
		Backoff:             DefaultBackoffPolicy(),
	}
}

// DefaultBackoffPolicy returns min(2^streak * 5, 1440) minutes.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:          5 * time.Minute,
		Max:           24 * time.Hour,
		BackoffFactor: 2.0,
	}
}

// AfterSuccess returns the poll interval following a successful fetch.
func (p SchedulePolicy) AfterSuccess(changed bool) time.Duration {
	if changed {
		return p.ChangedInterval
	}
	return p.UnchangedInterval
}

// Delay computes the backoff for a feed that has now failed streak times in a
// row. The result never exceeds Max.
func (b BackoffPolicy) Delay(streak int) time.Duration {
	if streak < 0 {
		streak = 0
	}

	// Base * factor^streak, computed in float to avoid integer overflow for
	// long streaks.
	backoff := float64(b.Base) * math.Pow(b.BackoffFactor, float64(streak))
	if math.IsInf(backoff, 0) || backoff > float64(b.Max) {
		return b.Max
	}
	return time.Duration(backoff)
}
