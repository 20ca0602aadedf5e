package fetch

import (
	"context"
	"sync"
)

// DefaultMaxPerHost is the per-host concurrency cap used when none is configured.
const DefaultMaxPerHost = 3

// UnknownHost is the limiter key used for URLs without a parsable hostname.
const UnknownHost = "unknown"

// Limiter bounds the number of concurrently running operations per hostname.
// Waiters for a host are served in FIFO order; a finishing operation hands its
// slot directly to the head of the queue instead of releasing it.
type Limiter struct {
	maxPerHost int

	mu    sync.Mutex
	hosts map[string]*hostSlots
}

type hostSlots struct {
	active int
	queue  []chan struct{}
}

// NewLimiter creates a limiter allowing maxPerHost concurrent operations per host.
func NewLimiter(maxPerHost int) *Limiter {
	if maxPerHost < 1 {
		maxPerHost = DefaultMaxPerHost
	}
	return &Limiter{
		maxPerHost: maxPerHost,
		hosts:      make(map[string]*hostSlots),
	}
}

// MaxPerHost returns the configured per-host cap.
func (l *Limiter) MaxPerHost() int {
	return l.maxPerHost
}

// Do runs fn once a slot for host is available and returns its error unchanged.
// If ctx ends while waiting, Do returns ctx.Err() without running fn.
func (l *Limiter) Do(ctx context.Context, host string, fn func(ctx context.Context) error) error {
	if host == "" {
		host = UnknownHost
	}
	if err := l.acquire(ctx, host); err != nil {
		return err
	}
	defer l.release(host)

	return fn(ctx)
}

func (l *Limiter) acquire(ctx context.Context, host string) error {
	l.mu.Lock()
	slots, ok := l.hosts[host]
	if !ok {
		slots = &hostSlots{}
		l.hosts[host] = slots
	}
	if slots.active < l.maxPerHost {
		slots.active++
		l.mu.Unlock()
		return nil
	}

	wake := make(chan struct{})
	slots.queue = append(slots.queue, wake)
	l.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	for i, w := range slots.queue {
		if w == wake {
			slots.queue = append(slots.queue[:i], slots.queue[i+1:]...)
			l.mu.Unlock()
			return ctx.Err()
		}
	}
	l.mu.Unlock()

	// The slot was handed over while ctx was ending; pass it on.
	l.release(host)
	return ctx.Err()
}

func (l *Limiter) release(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slots, ok := l.hosts[host]
	if !ok {
		return
	}

	if len(slots.queue) > 0 {
		next := slots.queue[0]
		slots.queue[0] = nil
		slots.queue = slots.queue[1:]
		close(next)
		return
	}

	slots.active--
	if slots.active <= 0 {
		delete(l.hosts, host)
	}
}

// InFlight returns the number of operations currently holding a slot for host.
func (l *Limiter) InFlight(host string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slots, ok := l.hosts[host]; ok {
		return slots.active
	}
	return 0
}

// Waiting returns the number of callers queued for host.
func (l *Limiter) Waiting(host string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slots, ok := l.hosts[host]; ok {
		return len(slots.queue)
	}
	return 0
}

// TrackedHosts returns the number of hosts with active or waiting operations.
func (l *Limiter) TrackedHosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}
