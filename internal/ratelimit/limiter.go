// Package ratelimit provides a sliding-window call gate shared by every
// outbound request made to a single upstream API.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	// DefaultMaxCalls is the number of calls admitted per window
	DefaultMaxCalls = 3

	// DefaultWindow is the length of the rolling window
	DefaultWindow = 10 * time.Second

	// DefaultBuffer is added to every computed wait so the oldest call has
	// fully left the window by the time the waiter re-checks
	DefaultBuffer = 100 * time.Millisecond
)

// Limiter gates outbound calls to an upstream API
type Limiter interface {
	// Acquire blocks until a call may be made, records it and returns a
	// reservation for it. The wait honours ctx cancellation.
	Acquire(ctx context.Context) (*Reservation, error)
}

// Config holds the limiter parameters
type Config struct {
	MaxCalls int
	Window   time.Duration
	Buffer   time.Duration
}

// DefaultConfig returns the 3 calls per 10s configuration
func DefaultConfig() Config {
	return Config{
		MaxCalls: DefaultMaxCalls,
		Window:   DefaultWindow,
		Buffer:   DefaultBuffer,
	}
}

type call struct {
	id uint64
	at time.Time
}

// SlidingWindow admits at most MaxCalls calls in any rolling Window.
// Timestamps older than the window are pruned lazily on Acquire.
type SlidingWindow struct {
	mu     sync.Mutex
	cfg    Config
	clock  clock.Clock
	calls  []call
	nextID uint64

	onWait func(time.Duration)
}

// Option configures a SlidingWindow
type Option func(*SlidingWindow)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clock.Clock) Option {
	return func(l *SlidingWindow) {
		l.clock = c
	}
}

// WithWaitObserver registers a callback invoked with the total time a caller
// spent blocked in Acquire. It is only called when the caller had to wait.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *SlidingWindow) {
		l.onWait = fn
	}
}

// New creates a sliding-window limiter. Zero values in cfg fall back to the defaults.
func New(cfg Config, opts ...Option) (*SlidingWindow, error) {
	if cfg.MaxCalls == 0 {
		cfg.MaxCalls = DefaultMaxCalls
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxCalls < 0 {
		return nil, fmt.Errorf("maxCalls must be positive, got %d", cfg.MaxCalls)
	}
	if cfg.Window < 0 || cfg.Buffer < 0 {
		return nil, fmt.Errorf("window and buffer must not be negative")
	}

	l := &SlidingWindow{
		cfg:   cfg,
		clock: clock.RealClock{},
		calls: make([]call, 0, cfg.MaxCalls),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Acquire implements Limiter
func (l *SlidingWindow) Acquire(ctx context.Context) (*Reservation, error) {
	start := l.clock.Now()
	waited := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wait, res := l.tryAdmit()
		if res != nil {
			if waited && l.onWait != nil {
				l.onWait(l.clock.Since(start))
			}
			return res, nil
		}

		waited = true
		timer := l.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}
	}
}

// tryAdmit records a call if the window has room, otherwise it returns how
// long the caller must wait before retrying.
func (l *SlidingWindow) tryAdmit() (time.Duration, *Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	if len(l.calls) < l.cfg.MaxCalls {
		l.nextID++
		l.calls = append(l.calls, call{id: l.nextID, at: now})
		return 0, &Reservation{limiter: l, id: l.nextID}
	}

	oldest := l.calls[0].at
	return l.cfg.Window - now.Sub(oldest) + l.cfg.Buffer, nil
}

// prune drops calls that have left the window. Must be called with mu held.
func (l *SlidingWindow) prune(now time.Time) {
	keep := 0
	for _, c := range l.calls {
		if now.Sub(c.at) < l.cfg.Window {
			l.calls[keep] = c
			keep++
		}
	}
	l.calls = l.calls[:keep]
}

func (l *SlidingWindow) release(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.calls {
		if c.id == id {
			l.calls = append(l.calls[:i], l.calls[i+1:]...)
			return
		}
	}
}

// InFlight returns the number of calls currently counted against the window
func (l *SlidingWindow) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.clock.Now())
	return len(l.calls)
}

// Reservation is a call admitted by the limiter
type Reservation struct {
	limiter *SlidingWindow
	id      uint64
	once    sync.Once
}

// Cancel gives the slot back. Used when the call failed before it left the
// process, so it never reached the upstream. Safe to call on a nil reservation
// and more than once.
func (r *Reservation) Cancel() {
	if r == nil || r.limiter == nil {
		return
	}
	r.once.Do(func() {
		r.limiter.release(r.id)
	})
}
