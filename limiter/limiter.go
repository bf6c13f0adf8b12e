// Package limiter serializes outbound requests per host. Every API call in
// the pipeline goes through Acquire() for its host key, which guarantees
// that no two requests to the same host are ever granted closer together
// than that host's configured interval - regardless of how many workers are
// calling in. Grants are delayed, never dropped.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type ILimiter interface {
	// Register sets the minimum spacing between grants for hostKey.
	Register(hostKey string, interval time.Duration)

	// Acquire blocks until at least the registered interval has elapsed
	// since the last grant for hostKey. Unregistered keys pass through
	// immediately. Returns an error only if ctx is cancelled mid-wait.
	Acquire(ctx context.Context, hostKey string) error
}

type Limiter struct {
	hosts   map[string]*hostState
	hostsMu sync.Mutex
}

// hostState is a single-slot token bucket: the host mutex is held for the
// entire wait so concurrent callers queue up and grants stay spaced.
type hostState struct {
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
}

func New() *Limiter {
	return &Limiter{
		hosts: make(map[string]*hostState),
	}
}

func (l *Limiter) Register(hostKey string, interval time.Duration) {
	l.hostsMu.Lock()
	defer l.hostsMu.Unlock()

	l.hosts[hostKey] = &hostState{interval: interval}
}

func (l *Limiter) Acquire(ctx context.Context, hostKey string) error {
	l.hostsMu.Lock()
	hs, ok := l.hosts[hostKey]
	l.hostsMu.Unlock()

	if !ok {
		return nil
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()

	if !hs.last.IsZero() {
		wait := hs.interval - time.Since(hs.last)
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "acquire aborted")
			case <-timer.C:
			}
		}
	}

	hs.last = time.Now()

	return nil
}
