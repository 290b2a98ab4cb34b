// Package pacing holds the randomized delay policy used to space requests
// against the remote site. The policy owns its current bounds as explicit
// state; rate-limit responses widen them through OnRateLimited rather than
// through ad-hoc mutation inside the download loop.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy draws uniform random delays from [Min, Max].
type Policy struct {
	min time.Duration
	max time.Duration
}

// New returns a policy over the given bounds. A max below min is raised to
// min.
func New(min, max time.Duration) *Policy {
	if max < min {
		max = min
	}
	return &Policy{min: min, max: max}
}

// Bounds returns the current delay window.
func (p *Policy) Bounds() (time.Duration, time.Duration) {
	return p.min, p.max
}

// Delay draws a random delay from the current window.
func (p *Policy) Delay() time.Duration {
	if p.max == p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int64N(int64(p.max-p.min)))
}

// Sleep blocks for a drawn delay or until ctx is cancelled.
func (p *Policy) Sleep(ctx context.Context) error {
	t := time.NewTimer(p.Delay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Widening caps: the window never grows past these no matter how many 429s
// come back.
const (
	rateLimitedFloor = 5 * time.Second
	maxLowerBound    = 60 * time.Second
	maxUpperBound    = 180 * time.Second
)

// OnRateLimited widens the delay window after the remote signalled rate
// limiting, so subsequent requests back off without any retry loop keeping
// its own mutable delay state.
func (p *Policy) OnRateLimited() {
	lo := p.min
	if lo < rateLimitedFloor {
		lo = rateLimitedFloor
	}
	lo = time.Duration(float64(lo) * 1.5)
	if lo > maxLowerBound {
		lo = maxLowerBound
	}

	hi := p.max
	if hi < lo+time.Second {
		hi = lo + time.Second
	}
	hi = time.Duration(float64(hi) * 1.5)
	if hi > maxUpperBound {
		hi = maxUpperBound
	}

	p.min, p.max = lo, hi
}
