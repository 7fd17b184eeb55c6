package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer enforces a fixed pause between consecutive operations, optionally
// randomized by a jitter factor. It is safe for concurrent use.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	sleeper  Sleeper
	rng      *rand.Rand
}

// NewPacer creates a pacer pausing interval ± jitter*interval on every Wait.
// A nil sleeper uses real timers. If interval is <= 0, Wait does not block.
func NewPacer(interval time.Duration, jitter float64, sleeper Sleeper) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	if sleeper == nil {
		sleeper = timerSleeper{}
	}
	seed := uint64(time.Now().UnixNano())
	return &Pacer{
		interval: interval,
		jitter:   jitter,
		sleeper:  sleeper,
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Next returns the duration the next Wait will pause for.
func (p *Pacer) Next() time.Duration {
	if p.interval <= 0 {
		return 0
	}
	if p.jitter == 0 {
		return p.interval
	}
	p.mu.Lock()
	factor := (p.rng.Float64() * 2) - 1.0 // -1.0 to 1.0
	p.mu.Unlock()
	return p.interval + time.Duration(float64(p.interval)*p.jitter*factor)
}

// Wait pauses for the next interval, or until the context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Next()
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleeper.Sleep(ctx, d)
}
