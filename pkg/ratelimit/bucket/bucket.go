package bucket

import (
	"context"
	"math"
	"time"
)

// Allow reports whether an event may happen now.
func (b *Bucket) Allow() bool {
	return b.AllowN(1)
}

// AllowN reports whether n events may happen now.
func (b *Bucket) AllowN(n int) bool {
	return b.reserve(b.now(), n, 0).ok
}

// Wait blocks until an event can happen.
func (b *Bucket) Wait(ctx context.Context) error {
	return b.WaitN(ctx, 1)
}

// WaitN blocks until n events can happen or ctx ends. Tokens claimed by a
// wait that ends early are returned to the bucket.
func (b *Bucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := b.now()
	r := b.reserve(now, n, math.MaxInt64)
	if !r.ok {
		return context.DeadlineExceeded
	}

	delay := r.delayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		b.cancel(r)
		return ctx.Err()
	}
}

// SetLimit changes the rate. Tokens accrued so far are kept; a wait
// already in progress keeps its original deadline.
func (b *Bucket) SetLimit(limit Limit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	b.limit = limit
}

// Limit returns the current rate.
func (b *Bucket) Limit() Limit {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// Burst returns the bucket capacity.
func (b *Bucket) Burst() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.burst
}

// Tokens returns the number of tokens available now. It is negative while
// waits are queued.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	return b.tokens
}

// reserve claims n tokens at now if they are available within maxWait.
func (b *Bucket) reserve(now time.Time, n int, maxWait time.Duration) reservation {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || b.limit == Inf {
		return reservation{ok: true, timeToAct: now, tokens: max(n, 0)}
	}

	b.advance(now)
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return reservation{ok: true, timeToAct: now, tokens: n}
	}
	if b.limit == 0 {
		return reservation{tokens: n}
	}

	missing := float64(n) - b.tokens
	wait := time.Duration(float64(time.Second) * missing / float64(b.limit))
	if wait > maxWait {
		return reservation{tokens: n}
	}

	// Tokens go negative; later callers queue behind this one.
	b.tokens -= float64(n)
	return reservation{ok: true, timeToAct: now.Add(wait), tokens: n}
}

// advance refills the bucket for the time elapsed since the last update.
func (b *Bucket) advance(now time.Time) {
	if b.limit == Inf {
		b.tokens = float64(b.burst)
		b.lastUpdate = now
		return
	}
	if b.limit == 0 {
		b.lastUpdate = now
		return
	}

	elapsed := now.Sub(b.lastUpdate)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.tokens+elapsed.Seconds()*float64(b.limit), float64(b.burst))
	b.lastUpdate = now
}

func (b *Bucket) cancel(r reservation) {
	if !r.ok || r.tokens == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	b.tokens = math.Min(b.tokens+float64(r.tokens), float64(b.burst))
}
