// Package bucket implements the token bucket that paces the host's tick
// loop. Its rate can be changed while a loop is waiting on it.
package bucket

import (
	"math"
	"sync"
	"time"

	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
	"github.com/vnykmshr/tickflow/pkg/common/validation"
)

// Limit is a rate in events per second. A zero Limit allows only the
// tokens already in the bucket. Use Inf for no limit.
type Limit float64

// Inf is the infinite rate limit; it allows all events.
var Inf = Limit(math.Inf(1))

// Every converts a minimum time interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Interval returns the spacing between events at l. It is zero for Inf
// and for a zero Limit, which never refills.
func (l Limit) Interval() time.Duration {
	if l <= 0 || math.IsInf(float64(l), 1) {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l))
}

// Config holds the parameters of a Bucket.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Burst is the maximum number of tokens the bucket holds. Required.
	Burst int

	// InitialTokens is the number of tokens to start with. Negative means
	// a full bucket.
	InitialTokens int

	// Clock defaults to time.Now. Wait sleeps on real timers, so a
	// manual clock is only useful with Allow and Tokens.
	Clock func() time.Time
}

// Bucket is a token bucket rate limiter. It is safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
}

// New creates a Bucket from cfg.
func New(cfg Config) (*Bucket, error) {
	if cfg.Rate < 0 {
		return nil, tferrors.NewValidationError("bucket", "Rate", cfg.Rate, "rate cannot be negative").
			WithHint("use 0 for a bucket that never refills or Inf for no limit")
	}
	if err := validation.ValidatePositive("bucket", "Burst", cfg.Burst); err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	tokens := float64(cfg.InitialTokens)
	if cfg.InitialTokens < 0 || cfg.InitialTokens > cfg.Burst {
		tokens = float64(cfg.Burst)
	}

	return &Bucket{
		limit:      cfg.Rate,
		burst:      cfg.Burst,
		tokens:     tokens,
		lastUpdate: now(),
		now:        now,
	}, nil
}

// reservation is a claim on tokens that become usable at timeToAct.
type reservation struct {
	ok        bool
	timeToAct time.Time
	tokens    int
}

func (r reservation) delayFrom(now time.Time) time.Duration {
	if !r.ok {
		return 0
	}
	if d := r.timeToAct.Sub(now); d > 0 {
		return d
	}
	return 0
}
