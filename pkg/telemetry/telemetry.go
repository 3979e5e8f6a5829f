// Package telemetry publishes worker and cache reports to Redis so external
// dashboards can read them without talking to the process.
//
// Each report replaces three hashes under a common prefix:
//
//	<prefix>:workers  worker name -> JSON scheduler.WorkerInfo
//	<prefix>:caches   cache name  -> JSON stats.Snapshot
//	<prefix>:meta     epoch, published_at
//
// All three are written in one MULTI/EXEC transaction and expire after TTL,
// so a dead process leaves nothing stale behind.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	tferrors "github.com/vnykmshr/tickflow/pkg/common/errors"
	"github.com/vnykmshr/tickflow/pkg/common/validation"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/scheduling/scheduler"
)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = time.Minute

// Report is one observability snapshot of a running host.
type Report struct {
	Epoch       uint64                 `json:"epoch"`
	PublishedAt time.Time              `json:"published_at"`
	Workers     []scheduler.WorkerInfo `json:"workers"`
	Caches      []stats.Snapshot       `json:"caches"`
}

// Config holds publisher configuration.
type Config struct {
	// Client is the Redis connection. Required.
	Client redis.UniversalClient

	// Prefix namespaces every key. Required.
	Prefix string

	// TTL is the expiry of published keys (default: DefaultTTL).
	TTL time.Duration

	Logger logx.Logger
}

// Publisher writes reports to Redis.
type Publisher struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logx.Logger
}

// NewClient builds a client for one address, a sentinel set or a cluster,
// depending on addrs.
func NewClient(addrs []string, password string, db int) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	})
}

// New creates a publisher from cfg.
func New(cfg Config) (*Publisher, error) {
	if cfg.Client == nil {
		return nil, tferrors.NewValidationError("telemetry", "Client", nil, "cannot be nil")
	}
	if err := validation.ValidateNotEmpty("telemetry", "Prefix", cfg.Prefix); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("telemetry", "TTL", cfg.TTL); err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Publisher{
		client: cfg.Client,
		prefix: cfg.Prefix,
		ttl:    ttl,
		log:    cfg.Logger.With(logx.String("component", "telemetry")),
	}, nil
}

func (p *Publisher) key(name string) string { return p.prefix + ":" + name }

// Publish replaces the published report with r.
func (p *Publisher) Publish(ctx context.Context, r Report) error {
	workers, caches, err := encode(r)
	if err != nil {
		return tferrors.NewOperationError("telemetry", "encode", err)
	}
	if r.PublishedAt.IsZero() {
		r.PublishedAt = time.Now()
	}

	wk, ck, mk := p.key("workers"), p.key("caches"), p.key("meta")
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, wk, ck, mk)
		if len(workers) > 0 {
			pipe.HSet(ctx, wk, workers)
			pipe.PExpire(ctx, wk, p.ttl)
		}
		if len(caches) > 0 {
			pipe.HSet(ctx, ck, caches)
			pipe.PExpire(ctx, ck, p.ttl)
		}
		pipe.HSet(ctx, mk,
			"epoch", strconv.FormatUint(r.Epoch, 10),
			"published_at", r.PublishedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.PExpire(ctx, mk, p.ttl)
		return nil
	})
	if err != nil {
		return tferrors.NewOperationError("telemetry", "publish", err).WithContext(p.prefix)
	}

	p.log.Debug("report published",
		logx.Uint64("epoch", r.Epoch),
		logx.Int("workers", len(workers)),
		logx.Int("caches", len(caches)),
	)
	return nil
}

// Fetch reads the currently published report. It returns redis.Nil when
// nothing is published.
func (p *Publisher) Fetch(ctx context.Context) (*Report, error) {
	pipe := p.client.Pipeline()
	workersCmd := pipe.HGetAll(ctx, p.key("workers"))
	cachesCmd := pipe.HGetAll(ctx, p.key("caches"))
	metaCmd := pipe.HGetAll(ctx, p.key("meta"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, tferrors.NewOperationError("telemetry", "fetch", err).WithContext(p.prefix)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, redis.Nil
	}
	return decode(meta, workersCmd.Val(), cachesCmd.Val())
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func encode(r Report) (workers, caches map[string]any, err error) {
	workers = make(map[string]any, len(r.Workers))
	for _, w := range r.Workers {
		b, err := json.Marshal(w)
		if err != nil {
			return nil, nil, fmt.Errorf("worker %s: %w", w.Name, err)
		}
		workers[w.Name] = string(b)
	}
	caches = make(map[string]any, len(r.Caches))
	for _, c := range r.Caches {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, nil, fmt.Errorf("cache %s: %w", c.Name, err)
		}
		caches[c.Name] = string(b)
	}
	return workers, caches, nil
}

func decode(meta, workers, caches map[string]string) (*Report, error) {
	r := &Report{}
	var err error
	if r.Epoch, err = strconv.ParseUint(meta["epoch"], 10, 64); err != nil {
		return nil, fmt.Errorf("telemetry: bad epoch %q: %w", meta["epoch"], err)
	}
	if r.PublishedAt, err = time.Parse(time.RFC3339Nano, meta["published_at"]); err != nil {
		return nil, fmt.Errorf("telemetry: bad published_at %q: %w", meta["published_at"], err)
	}

	for name, raw := range workers {
		var w scheduler.WorkerInfo
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("telemetry: worker %s: %w", name, err)
		}
		r.Workers = append(r.Workers, w)
	}
	for name, raw := range caches {
		var c stats.Snapshot
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("telemetry: cache %s: %w", name, err)
		}
		r.Caches = append(r.Caches, c)
	}

	sort.Slice(r.Workers, func(i, j int) bool { return r.Workers[i].Name < r.Workers[j].Name })
	sort.Slice(r.Caches, func(i, j int) bool { return r.Caches[i].Name < r.Caches[j].Name })
	return r, nil
}
