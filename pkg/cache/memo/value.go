package memo

import (
	"context"

	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

// ValueConfig holds the parameters of a Value.
type ValueConfig[V any] struct {
	Name     string
	Compute  func(ctx context.Context) (V, error)
	Epoch    func() uint64
	Validity Validity
	OnUpdate func(V)
	Logger   logx.Logger
}

// Value is a single memoized slot, for state that has no natural key such
// as the camera matrix or the local player.
type Value[V any] struct {
	r *Reader[struct{}, V]
}

// NewValue creates a Value from cfg.
func NewValue[V any](cfg ValueConfig[V]) *Value[V] {
	var compute ComputeFunc[struct{}, V]
	if cfg.Compute != nil {
		compute = func(ctx context.Context, _ struct{}) (V, error) { return cfg.Compute(ctx) }
	}
	var onUpdate func(struct{}, V)
	if cfg.OnUpdate != nil {
		onUpdate = func(_ struct{}, v V) { cfg.OnUpdate(v) }
	}

	return &Value[V]{r: New(Config[struct{}, V]{
		Name:     cfg.Name,
		Compute:  compute,
		Epoch:    cfg.Epoch,
		Validity: cfg.Validity,
		OnUpdate: onUpdate,
		Logger:   cfg.Logger,
	})}
}

func (v *Value[V]) Name() string                       { return v.r.Name() }
func (v *Value[V]) Get(ctx context.Context) (V, error) { return v.r.Get(ctx, struct{}{}) }
func (v *Value[V]) Peek() (V, bool)                    { return v.r.Peek(struct{}{}) }
func (v *Value[V]) Invalidate() bool                   { return v.r.Invalidate(struct{}{}) }
func (v *Value[V]) InvalidateAll() int                 { return v.r.InvalidateAll() }
func (v *Value[V]) Stats() stats.Snapshot              { return v.r.Stats() }
