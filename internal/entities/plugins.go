package entities

import (
	"context"

	"github.com/vnykmshr/tickflow/pkg/host"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

// Built-in plugin names.
const (
	StatsPlugin  = "entity_stats"
	LowestPlugin = "lowest_health"
)

// Plugins returns the built-in plugins backed by c. Both read through the
// same caches as CollectEntities, so within one tick they cost no extra
// remote reads.
func (c *Collector) Plugins() []host.Plugin {
	return []host.Plugin{
		host.PluginFunc(StatsPlugin, func(ctx context.Context) error {
			ents, err := c.Read(ctx)
			if err != nil {
				return err
			}
			s := Summarize(ents)
			c.log.Debug("entity stats",
				logx.Int("count", s.Count),
				logx.Int("alive", s.Alive),
				logx.Float64("avg_health", float64(s.AvgHealth)),
			)
			return nil
		}),
		host.PluginFunc(LowestPlugin, func(ctx context.Context) error {
			ents, err := c.Read(ctx)
			if err != nil {
				return err
			}
			if s := Summarize(ents); s.Alive > 0 {
				c.log.Debug("lowest health entity",
					logx.Uint64("id", uint64(s.Lowest.ID)),
					logx.Float64("health", float64(s.Lowest.Health)),
				)
			}
			return nil
		}),
	}
}
