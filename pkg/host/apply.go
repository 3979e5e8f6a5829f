package host

import (
	"github.com/vnykmshr/tickflow/pkg/config"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

// Apply updates the live settings a configuration reload may change: the
// tick rate and plugin enablement and budgets. Plugins named in cfg but not
// registered are logged and skipped; registered plugins missing from cfg
// are left as they are.
func (h *Host) Apply(cfg *config.Config) error {
	if err := h.SetTargetFPS(cfg.Host.TargetFPS); err != nil {
		return err
	}
	for _, p := range cfg.Plugins {
		if !h.SetPlugin(p.Name, p.Enabled, p.Timeout) {
			h.log.Warn("configured plugin not registered", logx.String("plugin", p.Name))
		}
	}
	h.log.Info("configuration applied",
		logx.Float64("target_fps", cfg.Host.TargetFPS),
		logx.Int("plugins", len(cfg.Plugins)),
	)
	return nil
}
