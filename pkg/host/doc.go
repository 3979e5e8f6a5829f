/*
Package host runs the tick loop.

Every tick the host:

 1. increments the epoch, which invalidates every frame-scoped cache;
 2. sweeps the scheduler, reclaiming workers whose job overran its budget;
 3. submits the entity collection job (CollectEntities);
 4. submits one job per enabled plugin (Plugin_Tick_<name>);
 5. submits periodic jobs that are due, such as the statistics report.

The tick never waits for a job. A job still running from an earlier tick
makes that tick's submission of the same name a rejected no-op.

	h, err := host.New(host.Config{
		Collect:        collectEntities,
		Memory:         reader,
		TargetFPS:      60,
		ReportSchedule: "@every 10s",
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer func() { <-h.Close() }()

	h.AddPlugin(host.PluginFunc("radar", radar.Tick), 250*time.Millisecond)
	return h.Run(ctx)

Job bodies read remote state through h.Memory() or through their own
memo.Reader instances built with h.Epoch as the epoch source and registered
with h.RegisterCache.
*/
package host
