package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/tickflow/internal/entities"
	"github.com/vnykmshr/tickflow/pkg/cache/stats"
	"github.com/vnykmshr/tickflow/pkg/config"
	"github.com/vnykmshr/tickflow/pkg/host"
	"github.com/vnykmshr/tickflow/pkg/httpapi"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/metrics"
	"github.com/vnykmshr/tickflow/pkg/remote"
	"github.com/vnykmshr/tickflow/pkg/scheduling/scheduler"
	"github.com/vnykmshr/tickflow/pkg/telemetry"
)

// defaultPluginTimeout is the budget of built-in plugins not named in the
// configuration.
const defaultPluginTimeout = 250 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tick loop",
	Long: `Run the tick loop until interrupted.

With a snapshot configured (or --snapshot), the entity table in the image is
collected every tick and the built-in entity plugins are registered. The
observability server and the Redis report publisher start when configured.

Flags override the config file at startup only; a reload applies the
file as written.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("snapshot", "", "Memory image to serve as the remote process; overrides snapshot.path")
	runCmd.Flags().Uint64("base", 0, "Address the snapshot is mapped at; overrides snapshot.base")
	runCmd.Flags().String("http-addr", "", "Observability listen address; overrides http.addr")
	runCmd.Flags().Float64("fps", 0, "Tick rate; overrides host.target_fps")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, mgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.config = mgr
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("notified service manager")
	}
	return a.run(ctx)
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("snapshot") {
		cfg.Snapshot.Path, _ = flags.GetString("snapshot")
	}
	if flags.Changed("base") {
		cfg.Snapshot.Base, _ = flags.GetUint64("base")
	}
	if flags.Changed("http-addr") {
		cfg.HTTP.Addr, _ = flags.GetString("http-addr")
	}
	if flags.Changed("fps") {
		cfg.Host.TargetFPS, _ = flags.GetFloat64("fps")
	}
	return cfg.Validate()
}

// app is one wired tickflow process.
type app struct {
	log       logx.Logger
	config    *config.Manager
	registry  *prometheus.Registry
	host      *host.Host
	entities  *entities.Collector
	server    *httpapi.Server
	publisher *telemetry.Publisher
	wg        sync.WaitGroup
}

func newApp(cfg *config.Config, log logx.Logger) (*app, error) {
	a := &app{log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Registry:  a.registry,
		Namespace: cfg.Metrics.Namespace,
	}.Build()

	var memory remote.Reader
	if cfg.Snapshot.Path != "" {
		snap, err := remote.LoadSnapshot(cfg.Snapshot.Path, cfg.Snapshot.Base)
		if err != nil {
			return nil, err
		}
		log.Info("snapshot loaded",
			logx.String("path", cfg.Snapshot.Path),
			logx.Uint64("base", snap.Base()),
			logx.Int("size", snap.Len()),
		)
		memory = snap
	}

	hcfg := host.Config{
		Scheduler: scheduler.Config{
			TimingWindow: cfg.Scheduler.TimingWindow,
			RetainTiming: cfg.Scheduler.RetainTiming,
			LockOSThread: cfg.Scheduler.LockOSThread,
		},
		CollectTimeout: cfg.Host.CollectTimeout,
		Memory:         memory,
		TargetFPS:      cfg.Host.TargetFPS,
		ReportSchedule: cfg.Host.ReportSchedule,
		ReportTimeout:  cfg.Host.ReportTimeout,
		Metrics:        m,
		Logger:         log,
	}
	if memory != nil {
		hcfg.Collect = func(ctx context.Context) error { return a.entities.Collect(ctx) }
	}
	if len(cfg.Telemetry.Addrs) > 0 {
		pub, err := telemetry.New(telemetry.Config{
			Client: telemetry.NewClient(cfg.Telemetry.Addrs, cfg.Telemetry.Password, cfg.Telemetry.DB),
			Prefix: cfg.Telemetry.Prefix,
			TTL:    cfg.Telemetry.TTL,
			Logger: log,
		})
		if err != nil {
			return nil, err
		}
		a.publisher = pub
		hcfg.Publisher = pub
	}

	h, err := host.New(hcfg)
	if err != nil {
		a.closePublisher()
		return nil, err
	}
	a.host = h

	if memory != nil {
		a.entities = entities.NewCollector(h.Memory(), cfg.Snapshot.Base, h.Epoch, log)
		for _, src := range a.entities.Caches() {
			if err := h.RegisterCache(src); err != nil {
				return nil, a.abort(err)
			}
		}
		for _, p := range a.entities.Plugins() {
			if err := h.AddPlugin(p, defaultPluginTimeout); err != nil {
				return nil, a.abort(err)
			}
		}
	}
	if err := h.Apply(cfg); err != nil {
		return nil, a.abort(err)
	}

	if m != nil {
		if err := a.registry.Register(stats.NewCollector(h.Caches(), cfg.Metrics.Namespace)); err != nil {
			return nil, a.abort(fmt.Errorf("register cache collector: %w", err))
		}
	}
	if cfg.HTTP.Addr != "" {
		a.server = httpapi.New(httpapi.Config{
			Addr:     cfg.HTTP.Addr,
			Backend:  h,
			Gatherer: a.registry,
			Logger:   log,
		})
	}
	return a, nil
}

func (a *app) abort(err error) error {
	<-a.host.Close()
	a.closePublisher()
	return err
}

func (a *app) closePublisher() {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		a.log.Warn("close telemetry client", logx.Err(err))
	}
}

// watch hot-reloads the configuration until ctx is done.
func (a *app) watch(ctx context.Context, mgr *config.Manager) {
	updates := mgr.Subscribe(1)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := mgr.Watch(ctx); err != nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer mgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				if err := a.host.Apply(cfg); err != nil {
					a.log.Error("apply reloaded config", logx.Err(err))
				}
			}
		}
	}()
}

// run drives the host and the HTTP server until ctx is done, then shuts
// both down. A failing HTTP server stops the tick loop.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config != nil {
		a.watch(ctx, a.config)
	}

	var serveErr error
	if a.server != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if serveErr = a.server.ListenAndServe(ctx); serveErr != nil {
				a.log.Error("http server stopped", logx.Err(serveErr))
				cancel()
			}
		}()
	}

	err := a.host.Run(ctx)
	cancel()
	a.wg.Wait()

	<-a.host.Close()
	a.closePublisher()
	if err != nil {
		return err
	}
	return serveErr
}
