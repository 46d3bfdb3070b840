package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/beamcal/internal/cli/output"
	"github.com/yndnr/beamcal/internal/config"
	"github.com/yndnr/beamcal/internal/core/service"
	"github.com/yndnr/beamcal/internal/infra/confloader"
	"github.com/yndnr/beamcal/internal/infra/shutdown"
	"github.com/yndnr/beamcal/internal/instrument/pacing"
	"github.com/yndnr/beamcal/internal/instrument/sim"
	"github.com/yndnr/beamcal/internal/server/httpserver"
	"github.com/yndnr/beamcal/internal/storage/journal"
	"github.com/yndnr/beamcal/internal/storage/statefile"
	"github.com/yndnr/beamcal/internal/telemetry/logger"
	"github.com/yndnr/beamcal/internal/telemetry/metric"
)

const shutdownTimeout = 10 * time.Second

// Runtime is everything one beamcal invocation works with: configuration,
// logging, metrics and the instrument facades.
type Runtime struct {
	Config  *config.CalibrationConfig
	Logger  logger.Logger
	Metrics *metric.Registry
	RunID   string

	Device   service.Device
	Imager   service.Imager
	Detector service.Detector

	ctx      context.Context
	stop     context.CancelFunc
	shutdown *shutdown.Handler
	journal  *journal.Journal
	server   *httpserver.Server
	spinners bool
	started  time.Time
	step     atomic.Value
}

func newRuntime(c *cli.Context) (_ *Runtime, err error) {
	flags := ParseGlobalFlags(c)

	opts := []confloader.Option{confloader.WithOverrides(flags.overrides(c))}
	if flags.Config != "" {
		opts = append(opts, confloader.WithConfigFile(flags.Config))
	}
	loader := confloader.NewLoader(opts...)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	runID := logger.NewRunID()
	log = log.With("run_id", runID)

	h := shutdown.NewHandler(shutdownTimeout)
	ctx, stop := h.Context(c.Context)
	ctx = logger.WithRunID(logger.WithLogger(ctx, log), runID)

	rt := &Runtime{
		Config:   cfg,
		Logger:   log,
		Metrics:  metric.NewRegistry(),
		RunID:    runID,
		ctx:      ctx,
		stop:     stop,
		shutdown: h,
		spinners: isTerminal(c.App.ErrWriter),
		started:  time.Now(),
	}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if err := rt.connect(); err != nil {
		return nil, err
	}
	if err := rt.serveMetrics(); err != nil {
		return nil, err
	}
	if loader.FilePath() != "" {
		if err := rt.watchConfig(loader); err != nil {
			return nil, err
		}
	}

	log.Debug("beamcal run started",
		"backend", cfg.Instrument.Backend,
		"config", loader.FilePath())
	return rt, nil
}

// connect builds the instrument facades for the configured backend.
func (rt *Runtime) connect() error {
	cfg := rt.Config
	switch cfg.Instrument.Backend {
	case config.DefaultBackend:
		m := sim.New(cfg.SimConfig(), rt.slog())
		limiter := pacing.NewLimiter(cfg.PacingConfig())
		rt.Device = pacing.NewDevice(m, limiter)
		rt.Imager = pacing.NewImager(m, limiter)
		rt.Detector = m
		return nil
	default:
		return fmt.Errorf("unsupported instrument backend %q", cfg.Instrument.Backend)
	}
}

// serveMetrics exposes the registry and the run status for the duration of the run.
func (rt *Runtime) serveMetrics() error {
	addr := rt.Config.Metrics.Addr
	if addr == "" {
		return nil
	}
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Metrics: rt.Metrics.Handler(),
		Status:  func() any { return rt.Status() },
		Logger:  rt.slog(),
	})
	srv := httpserver.New(addr, router, rt.slog())
	if err := srv.Start(); err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	rt.server = srv
	rt.shutdown.OnShutdown("telemetry server", srv.Shutdown)
	return nil
}

// TelemetryAddr returns the bound telemetry address, or "" when disabled.
func (rt *Runtime) TelemetryAddr() string {
	if rt.server == nil {
		return ""
	}
	return rt.server.Addr()
}

// RunStatus is served on /status.
type RunStatus struct {
	RunID   string    `json:"run_id"`
	Backend string    `json:"backend"`
	Started time.Time `json:"started"`
	Step    string    `json:"step,omitempty"`
}

// Status reports the run and the step in progress.
func (rt *Runtime) Status() RunStatus {
	step, _ := rt.step.Load().(string)
	return RunStatus{
		RunID:   rt.RunID,
		Backend: rt.Config.Instrument.Backend,
		Started: rt.started,
		Step:    step,
	}
}

// watchConfig reapplies the log level whenever the configuration file changes.
func (rt *Runtime) watchConfig(loader *confloader.Loader) error {
	w, err := confloader.NewWatcher(loader.FilePath(), confloader.WithWatcherLogger(rt.slog()))
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	w.OnChange(func(path string) {
		next := config.Default()
		if err := loader.Load(next); err != nil {
			rt.Logger.Warn("config reload failed", "path", path, "error", err)
			return
		}
		logger.SetLevel(next.Log.Level)
		rt.Logger.Info("log level reloaded", "level", logger.GetLevel())
	})
	w.StartAsync()
	rt.shutdown.OnClose("config watcher", w.Stop)
	return nil
}

// Context returns the run context. It is cancelled by SIGINT or SIGTERM.
func (rt *Runtime) Context() context.Context { return rt.ctx }

func (rt *Runtime) slog() *slog.Logger { return logger.Slog(rt.Logger) }

func (rt *Runtime) serviceOptions() []service.Option {
	return []service.Option{
		service.WithLogger(rt.slog()),
		service.WithMetrics(rt.Metrics),
	}
}

// Journal opens the state journal on first use.
func (rt *Runtime) Journal() (*journal.Journal, error) {
	if rt.journal != nil {
		return rt.journal, nil
	}
	if !rt.Config.Journal.Enabled {
		return nil, fmt.Errorf("state journal is disabled (journal.enabled)")
	}
	j, err := journal.Open(rt.Config.JournalConfig(), rt.slog())
	if err != nil {
		return nil, err
	}
	if err := rt.Metrics.Register(j.Collectors()...); err != nil {
		j.Close()
		return nil, fmt.Errorf("register journal metrics: %w", err)
	}
	rt.journal = j
	rt.shutdown.OnClose("journal", j.Close)
	return j, nil
}

// ============================================================================
// Engines
// ============================================================================

func (rt *Runtime) StateService() *service.StateService {
	return service.NewStateService(rt.Device, rt.Config.StateConfig(), rt.serviceOptions()...)
}

func (rt *Runtime) FocusService() *service.FocusService {
	return service.NewFocusService(rt.Device, rt.Imager, nil, rt.Config.FocusConfig(), rt.serviceOptions()...)
}

func (rt *Runtime) AlignService() *service.AlignService {
	return service.NewAlignService(rt.Device, rt.Imager, rt.Detector, rt.Config.AlignConfig(), rt.serviceOptions()...)
}

func (rt *Runtime) NeutraliseService(cfg service.NeutraliseConfig) *service.NeutraliseService {
	return service.NewNeutraliseService(rt.Imager, cfg, rt.serviceOptions()...)
}

// HomingService loads the calibrated default state from the configured state file.
func (rt *Runtime) HomingService() *service.HomingService {
	loader := statefile.Loader{Path: rt.Config.State.File}
	return service.NewHomingService(rt.Device, rt.Imager, rt.StateService(), loader, rt.serviceOptions()...)
}

func (rt *Runtime) BeamSystemService() *service.BeamSystemService {
	return service.NewBeamSystemService(rt.Device, rt.serviceOptions()...)
}

// Step runs fn behind a spinner when stderr is a terminal.
func (rt *Runtime) Step(c *cli.Context, message string, fn func(ctx context.Context) error) error {
	rt.step.Store(message)
	defer rt.step.Store("")

	if !rt.spinners {
		return fn(rt.ctx)
	}
	sp := output.NewSpinner(c.App.ErrWriter, message)
	sp.Start()
	err := fn(rt.ctx)
	sp.Stop(err)
	return err
}

// Close releases the run: it stops the signal watch and runs every cleanup hook.
func (rt *Runtime) Close() error {
	rt.stop()
	if err := rt.shutdown.Run(context.Background()); err != nil {
		rt.Logger.Error("shutdown error", "error", err)
		return err
	}
	return nil
}
