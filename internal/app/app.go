// Package app wires the Hardy subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New opens the store, builds the
// tool dispatcher, the devices, the realtime transport and the session
// controller; Run serves the control API until ctx is cancelled; Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithProvider, WithDevices, ...). When an option is not provided, New creates
// the implementation named by the config through the [config.Registry].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quilang-hardware/hardy/internal/config"
	"github.com/quilang-hardware/hardy/internal/control"
	"github.com/quilang-hardware/hardy/internal/health"
	"github.com/quilang-hardware/hardy/internal/observe"
	"github.com/quilang-hardware/hardy/internal/session"
	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/internal/tools"
	"github.com/quilang-hardware/hardy/pkg/live"
	"github.com/quilang-hardware/hardy/pkg/video"
)

// serverShutdownTimeout bounds the HTTP drain when Run's context ends.
const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	reg *config.Registry
	log *slog.Logger

	metrics        *observe.Metrics
	metricsHandler http.Handler
	listener       net.Listener
	sessionOpts    []session.Option

	// Subsystems — initialised in New, torn down in Shutdown.
	store      store.Store
	provider   live.Provider
	devices    *session.Devices
	dispatcher *tools.Dispatcher
	controller *session.Controller
	api        *control.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of opening the configured driver. The
// caller keeps ownership; Shutdown does not close it.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithProvider injects the realtime transport instead of creating it from
// the assistant config.
func WithProvider(p live.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithDevices injects the host devices instead of creating them from the
// devices config.
func WithDevices(d session.Devices) Option {
	return func(a *App) { a.devices = &d }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener makes Run serve on ln instead of listening on
// cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithSessionOptions passes extra options to the session controller.
func WithSessionOptions(opts ...session.Option) Option {
	return func(a *App) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. reg supplies the
// factories named by cfg; it may be nil when every subsystem is injected.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.reg == nil {
		a.reg = config.NewRegistry()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Tools ─────────────────────────────────────────────────────────
	d, err := NewDispatcher(a.store, cfg.Tools,
		tools.WithMetrics(a.metrics),
		tools.WithLogger(a.log),
	)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	a.dispatcher = d

	// ── 3. Transport ─────────────────────────────────────────────────────
	if a.provider == nil {
		p, err := a.reg.CreateLive(cfg.Assistant)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: create %s transport: %w", cfg.Assistant.Provider, err)
		}
		a.provider = p
	}

	// ── 4. Devices ───────────────────────────────────────────────────────
	if err := a.initDevices(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init devices: %w", err)
	}

	// ── 5. Session controller ────────────────────────────────────────────
	sessOpts := append([]session.Option{
		session.WithLogger(a.log),
		session.WithMetrics(a.metrics),
		session.WithVideoOptions(
			video.WithInterval(cfg.Video.Interval),
			video.WithResolution(cfg.Devices.CameraWidth, cfg.Devices.CameraHeight),
			video.WithEncoding(video.Encoding{
				Quality:   cfg.Video.Quality,
				MaxWidth:  cfg.Video.MaxWidth,
				MaxHeight: cfg.Video.MaxHeight,
			}),
		),
	}, a.sessionOpts...)
	a.controller = session.New(a.provider, *a.devices, a.dispatcher, SessionConfig(cfg.Assistant), sessOpts...)
	a.closers = append([]func() error{a.controller.Close}, a.closers...)

	// ── 6. Control API ───────────────────────────────────────────────────
	a.api = control.New(a.controller,
		control.WithHealth(health.New(
			health.PingChecker("store", a.store),
			health.Checker{Name: "session", Check: a.checkSession, Advisory: true},
		)),
		control.WithMetricsHandler(a.metricsHandler),
		control.WithMiddleware(observe.Middleware(a.metrics)),
		control.WithLogger(a.log),
	)

	a.log.Info("app initialised",
		"provider", a.provider.Name(),
		"store", cfg.Store.Driver,
		"tools", len(a.dispatcher.Names()),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens and seeds the configured store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	st, err := OpenStore(ctx, a.reg, a.cfg.Store, a.log)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)
	return nil
}

// initDevices creates every configured device unless they were injected.
// Disabled devices stay nil; the controller reports them unavailable.
func (a *App) initDevices() error {
	if a.devices != nil {
		return nil
	}
	dc := a.cfg.Devices
	mic, err := a.reg.CreateMicrophone(dc)
	if err != nil {
		return fmt.Errorf("microphone %q: %w", dc.Microphone, err)
	}
	spk, err := a.reg.CreateSpeaker(dc)
	if err != nil {
		return fmt.Errorf("speaker %q: %w", dc.Speaker, err)
	}
	cam, err := a.reg.CreateCamera(dc)
	if err != nil {
		return fmt.Errorf("camera %q: %w", dc.Camera, err)
	}
	a.devices = &session.Devices{Microphone: mic, Speaker: spk, Camera: cam}
	return nil
}

// checkSession reports the last transport failure while the controller is
// not in a session.
func (a *App) checkSession(context.Context) error {
	st := a.controller.Status()
	if st.State == session.StateIdle && st.LastError != "" {
		return errors.New(st.LastError)
	}
	return nil
}

// ─── Shared wiring ───────────────────────────────────────────────────────────

// OpenStore opens the store named by cfg.Driver and imports cfg.SeedFile
// when set. The returned store is owned by the caller.
func OpenStore(ctx context.Context, reg *config.Registry, cfg config.StoreConfig, log *slog.Logger) (store.Store, error) {
	st, err := reg.CreateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SeedFile == "" {
		return st, nil
	}

	ds, err := store.LoadDataset(cfg.SeedFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	imp, ok := st.(store.Importer)
	if !ok {
		_ = st.Close()
		return nil, fmt.Errorf("store driver %q does not accept seed data", cfg.Driver)
	}
	if err := imp.Import(ctx, ds); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed %q: %w", cfg.SeedFile, err)
	}
	log.Info("store seeded",
		"path", cfg.SeedFile,
		"products", len(ds.Products),
		"customers", len(ds.Customers),
		"transactions", len(ds.Transactions),
	)
	return st, nil
}

// NewDispatcher builds the store tool set tuned by cfg.
func NewDispatcher(st store.Store, cfg config.ToolsConfig, opts ...tools.Option) (*tools.Dispatcher, error) {
	ts := tools.ForStore(st, tools.StoreConfig{
		LowStockThreshold:  cfg.LowStockThreshold,
		RecentTransactions: cfg.RecentTransactions,
		RevenueTarget:      cfg.RevenueTarget,
		Location:           cfg.Location(),
	})
	opts = append([]tools.Option{tools.WithTimeout(cfg.Timeout)}, opts...)
	return tools.NewDispatcher(ts, opts...)
}

// SessionConfig converts the assistant section to a transport config. The
// tool schema is filled in by the controller.
func SessionConfig(ac config.AssistantConfig) live.Config {
	return live.Config{
		Model:        ac.Model,
		Voice:        ac.Voice,
		Instructions: ac.Instructions,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Dispatcher returns the tool dispatcher.
func (a *App) Dispatcher() *tools.Dispatcher { return a.dispatcher }

// Handler returns the control API handler.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of next: assistant model,
// voice and instructions take effect on the next session. Everything else
// listed in the returned diff's RestartRequired is ignored until restart.
func (a *App) ApplyConfig(ctx context.Context, next *config.Config) (config.ConfigDiff, error) {
	diff := config.Diff(a.cfg, next)
	if diff.AssistantChanged {
		if err := a.controller.SetConfig(ctx, SessionConfig(next.Assistant)); err != nil {
			return diff, fmt.Errorf("app: apply assistant config: %w", err)
		}
		a.log.Info("assistant config updated; applies to the next session")
	}
	if len(diff.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "sections", diff.RestartRequired)
	}
	a.cfg.Server.LogLevel = next.Server.LogLevel
	a.cfg.Assistant.Model = next.Assistant.Model
	a.cfg.Assistant.Voice = next.Assistant.Voice
	a.cfg.Assistant.Instructions = next.Assistant.Instructions
	return diff, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the control API and blocks until ctx is cancelled or the server
// fails. When ctx is done, Run drains the server and returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	srv := &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Status streams are hijacked and only end when their request
		// context does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.log.Info("control API listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends any session, then tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.controller.Disconnect(ctx); err != nil && !errors.Is(err, session.ErrClosed) {
			a.log.Warn("session disconnect error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New acquired before failing.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
