// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/awsapigw/adapters/hasher"
	apihttp "github.com/artpar/awsapigw/adapters/http"
	"github.com/artpar/awsapigw/adapters/metrics"
	"github.com/artpar/awsapigw/app"
	"github.com/artpar/awsapigw/config"
	"github.com/artpar/awsapigw/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Records    ports.RecordStore
	Lifecycle  *app.LifecycleService
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	HTTPServer *http.Server

	holder  *config.Holder
	cfg     atomic.Pointer[config.Config]
	version string
	closers []func() error
}

// Options controls application initialization.
type Options struct {
	// ConfigPath is the YAML file. When it does not exist, config comes from env.
	ConfigPath string

	// Config skips loading entirely. Used by tests and embedders.
	Config *config.Config

	// Version is reported by /version.
	Version string

	// LogOutput defaults to stdout.
	LogOutput io.Writer
}

// New loads configuration and initializes the application.
func New(ctx context.Context, opts Options) (*App, error) {
	a := &App{version: opts.Version}

	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadWithFallback(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	a.cfg.Store(cfg)
	a.Logger = setupLogger(cfg.Logging, opts.LogOutput)

	if opts.Config == nil && opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			h, err := config.NewHolder(opts.ConfigPath, a.Logger)
			if err != nil {
				return nil, err
			}
			a.holder = h
		}
	}

	a.Logger.Info().
		Str("database", cfg.Database.Driver).
		Str("key_service", cfg.KeyService.Mode).
		Bool("cache", cfg.Cache.Enabled).
		Msg("initializing awsapigw")

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewWithRegistry(a.Registry)

	if err := a.init(ctx, cfg); err != nil {
		a.Shutdown()
		return nil, err
	}

	if a.holder != nil {
		a.holder.SetReloadObserver(a.Metrics)
		a.holder.OnChange(a.applyConfig)
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config) error {
	records, closeStore, err := OpenRecordStore(ctx, cfg.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	a.closers = append(a.closers, closeStore)
	a.Records = records

	keys, err := newKeyServiceFactory(cfg.KeyService)
	if err != nil {
		return fmt.Errorf("init key service: %w", err)
	}

	deps := app.LifecycleDeps{
		Records: records,
		Keys:    keys,
		Logger:  a.Logger,
		Metrics: a.Metrics,
	}
	closeCache, err := wireCache(ctx, cfg, &deps, a.Logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	a.Lifecycle = app.NewLifecycleService(deps, app.LifecycleConfig{
		Defaults: lifecycleDefaults(cfg),
		LockTTL:  cfg.Provisioning.CreateLock.TTL,
		CacheTTL: cfg.Cache.TTL,
	})

	a.initHTTPServer(cfg)
	return nil
}

func (a *App) initHTTPServer(cfg *config.Config) {
	callbacks := apihttp.NewCallbackHandler(apihttp.CallbackHandlerConfig{
		Lifecycle: a.Lifecycle,
		Defaults:  a.CallbackDefaults,
		Location:  cfg.Provisioning.Location(),
		Logger:    a.Logger,
	})

	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		Auth:           hasher.NewTokenVerifier(hasher.NewBcrypt(0), cfg.API.TokenHash),
		EnableOpenAPI:  cfg.OpenAPI.Enabled,
		Version:        a.version,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	} else {
		routerCfg.MetricsHandler = http.NotFoundHandler()
	}
	if !routerCfg.Auth.Enabled() {
		a.Logger.Warn().Msg("api.token_hash is empty, callbacks are not authenticated")
	}

	router := apihttp.NewRouter(callbacks, apihttp.NewHealthHandler(a.Records), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	return a.cfg.Load()
}

// CallbackDefaults returns the options callbacks fall back to.
func (a *App) CallbackDefaults() apihttp.CallbackDefaults {
	cfg := a.Config()
	return apihttp.CallbackDefaults{
		Endpoint:      cfg.KeyService.Endpoint(),
		KeyNamePrefix: cfg.Provisioning.KeyNamePrefix,
		UsagePlans:    cfg.Provisioning.UsagePlans,
	}
}

// applyConfig applies the reloadable part of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	a.cfg.Store(cfg)
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Lifecycle.UpdateDefaults(lifecycleDefaults(cfg))
}

func lifecycleDefaults(cfg *config.Config) app.LifecycleDefaults {
	return app.LifecycleDefaults{
		KeyNamePrefix:   cfg.Provisioning.KeyNamePrefix,
		Region:          cfg.Provisioning.Region,
		PlanConcurrency: cfg.Provisioning.PlanConcurrency,
	}
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the server and releases resources.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
		a.holder = nil
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error().Err(err).Msg("close error")
		}
	}
	a.closers = nil

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
