package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"jsonrest/internal/adapter/httpapi"
	"jsonrest/internal/adapter/scheduler"
	"jsonrest/internal/adapter/telegram"
	"jsonrest/internal/config"
	"jsonrest/internal/journal"
	"jsonrest/internal/platform/logger"
	"jsonrest/internal/probe"
	"jsonrest/pkg/jsonrest"
	"jsonrest/pkg/retry"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "jsonrest-probe",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Run starts the probes and the status server and blocks until SIGINT or
// SIGTERM.
func (a *App) Run() error {
	a.log.Info("starting", "endpoint", a.cfg.Probe.Endpoint, "targets", len(a.cfg.Probe.Targets), "version", jsonrest.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newClient(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := journal.Open(ctx, a.cfg.Journal.DSN)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	pcfg := probe.Config{Client: client, Store: store, Logger: a.log}
	if a.cfg.Telegram.Token != "" {
		n, err := telegram.New(telegram.Config{
			Token:    a.cfg.Telegram.Token,
			ChatID:   a.cfg.Telegram.ChatID,
			Cooldown: a.cfg.Telegram.Cooldown,
			Logger:   a.log,
		})
		if err != nil {
			return err
		}
		pcfg.Notifier = n
	} else {
		a.log.Info("telegram notifications disabled")
	}
	prober := probe.New(pcfg)
	if err := prober.Restore(ctx); err != nil {
		a.log.Warn("restoring probe state failed", "error", err)
	}

	sched := scheduler.NewWithContext(ctx, scheduler.Config{Logger: a.log})
	names, err := scheduleProbes(sched, prober, a.cfg)
	if err != nil {
		return err
	}
	sched.Start()
	for _, name := range names {
		sched.RunNow(name)
	}

	srv := httpapi.NewServer(a.cfg.HTTP.Addr, httpapi.Router(store, prober.State, a.log), a.log)
	serveErr := srv.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Probe.Timeout+5*time.Second)
	defer cancel()
	if err := sched.StopContext(stopCtx); err != nil {
		a.log.Warn("scheduler stop", "error", err)
	}
	a.log.Info("stopped")
	return serveErr
}

// newClient builds the probe client from configuration.
func newClient(cfg config.Config, log *slog.Logger) (*jsonrest.Client, error) {
	backoff, err := retry.Exponential(retry.Config{
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2,
		JitterStrategy: retry.JitterEqual,
	})
	if err != nil {
		return nil, err
	}
	opts := []jsonrest.Option{
		jsonrest.WithTries(cfg.Probe.Tries),
		jsonrest.WithLogger(log.With("component", "jsonrest")),
		jsonrest.WithBackoff(backoff),
		jsonrest.WithRetryAfter(cfg.Probe.Timeout),
		jsonrest.WithTimeouts(cfg.Probe.Timeout, cfg.Probe.Timeout),
		jsonrest.WithRequestID(),
	}
	if cfg.Probe.UserAgent != "" {
		opts = append(opts, jsonrest.WithUserAgent(cfg.Probe.UserAgent))
	}
	if cfg.Probe.BearerToken != "" {
		opts = append(opts, jsonrest.WithBearerAuth(cfg.Probe.BearerToken))
	}
	if cfg.Probe.Username != "" || cfg.Probe.Password != "" {
		opts = append(opts, jsonrest.WithBasicAuth(cfg.Probe.Username, cfg.Probe.Password))
	}
	if cfg.Probe.Rate > 0 {
		burst := max(1, int(cfg.Probe.Rate))
		opts = append(opts, jsonrest.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Probe.Rate), burst)))
	}
	return jsonrest.New(cfg.Probe.Endpoint, opts...)
}

// scheduleProbes adds one job per target and returns the job names.
func scheduleProbes(s *scheduler.Scheduler, p *probe.Prober, cfg config.Config) ([]string, error) {
	names := make([]string, 0, len(cfg.Probe.Targets))
	for _, t := range cfg.Probe.Targets {
		target := probe.Target{Name: t.Name, Path: t.Path}
		name := "probe:" + t.Name
		_, err := s.AddCronJobWithOptions(cfg.Probe.Schedule, func(ctx context.Context) error {
			_, err := p.Check(ctx, target)
			return err
		}, scheduler.JobOptions{
			Name:          name,
			Timeout:       time.Duration(cfg.Probe.Tries+1) * cfg.Probe.Timeout,
			OverlapPolicy: scheduler.SkipIfRunning,
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", t.Name, err)
		}
		names = append(names, name)
	}
	return names, nil
}
