// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package focus assembles the focus session service.
//
// New wires storage, timers, event delivery, the session lifecycle manager,
// the Pomodoro engine and the HTTP routes. Run serves until its context is
// cancelled and then shuts everything down.
//
// # Usage
//
// Open source (built-in state store, no extra event channel):
//
//	cfg, err := config.Load(path)
//	svc, err := focus.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = svc.Run(ctx)
//
// With host extensions:
//
//	opts := extensions.DefaultOptions().
//	    WithStateSource(wearables).
//	    WithEventHook(pushService)
//	svc, err := focus.New(cfg, &opts)
package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianFocus/pkg/extensions"
	"github.com/AleutianAI/AleutianFocus/services/focus/cache"
	"github.com/AleutianAI/AleutianFocus/services/focus/commands"
	"github.com/AleutianAI/AleutianFocus/services/focus/config"
	"github.com/AleutianAI/AleutianFocus/services/focus/events"
	"github.com/AleutianAI/AleutianFocus/services/focus/handlers"
	"github.com/AleutianAI/AleutianFocus/services/focus/lifecycle"
	"github.com/AleutianAI/AleutianFocus/services/focus/middleware"
	"github.com/AleutianAI/AleutianFocus/services/focus/observability"
	"github.com/AleutianAI/AleutianFocus/services/focus/pomodoro"
	"github.com/AleutianAI/AleutianFocus/services/focus/records"
	"github.com/AleutianAI/AleutianFocus/services/focus/routes"
	"github.com/AleutianAI/AleutianFocus/services/focus/state"
	focusbadger "github.com/AleutianAI/AleutianFocus/services/focus/storage/badger"
	"github.com/AleutianAI/AleutianFocus/services/focus/timer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Service is a runnable focus service.
//
// # Thread Safety
//
// Run blocks and must be called at most once. Close may be called from any
// goroutine and is idempotent.
type Service interface {
	// Run recovers timers, serves HTTP until ctx is cancelled or the
	// listener fails, then shuts down gracefully and releases resources.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine. Used by integration tests.
	Router() *gin.Engine

	// Close stops timers and releases storage without serving.
	Close() error
}

type service struct {
	cfg    config.Config
	opts   extensions.ServiceOptions
	logger *slog.Logger
	clock  timer.Clock

	db       *focusbadger.DB
	registry *prometheus.Registry
	metrics  *observability.Metrics
	timers   *timer.Registry
	hub      *events.Hub
	influx   *events.InfluxSink
	sessions *lifecycle.Manager
	pomodoro *pomodoro.Engine
	router   *gin.Engine

	tracerCleanup func(context.Context)
	closeOnce     sync.Once
	closeErr      error
}

// Option adjusts construction. Used by tests.
type Option func(*service)

// WithClock replaces the wall clock driving timers and timestamps.
func WithClock(c timer.Clock) Option {
	return func(s *service) { s.clock = c }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *service) { s.logger = l }
}

// New builds the service described by cfg.
//
// # Description
//
// Initialization order:
//  1. OpenTelemetry tracing (skipped when no OTLP endpoint is configured)
//  2. Prometheus registry and focus metrics
//  3. BadgerDB (in memory when no data directory is configured)
//  4. Event sinks: websocket hub, log, InfluxDB (optional), host hook
//  5. Lifecycle manager, Pomodoro engine and command dispatcher
//  6. Gin router with tracing, rate limiting and routes
//
// If opts is nil, extensions.DefaultOptions() is used.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a component fails to initialize. Anything already
//     opened is released.
func New(cfg config.Config, opts *extensions.ServiceOptions, options ...Option) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &service{
		cfg:    cfg,
		opts:   extensions.DefaultOptions(),
		logger: slog.Default(),
		clock:  timer.RealClock{},
	}
	if opts != nil {
		s.opts = *opts
	}
	for _, o := range options {
		o(s)
	}

	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *service) init() error {
	cleanup, err := s.initTracer()
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.registry = prometheus.NewRegistry()
	if s.cfg.Telemetry.MetricsEnabled {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = observability.NewMetrics(s.registry)
	}

	if err := s.initStorage(); err != nil {
		return err
	}

	s.timers = timer.NewRegistry(s.clock, s.logger)
	s.metrics.RegisterLiveTimers(s.timers.Len)

	notifier := events.NewNotifier(s.initSinks(), s.cfg.Session.EmitTimeout, s.logger, s.metrics)

	stored := state.NewStoredProvider(
		state.NewStateSlot(s.db, s.cfg.Storage.StateTTL),
		s.cfg.Session.DefaultState, s.clock.Now, s.logger)
	var states handlers.States = stored
	if s.opts.StateSource != nil {
		states = hostStates{source: s.opts.StateSource, stored: stored}
	}

	audit := s.opts.Audit()
	s.sessions, err = lifecycle.NewManager(lifecycle.Deps{
		Store:    records.NewBadgerStore(s.db),
		Cache:    cache.NewSessionCache(s.db, s.cfg.Storage.ActiveSessionTTL),
		States:   states,
		Timers:   s.timers,
		Notifier: notifier,
		Audit:    audit,
		Metrics:  s.metrics,
		Logger:   s.logger,
	}, lifecycle.Config{
		TickInterval:       s.cfg.Session.TickInterval,
		ForceResumeMinutes: s.cfg.Session.ForceResumeMinutes,
		UpstreamTimeout:    s.cfg.Session.UpstreamTimeout,
		DefaultState:       s.cfg.Session.DefaultState,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	s.pomodoro, err = pomodoro.NewEngine(pomodoro.Deps{
		Cache:    cache.NewPomodoroCache(s.db, s.cfg.Storage.PomodoroTTL),
		Timers:   s.timers,
		Notifier: notifier,
		Audit:    audit,
		Metrics:  s.metrics,
		Logger:   s.logger,
	}, pomodoro.Config{
		WorkDuration:       s.cfg.Pomodoro.Work,
		ShortBreakDuration: s.cfg.Pomodoro.ShortBreak,
		LongBreakDuration:  s.cfg.Pomodoro.LongBreak,
		LongBreakEvery:     s.cfg.Pomodoro.LongBreakEvery,
		TickInterval:       s.cfg.Pomodoro.TickInterval,
		UpstreamTimeout:    s.cfg.Session.UpstreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create pomodoro engine: %w", err)
	}

	s.initRouter(states)
	return nil
}

func (s *service) initStorage() error {
	dbCfg := focusbadger.InMemoryConfig()
	if s.cfg.Storage.DataDir != "" {
		dbCfg = focusbadger.Config{
			Path:           s.cfg.Storage.DataDir,
			SyncWrites:     s.cfg.Storage.SyncWrites,
			GCInterval:     s.cfg.Storage.GCInterval,
			GCDiscardRatio: 0.5,
		}
	}
	dbCfg.Logger = s.logger.With("component", "badger")

	db, err := focusbadger.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	s.db = db
	if db.InMemory() {
		s.logger.Warn("No data directory configured, sessions will not survive a restart")
	} else {
		s.logger.Info("Opened focus storage", "path", db.Path())
	}
	return nil
}

func (s *service) initSinks() events.Sink {
	s.hub = events.NewHub(s.logger)
	sinks := events.MultiSink{s.hub, events.LogSink{Logger: s.logger}}

	if s.cfg.Influx.URL != "" {
		s.influx = events.NewInfluxSink(events.InfluxConfig{
			URL:    s.cfg.Influx.URL,
			Token:  s.cfg.Influx.Token,
			Org:    s.cfg.Influx.Org,
			Bucket: s.cfg.Influx.Bucket,
		})
		sinks = append(sinks, s.influx)
		s.logger.Info("Session analytics enabled", "influx_url", s.cfg.Influx.URL)
	}

	if s.opts.EventHook != nil {
		sinks = append(sinks, hookSink(s.opts.EventHook))
	}
	return sinks
}

func (s *service) initRouter(states handlers.States) {
	if s.cfg.Server.GinMode != "" {
		gin.SetMode(s.cfg.Server.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(s.cfg.Telemetry.ServiceName))

	deps := routes.Deps{
		Sessions:     s.sessions,
		Pomodoro:     s.pomodoro,
		States:       states,
		Events:       s.hub,
		Dispatcher:   commands.NewDispatcher(s.sessions, s.pomodoro),
		RateObserver: s.metrics,
		Gatherer:     s.registry,
	}
	if s.cfg.RateLimit.RequestsPerSecond > 0 {
		deps.Limiters = middleware.NewLimiters(middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimit.RequestsPerSecond,
			Burst:             s.cfg.RateLimit.Burst,
		})
	}
	routes.SetupRoutes(s.router, deps)
}

// initTracer installs the OTLP exporter. With no endpoint configured the
// global no-op provider stays in place.
func (s *service) initTracer() (func(context.Context), error) {
	endpoint := s.cfg.Telemetry.OTLPEndpoint
	if endpoint == "" {
		return func(context.Context) {}, nil
	}
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.cfg.Telemetry.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}
	s.logger.Info("Tracing enabled", "otlp_endpoint", endpoint)
	return cleanup, nil
}

func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	if n, err := s.sessions.RecoverTimers(ctx); err != nil {
		s.logger.Warn("Session timer recovery incomplete", "recovered", n, "error", err)
	} else if n > 0 {
		s.logger.Info("Recovered session timers", "count", n)
	}
	if n, err := s.pomodoro.RecoverTimers(ctx); err != nil {
		s.logger.Warn("Pomodoro timer recovery incomplete", "recovered", n, "error", err)
	} else if n > 0 {
		s.logger.Info("Recovered pomodoro timers", "count", n)
	}

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting focus server", "port", s.cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down focus server")
		// live websocket subscribers are hijacked and not tracked by Shutdown
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases everything New opened, in reverse order.
func (s *service) Close() error {
	s.closeOnce.Do(func() {
		if s.timers != nil {
			s.timers.StopAll()
		}
		if s.hub != nil {
			s.hub.Close()
		}
		if s.influx != nil {
			s.influx.Close()
		}
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	})
	return s.closeErr
}

var _ Service = (*service)(nil)
