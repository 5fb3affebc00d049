package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/admission"
	"github.com/Sternrassler/edge-cache/pkg/cache"
	"github.com/Sternrassler/edge-cache/pkg/config"
	"github.com/Sternrassler/edge-cache/pkg/dispatch"
	"github.com/Sternrassler/edge-cache/pkg/metrics"
	"github.com/Sternrassler/edge-cache/pkg/origin"
	"github.com/Sternrassler/edge-cache/pkg/server"
	"github.com/Sternrassler/edge-cache/pkg/warmup"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const readyTimeout = 2 * time.Second

// app wires the edge components together.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	counters   *metrics.Counters
	cache      *cache.Cache
	backend    origin.Backend
	dispatcher *dispatch.Dispatcher
	server     *server.Server

	closers []func() error
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	runtime.GOMAXPROCS(cfg.Server.Workers)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		counters: metrics.NewCounters(metrics.Requests),
	}

	c, err := cache.New(cache.Config{Capacity: cfg.Cache.Capacity, Shards: cfg.Cache.Shards})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	a.cache = c

	backend, err := a.buildBackend()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.backend = backend

	a.dispatcher = dispatch.New(a.cache, a.backend, a.counters, dispatch.Options{
		CoalesceMisses: cfg.Cache.CoalesceMisses,
		BackendTimeout: cfg.Origin.Timeout,
		Logger:         logger.With().Str("component", "dispatch").Logger(),
	})

	var opts []admission.Option
	if cfg.Admission.AcquireTimeout > 0 {
		opts = append(opts, admission.WithAcquireTimeout(cfg.Admission.AcquireTimeout))
	}
	ctrl, err := admission.New(cfg.Admission.MaxConnections, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create admission controller: %w", err)
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		tlsConfig, err = server.LoadTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.ALPN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load tls materials: %w", err)
		}
	}

	a.server, err = server.New(server.Config{
		Addr:                 cfg.ListenAddr(),
		TLS:                  tlsConfig,
		HandshakeTimeout:     cfg.Server.HandshakeTimeout,
		ReadHeaderTimeout:    cfg.Server.ReadHeaderTimeout,
		IdleTimeout:          cfg.Server.IdleTimeout,
		MaxConcurrentStreams: cfg.Server.MaxConcurrentStreams,
	}, a.dispatcher, ctrl, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}

	return a, nil
}

func (a *app) buildBackend() (origin.Backend, error) {
	oc := a.cfg.Origin
	retry := origin.RetryConfig{
		MaxAttempts:    oc.Retry.MaxAttempts,
		InitialBackoff: oc.Retry.InitialBackoff,
		MaxBackoff:     oc.Retry.MaxBackoff,
	}

	switch oc.Type {
	case "stub":
		var payload []byte
		if oc.Stub.Payload != "" {
			payload = []byte(oc.Stub.Payload)
		}
		return origin.NewStub(oc.Stub.Latency, payload), nil

	case "http":
		return origin.NewHTTP(origin.HTTPConfig{
			BaseURL: oc.HTTP.BaseURL,
			Timeout: oc.Timeout,
			Retry:   retry,
		}, a.logger)

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     oc.Redis.Addr,
			Password: oc.Redis.Password,
			DB:       oc.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)

		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis origin at %s: %w", oc.Redis.Addr, err)
		}
		a.logger.Info().Str("addr", oc.Redis.Addr).Msg("Connected to Redis origin")

		return origin.NewRedis(client, origin.RedisConfig{
			KeyPrefix: oc.Redis.KeyPrefix,
			Retry:     retry,
		}, a.logger)

	default:
		return nil, fmt.Errorf("unknown origin type %q", oc.Type)
	}
}

// run warms the cache, starts the admin listener and serves until ctx ends.
func (a *app) run(ctx context.Context) error {
	if len(a.cfg.Warmup.Paths) > 0 {
		w := warmup.New(a.dispatcher, warmup.Config{
			Concurrency: a.cfg.Warmup.Concurrency,
			Timeout:     a.cfg.Warmup.Timeout,
		})
		_, err := w.Run(ctx, a.cfg.Warmup.Paths)
		if ctx.Err() != nil {
			a.logger.Info().Msg("Shutdown requested during warm-up")
			return nil
		}
		if err != nil {
			return err
		}
	}

	errc := make(chan error, 2)

	var admin *http.Server
	if a.cfg.Admin.Enabled {
		admin = &http.Server{
			Addr:              a.cfg.Admin.Address,
			Handler:           a.adminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info().Str("addr", admin.Addr).Msg("Admin server listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil {
			errc <- fmt.Errorf("edge server: %w", err)
			return
		}
		errc <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutting down edge cache")
	case runErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Edge server shutdown incomplete")
	}
	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("Admin server shutdown incomplete")
		}
	}

	a.logger.Info().
		Uint64("requests", a.counters.Get(metrics.Requests)).
		Int("cache_entries", a.cache.Len()).
		Msg("Edge cache stopped")

	return runErr
}

func (a *app) adminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(a.backend))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Close releases backend connections.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Debug().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports 503 while a backend that can be pinged is unreachable.
func readyHandler(backend origin.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := backend.(origin.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				http.Error(w, fmt.Sprintf("origin %s unreachable: %v", backend.Name(), err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "READY")
	}
}
