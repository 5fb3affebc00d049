// Package dispatch turns an HTTP request into a response using the shared
// cache and the origin backend.
//
// Every request is counted once, then looked up by its raw path. A hit is
// answered from cache. A miss calls the backend, stores the payload and
// answers with it. Failed backend calls are answered with 404 or 502 and are
// never cached.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/cache"
	"github.com/Sternrassler/edge-cache/pkg/metrics"
	"github.com/Sternrassler/edge-cache/pkg/origin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// HeaderCache reports whether the response came from cache.
	HeaderCache = "X-Cache"

	// DefaultBackendTimeout bounds one backend call.
	DefaultBackendTimeout = 10 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	// CoalesceMisses lets concurrent misses on one key share a single
	// backend call. When false every concurrent miss calls the backend.
	CoalesceMisses bool

	// BackendTimeout bounds each backend call. Zero selects
	// DefaultBackendTimeout.
	BackendTimeout time.Duration

	// Logger receives backend failures.
	Logger zerolog.Logger
}

// DefaultOptions returns options with coalescing enabled.
func DefaultOptions() Options {
	return Options{
		CoalesceMisses: true,
		BackendTimeout: DefaultBackendTimeout,
		Logger:         zerolog.Nop(),
	}
}

// Dispatcher is the request handler of the edge.
type Dispatcher struct {
	cache    *cache.Cache
	backend  origin.Backend
	counters *metrics.Counters
	opts     Options
	flight   singleflight.Group
}

// New creates a dispatcher. counters must know metrics.Requests.
func New(c *cache.Cache, backend origin.Backend, counters *metrics.Counters, opts Options) *Dispatcher {
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = DefaultBackendTimeout
	}
	return &Dispatcher{
		cache:    c,
		backend:  backend,
		counters: counters,
		opts:     opts,
	}
}

// ServeHTTP implements http.Handler. Method and headers are ignored.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.counters.Inc(metrics.Requests)

	key := cache.KeyForRequest(r)

	if p, ok := d.cache.Get(key); ok {
		d.writePayload(w, p, "HIT")
		return
	}

	p, err := d.load(r.Context(), key)
	if err != nil {
		d.writeError(w, key, err)
		return
	}
	d.writePayload(w, p, "MISS")
}

// Prefetch fills the cache for path without counting a request. It is a
// no-op when path is already cached.
func (d *Dispatcher) Prefetch(ctx context.Context, path string) error {
	if d.cache.Contains(path) {
		return nil
	}
	_, err := d.load(ctx, path)
	return err
}

// load fetches key from the backend and stores the result on success.
func (d *Dispatcher) load(ctx context.Context, key string) (cache.Payload, error) {
	if !d.opts.CoalesceMisses {
		return d.fetchAndStore(ctx, key)
	}

	ch := d.flight.DoChan(key, func() (any, error) {
		// A flight that finished between our miss and this call already
		// stored the payload.
		if p, ok := d.cache.Peek(key); ok {
			return p, nil
		}
		return d.fetchAndStore(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		return cache.Payload{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			coalescedTotal.Inc()
		}
		if res.Err != nil {
			return cache.Payload{}, res.Err
		}
		return res.Val.(cache.Payload), nil
	}
}

func (d *Dispatcher) fetchAndStore(ctx context.Context, key string) (cache.Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.BackendTimeout)
	defer cancel()

	p, err := d.backend.Fetch(ctx, key)
	if err != nil {
		return cache.Payload{}, err
	}
	d.cache.Put(key, p)
	return p, nil
}

func (d *Dispatcher) writePayload(w http.ResponseWriter, p cache.Payload, state string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(p.Len()))
	h.Set(HeaderCache, state)
	w.WriteHeader(http.StatusOK)
	responsesTotal.WithLabelValues("200").Inc()

	if _, err := w.Write(p.Bytes()); err != nil {
		d.opts.Logger.Debug().Err(err).Msg("Failed to write response body")
	}
}

func (d *Dispatcher) writeError(w http.ResponseWriter, key string, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, origin.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		status = http.StatusServiceUnavailable
	}

	d.opts.Logger.Warn().
		Err(err).
		Str("path", key).
		Str("backend", d.backend.Name()).
		Int("status", status).
		Msg("Backend fetch failed")

	w.Header().Set(HeaderCache, "MISS")
	responsesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	http.Error(w, http.StatusText(status), status)
}
