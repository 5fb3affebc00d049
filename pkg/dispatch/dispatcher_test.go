package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/cache"
	"github.com/Sternrassler/edge-cache/pkg/metrics"
	"github.com/Sternrassler/edge-cache/pkg/origin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend counts calls and delegates to fn.
type fakeBackend struct {
	calls atomic.Int64
	fn    func(ctx context.Context, path string) (cache.Payload, error)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Fetch(ctx context.Context, path string) (cache.Payload, error) {
	f.calls.Add(1)
	return f.fn(ctx, path)
}

func echoBackend() *fakeBackend {
	return &fakeBackend{fn: func(_ context.Context, path string) (cache.Payload, error) {
		return cache.NewPayload([]byte("body:" + path)), nil
	}}
}

func newDispatcher(t *testing.T, backend origin.Backend, coalesce bool) (*Dispatcher, *cache.Cache, *metrics.Counters) {
	t.Helper()
	c, err := cache.New(cache.DefaultConfig())
	require.NoError(t, err)

	counters := metrics.NewCounters(metrics.Requests)
	opts := DefaultOptions()
	opts.CoalesceMisses = coalesce
	return New(c, backend, counters, opts), c, counters
}

func get(d http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDispatcher_MissThenHit(t *testing.T) {
	backend := echoBackend()
	d, c, counters := newDispatcher(t, backend, true)

	first := get(d, "/x")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(HeaderCache))
	assert.Equal(t, "body:/x", first.Body.String())
	assert.Equal(t, uint64(1), counters.Get(metrics.Requests))
	assert.Equal(t, int64(1), backend.calls.Load())
	assert.True(t, c.Contains("/x"))

	second := get(d, "/x")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(HeaderCache))
	assert.Equal(t, "body:/x", second.Body.String())
	assert.Equal(t, uint64(2), counters.Get(metrics.Requests))
	assert.Equal(t, int64(1), backend.calls.Load(), "hit must not call the backend")
}

func TestDispatcher_StubPayload(t *testing.T) {
	d, _, _ := newDispatcher(t, origin.NewStub(origin.DefaultStubLatency, nil), true)

	rec := get(d, "/anything")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, origin.DefaultStubPayload, rec.Body.String())
}

func TestDispatcher_CountsEveryRequest(t *testing.T) {
	d, _, counters := newDispatcher(t, echoBackend(), true)

	paths := []string{"/a", "/b", "/a", "/c", "/a", "/b", "/d"}
	for _, p := range paths {
		get(d, p)
	}
	assert.Equal(t, uint64(len(paths)), counters.Get(metrics.Requests))
}

func TestDispatcher_KeyIsRawPath(t *testing.T) {
	backend := echoBackend()
	d, c, _ := newDispatcher(t, backend, true)

	get(d, "/a/b")
	get(d, "/a//b")
	get(d, "/a/b/")
	get(d, "/a/b?q=1")

	// The query is not part of the key; the other three paths are distinct.
	assert.Equal(t, int64(3), backend.calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestDispatcher_KeyKeepsPercentEncoding(t *testing.T) {
	backend := echoBackend()
	d, c, _ := newDispatcher(t, backend, true)

	raw := get(d, "/\xc3\xa4")
	encoded := get(d, "/%C3%A4")
	assert.Equal(t, "MISS", raw.Header().Get(HeaderCache))
	assert.Equal(t, "MISS", encoded.Header().Get(HeaderCache))

	upper := get(d, "/a%2Fb")
	lower := get(d, "/a%2fb")
	assert.Equal(t, "MISS", upper.Header().Get(HeaderCache))
	assert.Equal(t, "MISS", lower.Header().Get(HeaderCache))

	assert.Equal(t, int64(4), backend.calls.Load())
	assert.Equal(t, 4, c.Len())
	assert.True(t, c.Contains("/\xc3\xa4"))
	assert.True(t, c.Contains("/%C3%A4"))
	assert.True(t, c.Contains("/a%2Fb"))
	assert.True(t, c.Contains("/a%2fb"))
}

func TestDispatcher_HitMissCounters(t *testing.T) {
	for _, coalesce := range []bool{true, false} {
		name := "uncoalesced"
		if coalesce {
			name = "coalesced"
		}
		t.Run(name, func(t *testing.T) {
			d, _, _ := newDispatcher(t, echoBackend(), coalesce)

			hits := testutil.ToFloat64(cache.CacheHits)
			misses := testutil.ToFloat64(cache.CacheMisses)

			assert.Equal(t, "MISS", get(d, "/x").Header().Get(HeaderCache))
			assert.Equal(t, "HIT", get(d, "/x").Header().Get(HeaderCache))

			assert.Equal(t, 1.0, testutil.ToFloat64(cache.CacheMisses)-misses, "misses")
			assert.Equal(t, 1.0, testutil.ToFloat64(cache.CacheHits)-hits, "hits")
		})
	}
}

func TestDispatcher_MethodIgnored(t *testing.T) {
	backend := echoBackend()
	d, _, counters := newDispatcher(t, backend, true)

	for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, httptest.NewRequest(m, "/same", nil))
		assert.Equal(t, http.StatusOK, rec.Code, m)
		assert.Equal(t, "body:/same", rec.Body.String(), m)
	}
	assert.Equal(t, int64(1), backend.calls.Load())
	assert.Equal(t, uint64(3), counters.Get(metrics.Requests))
}

func TestDispatcher_BackendFailureNotCached(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: origin.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "origin error", err: &origin.Error{Origin: "fake", Class: origin.ErrorClassServer, StatusCode: 500}, wantStatus: http.StatusBadGateway},
		{name: "other error", err: errors.New("boom"), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{fn: func(context.Context, string) (cache.Payload, error) {
				return cache.Payload{}, tt.err
			}}
			d, c, counters := newDispatcher(t, backend, true)

			for i := 0; i < 2; i++ {
				rec := get(d, "/fail")
				assert.Equal(t, tt.wantStatus, rec.Code)
			}
			assert.False(t, c.Contains("/fail"))
			assert.Equal(t, 0, c.Len())
			assert.Equal(t, int64(2), backend.calls.Load(), "failure must not be cached")
			assert.Equal(t, uint64(2), counters.Get(metrics.Requests))
		})
	}
}

func TestDispatcher_CoalescedMisses(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{fn: func(_ context.Context, path string) (cache.Payload, error) {
		<-release
		return cache.NewPayload([]byte("body:" + path)), nil
	}}
	d, _, counters := newDispatcher(t, backend, true)

	const n = 20
	var wg sync.WaitGroup
	recs := make([]*httptest.ResponseRecorder, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recs[i] = get(d, "/hot")
		}(i)
	}

	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i, rec := range recs {
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "body:/hot", rec.Body.String(), "request %d", i)
	}
	assert.Equal(t, int64(1), backend.calls.Load())
	assert.Equal(t, uint64(n), counters.Get(metrics.Requests))
}

func TestDispatcher_UncoalescedMissesEachCallBackend(t *testing.T) {
	const n = 8

	var arrived atomic.Int64
	release := make(chan struct{})
	backend := &fakeBackend{fn: func(_ context.Context, path string) (cache.Payload, error) {
		if arrived.Add(1) == n {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(5 * time.Second):
			return cache.Payload{}, errors.New("not all misses reached the backend")
		}
		return cache.NewPayload([]byte("body:" + path)), nil
	}}
	d, c, _ := newDispatcher(t, backend, false)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := get(d, "/hot")
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), backend.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestDispatcher_Prefetch(t *testing.T) {
	backend := echoBackend()
	d, c, counters := newDispatcher(t, backend, true)

	require.NoError(t, d.Prefetch(context.Background(), "/warm"))
	require.NoError(t, d.Prefetch(context.Background(), "/warm"))

	assert.True(t, c.Contains("/warm"))
	assert.Equal(t, int64(1), backend.calls.Load())
	assert.Equal(t, uint64(0), counters.Get(metrics.Requests), "prefetch is not a request")

	rec := get(d, "/warm")
	assert.Equal(t, "HIT", rec.Header().Get(HeaderCache))
}

func TestDispatcher_PrefetchError(t *testing.T) {
	backend := &fakeBackend{fn: func(context.Context, string) (cache.Payload, error) {
		return cache.Payload{}, origin.ErrNotFound
	}}
	d, c, _ := newDispatcher(t, backend, true)

	err := d.Prefetch(context.Background(), "/missing")
	assert.ErrorIs(t, err, origin.ErrNotFound)
	assert.False(t, c.Contains("/missing"))
}

func TestDispatcher_CancelledWaiterDoesNotAbortFetch(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{fn: func(ctx context.Context, path string) (cache.Payload, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return cache.Payload{}, ctx.Err()
		}
		return cache.NewPayload([]byte("late")), nil
	}}
	d, c, _ := newDispatcher(t, backend, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Prefetch(ctx, "/slow") }()

	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool { return c.Contains("/slow") }, time.Second, time.Millisecond)
}

func TestDispatcher_BackendTimeout(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, _ string) (cache.Payload, error) {
		<-ctx.Done()
		return cache.Payload{}, ctx.Err()
	}}
	c, err := cache.New(cache.DefaultConfig())
	require.NoError(t, err)

	d := New(c, backend, metrics.NewCounters(metrics.Requests), Options{
		CoalesceMisses: true,
		BackendTimeout: 10 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})

	rec := get(d, "/stuck")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, c.Len())
}
