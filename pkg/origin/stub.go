package origin

import (
	"context"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/cache"
)

const (
	// DefaultStubLatency is the artificial delay of the stub backend.
	DefaultStubLatency = 2 * time.Millisecond

	// DefaultStubPayload is returned by the stub for every path.
	DefaultStubPayload = "Hello from the edge!\n"
)

// Stub simulates an upstream with a fixed latency and a canned payload.
type Stub struct {
	latency time.Duration
	payload cache.Payload
}

// NewStub creates a stub backend. A nil payload selects DefaultStubPayload.
func NewStub(latency time.Duration, payload []byte) *Stub {
	if payload == nil {
		payload = []byte(DefaultStubPayload)
	}
	return &Stub{
		latency: latency,
		payload: cache.NewPayload(payload),
	}
}

// Name implements Backend.
func (s *Stub) Name() string {
	return "stub"
}

// Fetch waits for the configured latency and returns the canned payload.
// It only fails when ctx ends during the wait.
func (s *Stub) Fetch(ctx context.Context, _ string) (p cache.Payload, err error) {
	start := time.Now()
	defer func() { observe(s.Name(), start, err) }()

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return cache.Payload{}, ctx.Err()
		case <-timer.C:
		}
	}
	return s.payload, nil
}
