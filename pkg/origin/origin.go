// Package origin provides the backends the edge falls through to on a cache
// miss: a fixed-latency stub, an upstream HTTP server and a Redis keyspace.
package origin

import (
	"context"

	"github.com/Sternrassler/edge-cache/pkg/cache"
)

// Backend produces the payload for a request path.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Fetch returns the payload for path. It returns ErrNotFound when the
	// origin has nothing for path.
	Fetch(ctx context.Context, path string) (cache.Payload, error)
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
