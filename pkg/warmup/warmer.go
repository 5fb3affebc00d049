package warmup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds warm-up configuration.
type Config struct {
	// Concurrency is the number of parallel prefetches.
	Concurrency int
	// Timeout per path.
	Timeout time.Duration
}

// DefaultConfig returns the default warm-up configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Filler fills the cache for one path.
type Filler interface {
	Prefetch(ctx context.Context, path string) error
}

// Result summarizes a warm-up run.
type Result struct {
	Total    int
	Filled   int
	Failed   map[string]error
	Duration time.Duration
}

// Warmer prefetches paths through a worker pool.
type Warmer struct {
	filler Filler
	config Config
}

// New creates a warmer.
func New(filler Filler, config Config) *Warmer {
	def := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Warmer{filler: filler, config: config}
}

type pathResult struct {
	path string
	err  error
}

// Run prefetches every distinct path. It returns an error only when ctx ends
// before all paths were attempted; the Result is valid either way.
func (w *Warmer) Run(ctx context.Context, paths []string) (Result, error) {
	start := time.Now()
	paths = dedupe(paths)

	res := Result{Total: len(paths), Failed: make(map[string]error)}
	if len(paths) == 0 {
		return res, nil
	}

	log.Info().
		Int("paths", len(paths)).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting cache warm-up")

	queue := make(chan string, len(paths))
	for _, p := range paths {
		queue <- p
	}
	close(queue)

	results := make(chan pathResult, len(paths))

	workers := min(w.config.Concurrency, len(paths))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go w.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	attempted := 0
	for r := range results {
		attempted++
		if r.err != nil {
			res.Failed[r.path] = r.err
			log.Warn().Err(r.err).Str("path", r.path).Msg("Warm-up prefetch failed")
			continue
		}
		res.Filled++
	}
	res.Duration = time.Since(start)

	if attempted < len(paths) {
		log.Warn().
			Int("attempted", attempted).
			Int("total", len(paths)).
			Msg("Warm-up interrupted")
		return res, fmt.Errorf("warm-up interrupted (%d/%d paths): %w", attempted, len(paths), ctx.Err())
	}

	log.Info().
		Int("filled", res.Filled).
		Int("failed", len(res.Failed)).
		Dur("duration", res.Duration).
		Msg("Cache warm-up complete")

	return res, nil
}

// worker prefetches paths from the queue until it is drained or ctx ends.
func (w *Warmer) worker(ctx context.Context, queue <-chan string, results chan<- pathResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for path := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("paths_processed", processed).
				Msg("Warm-up worker stopping (context cancelled)")
			return
		default:
		}

		pathCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		err := w.filler.Prefetch(pathCtx, path)
		cancel()

		results <- pathResult{path: path, err: err}
		processed++
	}
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
