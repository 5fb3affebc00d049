// Package warmup fills the response cache with a list of paths before the
// edge starts taking traffic.
//
// Paths are distributed across a bounded worker pool; each prefetch runs with
// its own timeout. Failed paths are logged and counted but never abort the
// run, so a partly unavailable origin does not block startup.
//
// Example usage:
//
//	w := warmup.New(dispatcher, warmup.DefaultConfig())
//	res, err := w.Run(ctx, []string{"/", "/index.html"})
package warmup
