// Package cache provides the shared in-memory response cache of the edge.
//
// The cache maps a request path to an immutable payload and bounds memory with
// least-recently-used eviction:
//
// - Fixed capacity (default 1024 entries) across all shards
// - Lookup and insert both mark the key most recently used
// - Inserting past capacity evicts exactly one entry, the least recently used
// - Payloads are never mutated in place, only replaced
// - Prometheus metrics for hits, misses, evictions and live entries
//
// # Basic Usage
//
//	c, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	key := cache.KeyForRequest(req)
//	if p, ok := c.Get(key); ok {
//		w.Write(p.Bytes())
//		return
//	}
//
//	p := cache.NewPayload(body)
//	c.Put(key, p)
//
// # Locking
//
// Every Get and Put runs inside one exclusive critical section of the shard
// owning the key. With Shards set to 1 (the default) all traffic goes through a
// single lock. Larger shard counts route keys by xxhash and split the capacity
// so that the shard capacities add up to the configured total; the LRU
// guarantee then holds per shard.
//
// # Metrics
//
//   - edge_cache_hits_total - Lookups answered from cache
//   - edge_cache_misses_total - Lookups that found no entry
//   - edge_cache_evictions_total - Entries removed by the LRU policy
//   - edge_cache_entries - Live entries
package cache
