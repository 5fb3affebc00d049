package cache

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeyForRequest returns the cache key for r: the path of the request-target
// exactly as the client sent it, up to the first '?'. No cleaning, case
// folding or re-escaping is applied, so "/a", "/a/", "/A", "/\xc3\xa4" and
// "/%C3%A4" are distinct keys. Absolute-form and asterisk targets fall back
// to KeyFor(r.URL).
func KeyForRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if strings.HasPrefix(r.RequestURI, "/") {
		path, _, _ := strings.Cut(r.RequestURI, "?")
		return path
	}
	return KeyFor(r.URL)
}

// KeyFor returns the cache key for a parsed URL, its escaped path. Use it for
// paths that did not arrive on the wire, such as warm-up lists.
func KeyFor(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.EscapedPath()
}

// shardIndex maps a key to one of n shards.
func shardIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}

// shardCapacities splits capacity over n shards so that the parts sum to
// capacity and differ by at most one.
func shardCapacities(capacity, n int) []int {
	out := make([]int, n)
	base, rem := capacity/n, capacity%n
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}
