package config

import (
	"strings"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/admission"
	"github.com/Sternrassler/edge-cache/pkg/cache"
	"github.com/Sternrassler/edge-cache/pkg/origin"
	"github.com/Sternrassler/edge-cache/pkg/server"
)

const (
	// DefaultWorkers is the default GOMAXPROCS.
	DefaultWorkers = 12

	defaultShutdownTimeout = 15 * time.Second
	defaultOriginTimeout   = 10 * time.Second
	defaultAdminAddress    = "127.0.0.1:9090"
)

// setDefaults registers every key with viper so that environment overrides
// are seen by Unmarshal. server.port stays unset; it depends on the TLS mode.
func setDefaults(v interface{ SetDefault(string, any) }) {
	retry := origin.DefaultRetryConfig()

	defaults := map[string]any{
		"logging.level":  "info",
		"logging.pretty": false,

		"server.address":                "0.0.0.0",
		"server.port":                   0,
		"server.workers":                DefaultWorkers,
		"server.read_header_timeout":    10 * time.Second,
		"server.idle_timeout":           2 * time.Minute,
		"server.handshake_timeout":      server.DefaultHandshakeTimeout,
		"server.shutdown_timeout":       defaultShutdownTimeout,
		"server.max_concurrent_streams": server.DefaultMaxConcurrentStreams,

		"tls.enabled":   false,
		"tls.cert_file": "cert.pem",
		"tls.key_file":  "key.pem",
		"tls.alpn":      server.DefaultALPN,

		"admission.max_connections": admission.DefaultCapacity,
		"admission.acquire_timeout": time.Duration(0),

		"cache.capacity":        cache.DefaultCapacity,
		"cache.shards":          cache.DefaultShards,
		"cache.coalesce_misses": true,

		"origin.type":                   "stub",
		"origin.timeout":                defaultOriginTimeout,
		"origin.stub.latency":           origin.DefaultStubLatency,
		"origin.stub.payload":           origin.DefaultStubPayload,
		"origin.http.base_url":          "",
		"origin.redis.addr":             "",
		"origin.redis.password":         "",
		"origin.redis.db":               0,
		"origin.redis.key_prefix":       origin.DefaultRedisKeyPrefix,
		"origin.retry.max_attempts":     retry.MaxAttempts,
		"origin.retry.initial_backoff":  retry.InitialBackoff,
		"origin.retry.max_backoff":      retry.MaxBackoff,

		"admin.enabled": true,
		"admin.address": defaultAdminAddress,

		"warmup.paths":       []string{},
		"warmup.concurrency": 4,
		"warmup.timeout":     10 * time.Second,
	}

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// ApplyDefaults fills zero values of a Config built without Load.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server, cfg.TLS.Enabled)
	applyTLSDefaults(&cfg.TLS)

	if cfg.Admission.MaxConnections == 0 {
		cfg.Admission.MaxConnections = admission.DefaultCapacity
	}

	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = cache.DefaultCapacity
	}
	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = cache.DefaultShards
	}

	applyOriginDefaults(&cfg.Origin)

	if cfg.Admin.Address == "" {
		cfg.Admin.Address = defaultAdminAddress
	}

	if cfg.Warmup.Concurrency == 0 {
		cfg.Warmup.Concurrency = 4
	}
	if cfg.Warmup.Timeout == 0 {
		cfg.Warmup.Timeout = 10 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Level = strings.ToLower(cfg.Level)
}

func applyServerDefaults(cfg *ServerConfig, tlsEnabled bool) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0"
	}
	if cfg.Port == 0 {
		if tlsEnabled {
			cfg.Port = server.DefaultTLSPort
		} else {
			cfg.Port = server.DefaultPlainPort
		}
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = server.DefaultHandshakeTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = server.DefaultMaxConcurrentStreams
	}
}

func applyTLSDefaults(cfg *TLSConfig) {
	if cfg.CertFile == "" {
		cfg.CertFile = "cert.pem"
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = "key.pem"
	}
	if len(cfg.ALPN) == 0 {
		cfg.ALPN = append([]string(nil), server.DefaultALPN...)
	}
}

func applyOriginDefaults(cfg *OriginConfig) {
	if cfg.Type == "" {
		cfg.Type = "stub"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOriginTimeout
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = origin.DefaultRedisKeyPrefix
	}

	retry := origin.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = retry.InitialBackoff
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = retry.MaxBackoff
	}
}
