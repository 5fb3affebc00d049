// Package config loads the edge configuration from defaults, an optional YAML
// file and the environment.
//
// Precedence, lowest to highest:
//   - built-in defaults
//   - the config file passed to Load
//   - EDGE_* environment variables (EDGE_CACHE_CAPACITY=2048 sets cache.capacity)
//   - PORT, which sets the listen port in plaintext mode when server.port is unset
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EDGE"

// Config is the complete edge configuration. It is not modified after Load.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Origin    OriginConfig    `mapstructure:"origin"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Warmup    WarmupConfig    `mapstructure:"warmup"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig controls the edge listener.
type ServerConfig struct {
	// Address is the bind host; Port is chosen from the TLS mode when zero.
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port" validate:"gte=1,lte=65535"`

	// Workers sets GOMAXPROCS.
	Workers int `mapstructure:"workers" validate:"gte=1"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	MaxConcurrentStreams uint32 `mapstructure:"max_concurrent_streams" validate:"gte=1"`
}

// TLSConfig controls TLS termination.
type TLSConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	CertFile string   `mapstructure:"cert_file"`
	KeyFile  string   `mapstructure:"key_file"`
	ALPN     []string `mapstructure:"alpn" validate:"dive,oneof=h2 http/1.1"`
}

// AdmissionConfig controls the connection permit budget.
type AdmissionConfig struct {
	MaxConnections int64 `mapstructure:"max_connections" validate:"gte=1"`

	// AcquireTimeout rejects a connection after waiting this long. Zero waits.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"gte=0"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Capacity       int  `mapstructure:"capacity" validate:"gte=1"`
	Shards         int  `mapstructure:"shards" validate:"gte=1"`
	CoalesceMisses bool `mapstructure:"coalesce_misses"`
}

// OriginConfig selects and configures the backend.
type OriginConfig struct {
	Type    string        `mapstructure:"type" validate:"required,oneof=stub http redis"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	Stub  StubOriginConfig  `mapstructure:"stub"`
	HTTP  HTTPOriginConfig  `mapstructure:"http"`
	Redis RedisOriginConfig `mapstructure:"redis"`
	Retry RetryConfig       `mapstructure:"retry"`
}

// StubOriginConfig configures the fixed-latency stub.
type StubOriginConfig struct {
	Latency time.Duration `mapstructure:"latency" validate:"gte=0"`
	Payload string        `mapstructure:"payload"`
}

// HTTPOriginConfig configures the upstream HTTP origin.
type HTTPOriginConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// RedisOriginConfig configures the Redis origin.
type RedisOriginConfig struct {
	Addr      string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RetryConfig configures origin retries.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// AdminConfig controls the health and metrics listener.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// WarmupConfig lists paths prefetched before serving.
type WarmupConfig struct {
	Paths       []string      `mapstructure:"paths" validate:"dive,startswith=/"`
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ListenAddr returns the edge listen address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// Load reads the configuration. An empty path skips the config file; a path
// that does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Server.Port == 0 && !cfg.TLS.Enabled {
		if raw := v.GetString("port"); raw != "" {
			port, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", raw, err)
			}
			cfg.Server.Port = port
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PORT is unprefixed.
	_ = v.BindEnv("port", "PORT")

	setDefaults(v)
}
