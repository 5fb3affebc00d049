package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first, then the rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.TLS.Enabled {
		for _, f := range []struct{ key, path string }{
			{"tls.cert_file", cfg.TLS.CertFile},
			{"tls.key_file", cfg.TLS.KeyFile},
		} {
			if f.path == "" {
				return fmt.Errorf("%s: required when tls.enabled is true", f.key)
			}
			if _, err := os.Stat(f.path); err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
		}
	}

	switch cfg.Origin.Type {
	case "http":
		if cfg.Origin.HTTP.BaseURL == "" {
			return errors.New("origin.http.base_url: required when origin.type is http")
		}
	case "redis":
		if cfg.Origin.Redis.Addr == "" {
			return errors.New("origin.redis.addr: required when origin.type is redis")
		}
	}

	if cfg.Cache.Shards > cfg.Cache.Capacity {
		return fmt.Errorf("cache.shards: %d exceeds cache.capacity %d", cfg.Cache.Shards, cfg.Cache.Capacity)
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
