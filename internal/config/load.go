package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the service reads.
const EnvPrefix = "STUDYPAL"

var defaults = map[string]any{
	"environment":                      EnvDevelopment,
	"server.port":                      8080,
	"server.log_level":                 "info",
	"server.log_format":                "json",
	"server.shutdown_timeout":          15 * time.Second,
	"store.backend":                    BackendMemory,
	"database.url":                     "",
	"database.max_open_conns":          25,
	"database.max_idle_conns":          5,
	"redis.addr":                       "",
	"redis.password":                   "",
	"redis.db":                         0,
	"auth.identity_source":             IdentityHeader,
	"auth.identity_header":             "X-Account-ID",
	"auth.jwt_secret":                  "",
	"auth.token_lifetime":              time.Hour,
	"entitlement.enforcement_disabled": false,
	"entitlement.store_timeout":        2 * time.Second,
	"llm.gemini_api_key":               "",
	"llm.model_name":                   "gemini-2.0-flash",
	"llm.max_retries":                  3,
	"llm.retry_delay":                  2 * time.Second,
	"billing.webhook_secret":           "",
	"ratelimit.requests_per_minute":    30,
	"ratelimit.burst":                  5,
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return LoadFrom(v)
}

// LoadFrom applies defaults and environment bindings to v, then decodes and
// validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	// AutomaticEnv only resolves keys viper already knows about, so every key
	// gets a default.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
