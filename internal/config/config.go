package config

import (
	"errors"
	"fmt"
	"time"
)

// Environment names accepted by the environment setting.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Store backends accepted by store.backend.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Identity sources accepted by auth.identity_source.
const (
	IdentityJWT    = "jwt"
	IdentityHeader = "header"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Environment string            `mapstructure:"environment" validate:"required,oneof=development test production"`
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Store       StoreConfig       `mapstructure:"store" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth" validate:"required"`
	Entitlement EntitlementConfig `mapstructure:"entitlement" validate:"required"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Billing     BillingConfig     `mapstructure:"billing"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects the account store implementation.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=none memory postgres redis"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// RedisConfig holds the connection settings for the redis account store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	IdentitySource string        `mapstructure:"identity_source" validate:"required,oneof=jwt header"`
	IdentityHeader string        `mapstructure:"identity_header"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenLifetime  time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// EntitlementConfig controls access enforcement.
type EntitlementConfig struct {
	// EnforcementDisabled lets every request with an account id through.
	// Rejected in production.
	EnforcementDisabled bool          `mapstructure:"enforcement_disabled"`
	StoreTimeout        time.Duration `mapstructure:"store_timeout" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
// The assistant endpoints are disabled when GeminiAPIKey is empty.
type LLMConfig struct {
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	ModelName    string        `mapstructure:"model_name"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0,lte=5"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// BillingConfig holds the shared secret for payment webhooks.
// The webhook route is not mounted when WebhookSecret is empty.
type BillingConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// RateLimitConfig bounds per-account request rates on the AI endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"gt=0"`
	Burst             int `mapstructure:"burst" validate:"gt=0"`
}

// Validation errors for rules that span several settings.
var (
	ErrEnforcementDisabledInProduction = errors.New("entitlement.enforcement_disabled is not allowed in production")
	ErrMissingDatabaseURL              = errors.New("database.url is required for the postgres store backend")
	ErrMissingRedisAddr                = errors.New("redis.addr is required for the redis store backend")
	ErrWeakJWTSecret                   = errors.New("auth.jwt_secret must be at least 32 characters for jwt identity")
	ErrMissingIdentityHeader           = errors.New("auth.identity_header is required for header identity")
	ErrEphemeralStoreInProduction      = errors.New("store.backend must be postgres or redis in production")
)

// Validate checks the rules struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() {
		if c.Entitlement.EnforcementDisabled {
			errs = append(errs, ErrEnforcementDisabledInProduction)
		}
		if c.Store.Backend == BackendNone || c.Store.Backend == BackendMemory {
			errs = append(errs, ErrEphemeralStoreInProduction)
		}
	}

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, ErrMissingRedisAddr)
		}
	}

	switch c.Auth.IdentitySource {
	case IdentityJWT:
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, ErrWeakJWTSecret)
		}
	case IdentityHeader:
		if c.Auth.IdentityHeader == "" {
			errs = append(errs, ErrMissingIdentityHeader)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
