// Package config loads the service's single validated configuration struct
// from a YAML file with environment-variable overrides, failing fast on any
// parse or validation error (SPEC_FULL.md §8).
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects the session store implementation.
type StoreBackend string

const (
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

// RateLimitBackend selects the rate-limit engine's limiter implementation.
type RateLimitBackend string

const (
	RateLimitBackendLocal    RateLimitBackend = "local"
	RateLimitBackendRedis    RateLimitBackend = "redis"
	RateLimitBackendAllowAll RateLimitBackend = "allow-all"
)

// SinkDriver selects the attempt-completion durable sink's SQL dialect.
type SinkDriver string

const (
	SinkDriverSQLite   SinkDriver = "sqlite"
	SinkDriverPostgres SinkDriver = "postgres"
)

// TwilioMessagingConfig configures the provided-code Twilio SMS adapter.
type TwilioMessagingConfig struct {
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	MessagingID string `yaml:"messaging_id"`
}

// TwilioVerifyConfig configures the delegated Twilio Verify adapter.
type TwilioVerifyConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	ServiceSID string `yaml:"service_sid"`
}

// MessageBirdConfig configures the provided-code MessageBird SMS adapter.
type MessageBirdConfig struct {
	AccessKey  string `yaml:"access_key"`
	Originator string `yaml:"originator"`
}

// RouteEntry pins one (country code, transport) pair to an adapter name in
// the selection strategy's routing table.
type RouteEntry struct {
	CountryCode int    `yaml:"country_code"`
	Transport   string `yaml:"transport"`
	Adapter     string `yaml:"adapter"`
}

// Config is the service's single validated configuration struct.
type Config struct {
	Profile    string `yaml:"profile"`
	ListenAddr string `yaml:"listen_addr"`

	StoreBackend     StoreBackend     `yaml:"store_backend"`
	RateLimitBackend RateLimitBackend `yaml:"rate_limit_backend"`
	RedisAddr        string           `yaml:"redis_addr"`
	RedisPassword    string           `yaml:"redis_password"`
	RedisDB          int              `yaml:"redis_db"`

	SinkDriver SinkDriver `yaml:"sink_driver"`
	SinkDSN    string     `yaml:"sink_dsn"`

	DefaultSessionTTL   time.Duration `yaml:"default_session_ttl"`
	SenderCallAttempts  uint          `yaml:"sender_call_attempts"`
	DispatchConcurrency int64         `yaml:"dispatch_concurrency"`

	FallbackAdapter string       `yaml:"fallback_adapter"`
	Routes          []RouteEntry `yaml:"routes"`

	TwilioMessaging TwilioMessagingConfig `yaml:"twilio_messaging"`
	TwilioVerify    TwilioVerifyConfig    `yaml:"twilio_verify"`
	MessageBird     MessageBirdConfig     `yaml:"message_bird"`

	OTELServiceName            string        `yaml:"otel_service_name"`
	OTELEnvironment            string        `yaml:"otel_environment"`
	OTELMetricsEnabled         bool          `yaml:"otel_metrics_enabled"`
	OTELTracingEnabled         bool          `yaml:"otel_tracing_enabled"`
	OTELLoggingEnabled         bool          `yaml:"otel_logging_enabled"`
	OTELExporterOTLPEndpoint   string        `yaml:"otel_exporter_otlp_endpoint"`
	OTELExporterOTLPInsecure   bool          `yaml:"otel_exporter_otlp_insecure"`
	OTELMetricsExportInterval  time.Duration `yaml:"otel_metrics_export_interval"`
}

// Load reads path as YAML, applies VERIFYSVC_-prefixed environment overrides,
// fills defaults, and validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				err = fmt.Errorf("load config: %w", err)
				recordConfigValidationEvent(ctx, cfg.Profile, "failure", classifyConfigLoadError(err))
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			err = fmt.Errorf("parse config: %w", err)
			recordConfigValidationEvent(ctx, cfg.Profile, "failure", classifyConfigLoadError(err))
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigValidationEvent(ctx, cfg.Profile, "failure", classifyConfigLoadError(err))
		return nil, err
	}

	recordConfigValidationEvent(ctx, cfg.Profile, "success", "none")
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Profile:             "development",
		ListenAddr:          ":8080",
		StoreBackend:        StoreBackendMemory,
		RateLimitBackend:    RateLimitBackendAllowAll,
		SinkDriver:          SinkDriverSQLite,
		SinkDSN:             "file:verifysvc.db?mode=rwc",
		DefaultSessionTTL:   10 * time.Minute,
		SenderCallAttempts:  3,
		DispatchConcurrency: 16,
		FallbackAdapter:     "last-digits",
		OTELServiceName:     "verifysvc",
		OTELEnvironment:     "development",
		OTELMetricsExportInterval: 15 * time.Second,
	}
}

// envOverrides lists the VERIFYSVC_ environment variables that, when set,
// override the corresponding YAML field.
var envOverrides = map[string]func(cfg *Config, v string){
	"VERIFYSVC_PROFILE":               func(c *Config, v string) { c.Profile = v },
	"VERIFYSVC_LISTEN_ADDR":           func(c *Config, v string) { c.ListenAddr = v },
	"VERIFYSVC_STORE_BACKEND":         func(c *Config, v string) { c.StoreBackend = StoreBackend(v) },
	"VERIFYSVC_RATE_LIMIT_BACKEND":    func(c *Config, v string) { c.RateLimitBackend = RateLimitBackend(v) },
	"VERIFYSVC_REDIS_ADDR":            func(c *Config, v string) { c.RedisAddr = v },
	"VERIFYSVC_REDIS_PASSWORD":        func(c *Config, v string) { c.RedisPassword = v },
	"VERIFYSVC_SINK_DRIVER":           func(c *Config, v string) { c.SinkDriver = SinkDriver(v) },
	"VERIFYSVC_SINK_DSN":              func(c *Config, v string) { c.SinkDSN = v },
	"VERIFYSVC_TWILIO_ACCOUNT_SID":    func(c *Config, v string) { c.TwilioMessaging.AccountSID = v; c.TwilioVerify.AccountSID = v },
	"VERIFYSVC_TWILIO_AUTH_TOKEN":     func(c *Config, v string) { c.TwilioMessaging.AuthToken = v; c.TwilioVerify.AuthToken = v },
	"VERIFYSVC_MESSAGEBIRD_ACCESS_KEY": func(c *Config, v string) { c.MessageBird.AccessKey = v },
	"VERIFYSVC_OTEL_EXPORTER_OTLP_ENDPOINT": func(c *Config, v string) { c.OTELExporterOTLPEndpoint = v },
}

func applyEnvOverrides(cfg *Config) {
	for key, apply := range envOverrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			apply(cfg, v)
		}
	}
	if v, ok := os.LookupEnv("VERIFYSVC_REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v, ok := os.LookupEnv("VERIFYSVC_OTEL_METRICS_ENABLED"); ok {
		cfg.OTELMetricsEnabled = parseBool(v)
	}
	if v, ok := os.LookupEnv("VERIFYSVC_OTEL_TRACING_ENABLED"); ok {
		cfg.OTELTracingEnabled = parseBool(v)
	}
	if v, ok := os.LookupEnv("VERIFYSVC_OTEL_LOGGING_ENABLED"); ok {
		cfg.OTELLoggingEnabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("store_backend must be %q or %q", StoreBackendMemory, StoreBackendRedis)
	}
	switch c.RateLimitBackend {
	case RateLimitBackendLocal, RateLimitBackendRedis, RateLimitBackendAllowAll:
	default:
		return fmt.Errorf("rate_limit_backend must be %q, %q, or %q", RateLimitBackendLocal, RateLimitBackendRedis, RateLimitBackendAllowAll)
	}
	if c.StoreBackend == StoreBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when store_backend is %q", StoreBackendRedis)
	}
	if c.RateLimitBackend == RateLimitBackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when rate_limit_backend is %q", RateLimitBackendRedis)
	}
	switch c.SinkDriver {
	case SinkDriverSQLite, SinkDriverPostgres:
	default:
		return fmt.Errorf("sink_driver must be %q or %q", SinkDriverSQLite, SinkDriverPostgres)
	}
	if c.SinkDSN == "" {
		return fmt.Errorf("sink_dsn must not be empty")
	}
	if c.DefaultSessionTTL <= 0 {
		return fmt.Errorf("default_session_ttl must be positive")
	}
	if c.DispatchConcurrency <= 0 {
		return fmt.Errorf("dispatch_concurrency must be positive")
	}
	if c.FallbackAdapter == "" {
		return fmt.Errorf("fallback_adapter must not be empty")
	}
	return nil
}
