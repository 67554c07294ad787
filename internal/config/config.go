// Package config loads process settings from the environment and optional .env files.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	RevocationPostgres = "postgres"
	RevocationRedis    = "redis"
)

// Config is the resolved application configuration.
type Config struct {
	AppEnv    string
	HTTPAddr  string
	GRPCAddr  string
	LogLevel  string
	LogFormat string

	DatabaseURL string

	JWTSecret    string
	JWTIssuer    string
	JWTExpiresIn time.Duration

	RevocationBackend string
	PurgeInterval     time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	ThrottleTTL   time.Duration
	ThrottleLimit int
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	TrustedProxies []netip.Prefix
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	envFiles []string
}

// WithEnvFiles replaces the default .env.local/.env search list.
func WithEnvFiles(paths ...string) Option {
	return func(l *loader) { l.envFiles = paths }
}

var defaults = map[string]any{
	"APP_ENV":                 "development",
	"HTTP_ADDR":               ":3000",
	"GRPC_ADDR":               ":9090",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"AUTH_JWT_ISSUER":         "orgdesk",
	"AUTH_JWT_EXPIRES_IN":     3600,
	"AUTH_REVOCATION_BACKEND": RevocationPostgres,
	"AUTH_PURGE_INTERVAL":     "1h",
	"REDIS_DB":                0,
	"THROTTLE_TTL":            60000,
	"THROTTLE_LIMIT":          10,
	"TRUSTED_PROXIES":         "",
}

// Load reads .env files (without overriding variables already set), then the environment.
func Load(opts ...Option) (Config, error) {
	l := loader{envFiles: []string{".env.local", ".env"}}
	for _, opt := range opts {
		opt(&l)
	}
	if err := LoadEnvFiles(l.envFiles...); err != nil {
		return Config{}, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := Config{
		AppEnv:            v.GetString("APP_ENV"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		GRPCAddr:          v.GetString("GRPC_ADDR"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		JWTSecret:         v.GetString("AUTH_JWT_SECRET"),
		JWTIssuer:         v.GetString("AUTH_JWT_ISSUER"),
		JWTExpiresIn:      time.Duration(v.GetInt64("AUTH_JWT_EXPIRES_IN")) * time.Second,
		RevocationBackend: strings.ToLower(v.GetString("AUTH_REVOCATION_BACKEND")),
		PurgeInterval:     v.GetDuration("AUTH_PURGE_INTERVAL"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		ThrottleTTL:       time.Duration(v.GetInt64("THROTTLE_TTL")) * time.Millisecond,
		ThrottleLimit:     v.GetInt("THROTTLE_LIMIT"),
	}
	proxies, err := ParseTrustedProxies(v.GetString("TRUSTED_PROXIES"))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.TrustedProxies = proxies
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseTrustedProxies reads a comma-separated list of IPs and CIDR ranges.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// LoadEnvFiles exports variables from the given files that exist. Variables
// already present in the environment win.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func (c Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("AUTH_JWT_EXPIRES_IN must be positive"))
	}
	switch c.RevocationBackend {
	case RevocationPostgres:
	case RevocationRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis revocation backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_REVOCATION_BACKEND %q is not supported", c.RevocationBackend))
	}
	if c.PurgeInterval <= 0 {
		errs = append(errs, errors.New("AUTH_PURGE_INTERVAL must be positive"))
	}
	if c.ThrottleTTL <= 0 || c.ThrottleLimit <= 0 {
		errs = append(errs, errors.New("THROTTLE_TTL and THROTTLE_LIMIT must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
