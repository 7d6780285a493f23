// Package config loads service configuration from .env, an optional YAML file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Env         string `yaml:"node_env"`
	Port        int    `yaml:"port"`
	GRPCPort    int    `yaml:"grpc_port"`
	FrontendURL string `yaml:"frontend_url"`
	CORSOrigin  string `yaml:"cors_origin"`
	LogLevel    string `yaml:"log_level"`

	StoreDriver string `yaml:"store_driver"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`

	JWT      JWTConfig      `yaml:"jwt"`
	Security SecurityConfig `yaml:"security"`
	Redis    RedisConfig    `yaml:"redis"`
	Email    EmailConfig    `yaml:"email"`
	Dev      DevConfig      `yaml:"dev"`

	AuditPGDSN          string  `yaml:"audit_pg_dsn"`
	OTLPEndpoint        string  `yaml:"otlp_endpoint"`
	RateLimitPerSec     float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst      int     `yaml:"rate_limit_burst"`
	// TrustProxy takes the client address from X-Forwarded-For. Enable it only
	// when every request arrives through a reverse proxy that sets the header.
	TrustProxy          bool    `yaml:"trust_proxy"`
	MaintenanceSchedule string  `yaml:"maintenance_schedule"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_expires_in"`
	RefreshTTL time.Duration `yaml:"refresh_expires_in"`
}

type SecurityConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockTime         time.Duration `yaml:"lock_time"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
}

type RedisConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// DevConfig controls the local-only authentication bypass.
type DevConfig struct {
	AuthBypass bool   `yaml:"auth_bypass"`
	AuthRole   string `yaml:"auth_role"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Env:         "development",
		Port:        5000,
		GRPCPort:    9090,
		FrontendURL: "http://localhost:3000",
		CORSOrigin:  "http://localhost:3000",
		LogLevel:    "info",
		StoreDriver: "mongo",
		MongoURI:    "mongodb://localhost:27017",
		MongoDB:     "opsfloww",
		JWT: JWTConfig{
			AccessTTL:  20 * time.Minute,
			RefreshTTL: 20 * 24 * time.Hour,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 5,
			LockTime:         15 * time.Minute,
			BcryptCost:       12,
		},
		Redis: RedisConfig{
			Port:           6379,
			ConnectTimeout: 3 * time.Second,
		},
		Email: EmailConfig{
			Port: 587,
			From: "OpsFloww <no-reply@opsfloww.io>",
		},
		Dev:                 DevConfig{AuthRole: "user"},
		RateLimitPerSec:     5,
		RateLimitBurst:      20,
		MaintenanceSchedule: "@every 15m",
	}
}

// IsProduction reports whether the service runs for real traffic.
func (c Config) IsProduction() bool { return c.Env == "production" }

// DevBypassEnabled reports whether the development auth bypass is active.
func (c Config) DevBypassEnabled() bool {
	return c.Env == "development" && c.Dev.AuthBypass
}

// Load reads .env (if present), CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Env = getEnvOrDefault("NODE_ENV", c.Env)
	c.Port = getEnvInt("PORT", c.Port, &errs)
	c.GRPCPort = getEnvInt("GRPC_PORT", c.GRPCPort, &errs)
	c.FrontendURL = getEnvOrDefault("FRONTEND_URL", c.FrontendURL)
	c.CORSOrigin = getEnvOrDefault("CORS_ORIGIN", c.CORSOrigin)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	c.StoreDriver = getEnvOrDefault("STORE_DRIVER", c.StoreDriver)
	c.MongoURI = getEnvOrDefault("MONGO_URI", c.MongoURI)
	c.MongoDB = getEnvOrDefault("MONGO_DB", c.MongoDB)

	c.JWT.Secret = getEnvOrDefault("JWT_SECRET", c.JWT.Secret)
	c.JWT.AccessTTL = getEnvDuration("JWT_ACCESS_EXPIRES_IN", c.JWT.AccessTTL, &errs)
	c.JWT.RefreshTTL = getEnvDuration("JWT_REFRESH_EXPIRES_IN", c.JWT.RefreshTTL, &errs)

	c.Security.MaxLoginAttempts = getEnvInt("MAX_LOGIN_ATTEMPTS", c.Security.MaxLoginAttempts, &errs)
	c.Security.LockTime = getEnvDuration("LOCK_TIME", c.Security.LockTime, &errs)
	c.Security.BcryptCost = getEnvInt("BCRYPT_COST", c.Security.BcryptCost, &errs)

	c.Redis.Host = getEnvOrDefault("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port, &errs)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.ConnectTimeout = getEnvDuration("REDIS_CONNECT_TIMEOUT", c.Redis.ConnectTimeout, &errs)

	c.Email.Host = getEnvOrDefault("EMAIL_HOST", c.Email.Host)
	c.Email.Port = getEnvInt("EMAIL_PORT", c.Email.Port, &errs)
	c.Email.Username = getEnvOrDefault("EMAIL_USERNAME", c.Email.Username)
	c.Email.Password = getEnvOrDefault("EMAIL_PASSWORD", c.Email.Password)
	c.Email.From = getEnvOrDefault("EMAIL_FROM", c.Email.From)

	c.Dev.AuthBypass = getEnvBool("DEV_AUTH_BYPASS", c.Dev.AuthBypass, &errs)
	c.Dev.AuthRole = getEnvOrDefault("DEV_AUTH_ROLE", c.Dev.AuthRole)

	c.AuditPGDSN = getEnvOrDefault("AUDIT_PG_DSN", c.AuditPGDSN)
	c.OTLPEndpoint = getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.RateLimitPerSec = getEnvFloat("RATE_LIMIT_PER_SEC", c.RateLimitPerSec, &errs)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst, &errs)
	c.TrustProxy = getEnvBool("TRUST_PROXY", c.TrustProxy, &errs)
	c.MaintenanceSchedule = getEnvOrDefault("MAINTENANCE_SCHEDULE", c.MaintenanceSchedule)
	return errors.Join(errs...)
}

// Validate rejects configurations the service must not start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Env {
	case "development", "test", "production":
	default:
		errs = append(errs, fmt.Errorf("NODE_ENV must be development, test or production, got %q", c.Env))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.IsProduction() && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		errs = append(errs, errors.New("JWT_REFRESH_EXPIRES_IN must not be shorter than JWT_ACCESS_EXPIRES_IN"))
	}
	if c.Security.MaxLoginAttempts <= 0 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS must be positive"))
	}
	if c.Security.LockTime <= 0 {
		errs = append(errs, errors.New("LOCK_TIME must be positive"))
	}
	switch c.StoreDriver {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.StoreDriver))
	}
	if c.IsProduction() && c.StoreDriver == "memory" {
		errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
	}
	if c.Dev.AuthBypass && c.Env != "development" {
		errs = append(errs, errors.New("DEV_AUTH_BYPASS may only be enabled with NODE_ENV=development"))
	}
	if c.RateLimitPerSec < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

// ParseDuration accepts Go durations plus a "d" suffix for days ("20d").
// A bare integer is read as milliseconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty duration")
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}
