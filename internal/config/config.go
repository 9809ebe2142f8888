// Package config provides environment-aware configuration management for the
// dauth gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/dauth-gateway/internal/runtime"
	"github.com/joho/godotenv"
)

// Environment mirrors runtime.Environment for callers that only import config.
type Environment = runtime.Environment

// Config holds all application configuration for the gateway process.
type Config struct {
	// Environment
	Env Environment

	// HTTP server
	GatewayPort int

	// Logging
	LogLevel  string
	LogFormat string

	// Security
	CORSOrigins     []string
	SharedSecret    string // X-Shared-Secret header gate for trusted upstream proxies
	JWTSigningKey   string // used to verify the Variant-B bearer token (spec "secret")
	EnclaveKeyPath  string // path to the signed enclave binary; no component of this build reads it
	EnableDebugMode bool

	// OAuth2 providers
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GitHubClientID     string
	GitHubClientSecret string

	// Session
	SessionTTL        time.Duration
	SessionReapPeriod time.Duration

	// Work Pool
	WorkPoolSize    int
	WorkPoolTimeout time.Duration

	// Database
	DatabaseDSN      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Metrics
	MetricsEnabled bool
	MetricsPort    int
}

// Load loads configuration based on the DAUTH_ENV environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("DAUTH_ENV")
	if envStr == "" {
		envStr = string(runtime.Development)
	}

	parsedEnv, ok := runtime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid DAUTH_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	// Load environment-specific .env file. Optional: only warn on errors other
	// than "file not found" to keep CI/test output quiet.
	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.GatewayPort = getIntEnv("GATEWAY_PORT", 8080)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.CORSOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",")
	c.SharedSecret = getEnv("X_SHARED_SECRET", "")
	c.JWTSigningKey = getEnv("SECRET", "")
	c.EnclaveKeyPath = getEnv("ENCLAVE_PATH", "")
	c.EnableDebugMode = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", false)

	c.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", "")
	c.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", "")
	c.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", "")
	c.GitHubClientID = getEnv("GITHUB_CLIENT_ID", "")
	c.GitHubClientSecret = getEnv("GITHUB_CLIENT_SECRET", "")

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "8m"))
	if err != nil {
		return fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	c.SessionTTL = ttl
	reap, err := time.ParseDuration(getEnv("SESSION_REAP_PERIOD", "1m"))
	if err != nil {
		return fmt.Errorf("invalid SESSION_REAP_PERIOD: %w", err)
	}
	c.SessionReapPeriod = reap

	c.WorkPoolSize = getIntEnv("WORK_POOL_SIZE", 32)
	workPoolTimeout, err := time.ParseDuration(getEnv("WORK_POOL_TIMEOUT", "10s"))
	if err != nil {
		return fmt.Errorf("invalid WORK_POOL_TIMEOUT: %w", err)
	}
	c.WorkPoolTimeout = workPoolTimeout

	c.DatabaseDSN = getEnv("DATABASE_DSN", "")
	if c.DatabaseDSN == "" && env == runtime.Production {
		return fmt.Errorf("DATABASE_DSN is required in production")
	}
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	dbIdleTimeout, err := time.ParseDuration(getEnv("DB_IDLE_TIMEOUT", "5m"))
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = dbIdleTimeout

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env != runtime.Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	return nil
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool { return c.Env == runtime.Development }

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool { return c.Env == runtime.Production }

// Validate validates the configuration, applying stricter checks in production.
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		if c.IsProduction() {
			return errors.New("SECRET is required in production")
		}
		fmt.Println("Warning: SECRET is empty; Variant-B bearer tokens cannot be verified")
	} else if len(c.JWTSigningKey) < 32 && c.IsProduction() {
		return errors.New("SECRET must be at least 32 bytes in production")
	}

	if c.IsProduction() {
		if c.SharedSecret == "" {
			return errors.New("X_SHARED_SECRET is required in production")
		}
		if c.EnableDebugMode {
			return errors.New("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
	}

	if c.GatewayPort < 1 || c.GatewayPort > 65535 {
		return fmt.Errorf("invalid GATEWAY_PORT: %d", c.GatewayPort)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.WorkPoolSize <= 0 {
		return errors.New("WORK_POOL_SIZE must be > 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
