package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/agrotrack/plotmanager/internal/featureflags"
)

const (
	EnvironmentDev  = "dev"
	EnvironmentProd = "prod"
)

// devJWTSecret is only ever used outside prod
const devJWTSecret = "plotmanager-dev-secret-do-not-use-in-prod"

// Config holds the application configuration
type Config struct {
	Environment          string
	ServerPort           int
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	MigrateOnStart       bool
	RedisURL             string
	JWTSecret            string
	JWTIssuer            string
	UsingDevSecret       bool
	LogLevel             string
	LogFormat            string
	CORSAllowedOrigins   []string
	PlotStatuses         []string
	PlotDefaultStatus    string
	OTLPEndpoint         string
	TraceSampleRatio     float64
	OpenRoleRegistration bool
}

// Load reads a .env file when present, then configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from environment variables only
func FromEnv() (*Config, error) {
	env, err := normalizeEnvironment(getEnv("ENVIRONMENT", EnvironmentDev))
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLER_ARG", "1"), 64)
	if err != nil || sampleRatio < 0 || sampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG %q: expected a ratio between 0 and 1", os.Getenv("OTEL_TRACES_SAMPLER_ARG"))
	}

	migrateOnStart, err := strconv.ParseBool(getEnv("MIGRATE_ON_START", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATE_ON_START: %w", err)
	}

	secret := os.Getenv("JWT_SECRET")
	usingDevSecret := false
	if secret == "" {
		if env == EnvironmentProd {
			return nil, errors.New("JWT_SECRET is required in prod")
		}
		secret = devJWTSecret
		usingDevSecret = true
	}

	return &Config{
		Environment:          env,
		ServerPort:           port,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxOpenConns:       maxOpen,
		DBMaxIdleConns:       maxIdle,
		MigrateOnStart:       migrateOnStart,
		RedisURL:             os.Getenv("REDIS_URL"),
		JWTSecret:            secret,
		JWTIssuer:            getEnv("JWT_ISSUER", "plotmanager"),
		UsingDevSecret:       usingDevSecret,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins:   parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		PlotStatuses:         parseCSVEnv("PLOT_STATUSES", nil),
		PlotDefaultStatus:    getEnv("PLOT_DEFAULT_STATUS", "unsown"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:     sampleRatio,
		OpenRoleRegistration: featureflags.Enabled(featureflags.OpenRoleRegistration),
	}, nil
}

// IsProd reports whether cookies and secrets follow production rules
func (c *Config) IsProd() bool {
	return c.Environment == EnvironmentProd
}

func normalizeEnvironment(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "dev", "development", "local", "test":
		return EnvironmentDev, nil
	case "prod", "production":
		return EnvironmentProd, nil
	default:
		return "", fmt.Errorf("invalid ENVIRONMENT %q: expected dev or prod", v)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
