package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env              string
	Port             int
	DBURL            string
	DBMigrateOnStart bool
	StoreDriver      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTELEnabled     bool
	OTELEndpoint    string
	OTELSampleRatio float64

	// deadline for the store calls behind one POST /users, derived from the request context
	StoreTimeout time.Duration

	MaxBodyBytes       int64
	CORSAllowedOrigins []string

	// fixed window limit on POST /users per client IP
	SignupRateLimit  int
	SignupRateWindow time.Duration
}

func Load() Config {
	// .env is optional; real env vars win
	_ = godotenv.Load()

	return Config{
		Env:              getEnv("APP_ENV", "dev"),
		Port:             getEnvInt("PORT", 8080),
		DBURL:            getEnv("DATABASE_URL", buildDBURL()),
		DBMigrateOnStart: getEnvBool("DB_MIGRATE_ON_START", true),
		StoreDriver:      getEnv("STORE_DRIVER", StoreDriverPostgres),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		StoreTimeout: time.Duration(getEnvInt("USER_STORE_TIMEOUT_MS", 3000)) * time.Millisecond,

		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		SignupRateLimit:  getEnvInt("SIGNUP_RATE_LIMIT", 20),
		SignupRateWindow: time.Duration(getEnvInt("SIGNUP_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "userhub")
	pass := getEnv("DB_PASSWORD", "userhub")
	name := getEnv("DB_NAME", "userhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// WithTimeout is for work detached from any request, such as shutdown.
func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid int env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			slog.Warn("invalid bool env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
