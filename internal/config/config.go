package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	FanoutLocal = "local"
	FanoutRedis = "redis"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port        string
	Env         string
	PublicURL   string
	CORSOrigins []string

	StoreDriver string
	PostgresDSN string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string

	RelayFanout      string
	RelayRequireAuth bool

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSecret    string
	JWTExpiresIn time.Duration
	AdminEmails  []string

	LogLevel  string
	LogFormat string

	AuthRateLimitRPS   int
	AuthRateLimitBurst int
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	port := getenv("PORT", "8080")
	return &Config{
		Port:        port,
		Env:         getenv("APP_ENV", "development"),
		PublicURL:   strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:"+port), "/"),
		CORSOrigins: splitList(getenv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),

		StoreDriver: getenv("STORE_DRIVER", DriverPostgres),
		PostgresDSN: getenv("POSTGRES_DSN", ""),

		MongoURI: getenv("MONGO_URI", ""),
		MongoDB:  getenv("MONGO_DB", "swapmeet"),

		RedisAddr:     getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		RelayFanout:      getenv("RELAY_FANOUT", FanoutLocal),
		RelayRequireAuth: getenv("RELAY_REQUIRE_AUTH", "false") == "true",

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "item-images"),
		MinioUseSSL:    getenv("MINIO_USE_SSL", "false") == "true",

		JWTSecret:    getenv("JWT_SECRET", ""),
		JWTExpiresIn: getduration("JWT_EXPIRES_IN", 24*time.Hour),
		AdminEmails:  splitList(getenv("ADMIN_EMAILS", "")),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),

		AuthRateLimitRPS:   getint("AUTH_RATE_LIMIT_RPS", 5),
		AuthRateLimitBurst: getint("AUTH_RATE_LIMIT_BURST", 10),
	}
}

// IsDevelopment reports whether internal error details may be exposed.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.RelayFanout {
	case FanoutLocal, FanoutRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown RELAY_FANOUT %q", c.RelayFanout))
	}
	if c.JWTSecret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if c.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
