package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tollwaylabs/tollway/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Identity  IdentityConfig
	Payment   PaymentConfig
	Auth      AuthConfig
	Usage     UsageConfig
	RateLimit RateLimitConfig
	Export    ExportConfig
}

// IdentityConfig points at the external identity provider.
type IdentityConfig struct {
	BaseURL   string
	APIKey    string
	JWTSecret string
	Issuer    string
}

// PaymentConfig holds payment-processor settings. Per-tenant access tokens
// live on the tenant row; these are the platform-wide fallbacks.
type PaymentConfig struct {
	WebhookSecret   string
	APIBaseURL      string
	TestAccessToken string
	LiveAccessToken string
}

// AuthConfig controls request authentication behavior.
type AuthConfig struct {
	// AllowPlanHeader re-enables the deprecated client-supplied plan header.
	// Off by default: plan must come from verified session-token metadata.
	AllowPlanHeader bool
}

// UsageConfig controls billing-period policy.
type UsageConfig struct {
	PeriodDays int
}

// RateLimitConfig controls the usage-ingest token bucket.
type RateLimitConfig struct {
	Enabled bool
	Rate    int
	Burst   int
}

// ExportConfig controls platform-level metering export.
type ExportConfig struct {
	Enabled    bool
	Exporter   string
	Endpoint   string
	AuthToken  string
	PlatformID string
	Interval   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "tollway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tollway"),
		DBUser:            getenv("DATABASE_USER", "tollway"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Identity: IdentityConfig{
			BaseURL:   strings.TrimSpace(getenv("IDENTITY_BASE_URL", "")),
			APIKey:    strings.TrimSpace(getenv("IDENTITY_API_KEY", "")),
			JWTSecret: strings.TrimSpace(getenv("IDENTITY_JWT_SECRET", "")),
			Issuer:    strings.TrimSpace(getenv("IDENTITY_ISSUER", "")),
		},
		Payment: PaymentConfig{
			WebhookSecret:   strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
			APIBaseURL:      getenv("PAYMENT_API_BASE_URL", "https://api.stripe.com"),
			TestAccessToken: strings.TrimSpace(getenv("PAYMENT_TEST_ACCESS_TOKEN", "")),
			LiveAccessToken: strings.TrimSpace(getenv("PAYMENT_LIVE_ACCESS_TOKEN", "")),
		},
		Auth: AuthConfig{
			AllowPlanHeader: getenvBool("AUTH_ALLOW_PLAN_HEADER", false),
		},
		Usage: UsageConfig{
			PeriodDays: getenvInt("USAGE_PERIOD_DAYS", 30),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvInt("RATE_LIMIT_RATE", 50),
			Burst:   getenvInt("RATE_LIMIT_BURST", 100),
		},
		Export: ExportConfig{
			Enabled:    getenvBool("EXPORT_METRICS_ENABLED", false),
			Exporter:   strings.ToLower(getenv("EXPORT_METRICS_EXPORTER", "")),
			Endpoint:   strings.TrimSpace(getenv("EXPORT_METRICS_ENDPOINT", "")),
			AuthToken:  strings.TrimSpace(getenv("EXPORT_METRICS_AUTH_TOKEN", "")),
			PlatformID: strings.TrimSpace(getenv("EXPORT_PLATFORM_ID", "")),
			Interval:   time.Duration(getenvInt("EXPORT_METRICS_INTERVAL_SECONDS", 60)) * time.Second,
		},
	}

	return cfg
}

// DBConfig maps the env settings onto the store config.
func DBConfig(cfg Config) db.Config {
	return db.Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConns:    cfg.DBMaxIdleConn,
		MaxOpenConns:    cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
