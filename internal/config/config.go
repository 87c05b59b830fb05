package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewDonationConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	SiteURL     string
	NodeID      int64

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

	Stripe   StripeConfig
	Identity IdentityConfig
	Redis    RedisConfig
	Limits   RateLimitConfig
	SMTP     SMTPConfig
	Receipt  ReceiptConfig
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
}

type IdentityConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	CheckoutRate  float64
	CheckoutBurst int64
	ClaimRate     float64
	ClaimBurst    int64
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type ReceiptConfig struct {
	Bucket       string
	Region       string
	PublicURL    string
	Interval     time.Duration
	BatchSize    int
	MaxAttempts  int
	Organization string
	Worker       bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "charitydesk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		SiteURL:      strings.TrimRight(strings.TrimSpace(getenv("SITE_URL", "http://localhost:3000")), "/"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "charitydesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			WebhookTolerance: time.Duration(getenvInt64("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
		},
		Identity: IdentityConfig{
			JWTSecret: strings.TrimSpace(getenv("IDENTITY_JWT_SECRET", "")),
			Issuer:    strings.TrimSpace(getenv("IDENTITY_JWT_ISSUER", "")),
			Audience:  strings.TrimSpace(getenv("IDENTITY_JWT_AUDIENCE", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Limits: RateLimitConfig{
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RPS", 1),
			CheckoutBurst: getenvInt64("RATE_LIMIT_CHECKOUT_BURST", 10),
			ClaimRate:     getenvFloat("RATE_LIMIT_CLAIM_RPS", 0.5),
			ClaimBurst:    getenvInt64("RATE_LIMIT_CLAIM_BURST", 5),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     int(getenvInt64("SMTP_PORT", 587)),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "receipts@charitydesk.local"),
		},
		Receipt: ReceiptConfig{
			Bucket:       strings.TrimSpace(getenv("RECEIPT_S3_BUCKET", "")),
			Region:       strings.TrimSpace(getenv("AWS_REGION", "us-east-1")),
			PublicURL:    strings.TrimRight(strings.TrimSpace(getenv("RECEIPT_PUBLIC_URL", "")), "/"),
			Interval:     time.Duration(getenvInt64("RECEIPT_WORKER_INTERVAL_SECONDS", 15)) * time.Second,
			BatchSize:    int(getenvInt64("RECEIPT_WORKER_BATCH_SIZE", 20)),
			MaxAttempts:  int(getenvInt64("RECEIPT_MAX_ATTEMPTS", 5)),
			Organization: getenv("RECEIPT_ORGANIZATION_NAME", "CharityDesk"),
			Worker:       getenvBool("RECEIPT_WORKER_ENABLED", true),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
