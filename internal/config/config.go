package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTLPEnabled  bool
	OTLPEndpoint string
	OTLPProtocol string

	Billing   BillingConfig
	RateLimit RateLimitConfig
}

// BillingConfig carries invoice defaults that are not part of the pricing policy.
type BillingConfig struct {
	DefaultPaymentTerms  int
	DefaultTaxRate       string
	DefaultInvoicePrefix string
	SweepIntervalSeconds int
	PricingConfigPath    string
}

// RateLimitConfig throttles invoice generation and CSV import per actor.
type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "hourbill"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "hourbill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "hourbill.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:           getenvInt("REDIS_DB", 0),
		OTLPEnabled:       getenvBool("OTLP_ENABLED", false),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		Billing: BillingConfig{
			DefaultPaymentTerms:  getenvInt("DEFAULT_PAYMENT_TERMS", 30),
			DefaultTaxRate:       getenv("DEFAULT_TAX_RATE", "0"),
			DefaultInvoicePrefix: strings.ToUpper(getenv("DEFAULT_INVOICE_PREFIX", "INV")),
			SweepIntervalSeconds: getenvInt("SWEEP_INTERVAL_SECONDS", 3600),
			PricingConfigPath:    strings.TrimSpace(getenv("PRICING_CONFIG_PATH", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getenvFloat("RATE_LIMIT_RATE", 1),
			Burst:   getenvInt("RATE_LIMIT_BURST", 10),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingConfigHolder),
	fx.Provide(providePricingSource),
)

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
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
