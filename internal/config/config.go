package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName        = "NileShop"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultCurrency       = "EGP"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultGatewayTimeout = 10 * time.Second
	defaultDepositExpiry  = 24 * time.Hour
	defaultConflictRetry  = 3
)

// Gateway captures the hosted payment gateway credentials and endpoints.
type Gateway struct {
	BaseURL           string
	APIKey            string
	MerchantID        string
	PaymentKey        string
	CustomerReference string
	Timeout           time.Duration
}

// Config captures application runtime configuration loaded from environment
// variables, optionally seeded from a .env file.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	DefaultCurrency string
	DepositExpiry   time.Duration
	ConflictRetries int
	Gateway         Gateway
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file in the working directory is applied first, if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", defaultCurrency),
		DepositExpiry:   defaultDepositExpiry,
		ConflictRetries: defaultConflictRetry,
		Gateway: Gateway{
			BaseURL:           os.Getenv("GATEWAY_BASE_URL"),
			APIKey:            os.Getenv("GATEWAY_API_KEY"),
			MerchantID:        os.Getenv("GATEWAY_MERCHANT_ID"),
			PaymentKey:        os.Getenv("GATEWAY_PAYMENT_KEY"),
			CustomerReference: os.Getenv("GATEWAY_CUSTOMER_REFERENCE"),
			Timeout:           defaultGatewayTimeout,
		},
	}

	var err error
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.DepositExpiry, err = durationEnv("DEPOSIT_PENDING_EXPIRY", cfg.DepositExpiry); err != nil {
		return Config{}, err
	}
	if cfg.Gateway.Timeout, err = durationEnv("GATEWAY_TIMEOUT", cfg.Gateway.Timeout); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("RECONCILE_MAX_CONFLICT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid RECONCILE_MAX_CONFLICT_RETRIES: %q", v)
		}
		cfg.ConflictRetries = n
	}

	if cfg.IsDev() {
		// Local runs fall back to in-memory storage and a static gateway stub;
		// secrets get a non-production default.
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-access-secret"
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = "dev-refresh-secret"
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
	}
	if cfg.Gateway.BaseURL == "" || cfg.Gateway.APIKey == "" {
		return Config{}, fmt.Errorf("GATEWAY_BASE_URL and GATEWAY_API_KEY must be set")
	}
	if cfg.Gateway.MerchantID == "" || cfg.Gateway.PaymentKey == "" {
		return Config{}, fmt.Errorf("GATEWAY_MERCHANT_ID and GATEWAY_PAYMENT_KEY must be set")
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
