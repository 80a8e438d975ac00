package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort string

	DOToken string

	PayPalClientID string
	PayPalSecret   string
	PayPalLive     bool

	MeteringInterval time.Duration
	ProviderTimeout  time.Duration
	MeteringWorkers  int
}

// New loads and validates configuration from environment variables.
// The metering job always runs with the API; there is no standalone worker
// binary, so one set of env vars covers both.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:  os.Getenv("HOSTBILL_POSTGRES_USER"),
		DBPass:  os.Getenv("HOSTBILL_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("HOSTBILL_POSTGRES_HOST"),
		DBPort:  getEnv("HOSTBILL_POSTGRES_PORT", "5432"),
		DBName:  os.Getenv("HOSTBILL_POSTGRES_DB"),
		SSLMode: getEnv("HOSTBILL_POSTGRES_SSLMODE", "disable"),

		RedisHost: os.Getenv("HOSTBILL_REDIS_HOST"),
		RedisPort: getEnv("HOSTBILL_REDIS_PORT", "6379"),

		NatsHost: os.Getenv("HOSTBILL_NATS_HOST"),
		NatsPort: getEnv("HOSTBILL_NATS_PORT", "4222"),

		ApiPort: getEnv("HOSTBILL_API_PORT", "8080"),

		DOToken: os.Getenv("HOSTBILL_DO_TOKEN"),

		PayPalClientID: os.Getenv("HOSTBILL_PAYPAL_CLIENT_ID"),
		PayPalSecret:   os.Getenv("HOSTBILL_PAYPAL_SECRET"),
		PayPalLive:     os.Getenv("HOSTBILL_PAYPAL_LIVE") == "true",

		MeteringInterval: getEnvDuration("HOSTBILL_METERING_INTERVAL", time.Hour),
		ProviderTimeout:  getEnvDuration("HOSTBILL_PROVIDER_TIMEOUT", 30*time.Second),
		MeteringWorkers:  getEnvInt("HOSTBILL_METERING_WORKERS", 8),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("missing required env for database: HOSTBILL_POSTGRES_USER/HOST/DB")
	}
	if cfg.RedisHost == "" {
		return nil, fmt.Errorf("missing required env: HOSTBILL_REDIS_HOST")
	}
	if cfg.NatsHost == "" {
		return nil, fmt.Errorf("missing required env: HOSTBILL_NATS_HOST")
	}

	// Provider credentials are validated by Bootstrap: the migrate binary
	// shares this config and has no use for them.
	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
