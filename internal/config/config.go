package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Config holds all runtime settings. Values come from the environment
// with defaults suitable for local development.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string

	// MinimumDeposit is the smallest deposit amount the ledger accepts.
	MinimumDeposit decimal.Decimal

	// TokenSecret signs login session tokens.
	TokenSecret string
}

func Load() *Config {
	return &Config{
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "password"),
		DBName:         getEnv("DB_NAME", "kncbank"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		MinimumDeposit: getEnvDecimal("MIN_DEPOSIT", "100"),
		TokenSecret:    getEnv("TOKEN_SECRET", "dev-only-secret"),
	}
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}
