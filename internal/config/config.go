package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// HTTP server configuration
	Port string

	// Path to the sqlite database file
	DatabasePath string

	// Secret used to sign and verify JWT tokens
	JWTSecret string

	// Probability in [0,1] that a submitted order executes successfully.
	// The reference behaviour is 0.9.
	ExecutionSuccessRate float64

	// Tradable assets and their base prices, used by the price oracle
	Assets []Asset
}

// Asset describes one tradable asset known to the price oracle. Quotes
// are generated around BasePrice with bounded volatility.
type Asset struct {
	Symbol    string
	Name      string
	BasePrice decimal.Decimal
}

// Load reads configuration from the environment. A .env file is loaded
// first if present; real environment variables win over it.
func Load() *Config {
	// Ignore the error: a missing .env file is the normal production case
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnvString("PORT", "8080"),
		DatabasePath:         getEnvString("DATABASE_PATH", "trading.db"),
		JWTSecret:            getEnvString("JWT_SECRET", "crypto-sim-secret-key"),
		ExecutionSuccessRate: getEnvFloat("EXECUTION_SUCCESS_RATE", 0.9),
		Assets:               DefaultAssets(),
	}
}

// DefaultAssets returns the built-in asset table. Injected through config
// rather than read as package-level state so tests and alternative
// markets can supply their own.
func DefaultAssets() []Asset {
	return []Asset{
		{Symbol: "bitcoin", Name: "Bitcoin", BasePrice: decimal.RequireFromString("43250.00")},
		{Symbol: "ethereum", Name: "Ethereum", BasePrice: decimal.RequireFromString("2680.00")},
		{Symbol: "cardano", Name: "Cardano", BasePrice: decimal.RequireFromString("0.52")},
		{Symbol: "solana", Name: "Solana", BasePrice: decimal.RequireFromString("98.50")},
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
