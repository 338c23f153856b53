package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	PolicyPath         string
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	MaxUploadSizeBytes int64
	PriceAPIBaseURL    string
	PriceCacheTTL      time.Duration
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "change-me-to-a-long-random-secret-of-at-least-32-bytes")
	if jwtSecret == "change-me-to-a-long-random-secret-of-at-least-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	accessTokenExpiryStr := getEnv("ACCESS_TOKEN_EXPIRY", "60m")
	accessTokenExpiry, err := time.ParseDuration(accessTokenExpiryStr)
	if err != nil {
		log.Printf("WARNING: Invalid ACCESS_TOKEN_EXPIRY format '%s'. Using default 60m. Error: %v", accessTokenExpiryStr, err)
		accessTokenExpiry = 60 * time.Minute
	}

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	priceCacheTTLStr := getEnv("PRICE_CACHE_TTL", "24h")
	priceCacheTTL, err := time.ParseDuration(priceCacheTTLStr)
	if err != nil {
		log.Printf("WARNING: Invalid PRICE_CACHE_TTL format '%s'. Using default 24h. Error: %v", priceCacheTTLStr, err)
		priceCacheTTL = 24 * time.Hour
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./cointax.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PolicyPath:         getEnv("POLICY_PATH", "policy.toml"),
		JWTSecret:          jwtSecret,
		AccessTokenExpiry:  accessTokenExpiry,
		MaxUploadSizeBytes: maxUploadSizeBytes,
		PriceAPIBaseURL:    getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
		PriceCacheTTL:      priceCacheTTL,
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, PolicyPath=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.PolicyPath)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}
