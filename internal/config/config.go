package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Roster   RosterConfig
	Scrape   ScrapeConfig
	Storage  StorageConfig
	Export   ExportConfig
	Server   ServerConfig
	LogLevel string
}

// RosterConfig holds roster acquisition configuration
type RosterConfig struct {
	SheetLink string // Google Drive / Sheets share link for the roster workbook
	Timeout   time.Duration
}

// ScrapeConfig holds profile scraping configuration
type ScrapeConfig struct {
	Timeout        time.Duration // per-request timeout for the plain HTTP tier
	RenderTimeout  time.Duration // render wait budget for the headless tier
	RateLimitDelay time.Duration // fixed delay after each participant
	RenderFallback bool          // enable the headless-rendering fallback tier
	MaxBadges      int           // cap on badges kept per participant
	UserAgent      string
	ProfileDomain  string // domain a roster profile URL must belong to
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	Type        string // "postgres", "mongodb", "dynamodb"
	PostgresURI string
	MongoDBURI  string
	MongoDBName string
	Region      string // For AWS DynamoDB
	TablePrefix string
	Endpoint    string // Custom endpoint for local testing
}

// ExportConfig holds file export configuration
type ExportConfig struct {
	DataDir string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load loads configuration from environment variables with defaults.
// A config/.env file is honored when present, for local development.
func Load() (*Config, error) {
	if _, err := os.Stat("config/.env"); err == nil {
		_ = godotenv.Load("config/.env")
	}

	cfg := &Config{
		Roster: RosterConfig{
			SheetLink: getEnv("ROSTER_SHEET_LINK", ""),
			Timeout:   getEnvDuration("ROSTER_TIMEOUT", 30*time.Second),
		},
		Scrape: ScrapeConfig{
			Timeout:        getEnvDuration("SCRAPE_TIMEOUT", 15*time.Second),
			RenderTimeout:  getEnvDuration("RENDER_TIMEOUT", 10*time.Second),
			RateLimitDelay: getEnvDuration("RATE_LIMIT_DELAY", 2*time.Second),
			RenderFallback: getEnvBool("RENDER_FALLBACK", true),
			MaxBadges:      getEnvInt("MAX_BADGES_PER_PARTICIPANT", 19),
			UserAgent:      getEnv("SCRAPE_USER_AGENT", defaultUserAgent),
			ProfileDomain:  getEnv("PROFILE_DOMAIN", "cloudskillsboost.google"),
		},
		Storage: StorageConfig{
			Type:        getEnv("STORAGE_TYPE", "postgres"),
			PostgresURI: getEnv("POSTGRES_URI", ""),
			MongoDBURI:  getEnv("MONGODB_URI", ""),
			MongoDBName: getEnv("MONGODB_DATABASE", "leaderboard"),
			Region:      getEnv("AWS_REGION", "us-west-2"),
			TablePrefix: getEnv("TABLE_PREFIX", "leaderboard"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
		},
		Export: ExportConfig{
			DataDir: getEnv("DATA_DIR", "./data"),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
