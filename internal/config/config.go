package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	MongoDatabase   string
	HTTPPort        string
	LogLevel        string
	LogFormat       string
	JWTSecret       string
	JWTTTLHours     int
	CORSOrigins     []string
	RedisURL        string
	SignupRateLimit int
	RateLimitAlgo   string
	GeminiAPIKey    string
	KnowledgeFile   string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		DatabaseURL:     getEnv("DATABASE_URL", "support_desk.db"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "support_desk"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTTTLHours:     getEnvAsInt("JWT_TTL_HOURS", 24),
		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		RedisURL:        getEnv("REDIS_URL", ""),
		SignupRateLimit: getEnvAsInt("SIGNUP_RATE_LIMIT", 10),
		RateLimitAlgo:   getEnv("RATE_LIMIT_STRATEGY", "fixed_window"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		KnowledgeFile:   getEnv("KNOWLEDGE_FILE", "knowledge.md"),
	}
}

// Validate reports the first required setting that is missing or malformed.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if c.JWTTTLHours <= 0 {
		return errors.New("JWT_TTL_HOURS must be positive")
	}
	return nil
}

// UsesMongo reports whether DatabaseURL points at a MongoDB deployment
// rather than a SQLite file.
func (c Config) UsesMongo() bool {
	return strings.HasPrefix(c.DatabaseURL, "mongodb://") || strings.HasPrefix(c.DatabaseURL, "mongodb+srv://")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
