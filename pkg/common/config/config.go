package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PersistenceEnabled bool
	PostgresHost       string
	PostgresPort       string
	PostgresUser       string
	PostgresPassword   string
	PostgresDB         string
	PostgresSSLMode    string

	// Redis
	CacheEnabled   bool
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration

	// Kafka
	AuditEnabled bool
	KafkaBrokers []string

	// LLM
	LLMAPIKey    string
	LLMBaseURL   string
	LLMModelName string

	// Chart engine
	AutosaveDelay       time.Duration
	HistoryPromptWindow int
	LensCatalogPath     string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PersistenceEnabled: getBoolEnv("PERSISTENCE_ENABLED", false),
		PostgresHost:       getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:       getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:       getEnv("POSTGRES_USER", "chartcore"),
		PostgresPassword:   getEnv("POSTGRES_PASSWORD", "chartcore123"),
		PostgresDB:         getEnv("POSTGRES_DB", "chartcore"),
		PostgresSSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),

		CacheEnabled:   getBoolEnv("CACHE_ENABLED", false),
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getIntEnv("REDIS_DB", 0),
		ReportCacheTTL: getDuration("REPORT_CACHE_TTL", 15*time.Minute),

		AuditEnabled: getBoolEnv("AUDIT_ENABLED", false),
		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),

		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
		LLMBaseURL:   getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModelName: getEnv("LLM_MODEL_NAME", "gpt-4"),

		AutosaveDelay:       getDuration("AUTOSAVE_DELAY", time.Second),
		HistoryPromptWindow: getIntEnv("HISTORY_PROMPT_WINDOW", 5),
		LensCatalogPath:     getEnv("LENS_CATALOG_PATH", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
