package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Acb      AcbConfig
	Keys     KeysConfig
	AI       AIConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	ProvenanceLogPath  string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	ProvenanceTopic    string
}

type DatabaseConfig struct {
	Connection string
}

type AuthConfig struct {
	JwtSecret string
}

type KeysConfig struct {
	GoogleGemini string
}

type AIConfig struct {
	EmbeddingProvider string // "ollama", "gemini" or "none"
	OllamaBaseURL     string
	OllamaModel       string
	EmbeddingTimeout  time.Duration
}

type AcbConfig struct {
	DefaultBudget      int
	Alpha              float64
	Beta               float64
	Gamma              float64
	ModeThreshold      float64
	Deadline           time.Duration
	Concurrency        int
	CategoryTimeout    time.Duration
	PoolLimit          int
	AllowedSensitivity []string
	QuarantineEligible []string
	HistoryBackend     string // "memory" or "redis"
	HistoryTTL         time.Duration
	ProfilesPath       string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			ProvenanceLogPath:  getEnv("PROVENANCE_LOG_PATH", "provenance.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			ProvenanceTopic:    getEnv("ACB_PROVENANCE_TOPIC", "ACB_PROVENANCE"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
		Acb: AcbConfig{
			DefaultBudget:      getEnvAsInt("ACB_DEFAULT_BUDGET", 65000),
			Alpha:              getEnvAsFloat("ACB_ALPHA", 0.5),
			Beta:               getEnvAsFloat("ACB_BETA", 0.3),
			Gamma:              getEnvAsFloat("ACB_GAMMA", 0.2),
			ModeThreshold:      getEnvAsFloat("ACB_MODE_THRESHOLD", 0.70),
			Deadline:           getEnvAsDuration("ACB_DEADLINE", 2*time.Second),
			Concurrency:        getEnvAsInt("ACB_RETRIEVAL_CONCURRENCY", 4),
			CategoryTimeout:    getEnvAsDuration("ACB_CATEGORY_TIMEOUT", 800*time.Millisecond),
			PoolLimit:          getEnvAsInt("ACB_POOL_LIMIT", 100),
			AllowedSensitivity: getEnvAsList("ACB_ALLOWED_SENSITIVITY", []string{"none", "low", "medium"}),
			QuarantineEligible: getEnvAsList("ACB_QUARANTINE_ELIGIBLE", []string{"restricted", "quarantined"}),
			HistoryBackend:     getEnv("ACB_HISTORY_BACKEND", "memory"),
			HistoryTTL:         getEnvAsDuration("ACB_HISTORY_TTL", 24*time.Hour),
			ProfilesPath:       getEnv("ACB_PROFILES_PATH", ""),
		},
		Keys: KeysConfig{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
		AI: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "none"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingTimeout:  getEnvAsDuration("EMBEDDING_TIMEOUT", 300*time.Millisecond),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
