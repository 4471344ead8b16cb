package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool

	// Embeddings configuration
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIEmbeddingsModel string
	OllamaBaseURL         string
	LocalEmbeddingsModel  string // e.g., "nomic-embed-text"

	// Vector store
	ChromaPersistDir string

	// Chunking
	MaxChunkSize int
	ChunkOverlap int

	// Conversation
	MaxHistoryMessages int
	RetrievalTopK      int
	SystemPrompt       string
	AutoRoute          bool

	// LLM provider (the active provider for chat; credentials are sealed
	// by the composition root before they reach the gateway)
	LLMProvider    string
	LLMModel       string
	LLMAPIKey      string
	LLMBaseURL     string
	LLMTemperature float32
	LLMMaxTokens   int
	LLMExtra       map[string]any    // JSON object, merged into custom-provider payloads
	LLMHeaders     map[string]string // JSON object, extra headers for custom providers

	// Credential sealing
	CredentialMasterKey []byte

	// Redis Configuration (asynq queue + embedding cache)
	RedisURL              string
	RedisPassword         string
	RedisDB               int
	EmbeddingCacheEnabled bool
	EmbeddingCacheTTL     time.Duration

	// Telemetry
	TelemetryEnabled  bool
	TelemetryEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		OllamaBaseURL:         getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LocalEmbeddingsModel:  getEnv("LOCAL_EMBEDDINGS_MODEL", "nomic-embed-text"),

		ChromaPersistDir: getEnv("CHROMA_PERSIST_DIR", "./data/chroma"),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		MaxHistoryMessages: getEnvInt("MAX_HISTORY_MESSAGES", 20),
		RetrievalTopK:      getEnvInt("RETRIEVAL_TOP_K", 3),
		SystemPrompt:       getEnv("SYSTEM_PROMPT", "You are CoreMind, a helpful, professional AI assistant."),
		AutoRoute:          getEnvBool("AUTO_ROUTE", true),

		LLMProvider:    getEnv("LLM_PROVIDER", "openai"),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMTemperature: float32(getEnvFloat64("LLM_TEMPERATURE", 0.7)),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2000),

		RedisURL:              getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		EmbeddingCacheEnabled: getEnvBool("EMBEDDING_CACHE_ENABLED", false),
		EmbeddingCacheTTL:     time.Duration(getEnvInt("EMBEDDING_CACHE_TTL_SECONDS", 86400)) * time.Second,

		TelemetryEnabled:  getEnvBool("TELEMETRY_ENABLED", false),
		TelemetryEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	if raw := getEnv("LLM_EXTRA", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.LLMExtra); err != nil {
			return nil, fmt.Errorf("LLM_EXTRA must be a JSON object: %v", err)
		}
	}
	if raw := getEnv("LLM_HEADERS", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.LLMHeaders); err != nil {
			return nil, fmt.Errorf("LLM_HEADERS must be a JSON object of strings: %v", err)
		}
	}

	// Validate required fields
	masterKey := getEnv("CREDENTIAL_MASTER_KEY", "")
	if masterKey == "" {
		return nil, fmt.Errorf("CREDENTIAL_MASTER_KEY is required - set a 64-char hex key in .env")
	}
	key, err := hex.DecodeString(masterKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_MASTER_KEY must be 32 bytes hex-encoded")
	}
	cfg.CredentialMasterKey = key

	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < MAX_CHUNK_SIZE")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
