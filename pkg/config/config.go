package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ahmed123456787/forsa-tech/pkg/llm"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
	"github.com/ahmed123456787/forsa-tech/pkg/store"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// Config aggregates all service configuration, loaded from the environment.
type Config struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`

	Server    ServerConfig         `json:"server"`
	Weaviate  rag.WeaviateConfig   `json:"weaviate"`
	Embedding rag.EmbeddingConfig  `json:"embedding"`
	LLM       llm.Config           `json:"llm"`
	Mongo     store.MongoConfig    `json:"mongo"`

	// Cache is nil when REDIS_ENABLED is false.
	Cache *rag.CacheConfig `json:"cache,omitempty"`

	// TopKChunks is how many chunks feed the answer prompt.
	TopKChunks int `json:"top_k_chunks"`
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnvString("SERVICE_NAME", "chatbot-api"),
		Version:     getEnvString("SERVICE_VERSION", "dev"),
		Environment: getEnvString("ENVIRONMENT", "development"),
		LogLevel:    getEnvString("LOG_LEVEL", "info"),

		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8080),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		},

		Weaviate: rag.WeaviateConfig{
			Host:       getEnvString("WEAVIATE_HOST", "localhost:8081"),
			Scheme:     getEnvString("WEAVIATE_SCHEME", "http"),
			APIKey:     getEnvString("WEAVIATE_API_KEY", ""),
			ClassName:  getEnvString("WEAVIATE_CLASS", "ForsaDocument"),
			AutoSchema: getEnvBool("WEAVIATE_AUTO_SCHEMA", true),
		},

		Embedding: rag.EmbeddingConfig{
			BaseURL:   getEnvString("EMBEDDING_BASE_URL", ""),
			APIKey:    getEnvString("EMBEDDING_API_KEY", ""),
			ModelName: getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:   getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		},

		LLM: llm.Config{
			BaseURL:     getEnvString("LLM_BASE_URL", ""),
			APIKey:      getEnvString("LLM_API_KEY", ""),
			ModelName:   getEnvString("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.0),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},

		Mongo: store.MongoConfig{
			URI:        getEnvString("MONGO_URI", "mongodb://localhost:27017"),
			Database:   getEnvString("MONGO_DATABASE", "forsa"),
			Collection: getEnvString("MONGO_COLLECTION", "chats"),
			Timeout:    getEnvDuration("MONGO_TIMEOUT", 10*time.Second),
		},

		TopKChunks: getEnvInt("TOP_K_CHUNKS", rag.DefaultTopKChunks),
	}

	if getEnvBool("REDIS_ENABLED", false) {
		cfg.Cache = &rag.CacheConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			EmbeddingTTL: getEnvDuration("REDIS_EMBEDDING_TTL", 24*time.Hour),
			ResultTTL:    getEnvDuration("REDIS_RESULT_TTL", 10*time.Minute),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and in range.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d: must be 1-65535", c.Server.Port)
	}
	if c.Weaviate.Host == "" {
		return fmt.Errorf("WEAVIATE_HOST is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("EMBEDDING_BASE_URL is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.TopKChunks <= 0 || c.TopKChunks > 50 {
		return fmt.Errorf("invalid TOP_K_CHUNKS %d: must be 1-50", c.TopKChunks)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
