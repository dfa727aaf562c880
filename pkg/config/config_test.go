package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EMBEDDING_BASE_URL", "http://embeddings:8000/v1")
	t.Setenv("LLM_BASE_URL", "http://llm:8000/v1")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "chatbot-api", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:8081", cfg.Weaviate.Host)
	assert.Equal(t, "ForsaDocument", cfg.Weaviate.ClassName)
	assert.Equal(t, "forsa", cfg.Mongo.Database)
	assert.Equal(t, "chats", cfg.Mongo.Collection)
	assert.Equal(t, 4, cfg.TopKChunks)
	assert.Nil(t, cfg.Cache)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TOP_K_CHUNKS", "8")
	t.Setenv("LLM_TEMPERATURE", "0.3")
	t.Setenv("HTTP_READ_TIMEOUT", "45s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.TopKChunks)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_RedisOptional(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDRESS", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Cache)
	assert.Equal(t, "cache:6379", cfg.Cache.Address)
	assert.Equal(t, 24*time.Hour, cfg.Cache.EmbeddingTTL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("EMBEDDING_BASE_URL", "")
	t.Setenv("LLM_BASE_URL", "http://llm:8000/v1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_BASE_URL")
}

func TestValidate_Bounds(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("HTTP_PORT", "70000")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("TOP_K_CHUNKS", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestGetEnvHelpers_MalformedFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))

	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))

	t.Setenv("SOME_BOOL", "maybe")
	assert.False(t, getEnvBool("SOME_BOOL", false))
}
