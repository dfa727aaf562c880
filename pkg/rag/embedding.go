package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/retry"
)

// EmbeddingConfig holds configuration for the embedding service client.
type EmbeddingConfig struct {
	BaseURL   string        `json:"base_url"`
	APIKey    string        `json:"api_key"`
	ModelName string        `json:"model_name"`
	Timeout   time.Duration `json:"timeout"`
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint. An optional
// cache short-circuits repeat queries.
type HTTPEmbedder struct {
	config     *EmbeddingConfig
	httpClient *http.Client
	cache      *RedisCache
	logger     *slog.Logger
	retry      retry.Policy
}

// NewHTTPEmbedder creates an embedding client. cache may be nil.
func NewHTTPEmbedder(config *EmbeddingConfig, cache *RedisCache, logger *slog.Logger) (*HTTPEmbedder, error) {
	if config == nil {
		return nil, fmt.Errorf("embedding config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL is required")
	}
	if config.ModelName == "" {
		config.ModelName = "text-embedding-3-small"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPEmbedder{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      cache,
		logger:     logger.With("component", "embedder"),
		retry:      retry.VectorStorePolicy(),
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// EmbedQuery embeds a single query string.
func (e *HTTPEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewErrorBuilder("rag", "embed_query", e.logger).
			ValidationError("empty_input", "cannot embed empty text")
	}

	if vector, ok := e.cache.GetEmbedding(ctx, e.config.ModelName, text); ok {
		return vector, nil
	}

	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperrors.NewErrorBuilder("rag", "embed_query", e.logger).
			EmbeddingError(fmt.Sprintf("expected 1 embedding, got %d", len(vectors)), nil)
	}

	e.cache.SetEmbedding(ctx, e.config.ModelName, text, vectors[0])
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of chunk contents in one request.
func (e *HTTPEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts)
}

func (e *HTTPEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	startTime := time.Now()

	payload, err := json.Marshal(embeddingRequest{Model: e.config.ModelName, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var response embeddingResponse
	err = e.retry.Do(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimSuffix(e.config.BaseURL, "/")+"/embeddings", bytes.NewReader(payload))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if e.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
		}

		resp, doErr := e.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close() // #nosec G307

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, truncateBody(body))
		}

		response = embeddingResponse{}
		if unmarshalErr := json.Unmarshal(body, &response); unmarshalErr != nil {
			return fmt.Errorf("failed to decode embedding response: %w", unmarshalErr)
		}
		if response.Error != nil {
			return fmt.Errorf("embedding API error: %s", response.Error.Message)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewErrorBuilder("rag", "embed", e.logger).
			EmbeddingError("embedding service call failed", err)
	}

	if len(response.Data) != len(inputs) {
		return nil, apperrors.NewErrorBuilder("rag", "embed", e.logger).
			EmbeddingError(fmt.Sprintf("embedding count mismatch: sent %d, received %d", len(inputs), len(response.Data)), nil)
	}

	// The API may reorder items; index restores the input order.
	vectors := make([][]float32, len(inputs))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, apperrors.NewErrorBuilder("rag", "embed", e.logger).
				EmbeddingError(fmt.Sprintf("embedding index %d out of range", item.Index), nil)
		}
		vectors[item.Index] = item.Embedding
	}

	e.logger.Debug("Embedded texts",
		"count", len(inputs),
		"model", e.config.ModelName,
		"took", time.Since(startTime),
	)

	return vectors, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
