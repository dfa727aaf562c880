package llm

import (
	"bufio"
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

// Config holds configuration for the chat completion client.
type Config struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	ModelName   string        `json:"model_name"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultConfig returns production defaults for the chat client.
func DefaultConfig() *Config {
	return &Config{
		ModelName:   "gpt-4o-mini",
		MaxTokens:   2048,
		Temperature: 0.0,
		Timeout:     60 * time.Second,
	}
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
	retry      retry.Policy
}

// NewClient creates a chat completion client.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("llm base URL is required")
	}
	if config.ModelName == "" {
		config.ModelName = "gpt-4o-mini"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With("component", "llm-client"),
		retry:      retry.LLMPolicy(),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// ChatCompletion sends a system+user prompt pair and returns the full answer.
// Transient upstream failures are retried with exponential backoff.
func (c *Client) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()

	request := chatCompletionRequest{
		Model:       c.config.ModelName,
		Messages:    buildMessages(systemPrompt, userPrompt),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var response chatCompletionResponse
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		resp, doErr := c.post(ctx, payload)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close() // #nosec G307

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, truncate(body, 512))
		}

		response = chatCompletionResponse{}
		if unmarshalErr := json.Unmarshal(body, &response); unmarshalErr != nil {
			return fmt.Errorf("failed to decode chat response: %w", unmarshalErr)
		}
		if response.Error != nil {
			return fmt.Errorf("chat API error: %s", response.Error.Message)
		}
		if len(response.Choices) == 0 {
			return fmt.Errorf("chat API returned no choices")
		}
		return nil
	})
	if err != nil {
		return "", apperrors.NewErrorBuilder("llm", "chat_completion", c.logger).
			LLMError("chat completion failed", err)
	}

	c.logger.Info("Chat completion finished",
		"model", c.config.ModelName,
		"prompt_tokens", response.Usage.PromptTokens,
		"completion_tokens", response.Usage.CompletionTokens,
		"took", time.Since(startTime),
	)

	return response.Choices[0].Message.Content, nil
}

// ChatCompletionStream streams the answer as it is produced. Each content
// delta is sent on fragments, which is closed before return. A nil error
// means the upstream stream ended normally.
func (c *Client) ChatCompletionStream(ctx context.Context, systemPrompt, userPrompt string, fragments chan<- string) error {
	defer close(fragments)

	request := chatCompletionRequest{
		Model:       c.config.ModelName,
		Messages:    buildMessages(systemPrompt, userPrompt),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      true,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	resp, err := c.post(ctx, payload)
	if err != nil {
		return apperrors.NewErrorBuilder("llm", "chat_stream", c.logger).
			LLMError("failed to open chat stream", err)
	}
	defer resp.Body.Close() // #nosec G307

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewErrorBuilder("llm", "chat_stream", c.logger).
			LLMError(fmt.Sprintf("chat API returned status %d: %s", resp.StatusCode, truncate(body, 512)), nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("Skipping malformed stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			select {
			case fragments <- content:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return apperrors.NewErrorBuilder("llm", "chat_stream", c.logger).
			LLMError("chat stream interrupted", err)
	}
	return nil
}

// ModelName exposes the configured model for logging and health reporting.
func (c *Client) ModelName() string {
	return c.config.ModelName
}

func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return c.httpClient.Do(req)
}

func buildMessages(systemPrompt, userPrompt string) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})
	return messages
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
