package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceError_ErrorString(t *testing.T) {
	builder := NewErrorBuilder("rag", "similarity_search", nil)

	err := builder.VectorStoreError("search failed", errors.New("connection refused"))
	assert.Contains(t, err.Error(), "[rag:similarity_search]")
	assert.Contains(t, err.Error(), "search failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewErrorBuilder("llm", "chat", nil).LLMError("llm failed", cause)

	assert.ErrorIs(t, err, cause)

	var se *ServiceError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &se)
	assert.Equal(t, ErrorTypeLLM, se.Type)
}

func TestErrorBuilder_HTTPStatuses(t *testing.T) {
	builder := NewErrorBuilder("handlers", "search", nil)

	assert.Equal(t, 400, builder.ValidationError("bad", "bad").GetHTTPStatus())
	assert.Equal(t, 400, builder.InvalidFieldError("query", "too short").GetHTTPStatus())
	assert.Equal(t, 404, builder.NotFoundError("chat", "42").GetHTTPStatus())
	assert.Equal(t, 502, builder.VectorStoreError("down", nil).GetHTTPStatus())
	assert.Equal(t, 502, builder.EmbeddingError("down", nil).GetHTTPStatus())
	assert.Equal(t, 502, builder.LLMError("down", nil).GetHTTPStatus())
	assert.Equal(t, 500, builder.InternalError("boom", nil).GetHTTPStatus())
}

func TestErrorBuilder_Retryability(t *testing.T) {
	builder := NewErrorBuilder("rag", "search", nil)

	assert.True(t, builder.VectorStoreError("down", nil).IsRetryable())
	assert.True(t, builder.LLMError("down", nil).IsRetryable())
	assert.False(t, builder.ValidationError("bad", "bad").IsRetryable())
	assert.False(t, builder.ParseError("bad json", nil).IsRetryable())
}

func TestErrorBuilder_Details(t *testing.T) {
	err := NewErrorBuilder("handlers", "search", nil).
		InvalidFieldError("top_k", "must be between 1 and 50")

	assert.Equal(t, "top_k", err.Details["field"])
	assert.Contains(t, err.Message, "top_k")
}

func TestAsServiceError(t *testing.T) {
	typed := NewErrorBuilder("store", "get", nil).NotFoundError("chat", "7")
	extracted := AsServiceError(fmt.Errorf("outer: %w", typed))
	assert.Equal(t, ErrorTypeNotFound, extracted.Type)
	assert.Equal(t, 404, extracted.GetHTTPStatus())

	plain := AsServiceError(errors.New("anything"))
	assert.Equal(t, ErrorTypeInternal, plain.Type)
	assert.Equal(t, 500, plain.GetHTTPStatus())

	assert.Nil(t, AsServiceError(nil))
}

func TestWithRequestID(t *testing.T) {
	err := NewErrorBuilder("handlers", "search", nil).
		ValidationError("bad", "bad").
		WithRequestID("req-123")
	assert.Equal(t, "req-123", err.RequestID)
}
