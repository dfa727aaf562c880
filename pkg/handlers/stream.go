package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/monitoring"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
	"github.com/ahmed123456787/forsa-tech/pkg/store"
)

// streamDoneFrame terminates every answer stream, including failed ones.
const streamDoneFrame = "data: [DONE]\n\n"

// StreamHandler serves the streaming question endpoint.
type StreamHandler struct {
	generator *rag.AnswerGenerator
	chats     *store.ChatStore
	metrics   *monitoring.Metrics
	logger    *logging.StructuredLogger
}

// NewStreamHandler creates a streaming handler. chats and metrics may be nil.
func NewStreamHandler(generator *rag.AnswerGenerator, chats *store.ChatStore, metrics *monitoring.Metrics, logger *logging.StructuredLogger) *StreamHandler {
	return &StreamHandler{
		generator: generator,
		chats:     chats,
		metrics:   metrics,
		logger:    logger.WithComponent("stream-handler"),
	}
}

// StreamChat handles POST /api/stream-chat/. The answer is delivered as SSE
// frames: one "data: <fragment>" per token batch, then "data: [DONE]". A
// mid-stream failure emits an error frame before the terminal frame, since
// the 200 status is already on the wire.
func (h *StreamHandler) StreamChat(w http.ResponseWriter, r *http.Request) {
	builder := apperrors.NewErrorBuilder("handlers", "stream_chat", h.logger.Logger)

	var request AskRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, builder.ValidationError("invalid_body", "request body is not valid JSON"))
		return
	}
	request.Question = strings.TrimSpace(request.Question)
	if request.Question == "" {
		writeError(w, r, builder.InvalidFieldError("question", "cannot be empty"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, builder.InternalError("streaming is not supported by this connection", nil))
		return
	}

	// Retrieval failures happen before any byte is written, so they still
	// get a proper JSON error status.
	answer, events, err := h.generator.AskQuestionStream(r.Context(), request.Question, request.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if answer.FallbackUsed && h.metrics != nil {
		h.metrics.CategoryFallbacksTotal.Inc()
	}

	// The server's write timeout would sever long generations mid-stream,
	// so lift the deadline for this response only.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("Failed to clear stream write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if h.metrics != nil {
		h.metrics.StreamsActive.Inc()
		defer h.metrics.StreamsActive.Dec()
	}

	var full strings.Builder
	failed := false
	for event := range events {
		if event.Err != nil {
			fmt.Fprintf(w, "data: Error streaming response: %v\n\n", event.Err)
			flusher.Flush()
			failed = true
			break
		}
		full.WriteString(event.Fragment)
		fmt.Fprintf(w, "data: %s\n\n", event.Fragment)
		flusher.Flush()
	}

	fmt.Fprint(w, streamDoneFrame)
	flusher.Flush()

	if !failed && h.chats != nil && full.Len() > 0 {
		if _, storeErr := h.chats.Create(r.Context(), "",
			store.SingleQA(answer.Category, request.Question),
			store.SingleQA(answer.Category, full.String()),
			referenceURLs(answer.UniqueFiles)); storeErr != nil {
			h.logger.Warn("Failed to persist streamed chat", "error", storeErr)
		}
	}
}
