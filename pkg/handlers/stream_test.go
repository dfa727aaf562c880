package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
)

type fakeStreamingModel struct {
	reply     string
	fragments []string
	streamErr error
}

func (f *fakeStreamingModel) ChatCompletion(_ context.Context, _, _ string) (string, error) {
	return f.reply, nil
}

func (f *fakeStreamingModel) ChatCompletionStream(ctx context.Context, _, _ string, fragments chan<- string) error {
	defer close(fragments)
	for _, fragment := range f.fragments {
		select {
		case fragments <- fragment:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.streamErr
}

func newStreamHandler(t *testing.T, retriever rag.Retriever, model *fakeStreamingModel) *StreamHandler {
	t.Helper()
	logger := logging.NewLogger("test", "error")
	engine, err := rag.NewSearchEngine(retriever, nil, nil, logger.Logger)
	require.NoError(t, err)
	generator, err := rag.NewAnswerGenerator(engine, model, logger.Logger, 4)
	require.NoError(t, err)
	return NewStreamHandler(generator, nil, nil, logger)
}

func streamRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/stream-chat/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStreamChat_Framing(t *testing.T) {
	retriever := &fakeRetriever{chunks: []*rag.DocumentChunk{
		{Content: "ctx", Metadata: map[string]interface{}{"file_name": "doc.pdf"}},
	}}
	model := &fakeStreamingModel{fragments: []string{"La ", "fibre ", "coûte ", "2000 DA."}}
	handler := newStreamHandler(t, retriever, model)

	rec := httptest.NewRecorder()
	handler.StreamChat(rec, streamRequest(`{"question":"combien coute la fibre"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "data: La \n\n")
	assert.Contains(t, body, "data: fibre \n\n")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	// Every frame uses SSE data framing.
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "data: "), "unexpected frame: %q", line)
	}
}

func TestStreamChat_MidStreamError(t *testing.T) {
	retriever := &fakeRetriever{chunks: []*rag.DocumentChunk{{Content: "ctx", Metadata: map[string]interface{}{}}}}
	model := &fakeStreamingModel{
		fragments: []string{"partial "},
		streamErr: errors.New("upstream reset"),
	}
	handler := newStreamHandler(t, retriever, model)

	rec := httptest.NewRecorder()
	handler.StreamChat(rec, streamRequest(`{"question":"une question"}`))

	// The 200 is already committed; the failure arrives in-band.
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "data: partial \n\n")
	assert.Contains(t, body, "data: Error streaming response: ")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestStreamChat_EmptyQuestion(t *testing.T) {
	handler := newStreamHandler(t, &fakeRetriever{}, &fakeStreamingModel{})

	rec := httptest.NewRecorder()
	handler.StreamChat(rec, streamRequest(`{"question":"   "}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}

func TestStreamChat_RetrievalFailureIsJSONError(t *testing.T) {
	logger := logging.NewLogger("test", "error")
	retriever := &fakeRetriever{err: errVectorDown(logger)}
	handler := newStreamHandler(t, retriever, &fakeStreamingModel{})

	rec := httptest.NewRecorder()
	handler.StreamChat(rec, streamRequest(`{"question":"une question"}`))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
