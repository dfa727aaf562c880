package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
)

func newChatHandler(t *testing.T, retriever rag.Retriever, model *fakeStreamingModel) *ChatHandler {
	t.Helper()
	logger := logging.NewLogger("test", "error")
	engine, err := rag.NewSearchEngine(retriever, nil, nil, logger.Logger)
	require.NoError(t, err)
	generator, err := rag.NewAnswerGenerator(engine, model, logger.Logger, 4)
	require.NoError(t, err)
	return NewChatHandler(generator, nil, nil, logger)
}

func TestAsk_HappyPath(t *testing.T) {
	retriever := &fakeRetriever{chunks: []*rag.DocumentChunk{
		{Content: "la fibre coute 2000 DA", Metadata: map[string]interface{}{"file_name": "offre.pdf", "source": "https://intra/offre.pdf"}},
	}}
	model := &fakeStreamingModel{reply: "La fibre coûte 2000 DA."}
	handler := newChatHandler(t, retriever, model)

	req := httptest.NewRequest(http.MethodPost, "/api/ask/",
		bytes.NewBufferString(`{"question":"combien coute la fibre","category":"Offres"}`))
	rec := httptest.NewRecorder()
	handler.Ask(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "La fibre coûte 2000 DA.", response["answer"])
	assert.Equal(t, "Offres", response["category"])
	assert.Equal(t, false, response["fallback_used"])
}

func TestAsk_EmptyQuestion(t *testing.T) {
	handler := newChatHandler(t, &fakeRetriever{}, &fakeStreamingModel{})

	req := httptest.NewRequest(http.MethodPost, "/api/ask/", bytes.NewBufferString(`{"question":""}`))
	rec := httptest.NewRecorder()
	handler.Ask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_TypoCategoryResolves(t *testing.T) {
	retriever := &fakeRetriever{chunks: []*rag.DocumentChunk{
		{Content: "texte", Metadata: map[string]interface{}{"file_name": "c.pdf"}},
	}}
	handler := newChatHandler(t, retriever, &fakeStreamingModel{reply: "réponse"})

	req := httptest.NewRequest(http.MethodPost, "/api/ask/",
		bytes.NewBufferString(`{"question":"les conditions","category":"convantion"}`))
	rec := httptest.NewRecorder()
	handler.Ask(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"category": "Convention"}, retriever.lastFilters)
}

func TestCreateChats_AnswersEveryQuestion(t *testing.T) {
	retriever := &fakeRetriever{chunks: []*rag.DocumentChunk{
		{Content: "texte", Metadata: map[string]interface{}{"file_name": "c.pdf"}},
	}}
	handler := newChatHandler(t, retriever, &fakeStreamingModel{reply: "réponse générée"})

	body := `{"equipe":"IA_Team","question":{"Offres":{"1":"Donnez une description de l'offre","2":"Quel est le prix ?"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/chats/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.CreateChats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response ChatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "IA_Team", response.Equipe)
	require.Contains(t, response.Reponses, "Offres")
	assert.Equal(t, "réponse générée", response.Reponses["Offres"]["1"])
	assert.Equal(t, "réponse générée", response.Reponses["Offres"]["2"])
}

func TestCreateChats_EmptyEquipe(t *testing.T) {
	handler := newChatHandler(t, &fakeRetriever{}, &fakeStreamingModel{})

	req := httptest.NewRequest(http.MethodPost, "/api/chats/",
		bytes.NewBufferString(`{"equipe":"","question":{"Offres":{"1":"q"}}}`))
	rec := httptest.NewRecorder()
	handler.CreateChats(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateChats_EmptyQuestionMap(t *testing.T) {
	handler := newChatHandler(t, &fakeRetriever{}, &fakeStreamingModel{})

	req := httptest.NewRequest(http.MethodPost, "/api/chats/",
		bytes.NewBufferString(`{"equipe":"IA_Team","question":{}}`))
	rec := httptest.NewRecorder()
	handler.CreateChats(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferenceURLs(t *testing.T) {
	files := []rag.UniqueFileReference{
		{FileName: "a.pdf", Source: "https://intra/a.pdf"},
		{FileName: "b.pdf"},
		{},
	}
	urls := referenceURLs(files)
	assert.Equal(t, []string{"https://intra/a.pdf", "b.pdf"}, urls)
}
