package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	semanticChunks []*DocumentChunk
	keywordChunks  []*DocumentChunk
	semanticErr    error
	keywordErr     error

	semanticCalls    int
	keywordCalls     int
	lastFilters      map[string]interface{}
	lastSemanticK    int
	lastKeywordK     int
	lastKeywordQuery string

	// unfilteredChunks, when set, is returned for calls without filters.
	unfilteredChunks []*DocumentChunk
}

func (s *stubRetriever) SimilaritySearch(_ context.Context, _ string, k int, filters map[string]interface{}) ([]*DocumentChunk, error) {
	s.semanticCalls++
	s.lastFilters = filters
	s.lastSemanticK = k
	if s.semanticErr != nil {
		return nil, s.semanticErr
	}
	if len(filters) == 0 && s.unfilteredChunks != nil {
		return s.unfilteredChunks, nil
	}
	return s.semanticChunks, nil
}

func (s *stubRetriever) SimilaritySearchWithScore(ctx context.Context, query string, k int, filters map[string]interface{}, threshold float64) ([]ScoredChunk, error) {
	chunks, err := s.SimilaritySearch(ctx, query, k, filters)
	if err != nil {
		return nil, err
	}
	scored := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: 0.9}
	}
	return scored, nil
}

func (s *stubRetriever) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, _ int, _ float64, filters map[string]interface{}) ([]*DocumentChunk, error) {
	return s.SimilaritySearch(ctx, query, k, filters)
}

func (s *stubRetriever) KeywordSearch(_ context.Context, query string, k int, filters map[string]interface{}) ([]*DocumentChunk, error) {
	s.keywordCalls++
	s.lastKeywordK = k
	s.lastKeywordQuery = query
	if s.keywordErr != nil {
		return nil, s.keywordErr
	}
	return s.keywordChunks, nil
}

type stubChatModel struct {
	reply string
	err   error
	calls int
}

func (s *stubChatModel) ChatCompletion(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func chunkWithContent(content string) *DocumentChunk {
	return &DocumentChunk{Content: content, Metadata: map[string]interface{}{"file_name": "doc.pdf"}}
}

func newTestEngine(t *testing.T, retriever Retriever, chat ChatModel) *SearchEngine {
	t.Helper()
	engine, err := NewSearchEngine(retriever, chat, nil, slog.Default())
	require.NoError(t, err)
	return engine
}

func TestHybridSearch_MergesSemanticFirst(t *testing.T) {
	retriever := &stubRetriever{
		semanticChunks: []*DocumentChunk{chunkWithContent("semantic one"), chunkWithContent("semantic two")},
		keywordChunks:  []*DocumentChunk{chunkWithContent("keyword one")},
	}
	engine := newTestEngine(t, retriever, nil)

	results, err := engine.HybridSearch(context.Background(), "fibre optique", []string{"fibre", "optique"}, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "semantic one", results[0].Content)
	assert.Equal(t, "semantic two", results[1].Content)
	assert.Equal(t, "keyword one", results[2].Content)

	// The keyword leg queries the joined keywords with half the budget.
	assert.Equal(t, 10, retriever.lastSemanticK)
	assert.Equal(t, 5, retriever.lastKeywordK)
	assert.Equal(t, "fibre optique", retriever.lastKeywordQuery)
}

func TestHybridSearch_NoKeywordsIsSemanticOnly(t *testing.T) {
	retriever := &stubRetriever{
		semanticChunks: []*DocumentChunk{chunkWithContent("semantic one")},
		keywordChunks:  []*DocumentChunk{chunkWithContent("keyword extra")},
	}
	engine := newTestEngine(t, retriever, nil)

	results, err := engine.HybridSearch(context.Background(), "prix fibre 1Gbps", nil, 10, "")
	require.NoError(t, err)

	assert.Equal(t, 0, retriever.keywordCalls)
	require.Len(t, results, 1)
	assert.Equal(t, "semantic one", results[0].Content)
}

func TestHybridSearch_BlankKeywordsIsSemanticOnly(t *testing.T) {
	retriever := &stubRetriever{
		semanticChunks: []*DocumentChunk{chunkWithContent("semantic one")},
		keywordChunks:  []*DocumentChunk{chunkWithContent("keyword extra")},
	}
	engine := newTestEngine(t, retriever, nil)

	results, err := engine.HybridSearch(context.Background(), "prix fibre", []string{" ", ""}, 10, "")
	require.NoError(t, err)

	assert.Equal(t, 0, retriever.keywordCalls)
	require.Len(t, results, 1)
}

func TestHybridSearch_ZeroKeywordBudgetSkipsLeg(t *testing.T) {
	retriever := &stubRetriever{
		semanticChunks: []*DocumentChunk{chunkWithContent("semantic one")},
		keywordChunks:  []*DocumentChunk{chunkWithContent("keyword extra")},
	}
	engine := newTestEngine(t, retriever, nil)

	// topK of 1 halves to a zero keyword budget.
	results, err := engine.HybridSearch(context.Background(), "prix fibre", []string{"prix"}, 1, "")
	require.NoError(t, err)

	assert.Equal(t, 0, retriever.keywordCalls)
	require.Len(t, results, 1)
}

func TestHybridSearch_DeduplicatesByContentPrefix(t *testing.T) {
	shared := strings.Repeat("a", 100)
	retriever := &stubRetriever{
		semanticChunks: []*DocumentChunk{chunkWithContent(shared + " semantic tail")},
		keywordChunks:  []*DocumentChunk{chunkWithContent(shared + " keyword tail")},
	}
	engine := newTestEngine(t, retriever, nil)

	results, err := engine.HybridSearch(context.Background(), "query text", []string{"query"}, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "semantic tail")
}

func TestHybridSearch_TruncatesToTopK(t *testing.T) {
	var semantic, keyword []*DocumentChunk
	for i := 0; i < 4; i++ {
		semantic = append(semantic, chunkWithContent(fmt.Sprintf("semantic %d", i)))
		keyword = append(keyword, chunkWithContent(fmt.Sprintf("keyword %d", i)))
	}
	engine := newTestEngine(t, &stubRetriever{semanticChunks: semantic, keywordChunks: keyword}, nil)

	results, err := engine.HybridSearch(context.Background(), "query text", []string{"query"}, 5, "")
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestHybridSearch_KeywordFailureDegrades(t *testing.T) {
	retriever := &stubRetriever{
		semanticChunks: []*DocumentChunk{chunkWithContent("semantic one")},
		keywordErr:     errors.New("bm25 exploded"),
	}
	engine := newTestEngine(t, retriever, nil)

	results, err := engine.HybridSearch(context.Background(), "query text", []string{"query"}, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "semantic one", results[0].Content)
}

func TestHybridSearch_SemanticFailureFails(t *testing.T) {
	engine := newTestEngine(t, &stubRetriever{semanticErr: errors.New("store down")}, nil)

	_, err := engine.HybridSearch(context.Background(), "query text", nil, 10, "")
	assert.Error(t, err)
}

func TestSemanticSearch_CategoryFilter(t *testing.T) {
	retriever := &stubRetriever{semanticChunks: []*DocumentChunk{chunkWithContent("x")}}
	engine := newTestEngine(t, retriever, nil)

	_, err := engine.SemanticSearch(context.Background(), "query text", 4, "Offres")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"category": "Offres"}, retriever.lastFilters)

	_, err = engine.SemanticSearch(context.Background(), "query text", 4, "")
	require.NoError(t, err)
	assert.Nil(t, retriever.lastFilters)
}

func TestClassifyIntent_ValidJSON(t *testing.T) {
	chat := &stubChatModel{reply: `{"keywords":["fibre","prix"],"category":"Offres","search_type":"semantic","refined_query":"prix offre fibre"}`}
	engine := newTestEngine(t, &stubRetriever{}, chat)

	intent := engine.ClassifyIntent(context.Background(), "combien coute la fibre")
	assert.Equal(t, []string{"fibre", "prix"}, intent.Keywords)
	assert.Equal(t, "Offres", intent.Category)
	assert.Equal(t, "semantic", intent.SearchType)
	assert.Equal(t, "prix offre fibre", intent.RefinedQuery)
}

func TestClassifyIntent_FencedJSON(t *testing.T) {
	chat := &stubChatModel{reply: "```json\n{\"keywords\":[\"ngbss\"],\"category\":\"Guide_NGBSS\",\"search_type\":\"keyword\",\"refined_query\":\"activation ligne ngbss\"}\n```"}
	engine := newTestEngine(t, &stubRetriever{}, chat)

	intent := engine.ClassifyIntent(context.Background(), "comment activer une ligne")
	assert.Equal(t, "Guide_NGBSS", intent.Category)
	assert.Equal(t, "keyword", intent.SearchType)
}

func TestClassifyIntent_GarbageFallsBack(t *testing.T) {
	chat := &stubChatModel{reply: "Sorry, I cannot produce JSON today."}
	engine := newTestEngine(t, &stubRetriever{}, chat)

	query := "quelles sont les conditions de la convention avec le partenaire X"
	intent := engine.ClassifyIntent(context.Background(), query)

	assert.Equal(t, []string{"quelles", "sont", "les", "conditions", "de"}, intent.Keywords)
	assert.Empty(t, intent.Category)
	assert.Equal(t, "hybrid", intent.SearchType)
	assert.Equal(t, query, intent.RefinedQuery)
}

func TestClassifyIntent_LLMErrorFallsBack(t *testing.T) {
	chat := &stubChatModel{err: errors.New("model unavailable")}
	engine := newTestEngine(t, &stubRetriever{}, chat)

	intent := engine.ClassifyIntent(context.Background(), "courte question")
	assert.Equal(t, "hybrid", intent.SearchType)
	assert.Equal(t, "courte question", intent.RefinedQuery)
}

func TestClassifyIntent_NilModelFallsBack(t *testing.T) {
	engine := newTestEngine(t, &stubRetriever{}, nil)

	intent := engine.ClassifyIntent(context.Background(), "question sans llm")
	assert.Equal(t, "hybrid", intent.SearchType)
}

func TestClassifyIntent_UnknownSearchTypeNormalized(t *testing.T) {
	chat := &stubChatModel{reply: `{"keywords":[],"category":"","search_type":"vector","refined_query":"q"}`}
	engine := newTestEngine(t, &stubRetriever{}, chat)

	intent := engine.ClassifyIntent(context.Background(), "q")
	assert.Equal(t, "hybrid", intent.SearchType)
}

func TestSmartSearch_DispatchesSemantic(t *testing.T) {
	retriever := &stubRetriever{semanticChunks: []*DocumentChunk{chunkWithContent("result")}}
	chat := &stubChatModel{reply: `{"keywords":["fibre"],"category":"Offre","search_type":"semantic","refined_query":"offre fibre"}`}
	engine := newTestEngine(t, retriever, chat)

	response, err := engine.SmartSearch(context.Background(), "parle moi de la fibre", 4)
	require.NoError(t, err)

	assert.Equal(t, 1, retriever.semanticCalls)
	assert.Zero(t, retriever.keywordCalls)
	// The intent's fuzzy category hint resolves onto the canonical label.
	assert.Equal(t, map[string]interface{}{"category": "Offres"}, retriever.lastFilters)
	assert.Equal(t, 1, response.TotalFound)
	assert.Len(t, response.FilesReferenced, 1)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}

func TestContentKey_RuneSafe(t *testing.T) {
	content := strings.Repeat("é", 150)
	key := contentKey(content)
	assert.Equal(t, strings.Repeat("é", 100), key)
}
