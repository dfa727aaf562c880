package rag

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWhereFilter_Empty(t *testing.T) {
	assert.Nil(t, buildWhereFilter(nil))
	assert.Nil(t, buildWhereFilter(map[string]interface{}{}))
	assert.Nil(t, buildWhereFilter(map[string]interface{}{"category": nil}))
	assert.Nil(t, buildWhereFilter(map[string]interface{}{"offer_type": []string{}}))
}

func TestBuildWhereFilter_SingleEquality(t *testing.T) {
	where := buildWhereFilter(map[string]interface{}{"category": "Offres"})
	require.NotNil(t, where)

	rendered := where.String()
	assert.Contains(t, rendered, "category")
	assert.Contains(t, rendered, "Offres")
	assert.Contains(t, rendered, "Equal")
}

func TestBuildWhereFilter_ListBecomesContainsAny(t *testing.T) {
	where := buildWhereFilter(map[string]interface{}{"offer_type": []string{"Fibre", "ADSL"}})
	require.NotNil(t, where)

	rendered := where.String()
	assert.Contains(t, rendered, "offer_type")
	assert.Contains(t, rendered, "Fibre")
	assert.Contains(t, rendered, "ADSL")
	assert.Contains(t, rendered, "ContainsAny")
}

func TestBuildWhereFilter_MultipleKeysAnd(t *testing.T) {
	where := buildWhereFilter(map[string]interface{}{
		"category": "Offres",
		"partner":  "Mobilis",
	})
	require.NotNil(t, where)

	rendered := where.String()
	assert.Contains(t, rendered, "And")
	assert.Contains(t, rendered, "category")
	assert.Contains(t, rendered, "partner")
}

func TestBuildWhereFilter_IntEquality(t *testing.T) {
	where := buildWhereFilter(map[string]interface{}{"page_number": 3})
	require.NotNil(t, where)
	assert.Contains(t, where.String(), "page_number")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestMMRSelect_PureRelevance(t *testing.T) {
	query := []float32{1, 0}
	candidates := []scoredCandidate{
		{chunk: &DocumentChunk{Content: "best"}, vector: []float32{1, 0}},
		{chunk: &DocumentChunk{Content: "good"}, vector: []float32{0.9, 0.1}},
		{chunk: &DocumentChunk{Content: "weak"}, vector: []float32{0, 1}},
	}

	selected := mmrSelect(query, candidates, 2, 1.0)
	require.Len(t, selected, 2)
	assert.Equal(t, "best", selected[0].chunk.Content)
	assert.Equal(t, "good", selected[1].chunk.Content)
}

func TestMMRSelect_DiversityPenalizesDuplicates(t *testing.T) {
	query := []float32{1, 0}
	candidates := []scoredCandidate{
		{chunk: &DocumentChunk{Content: "first"}, vector: []float32{1, 0}},
		{chunk: &DocumentChunk{Content: "duplicate"}, vector: []float32{1, 0}},
		{chunk: &DocumentChunk{Content: "different"}, vector: []float32{0.5, 0.5}},
	}

	selected := mmrSelect(query, candidates, 2, 0.3)
	require.Len(t, selected, 2)
	assert.Equal(t, "first", selected[0].chunk.Content)
	assert.Equal(t, "different", selected[1].chunk.Content)
}

func TestMMRSelect_KCoversAll(t *testing.T) {
	candidates := []scoredCandidate{
		{chunk: &DocumentChunk{Content: "a"}},
		{chunk: &DocumentChunk{Content: "b"}},
	}
	selected := mmrSelect([]float32{1}, candidates, 5, 0.5)
	assert.Len(t, selected, 2)
}

func TestParseCandidate(t *testing.T) {
	ws := &WeaviateSearcher{class: "ForsaDocument", logger: slog.Default()}

	candidate := ws.parseCandidate(map[string]interface{}{
		"content":   "texte du chunk",
		"category":  "Offres",
		"file_name": "offre.pdf",
		"partner":   "",
		"_additional": map[string]interface{}{
			"id":        "abc-123",
			"certainty": 0.87,
			"vector":    []interface{}{0.1, 0.2},
		},
	})

	assert.Equal(t, "texte du chunk", candidate.chunk.Content)
	assert.Equal(t, "abc-123", candidate.chunk.ID)
	assert.Equal(t, 0.87, candidate.score)
	assert.Equal(t, []float32{0.1, 0.2}, candidate.vector)
	assert.Equal(t, "Offres", candidate.chunk.Metadata["category"])
	assert.Equal(t, "offre.pdf", candidate.chunk.Metadata["file_name"])

	// Empty string properties are dropped, not stored.
	_, hasPartner := candidate.chunk.Metadata["partner"]
	assert.False(t, hasPartner)
}

func TestParseCandidate_DistanceFallback(t *testing.T) {
	ws := &WeaviateSearcher{class: "ForsaDocument", logger: slog.Default()}

	candidate := ws.parseCandidate(map[string]interface{}{
		"content": "x",
		"_additional": map[string]interface{}{
			"distance": 0.25,
		},
	})
	assert.InDelta(t, 0.75, candidate.score, 1e-9)
}

func scoredPool(scores ...float64) []scoredCandidate {
	pool := make([]scoredCandidate, len(scores))
	for i, score := range scores {
		pool[i] = scoredCandidate{
			chunk: &DocumentChunk{Content: fmt.Sprintf("chunk %d", i)},
			score: score,
		}
	}
	return pool
}

func TestPruneScored_ThresholdDropsLowScores(t *testing.T) {
	results := pruneScored(scoredPool(0.95, 0.6, 0.8, 0.4), 10, 0.7)

	require.Len(t, results, 2)
	assert.Equal(t, "chunk 0", results[0].Chunk.Content)
	assert.Equal(t, 0.95, results[0].Score)
	assert.Equal(t, "chunk 2", results[1].Chunk.Content)
}

func TestPruneScored_ZeroThresholdKeepsAll(t *testing.T) {
	results := pruneScored(scoredPool(0.9, 0.1, 0.0), 10, 0)

	require.Len(t, results, 3)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestPruneScored_TruncatesToK(t *testing.T) {
	results := pruneScored(scoredPool(0.9, 0.8, 0.7, 0.6, 0.5), 3, 0)

	require.Len(t, results, 3)
	assert.Equal(t, "chunk 2", results[2].Chunk.Content)
}

func TestPruneScored_ThresholdThenTruncate(t *testing.T) {
	// Overfetched pool: pruning happens before the k cut, so later
	// high-scoring candidates still make the list.
	results := pruneScored(scoredPool(0.9, 0.2, 0.3, 0.85, 0.8), 2, 0.7)

	require.Len(t, results, 2)
	assert.Equal(t, "chunk 0", results[0].Chunk.Content)
	assert.Equal(t, "chunk 3", results[1].Chunk.Content)
}

func TestKeywordSearch_NonPositiveBudgetReturnsEmpty(t *testing.T) {
	ws := &WeaviateSearcher{class: "ForsaDocument", logger: slog.Default()}

	chunks, err := ws.KeywordSearch(context.Background(), "fibre", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
