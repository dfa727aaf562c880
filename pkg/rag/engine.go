package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ChatModel is the LLM surface the retrieval layer needs for intent
// classification. pkg/llm.Client satisfies it.
type ChatModel interface {
	ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Retriever is the full retrieval surface the engine drives.
type Retriever interface {
	VectorStore
	KeywordSearch(ctx context.Context, query string, k int, metadataFilters map[string]interface{}) ([]*DocumentChunk, error)
}

const intentSystemPrompt = `You classify search queries for a telecom document assistant.
Given a user query, respond with ONLY a JSON object, no prose, with these fields:
  "keywords": array of the most important search terms,
  "category": one of "Convention", "Offres", "Guide_NGBSS", "Depot_Vente", or "" when unclear,
  "search_type": one of "semantic", "keyword", "hybrid",
  "refined_query": the query rewritten for document retrieval.`

const maxIntentKeywords = 5

// SearchEngine combines semantic and keyword retrieval with LLM intent
// classification and result formatting.
type SearchEngine struct {
	retriever Retriever
	chatModel ChatModel
	matcher   *CategoryMatcher
	cache     *RedisCache
	logger    *slog.Logger
}

// NewSearchEngine wires a search engine. chatModel and cache may be nil; a
// nil chatModel disables LLM classification and smart search falls back to
// hybrid retrieval.
func NewSearchEngine(retriever Retriever, chatModel ChatModel, cache *RedisCache, logger *slog.Logger) (*SearchEngine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchEngine{
		retriever: retriever,
		chatModel: chatModel,
		matcher:   NewCategoryMatcher(logger),
		cache:     cache,
		logger:    logger.With("component", "search-engine"),
	}, nil
}

// SemanticSearch runs vector retrieval and formats the results. An empty
// category means no filtering.
func (e *SearchEngine) SemanticSearch(ctx context.Context, query string, topK int, category string) ([]SearchResult, error) {
	signature := QuerySignature(query, "semantic", topK, category)
	if cached, ok := e.cache.GetSearchResults(ctx, signature); ok {
		return cached, nil
	}

	chunks, err := e.retriever.SimilaritySearch(ctx, query, topK, categoryFilter(category))
	if err != nil {
		return nil, err
	}

	results := FormatResults(chunks)
	e.cache.SetSearchResults(ctx, signature, results)
	return results, nil
}

// KeywordSearch runs BM25 retrieval and formats the results.
func (e *SearchEngine) KeywordSearch(ctx context.Context, query string, topK int, category string) ([]SearchResult, error) {
	signature := QuerySignature(query, "keyword", topK, category)
	if cached, ok := e.cache.GetSearchResults(ctx, signature); ok {
		return cached, nil
	}

	chunks, err := e.retriever.KeywordSearch(ctx, query, topK, categoryFilter(category))
	if err != nil {
		return nil, err
	}

	results := FormatResults(chunks)
	e.cache.SetSearchResults(ctx, signature, results)
	return results, nil
}

// HybridSearch merges semantic results (topK) with keyword results (topK/2),
// semantic-first, deduplicates near-identical content and truncates to topK.
// The keyword leg queries the joined keywords and only runs when keywords
// were supplied and the topK/2 budget is positive; without keywords the
// search is semantic-only. A keyword-side failure degrades to semantic-only;
// a semantic-side failure fails the whole search.
func (e *SearchEngine) HybridSearch(ctx context.Context, query string, keywords []string, topK int, category string) ([]SearchResult, error) {
	keywordQuery := strings.TrimSpace(strings.Join(keywords, " "))

	signature := QuerySignature(query+"|"+keywordQuery, "hybrid", topK, category)
	if cached, ok := e.cache.GetSearchResults(ctx, signature); ok {
		return cached, nil
	}

	semantic, err := e.SemanticSearch(ctx, query, topK, category)
	if err != nil {
		return nil, err
	}

	var keyword []SearchResult
	if keywordQuery != "" && topK/2 > 0 {
		keyword, err = e.KeywordSearch(ctx, keywordQuery, topK/2, category)
		if err != nil {
			e.logger.Warn("Keyword side of hybrid search failed, using semantic results only",
				"error", err, "query_length", len(query))
			keyword = nil
		}
	}

	merged := mergeResults(semantic, keyword, topK)
	e.cache.SetSearchResults(ctx, signature, merged)
	return merged, nil
}

// SmartSearch classifies the query intent, dispatches to the matching search
// strategy and returns the results together with the deduplicated file list.
func (e *SearchEngine) SmartSearch(ctx context.Context, query string, topK int) (*SmartSearchResponse, error) {
	startTime := time.Now()

	intent := e.ClassifyIntent(ctx, query)

	category := ""
	if intent.Category != "" {
		matched, _ := e.matcher.Match(intent.Category, DefaultCategoryThreshold)
		category = matched
	}

	searchQuery := intent.RefinedQuery
	if strings.TrimSpace(searchQuery) == "" {
		searchQuery = query
	}

	var results []SearchResult
	var err error
	switch intent.SearchType {
	case "semantic":
		results, err = e.SemanticSearch(ctx, searchQuery, topK, category)
	case "keyword":
		results, err = e.KeywordSearch(ctx, searchQuery, topK, category)
	default:
		results, err = e.HybridSearch(ctx, searchQuery, intent.Keywords, topK, category)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("Smart search completed",
		"search_type", intent.SearchType,
		"category", category,
		"results", len(results),
		"took", time.Since(startTime),
	)

	return &SmartSearchResponse{
		Query:           query,
		Intent:          &intent,
		Results:         results,
		TotalFound:      len(results),
		FilesReferenced: UniqueFiles(results),
	}, nil
}

// ClassifyIntent asks the LLM to classify the query. Classification never
// fails the search: any LLM or decoding problem yields a deterministic
// fallback intent built from the query itself.
func (e *SearchEngine) ClassifyIntent(ctx context.Context, query string) SearchIntent {
	if e.chatModel == nil {
		return fallbackIntent(query)
	}

	raw, err := e.chatModel.ChatCompletion(ctx, intentSystemPrompt, query)
	if err != nil {
		e.logger.Warn("Intent classification call failed, using fallback intent", "error", err)
		return fallbackIntent(query)
	}

	intent, err := decodeIntent(raw)
	if err != nil {
		e.logger.Warn("Intent classification output unparseable, using fallback intent",
			"error", err, "output_length", len(raw))
		return fallbackIntent(query)
	}

	intent.SearchType = normalizeSearchType(intent.SearchType)
	if strings.TrimSpace(intent.RefinedQuery) == "" {
		intent.RefinedQuery = query
	}
	return intent
}

// decodeIntent parses the model output as JSON; on failure it strips one
// surrounding markdown code fence and tries once more.
func decodeIntent(raw string) (SearchIntent, error) {
	var intent SearchIntent

	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &intent); err == nil {
		return intent, nil
	}

	stripped := stripCodeFence(trimmed)
	if err := json.Unmarshal([]byte(stripped), &intent); err != nil {
		return SearchIntent{}, fmt.Errorf("intent output is not valid JSON: %w", err)
	}
	return intent, nil
}

// stripCodeFence removes one layer of ```...``` fencing, tolerating a
// language tag after the opening fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if len(firstLine) <= 10 && !strings.Contains(firstLine, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// fallbackIntent builds a deterministic intent from the raw query: its first
// whitespace tokens as keywords, no category, hybrid search.
func fallbackIntent(query string) SearchIntent {
	tokens := strings.Fields(query)
	if len(tokens) > maxIntentKeywords {
		tokens = tokens[:maxIntentKeywords]
	}
	return SearchIntent{
		Keywords:     tokens,
		Category:     "",
		SearchType:   "hybrid",
		RefinedQuery: query,
	}
}

func normalizeSearchType(searchType string) string {
	switch strings.ToLower(strings.TrimSpace(searchType)) {
	case "semantic":
		return "semantic"
	case "keyword":
		return "keyword"
	default:
		return "hybrid"
	}
}

// mergeResults concatenates semantic-first, drops results whose leading
// content matches one already kept, and truncates to topK.
func mergeResults(semantic, keyword []SearchResult, topK int) []SearchResult {
	merged := make([]SearchResult, 0, len(semantic)+len(keyword))
	seen := make(map[string]struct{}, len(semantic)+len(keyword))

	for _, result := range append(append([]SearchResult{}, semantic...), keyword...) {
		key := contentKey(result.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, result)
		if len(merged) == topK {
			break
		}
	}
	return merged
}

// contentKey identifies a result by the first 100 characters of its content.
func contentKey(content string) string {
	runes := []rune(content)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

func categoryFilter(category string) map[string]interface{} {
	if category == "" {
		return nil
	}
	return map[string]interface{}{"category": category}
}
