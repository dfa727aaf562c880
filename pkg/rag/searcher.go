package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/retry"
)

// Embedder turns query text into a vector. The embedding model itself is an
// external service; implementations live in embedding.go.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the retrieval surface the engine and generator consume.
// The production implementation is WeaviateSearcher; tests inject stubs.
type VectorStore interface {
	SimilaritySearch(ctx context.Context, query string, k int, metadataFilters map[string]interface{}) ([]*DocumentChunk, error)
	SimilaritySearchWithScore(ctx context.Context, query string, k int, metadataFilters map[string]interface{}, scoreThreshold float64) ([]ScoredChunk, error)
	MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64, metadataFilters map[string]interface{}) ([]*DocumentChunk, error)
}

// WeaviateConfig holds configuration for the Weaviate-backed searcher.
type WeaviateConfig struct {
	Host      string            `json:"host"`
	Scheme    string            `json:"scheme"`
	APIKey    string            `json:"api_key"`
	Headers   map[string]string `json:"headers"`
	ClassName string            `json:"class_name"`

	// AutoSchema creates the document class on startup when missing.
	AutoSchema bool `json:"auto_schema"`
}

// chunkProperties are the metadata fields stored per chunk, alongside content.
var chunkProperties = []string{
	"category", "partner", "offer_type",
	"source", "source_file", "file_name", "file_path", "file_type",
	"page_number", "chunk_index", "document_id",
}

// WeaviateSearcher performs semantic search on a Weaviate collection with
// structured metadata filtering.
type WeaviateSearcher struct {
	client   *weaviate.Client
	embedder Embedder
	class    string
	logger   *slog.Logger
	retry    retry.Policy
}

// NewWeaviateSearcher creates a searcher over the configured document class.
func NewWeaviateSearcher(config *WeaviateConfig, embedder Embedder, logger *slog.Logger) (*WeaviateSearcher, error) {
	if config == nil {
		return nil, fmt.Errorf("weaviate config cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if config.Scheme == "" {
		config.Scheme = "https"
	}
	if config.ClassName == "" {
		config.ClassName = "ForsaDocument"
	}

	var authConfig auth.Config
	if config.APIKey != "" {
		authConfig = auth.ApiKey{Value: config.APIKey}
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:       config.Host,
		Scheme:     config.Scheme,
		AuthConfig: authConfig,
		Headers:    config.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	ws := &WeaviateSearcher{
		client:   client,
		embedder: embedder,
		class:    config.ClassName,
		logger:   logger.With("component", "vector-searcher"),
		retry:    retry.VectorStorePolicy(),
	}

	if config.AutoSchema {
		if err := ws.ensureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return ws, nil
}

// ensureSchema creates the document class when it does not exist. Vectors are
// supplied externally at ingestion time, so the class has no vectorizer.
func (ws *WeaviateSearcher) ensureSchema(ctx context.Context) error {
	textProp := func(name, description string) *models.Property {
		return &models.Property{
			Name:            name,
			DataType:        []string{"text"},
			Description:     description,
			IndexFilterable: boolPtr(true),
		}
	}
	intProp := func(name, description string) *models.Property {
		return &models.Property{
			Name:            name,
			DataType:        []string{"int"},
			Description:     description,
			IndexFilterable: boolPtr(true),
		}
	}

	class := &models.Class{
		Class:       ws.class,
		Description: "Telecom operator internal document chunks",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "Chunk text",
				IndexFilterable: boolPtr(true),
				IndexSearchable: boolPtr(true),
			},
			textProp("category", "Document category (Convention, Offres, Guide_NGBSS, Depot_Vente)"),
			textProp("partner", "Partner the document belongs to"),
			textProp("offer_type", "Commercial offer type (Fibre, ADSL, 4G, ...)"),
			textProp("source", "Source location or URL"),
			textProp("source_file", "Original file the chunk was extracted from"),
			textProp("file_name", "Source file name"),
			textProp("file_path", "Full path of the source file"),
			textProp("file_type", "File type (PDF, DOCX, ...)"),
			intProp("page_number", "Page number within the source document"),
			intProp("chunk_index", "Chunk index within the source document"),
			textProp("document_id", "Stable document identifier"),
		},
	}

	err := ws.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create %s class: %w", ws.class, err)
		}
		ws.logger.Info("Document class already exists", "class", ws.class)
		return nil
	}

	ws.logger.Info("Created document class", "class", ws.class)
	return nil
}

// buildWhereFilter translates a metadata filter map into a Weaviate where
// filter: logical AND across keys; a list value means match-any-of within
// that key. Nil values and an empty map mean no filter.
func buildWhereFilter(metadataFilters map[string]interface{}) *filters.WhereBuilder {
	if len(metadataFilters) == 0 {
		return nil
	}

	var operands []*filters.WhereBuilder

	for key, value := range metadataFilters {
		if value == nil {
			continue
		}

		switch v := value.(type) {
		case []string:
			if len(v) == 0 {
				continue
			}
			operands = append(operands, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.ContainsAny).
				WithValueText(v...))
		case []interface{}:
			values := make([]string, 0, len(v))
			for _, item := range v {
				values = append(values, fmt.Sprintf("%v", item))
			}
			if len(values) == 0 {
				continue
			}
			operands = append(operands, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.ContainsAny).
				WithValueText(values...))
		case int:
			operands = append(operands, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.Equal).
				WithValueInt(int64(v)))
		case int64:
			operands = append(operands, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.Equal).
				WithValueInt(v))
		default:
			operands = append(operands, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.Equal).
				WithValueText(fmt.Sprintf("%v", v)))
		}
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

// SimilaritySearch returns the top k chunks ranked by descending similarity,
// optionally narrowed by metadata filters. Store failures propagate as typed
// search failures; they are never collapsed into empty results.
func (ws *WeaviateSearcher) SimilaritySearch(ctx context.Context, query string, k int, metadataFilters map[string]interface{}) ([]*DocumentChunk, error) {
	scored, err := ws.search(ctx, query, k, metadataFilters, false)
	if err != nil {
		return nil, err
	}
	chunks := make([]*DocumentChunk, len(scored))
	for i, sc := range scored {
		chunks[i] = sc.chunk
	}
	return chunks, nil
}

// SimilaritySearchWithScore returns (chunk, score) pairs, pruned to scores
// >= scoreThreshold when the threshold is positive. It overfetches twice the
// budget so pruning still tends to fill k results.
func (ws *WeaviateSearcher) SimilaritySearchWithScore(ctx context.Context, query string, k int, metadataFilters map[string]interface{}, scoreThreshold float64) ([]ScoredChunk, error) {
	scored, err := ws.search(ctx, query, k*2, metadataFilters, false)
	if err != nil {
		return nil, err
	}
	return pruneScored(scored, k, scoreThreshold), nil
}

// pruneScored drops candidates below scoreThreshold (when positive) and
// truncates to k, preserving candidate order.
func pruneScored(scored []scoredCandidate, k int, scoreThreshold float64) []ScoredChunk {
	results := make([]ScoredChunk, 0, k)
	for _, sc := range scored {
		if scoreThreshold > 0 && sc.score < scoreThreshold {
			continue
		}
		results = append(results, ScoredChunk{Chunk: sc.chunk, Score: sc.score})
		if len(results) == k {
			break
		}
	}
	return results
}

// MaxMarginalRelevanceSearch fetches a fetchK candidate pool and greedily
// selects k chunks balancing query relevance against inter-result diversity.
// lambdaMult 1 is pure relevance, 0 pure diversity.
func (ws *WeaviateSearcher) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64, metadataFilters map[string]interface{}) ([]*DocumentChunk, error) {
	if fetchK < k {
		fetchK = k
	}

	queryVector, err := ws.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := ws.searchByVector(ctx, queryVector, fetchK, metadataFilters, true)
	if err != nil {
		return nil, err
	}

	selected := mmrSelect(queryVector, candidates, k, lambdaMult)
	chunks := make([]*DocumentChunk, len(selected))
	for i, sc := range selected {
		chunks[i] = sc.chunk
	}
	return chunks, nil
}

// KeywordSearch runs a BM25 keyword query over chunk content, optionally
// narrowed by metadata filters.
func (ws *WeaviateSearcher) KeywordSearch(ctx context.Context, query string, k int, metadataFilters map[string]interface{}) ([]*DocumentChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	fields := make([]graphql.Field, 0, len(chunkProperties)+2)
	fields = append(fields, graphql.Field{Name: "content"})
	for _, prop := range chunkProperties {
		fields = append(fields, graphql.Field{Name: prop})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{
		{Name: "id"},
		{Name: "score"},
	}})

	var result *models.GraphQLResponse
	err := ws.retry.Do(ctx, func(ctx context.Context) error {
		builder := ws.client.GraphQL().Get().
			WithClassName(ws.class).
			WithBM25(ws.client.GraphQL().Bm25ArgBuilder().
				WithQuery(query).
				WithProperties("content")).
			WithFields(fields...).
			WithLimit(k)

		if where := buildWhereFilter(metadataFilters); where != nil {
			builder = builder.WithWhere(where)
		}

		var doErr error
		result, doErr = builder.Do(ctx)
		if doErr != nil {
			return doErr
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", result.Errors[0].Message)
		}
		return nil
	})
	if err != nil {
		ws.logger.Error("Weaviate keyword search failed", "error", err, "class", ws.class)
		return nil, apperrors.NewErrorBuilder("rag", "keyword_search", ws.logger).
			VectorStoreError("vector store keyword search failed", err)
	}

	candidates := ws.parseSearchResponse(result)
	chunks := make([]*DocumentChunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = c.chunk
	}
	return chunks, nil
}

// SearchByCategory searches within a single category.
func (ws *WeaviateSearcher) SearchByCategory(ctx context.Context, query, category string, k int) ([]*DocumentChunk, error) {
	return ws.SimilaritySearch(ctx, query, k, map[string]interface{}{"category": category})
}

// SearchByPartner searches within a single partner's documents.
func (ws *WeaviateSearcher) SearchByPartner(ctx context.Context, query, partner string, k int) ([]*DocumentChunk, error) {
	return ws.SimilaritySearch(ctx, query, k, map[string]interface{}{"partner": partner})
}

// SearchByOfferType searches within one or more offer types.
func (ws *WeaviateSearcher) SearchByOfferType(ctx context.Context, query string, offerTypes []string, k int) ([]*DocumentChunk, error) {
	return ws.SimilaritySearch(ctx, query, k, map[string]interface{}{"offer_type": offerTypes})
}

// AddDocument indexes one chunk with its externally computed vector.
func (ws *WeaviateSearcher) AddDocument(ctx context.Context, chunk *DocumentChunk, vector []float32) error {
	if chunk == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	properties := map[string]interface{}{"content": chunk.Content}
	for _, prop := range chunkProperties {
		if v, ok := chunk.Metadata[prop]; ok && v != nil {
			properties[prop] = v
		}
	}

	creator := ws.client.Data().Creator().
		WithClassName(ws.class).
		WithProperties(properties).
		WithVector(vector)
	if chunk.ID != "" {
		creator = creator.WithID(chunk.ID)
	}

	if _, err := creator.Do(ctx); err != nil {
		return apperrors.NewErrorBuilder("rag", "add_document", ws.logger).
			VectorStoreError("failed to index chunk", err)
	}
	return nil
}

// scoredCandidate keeps the parsed chunk together with its score and vector.
type scoredCandidate struct {
	chunk  *DocumentChunk
	score  float64
	vector []float32
}

func (ws *WeaviateSearcher) search(ctx context.Context, query string, k int, metadataFilters map[string]interface{}, includeVector bool) ([]scoredCandidate, error) {
	queryVector, err := ws.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return ws.searchByVector(ctx, queryVector, k, metadataFilters, includeVector)
}

func (ws *WeaviateSearcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vector, err := ws.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperrors.NewErrorBuilder("rag", "embed_query", ws.logger).
			EmbeddingError("failed to embed query", err)
	}
	return vector, nil
}

func (ws *WeaviateSearcher) searchByVector(ctx context.Context, vector []float32, k int, metadataFilters map[string]interface{}, includeVector bool) ([]scoredCandidate, error) {
	startTime := time.Now()

	if k <= 0 {
		k = 4
	}

	additionalFields := []graphql.Field{
		{Name: "id"},
		{Name: "certainty"},
		{Name: "distance"},
	}
	if includeVector {
		additionalFields = append(additionalFields, graphql.Field{Name: "vector"})
	}

	fields := make([]graphql.Field, 0, len(chunkProperties)+2)
	fields = append(fields, graphql.Field{Name: "content"})
	for _, prop := range chunkProperties {
		fields = append(fields, graphql.Field{Name: prop})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: additionalFields})

	var result *models.GraphQLResponse
	err := ws.retry.Do(ctx, func(ctx context.Context) error {
		builder := ws.client.GraphQL().Get().
			WithClassName(ws.class).
			WithNearVector(ws.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
			WithFields(fields...).
			WithLimit(k)

		if where := buildWhereFilter(metadataFilters); where != nil {
			builder = builder.WithWhere(where)
		}

		var doErr error
		result, doErr = builder.Do(ctx)
		if doErr != nil {
			return doErr
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", result.Errors[0].Message)
		}
		return nil
	})
	if err != nil {
		ws.logger.Error("Weaviate search failed", "error", err, "class", ws.class)
		return nil, apperrors.NewErrorBuilder("rag", "similarity_search", ws.logger).
			VectorStoreError("vector store search failed", err)
	}

	candidates := ws.parseSearchResponse(result)

	ws.logger.Info("Vector search completed",
		"class", ws.class,
		"results", len(candidates),
		"k", k,
		"filtered", len(metadataFilters) > 0,
		"took", time.Since(startTime),
	)

	return candidates, nil
}

func (ws *WeaviateSearcher) parseSearchResponse(result *models.GraphQLResponse) []scoredCandidate {
	candidates := make([]scoredCandidate, 0)

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return candidates
	}
	items, ok := data[ws.class].([]interface{})
	if !ok {
		return candidates
	}

	for _, item := range items {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		candidates = append(candidates, ws.parseCandidate(itemMap))
	}

	return candidates
}

func (ws *WeaviateSearcher) parseCandidate(item map[string]interface{}) scoredCandidate {
	chunk := &DocumentChunk{Metadata: make(map[string]interface{})}
	candidate := scoredCandidate{chunk: chunk}

	if content, ok := item["content"].(string); ok {
		chunk.Content = content
	}
	for _, prop := range chunkProperties {
		if v, ok := item[prop]; ok && v != nil {
			if s, isString := v.(string); isString && s == "" {
				continue
			}
			chunk.Metadata[prop] = v
		}
	}

	additional, ok := item["_additional"].(map[string]interface{})
	if !ok {
		return candidate
	}

	if id, ok := additional["id"].(string); ok {
		chunk.ID = id
	}
	if certainty, ok := additional["certainty"].(float64); ok {
		candidate.score = certainty
	} else if distance, ok := additional["distance"].(float64); ok {
		candidate.score = 1.0 - distance
	}
	if vector, ok := additional["vector"].([]interface{}); ok {
		candidate.vector = make([]float32, len(vector))
		for i, v := range vector {
			if f, ok := v.(float64); ok {
				candidate.vector[i] = float32(f)
			}
		}
	}

	return candidate
}

// mmrSelect greedily picks k candidates maximizing
// lambda*sim(query, c) - (1-lambda)*max(sim(c, selected)).
func mmrSelect(queryVector []float32, candidates []scoredCandidate, k int, lambdaMult float64) []scoredCandidate {
	if k >= len(candidates) {
		return candidates
	}
	if lambdaMult < 0 {
		lambdaMult = 0
	}
	if lambdaMult > 1 {
		lambdaMult = 1
	}

	querysims := make([]float64, len(candidates))
	for i, c := range candidates {
		if c.vector != nil {
			querysims[i] = cosineSimilarity(queryVector, c.vector)
		} else {
			querysims[i] = c.score
		}
	}

	selected := make([]scoredCandidate, 0, k)
	chosen := make([]bool, len(candidates))

	for len(selected) < k {
		bestIdx := -1
		bestScore := 0.0

		for i := range candidates {
			if chosen[i] {
				continue
			}

			diversityPenalty := 0.0
			for _, s := range selected {
				if candidates[i].vector == nil || s.vector == nil {
					continue
				}
				if sim := cosineSimilarity(candidates[i].vector, s.vector); sim > diversityPenalty {
					diversityPenalty = sim
				}
			}

			score := lambdaMult*querysims[i] - (1.0-lambdaMult)*diversityPenalty
			if bestIdx == -1 || score > bestScore {
				bestIdx = i
				bestScore = score
			}
		}

		if bestIdx == -1 {
			break
		}
		chosen[bestIdx] = true
		selected = append(selected, candidates[bestIdx])
	}

	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func boolPtr(b bool) *bool {
	return &b
}
