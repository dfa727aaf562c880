package handlers

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/monitoring"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
)

const (
	minQueryLength = 3
	maxQueryLength = 500
	defaultTopK    = 10
	maxTopK        = 50
)

// SearchHandler serves the hybrid and smart search endpoints.
type SearchHandler struct {
	engine  *rag.SearchEngine
	metrics *monitoring.Metrics
	logger  *logging.StructuredLogger
}

// NewSearchHandler creates a search handler. metrics may be nil.
func NewSearchHandler(engine *rag.SearchEngine, metrics *monitoring.Metrics, logger *logging.StructuredLogger) *SearchHandler {
	return &SearchHandler{
		engine:  engine,
		metrics: metrics,
		logger:  logger.WithComponent("search-handler"),
	}
}

// SearchRequest is the body for the search endpoints.
type SearchRequest struct {
	Query    string   `json:"query"`
	Keywords []string `json:"keywords,omitempty"`
	TopK     int      `json:"top_k"`
	Category string   `json:"category,omitempty"`
}

// SearchResponse is the hybrid search response payload.
type SearchResponse struct {
	Success         bool                      `json:"success"`
	Query           string                    `json:"query"`
	Keywords        []string                  `json:"keywords,omitempty"`
	SearchType      string                    `json:"search_type"`
	Category        string                    `json:"category,omitempty"`
	TotalFound      int                       `json:"total_found"`
	Results         []rag.SearchResult        `json:"results"`
	FilesReferenced []rag.UniqueFileReference `json:"files_referenced"`
	ProcessingTime  float64                   `json:"processing_time"`
	Timestamp       string                    `json:"timestamp"`
}

// HybridSearch handles POST /search/hybrid.
func (h *SearchHandler) HybridSearch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	request, err := h.decodeAndValidate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := h.engine.HybridSearch(r.Context(), request.Query, request.Keywords, request.TopK, request.Category)
	h.observeSearch("hybrid", startTime, results, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Success:         true,
		Query:           request.Query,
		Keywords:        request.Keywords,
		SearchType:      "hybrid",
		Category:        request.Category,
		TotalFound:      len(results),
		Results:         results,
		FilesReferenced: rag.UniqueFiles(results),
		ProcessingTime:  time.Since(startTime).Seconds(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// SmartSearch handles POST /search/smart.
func (h *SearchHandler) SmartSearch(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	request, err := h.decodeAndValidate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response, err := h.engine.SmartSearch(r.Context(), request.Query, request.TopK)
	if err != nil {
		h.observeSearch("smart", startTime, nil, err)
		writeError(w, r, err)
		return
	}
	h.observeSearch("smart", startTime, response.Results, nil)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"query":            response.Query,
		"intent":           response.Intent,
		"total_found":      response.TotalFound,
		"results":          response.Results,
		"files_referenced": response.FilesReferenced,
		"processing_time":  time.Since(startTime).Seconds(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *SearchHandler) decodeAndValidate(r *http.Request) (*SearchRequest, error) {
	builder := apperrors.NewErrorBuilder("handlers", "search", h.logger.Logger)

	var request SearchRequest
	if err := decodeBody(r, &request); err != nil {
		return nil, builder.ValidationError("invalid_body", "request body is not valid JSON")
	}

	request.Query = strings.TrimSpace(request.Query)
	queryLength := utf8.RuneCountInString(request.Query)
	if queryLength < minQueryLength || queryLength > maxQueryLength {
		return nil, builder.InvalidFieldError("query",
			"must be between 3 and 500 characters")
	}

	cleaned := request.Keywords[:0]
	for _, keyword := range request.Keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			cleaned = append(cleaned, keyword)
		}
	}
	request.Keywords = cleaned

	if request.TopK == 0 {
		request.TopK = defaultTopK
	}
	if request.TopK < 1 || request.TopK > maxTopK {
		return nil, builder.InvalidFieldError("top_k", "must be between 1 and 50")
	}

	if request.Category != "" && !rag.IsValidCategory(request.Category) {
		return nil, builder.InvalidFieldError("category",
			"must be one of: "+strings.Join(rag.ValidCategories, ", "))
	}

	return &request, nil
}

func (h *SearchHandler) observeSearch(searchType string, startTime time.Time, results []rag.SearchResult, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	h.metrics.SearchesTotal.WithLabelValues(searchType, outcome).Inc()
	h.metrics.SearchDuration.WithLabelValues(searchType).Observe(time.Since(startTime).Seconds())
	if err == nil {
		h.metrics.SearchResults.Observe(float64(len(results)))
	}
}
