package handlers

import (
	"net/http"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/monitoring"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
)

// maxIngestBatch bounds one ingestion request.
const maxIngestBatch = 100

// IngestHandler serves the document indexing endpoint.
type IngestHandler struct {
	ingestor *rag.Ingestor
	metrics  *monitoring.Metrics
	logger   *logging.StructuredLogger
}

// NewIngestHandler creates an ingestion handler. metrics may be nil.
func NewIngestHandler(ingestor *rag.Ingestor, metrics *monitoring.Metrics, logger *logging.StructuredLogger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		metrics:  metrics,
		logger:   logger.WithComponent("ingest-handler"),
	}
}

// IngestRequest is the body for POST /api/documents/.
type IngestRequest struct {
	Documents []rag.IngestDocument `json:"documents"`
}

// Ingest handles POST /api/documents/. Per-document failures are reported in
// the response body; the request itself succeeds with 207 when mixed.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	builder := apperrors.NewErrorBuilder("handlers", "ingest", h.logger.Logger)

	var request IngestRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, builder.ValidationError("invalid_body", "request body is not valid JSON"))
		return
	}
	if len(request.Documents) == 0 {
		writeError(w, r, builder.InvalidFieldError("documents", "cannot be empty"))
		return
	}
	if len(request.Documents) > maxIngestBatch {
		writeError(w, r, builder.InvalidFieldError("documents", "batch too large"))
		return
	}

	results := h.ingestor.Ingest(r.Context(), request.Documents)

	failed := 0
	for _, result := range results {
		outcome := "success"
		if result.Error != "" {
			outcome = "error"
			failed++
		}
		if h.metrics != nil {
			h.metrics.DocumentsIngestedTotal.WithLabelValues(outcome).Inc()
		}
	}

	status := http.StatusOK
	if failed > 0 && failed < len(results) {
		status = http.StatusMultiStatus
	} else if failed == len(results) {
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]interface{}{
		"success":   failed == 0,
		"documents": len(results),
		"failed":    failed,
		"results":   results,
	})
}
