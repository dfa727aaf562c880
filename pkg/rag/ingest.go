package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ingestWorkers bounds concurrent document ingestion against the embedding
// service and the vector store.
const ingestWorkers = 3

// IngestDocument is one document to chunk-index into the vector store.
type IngestDocument struct {
	Source    string   `json:"source"`
	Category  string   `json:"category"`
	Partner   string   `json:"partner,omitempty"`
	OfferType string   `json:"offer_type,omitempty"`
	FileName  string   `json:"file_name"`
	FilePath  string   `json:"file_path,omitempty"`
	FileType  string   `json:"file_type,omitempty"`
	Chunks    []string `json:"chunks"`

	// PageNumbers aligns with Chunks when page provenance is known.
	PageNumbers []int `json:"page_numbers,omitempty"`
}

// Ingestor indexes documents into the vector store with a bounded worker
// pool. Per-document failures are reported, not raised, so one bad document
// never aborts a batch.
type Ingestor struct {
	searcher *WeaviateSearcher
	embedder *HTTPEmbedder
	logger   *slog.Logger
}

// NewIngestor wires an ingestion pipeline.
func NewIngestor(searcher *WeaviateSearcher, embedder *HTTPEmbedder, logger *slog.Logger) (*Ingestor, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{
		searcher: searcher,
		embedder: embedder,
		logger:   logger.With("component", "ingestor"),
	}, nil
}

// Ingest indexes a batch of documents concurrently and returns one result
// per document, in input order.
func (ing *Ingestor) Ingest(ctx context.Context, documents []IngestDocument) []IngestResult {
	results := make([]IngestResult, len(documents))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(ingestWorkers)

	for i := range documents {
		i := i
		group.Go(func() error {
			results[i] = ing.ingestOne(groupCtx, documents[i])
			return nil
		})
	}

	// Workers never return errors; failures land in their result slot.
	_ = group.Wait()

	indexed := 0
	for _, r := range results {
		if r.Error == "" {
			indexed++
		}
	}
	ing.logger.Info("Ingestion batch finished",
		"documents", len(documents),
		"succeeded", indexed,
		"failed", len(documents)-indexed,
	)

	return results
}

func (ing *Ingestor) ingestOne(ctx context.Context, doc IngestDocument) IngestResult {
	result := IngestResult{
		DocumentID: uuid.NewString(),
		Source:     doc.Source,
		FinishedAt: time.Now().UTC(),
	}

	if len(doc.Chunks) == 0 {
		result.Error = "document has no chunks"
		return result
	}
	if !IsValidCategory(doc.Category) {
		result.Error = fmt.Sprintf("unknown category %q", doc.Category)
		return result
	}

	vectors, err := ing.embedder.EmbedDocuments(ctx, doc.Chunks)
	if err != nil {
		result.Error = fmt.Sprintf("embedding failed: %v", err)
		result.FinishedAt = time.Now().UTC()
		return result
	}

	for idx, content := range doc.Chunks {
		if strings.TrimSpace(content) == "" {
			continue
		}

		chunk := &DocumentChunk{
			ID:      uuid.NewString(),
			Content: content,
			Metadata: map[string]interface{}{
				"category":    doc.Category,
				"source":      doc.Source,
				"file_name":   doc.FileName,
				"chunk_index": idx,
				"document_id": result.DocumentID,
			},
		}
		if doc.Partner != "" {
			chunk.Metadata["partner"] = doc.Partner
		}
		if doc.OfferType != "" {
			chunk.Metadata["offer_type"] = doc.OfferType
		}
		if doc.FilePath != "" {
			chunk.Metadata["file_path"] = doc.FilePath
		}
		if doc.FileType != "" {
			chunk.Metadata["file_type"] = doc.FileType
		}
		if doc.FileName != "" {
			chunk.Metadata["source_file"] = doc.FileName
		}
		if idx < len(doc.PageNumbers) {
			chunk.Metadata["page_number"] = doc.PageNumbers[idx]
		}

		if err := ing.searcher.AddDocument(ctx, chunk, vectors[idx]); err != nil {
			result.Error = fmt.Sprintf("indexing chunk %d failed: %v", idx, err)
			result.FinishedAt = time.Now().UTC()
			return result
		}
		result.Indexed++
	}

	result.FinishedAt = time.Now().UTC()
	ing.logger.Debug("Document indexed",
		"document_id", result.DocumentID,
		"source", doc.Source,
		"chunks", result.Indexed,
	)
	return result
}
