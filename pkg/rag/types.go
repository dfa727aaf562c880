package rag

import (
	"time"
)

// ValidCategories is the closed set of query-time document categories.
// Ingestion-era labels outside this list (Offres_Arabe, Autres) are treated
// as untagged at query time, never as filterable categories.
var ValidCategories = []string{"Convention", "Offres", "Guide_NGBSS", "Depot_Vente"}

// IsValidCategory reports whether category is a member of ValidCategories.
func IsValidCategory(category string) bool {
	for _, c := range ValidCategories {
		if c == category {
			return true
		}
	}
	return false
}

// DocumentChunk is the unit of retrieval: a contiguous span of a source
// document's text plus whatever metadata ingestion attached to it. Metadata
// keys are never guaranteed to be present; every consumer resolves fields
// through ordered fallback chains.
type DocumentChunk struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ScoredChunk pairs a chunk with the store's similarity score.
type ScoredChunk struct {
	Chunk *DocumentChunk `json:"chunk"`
	Score float64        `json:"score"`
}

// FileReference is a best-effort description of which source file/page a
// chunk came from, extracted from chunk metadata.
type FileReference struct {
	FileName   string `json:"file_name,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	Source     string `json:"source,omitempty"`
	Category   string `json:"category,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Formatted  string `json:"formatted"`
}

// SearchResult is the per-request view of one retrieved chunk.
type SearchResult struct {
	ID             int                    `json:"id"`
	Content        string                 `json:"content"`
	Snippet        string                 `json:"snippet"`
	RelevanceScore float64                `json:"relevance_score"`
	FileReference  FileReference          `json:"file_reference"`
	Metadata       map[string]interface{} `json:"metadata"`

	// Convenience fields duplicated from the file reference
	FileName   string `json:"file_name,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	Category   string `json:"category"`
	Source     string `json:"source,omitempty"`
}

// UniqueFileReference is one entry per distinct file identity in a result
// set, with the number of results that came from that file.
type UniqueFileReference struct {
	FileName    string `json:"file_name,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	Category    string `json:"category,omitempty"`
	Source      string `json:"source,omitempty"`
	Formatted   string `json:"formatted"`
	ResultCount int    `json:"result_count"`
}

// SearchIntent is the structured output of LLM intent classification.
type SearchIntent struct {
	Keywords     []string `json:"keywords"`
	Category     string   `json:"category,omitempty"`
	SearchType   string   `json:"search_type"`
	RefinedQuery string   `json:"refined_query"`
}

// SmartSearchResponse bundles a classified search's results.
type SmartSearchResponse struct {
	Query           string                `json:"query"`
	Intent          *SearchIntent         `json:"intent"`
	Results         []SearchResult        `json:"results"`
	TotalFound      int                   `json:"total_found"`
	FilesReferenced []UniqueFileReference `json:"files_referenced"`
}

// IngestResult records the outcome of indexing one document. Failed
// documents carry an Error instead of aborting the batch.
type IngestResult struct {
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Indexed    int       `json:"chunks_indexed"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}
