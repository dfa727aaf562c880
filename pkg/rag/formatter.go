package rag

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const snippetLength = 200

// ExtractFileReference resolves file reference fields from chunk metadata.
// Each field walks an ordered fallback chain of candidate keys; a missing key
// is never an error, only an unknown value downstream.
func ExtractFileReference(metadata map[string]interface{}) FileReference {
	ref := FileReference{
		FileName:   metaString(metadata, "file_name", "filename", "name", "source_file"),
		FilePath:   metaString(metadata, "file_path", "source", "path", "document_path"),
		Source:     metaString(metadata, "source", "url", "file_path"),
		PageNumber: metaInt(metadata, "page", "page_number", "page_num", "pg"),
		ChunkIndex: metaInt(metadata, "chunk_index", "chunk_id", "section", "index"),
		Category:   metaString(metadata, "ID_categorie", "category", "doc_type"),
		DocumentID: metaString(metadata, "document_id", "doc_id", "id"),
	}

	if ref.FileName == "" {
		ref.FileName = basename(metaString(metadata, "source"))
	}

	ref.FileType = metaString(metadata, "file_type", "type")
	if ref.FileType == "" {
		ref.FileType = fileTypeFromName(ref.FileName)
	}

	ref.Formatted = FormatReference(ref)
	return ref
}

// FormatReference renders a file reference as a one-line human string, e.g.
// "📄 offer_fibre.pdf | Page 5 | [Offres]".
func FormatReference(ref FileReference) string {
	var parts []string

	switch {
	case ref.FileName != "":
		parts = append(parts, "📄 "+ref.FileName)
	case ref.Source != "":
		parts = append(parts, "📄 "+basename(ref.Source))
	}

	if ref.PageNumber > 0 {
		parts = append(parts, fmt.Sprintf("Page %d", ref.PageNumber))
	}

	if ref.Category != "" {
		parts = append(parts, "["+ref.Category+"]")
	}

	if len(parts) == 0 {
		return "Unknown source"
	}
	return strings.Join(parts, " | ")
}

// FormatResults converts retrieved chunks into uniform search results. The
// relevance score is synthetic, a decreasing function of rank; it preserves
// ordering only and goes negative past rank 20, which callers tolerate.
func FormatResults(chunks []*DocumentChunk) []SearchResult {
	results := make([]SearchResult, 0, len(chunks))

	for i, chunk := range chunks {
		ref := ExtractFileReference(chunk.Metadata)

		category := ref.Category
		if category == "" {
			category = "Unknown"
		}

		results = append(results, SearchResult{
			ID:             i,
			Content:        chunk.Content,
			Snippet:        makeSnippet(chunk.Content),
			RelevanceScore: 1.0 - float64(i)*0.05,
			FileReference:  ref,
			Metadata:       chunk.Metadata,
			FileName:       ref.FileName,
			PageNumber:     ref.PageNumber,
			Category:       category,
			Source:         ref.Source,
		})
	}

	return results
}

// FormatScoredResults is FormatResults for scored retrieval, keeping the
// store's real scores instead of synthesizing them from rank.
func FormatScoredResults(scored []ScoredChunk) []SearchResult {
	chunks := make([]*DocumentChunk, len(scored))
	for i, sc := range scored {
		chunks[i] = sc.Chunk
	}
	results := FormatResults(chunks)
	for i := range results {
		results[i].RelevanceScore = scored[i].Score
	}
	return results
}

// fileIdentity computes the dedup key for a result's file reference:
// file name, else source, else file path. Empty means unresolvable.
func fileIdentity(ref FileReference) string {
	if ref.FileName != "" {
		return ref.FileName
	}
	if ref.Source != "" {
		return ref.Source
	}
	return ref.FilePath
}

// UniqueFiles reduces a result set to one entry per distinct file identity,
// preserving first-seen order. ResultCount is a full-pass count of results
// sharing the identity. Results with no resolvable identity are excluded.
func UniqueFiles(results []SearchResult) []UniqueFileReference {
	counts := make(map[string]int, len(results))
	for _, r := range results {
		if key := fileIdentity(r.FileReference); key != "" {
			counts[key]++
		}
	}

	seen := make(map[string]bool, len(counts))
	unique := make([]UniqueFileReference, 0, len(counts))

	for _, r := range results {
		key := fileIdentity(r.FileReference)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		ref := r.FileReference
		unique = append(unique, UniqueFileReference{
			FileName:    ref.FileName,
			FilePath:    ref.FilePath,
			FileType:    ref.FileType,
			Category:    ref.Category,
			Source:      ref.Source,
			Formatted:   ref.Formatted,
			ResultCount: counts[key],
		})
	}

	return unique
}

func makeSnippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}

// metaString resolves the first non-empty string value among candidate keys.
func metaString(metadata map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := metadata[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case fmt.Stringer:
			if s := val.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// metaInt resolves the first positive integer value among candidate keys.
// Numeric metadata arrives as float64 from JSON decoding and as string from
// some ingestion paths; both are tolerated.
func metaInt(metadata map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		v, ok := metadata[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case int:
			if val != 0 {
				return val
			}
		case int64:
			if val != 0 {
				return int(val)
			}
		case float64:
			if val != 0 {
				return int(val)
			}
		case string:
			if n, err := strconv.Atoi(val); err == nil && n != 0 {
				return n
			}
		}
	}
	return 0
}

func basename(source string) string {
	if source == "" {
		return ""
	}
	// Tolerate Windows-style paths from ingestion.
	source = strings.ReplaceAll(source, "\\", "/")
	return path.Base(source)
}

func fileTypeFromName(filename string) string {
	if filename == "" {
		return ""
	}
	ext := path.Ext(filename)
	if ext == "" {
		return ""
	}
	return strings.ToUpper(strings.TrimPrefix(ext, "."))
}
