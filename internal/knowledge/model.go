package knowledge

import (
	"strings"

	"github.com/linnemanlabs/warden/internal/apperr"
)

// DefaultSection names text that appears before the first header.
const DefaultSection = "Introduction"

// Document types inferred from runbook paths.
const (
	TypeInfrastructure = "infrastructure"
	TypeApplication    = "application"
	TypeMonitoring     = "monitoring"
	TypeGeneral        = "general"
)

// Metadata travels with every chunk into the index. Part is 0 for
// sections that produced a single chunk.
type Metadata struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Part    int    `json:"part,omitempty"`
	Type    string `json:"type"`
}

// Chunk is a bounded unit of runbook text plus section metadata.
type Chunk struct {
	Content       string   `json:"content"`
	Body          string   `json:"-"`
	SourceFile    string   `json:"source_file"`
	SectionHeader string   `json:"section_header"`
	ChunkIndex    int      `json:"chunk_index"`
	Metadata      Metadata `json:"metadata"`
}

// Entry is a stored (vector, text, metadata) tuple owned by an Index.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// SearchResult is a single ranked match returned by an Index query.
type SearchResult struct {
	Content    string   `json:"content"`
	SourceFile string   `json:"source_file"`
	Section    string   `json:"section"`
	Score      float64  `json:"score"`
	Metadata   Metadata `json:"metadata"`
}

// InferType derives the document type from keywords in the source path.
func InferType(sourceFile string) string {
	p := strings.ToLower(sourceFile)
	switch {
	case strings.Contains(p, TypeInfrastructure):
		return TypeInfrastructure
	case strings.Contains(p, TypeApplication):
		return TypeApplication
	case strings.Contains(p, TypeMonitoring):
		return TypeMonitoring
	default:
		return TypeGeneral
	}
}

// ValidateType rejects type filters that no indexed chunk can carry.
// The empty string means unfiltered.
func ValidateType(filter string) error {
	switch filter {
	case "", TypeInfrastructure, TypeApplication, TypeMonitoring, TypeGeneral:
		return nil
	}
	return apperr.Invalid("type", filter, "must be one of infrastructure, application, monitoring, general")
}
