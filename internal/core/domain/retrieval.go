package domain

import "time"

const (
	DefaultTopK = 4

	// IndexName is the fixed on-disk name of the persisted vector index.
	IndexName = "vector_index"
)

type RetrievedChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

const (
	DepartmentFromChunks  = "retrieved"
	DepartmentFromSession = "session"
	DepartmentNone        = "none"
)

// RetrievalContext is the grounded context assembled for a single question.
type RetrievalContext struct {
	Text             string           `json:"text"`
	DepartmentInfo   string           `json:"department_info,omitempty"`
	DepartmentSource string           `json:"department_source"`
	URLs             []string         `json:"urls,omitempty"`
	Chunks           []RetrievedChunk `json:"chunks"`
}

type Answer struct {
	SessionID      string           `json:"session_id"`
	Question       string           `json:"question"`
	Raw            string           `json:"raw"`
	Text           string           `json:"text"`
	Context        string           `json:"-"`
	DepartmentInfo string           `json:"department_info,omitempty"`
	URLs           []string         `json:"urls,omitempty"`
	Sources        []RetrievedChunk `json:"sources"`
}

// IndexManifest describes a persisted index so a later process can decide whether to reuse it.
type IndexManifest struct {
	Name         string    `json:"name" yaml:"name"`
	Backend      string    `json:"backend" yaml:"backend"`
	EmbedModel   string    `json:"embed_model" yaml:"embed_model"`
	Dimension    int       `json:"dimension" yaml:"dimension"`
	Chunks       int       `json:"chunks" yaml:"chunks"`
	Documents    int       `json:"documents" yaml:"documents"`
	ChunkSize    int       `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int       `json:"chunk_overlap" yaml:"chunk_overlap"`
	BuiltAt      time.Time `json:"built_at" yaml:"built_at"`
}

// Compatible reports whether a persisted index was built with the same embedding and chunking parameters.
func (m IndexManifest) Compatible(embedModel string, chunkSize, chunkOverlap int) bool {
	return m.EmbedModel == embedModel && m.ChunkSize == chunkSize && m.ChunkOverlap == chunkOverlap && m.Chunks > 0
}
