package domain

const ChunkMetadataVersion = 1

// Section is one hierarchical unit (article, paragraph, chapter) of a document.
type Section struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	RunID      string `json:"run_id"`
	Path       string `json:"path"`
	Title      string `json:"title"`
	Depth      int    `json:"depth"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	Order      int    `json:"order"`
	Content    string `json:"-"`
}

// ChunkMetadata is stored alongside each chunk. Bump ChunkMetadataVersion on incompatible changes.
type ChunkMetadata struct {
	Version          int      `json:"version"`
	ExtractionMethod string   `json:"extraction_method"`
	LowConfidence    bool     `json:"low_confidence,omitempty"`
	HeadingCandidate bool     `json:"heading_candidate,omitempty"`
	SectionPath      string   `json:"section_path,omitempty"`
	Enriched         bool     `json:"enriched,omitempty"`
	GlossaryTerms    []string `json:"glossary_terms,omitempty"`
}

type Chunk struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	RunID         string        `json:"run_id"`
	SectionID     string        `json:"section_id,omitempty"`
	Page          int           `json:"page"`
	Index         int           `json:"index"`
	Position      int           `json:"position"`
	Text          string        `json:"text"`
	TokenCount    int           `json:"token_count"`
	CitationLabel string        `json:"citation_label"`
	Metadata      ChunkMetadata `json:"metadata"`
}

type Embedding struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
	Model   string    `json:"model"`
}

// Segmentation is the segmenter output for one extraction run.
type Segmentation struct {
	RunID    string
	Sections []Section
	Chunks   []Chunk
}

// SectionByID returns the section with the given id, if any.
func (s Segmentation) SectionByID(id string) (Section, bool) {
	if id == "" {
		return Section{}, false
	}
	for _, section := range s.Sections {
		if section.ID == id {
			return section, true
		}
	}
	return Section{}, false
}
