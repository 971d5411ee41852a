package domain

type SearchFilter struct {
	LineOfBusiness string `json:"line_of_business,omitempty"`
	InsurerID      string `json:"insurer_id,omitempty"`
}

func (f SearchFilter) IsEmpty() bool {
	return f.LineOfBusiness == "" && f.InsurerID == ""
}

// SearchCandidate is one nearest-neighbour hit with denormalized labels for citation rendering.
type SearchCandidate struct {
	ChunkID        string    `json:"chunk_id"`
	DocumentID     string    `json:"document_id"`
	SectionID      string    `json:"section_id,omitempty"`
	Page           int       `json:"page"`
	Position       int       `json:"position"`
	Text           string    `json:"text"`
	TokenCount     int       `json:"token_count"`
	SectionPath    string    `json:"section_path,omitempty"`
	SectionTitle   string    `json:"section_title,omitempty"`
	DocumentTitle  string    `json:"document_title,omitempty"`
	ProductName    string    `json:"product_name,omitempty"`
	InsurerName    string    `json:"insurer_name,omitempty"`
	LineOfBusiness string    `json:"line_of_business,omitempty"`
	CitationLabel  string    `json:"citation_label"`
	Score          float64   `json:"score"`
	Vector         []float32 `json:"-"`
}

type RankedPassage struct {
	SearchCandidate
	Rank          int      `json:"rank"`
	RerankScore   *float64 `json:"rerank_score,omitempty"`
	ChunkIDs      []string `json:"chunk_ids"`
	PassageTokens int      `json:"passage_tokens"`
	Truncated     bool     `json:"truncated,omitempty"`
	// EndPage is set when a stitched passage runs past Page.
	EndPage int `json:"end_page,omitempty"`
}

type RetrievalRequest struct {
	Query        string       `json:"query"`
	Filters      SearchFilter `json:"filters"`
	TopN         int          `json:"topN"`
	MMRK         int          `json:"mmrK"`
	Lambda       *float64     `json:"lambda,omitempty"`
	TopK         int          `json:"topK"`
	TokenLimit   int          `json:"tokenLimit"`
	UseStitching *bool        `json:"useStitching,omitempty"`
	UseReranking *bool        `json:"useReranking,omitempty"`
}

type RetrievalStats struct {
	InitialSearch        int  `json:"initial_search"`
	AfterSimilarityFloor int  `json:"after_similarity_floor"`
	MMRResults           int  `json:"mmr_results"`
	RerankedResults      int  `json:"reranked_results"`
	FinalResults         int  `json:"final_results"`
	FallbackUsed         bool `json:"fallback_used"`
	RerankApplied        bool `json:"rerank_applied"`
}

type RetrievalResponse struct {
	Results       []RankedPassage `json:"results"`
	PipelineStats RetrievalStats  `json:"pipeline_stats"`
	NoResults     bool            `json:"no_results"`
}

type Answer struct {
	Text    string          `json:"text"`
	Sources []RankedPassage `json:"sources"`
	Stats   RetrievalStats  `json:"pipeline_stats"`
}
