package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID               string         `json:"id"`
	Title            string         `json:"title,omitempty"`
	Filename         string         `json:"filename"`
	MimeType         string         `json:"mime_type"`
	StoragePath      string         `json:"storage_path"`
	InsurerID        string         `json:"insurer_id,omitempty"`
	InsurerName      string         `json:"insurer_name,omitempty"`
	ProductName      string         `json:"product_name,omitempty"`
	LineOfBusiness   string         `json:"line_of_business,omitempty"`
	DocumentType     string         `json:"document_type,omitempty"`
	Status           DocumentStatus `json:"status"`
	PageCount        int            `json:"page_count"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	LowConfidence    bool           `json:"low_confidence,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// UploadMetadata is the caller supplied labelling of an uploaded file.
type UploadMetadata struct {
	Title          string `json:"title,omitempty"`
	InsurerID      string `json:"insurer_id,omitempty"`
	InsurerName    string `json:"insurer_name,omitempty"`
	ProductName    string `json:"product_name,omitempty"`
	LineOfBusiness string `json:"line_of_business,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
}

// ProcessingResult is what a completed pipeline run reports back onto the document row.
type ProcessingResult struct {
	PageCount        int
	ExtractionMethod string
	LowConfidence    bool
}
