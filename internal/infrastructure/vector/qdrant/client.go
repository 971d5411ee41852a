// Package qdrant keeps chunk vectors in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// IndexDocument drops the document's previous points and upserts one point per chunk.
func (c *Client) IndexDocument(
	ctx context.Context,
	doc *domain.Document,
	seg domain.Segmentation,
	embeddings []domain.Embedding,
) error {
	if doc == nil {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant index document", fmt.Errorf("document is nil"))
	}
	if len(embeddings) != len(seg.Chunks) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(seg.Chunks), len(embeddings))
	}
	if len(embeddings) > 0 {
		if err := c.ensureCollection(ctx, len(embeddings[0].Vector)); err != nil {
			return err
		}
	}
	if err := c.deleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return nil
	}

	points := make([]point, 0, len(seg.Chunks))
	for i, chunk := range seg.Chunks {
		section, _ := seg.SectionByID(chunk.SectionID)
		points = append(points, point{
			ID:     chunk.ID,
			Vector: embeddings[i].Vector,
			Payload: map[string]any{
				"doc_id":           doc.ID,
				"run_id":           seg.RunID,
				"section_id":       chunk.SectionID,
				"section_path":     section.Path,
				"section_title":    section.Title,
				"page":             chunk.Page,
				"position":         chunk.Position,
				"text":             chunk.Text,
				"token_count":      chunk.TokenCount,
				"citation_label":   chunk.CitationLabel,
				"document_title":   doc.Title,
				"product_name":     doc.ProductName,
				"insurer_id":       doc.InsurerID,
				"insurer_name":     doc.InsurerName,
				"line_of_business": doc.LineOfBusiness,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) deleteDocument(ctx context.Context, docID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	body := map[string]any{"filter": mustMatch(map[string]string{"doc_id": docID})}
	if err := c.doJSON(ctx, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("qdrant delete document points: %w", err)
	}
	return nil
}

func (c *Client) SearchChunks(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.SearchCandidate, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", fmt.Errorf("query vector is empty"))
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if !filter.IsEmpty() {
		reqBody["filter"] = mustMatch(map[string]string{
			"insurer_id":       filter.InsurerID,
			"line_of_business": filter.LineOfBusiness,
		})
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &searchResp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]domain.SearchCandidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.SearchCandidate{
			ChunkID:        fmt.Sprintf("%v", r.ID),
			DocumentID:     getStringPayload(r.Payload, "doc_id"),
			SectionID:      getStringPayload(r.Payload, "section_id"),
			Page:           getIntPayload(r.Payload, "page"),
			Position:       getIntPayload(r.Payload, "position"),
			Text:           getStringPayload(r.Payload, "text"),
			TokenCount:     getIntPayload(r.Payload, "token_count"),
			SectionPath:    getStringPayload(r.Payload, "section_path"),
			SectionTitle:   getStringPayload(r.Payload, "section_title"),
			DocumentTitle:  getStringPayload(r.Payload, "document_title"),
			ProductName:    getStringPayload(r.Payload, "product_name"),
			InsurerName:    getStringPayload(r.Payload, "insurer_name"),
			LineOfBusiness: getStringPayload(r.Payload, "line_of_business"),
			CitationLabel:  getStringPayload(r.Payload, "citation_label"),
			Score:          r.Score,
			Vector:         r.Vector,
		})
	}
	return out, nil
}

func mustMatch(fields map[string]string) map[string]any {
	must := make([]map[string]any, 0, len(fields))
	for key, value := range fields {
		if value == "" {
			continue
		}
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

func (c *Client) doJSON(ctx context.Context, method, url string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.WrapTemporary("qdrant request", resilience.NewStatusError("qdrant", method, resp), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 409 when the collection already exists.
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
