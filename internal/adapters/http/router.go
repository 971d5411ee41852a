package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/polis-rag/internal/config"
	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
	"github.com/kirillkom/polis-rag/internal/observability/metrics"
)

const (
	multipartMemory    = 8 << 20
	backpressureWait   = 250 * time.Millisecond
	maxRetrievalBodyKB = 64
)

type Router struct {
	ingest    ports.DocumentIngestor
	docs      ports.DocumentReader
	retriever ports.PassageRetriever
	answers   ports.AnswerService
	metrics   *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	maxUploadBytes int64
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	docs ports.DocumentReader,
	retriever ports.PassageRetriever,
	answers ports.AnswerService,
) *Router {
	return &Router{
		ingest:         ingest,
		docs:           docs,
		retriever:      retriever,
		answers:        answers,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		maxUploadBytes: cfg.APIMaxUploadBytes,
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	api.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	api.HandleFunc("POST /v1/retrieval/search", rt.searchPassages)
	api.HandleFunc("POST /v1/rag/answer", rt.answer)

	var onReject func(string)
	if rt.metrics != nil {
		onReject = rt.metrics.RecordRejected
	}
	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, backpressureWait, onReject)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst, onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.maxUploadBytes > 0 {
		if r.ContentLength > rt.maxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	meta := domain.UploadMetadata{
		Title:          r.FormValue("title"),
		InsurerID:      r.FormValue("insurer_id"),
		InsurerName:    r.FormValue("insurer_name"),
		ProductName:    r.FormValue("product_name"),
		LineOfBusiness: r.FormValue("line_of_business"),
		DocumentType:   r.FormValue("document_type"),
	}

	doc, err := rt.ingest.Upload(r.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), meta, file)
	if err != nil {
		rt.writeDomainError(w, r, "upload_failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "get_document_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) reprocessDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	doc, err := rt.ingest.Reprocess(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "reprocess_failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) searchPassages(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrievalRequest(w, r)
	if !ok {
		return
	}
	resp, err := rt.retriever.Retrieve(r.Context(), req)
	if err != nil {
		rt.writeDomainError(w, r, "retrieval_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrievalRequest(w, r)
	if !ok {
		return
	}
	answer, err := rt.answers.Answer(r.Context(), req)
	if err != nil {
		rt.writeDomainError(w, r, "answer_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func decodeRetrievalRequest(w http.ResponseWriter, r *http.Request) (domain.RetrievalRequest, bool) {
	var req domain.RetrievalRequest
	body := http.MaxBytesReader(w, r.Body, maxRetrievalBodyKB<<10)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	return req, true
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := mapErrorToHTTPStatus(err)
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error(event, "status", status, "error", err)
	} else {
		logger.Warn(event, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
