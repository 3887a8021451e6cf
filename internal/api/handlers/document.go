package handlers

import (
	"net/http"
	"strconv"

	"github.com/openworm/wormgraph/internal/api/middleware"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/security"
)

type DocumentHandler struct {
	engine    *core.Engine
	sanitizer *security.InputSanitizer
}

// NewDocumentHandler serves documents from engine. Free text in requests is
// cleaned with sanitizer when it is not nil.
func NewDocumentHandler(engine *core.Engine, sanitizer *security.InputSanitizer) *DocumentHandler {
	return &DocumentHandler{
		engine:    engine,
		sanitizer: sanitizer,
	}
}

type DocumentListResponse struct {
	Documents []EntityResponse `json:"documents"`
	Total     int              `json:"total" example:"100"`
	Limit     int              `json:"limit" example:"50"`
	Offset    int              `json:"offset" example:"0"`
}

type DocumentBatchRequest struct {
	Documents []models.DocumentSpec `json:"documents"`
}

type IdentifierListResponse struct {
	Identifiers []string `json:"identifiers"`
}

type EnrichResponse struct {
	RunID         string              `json:"run_id"`
	Source        string              `json:"source" example:"wormbase"`
	ExternalID    string              `json:"external_id,omitempty" example:"WBPaper00044600"`
	Status        string              `json:"status" example:"applied"`
	Reason        string              `json:"reason,omitempty"`
	Applied       map[string][]string `json:"applied,omitempty" swaggertype:"object"`
	OldIdentifier string              `json:"old_identifier"`
	NewIdentifier string              `json:"new_identifier"`
	Moved         bool                `json:"moved"`
	Version       int                 `json:"version" example:"2"`
}

// CreateDocument godoc
// @Summary Create a document
// @Description Store a document under the identifier derived from its doi, pmid, wbid or uri
// @Tags documents
// @Accept json
// @Produce json
// @Param document body models.DocumentSpec true "Document fields"
// @Success 201 {object} EntityResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 422 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /api/v1/documents [post]
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var spec models.DocumentSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	if err := h.sanitize(&spec); err != nil {
		middleware.SendValidationError(w, r, "invalid document text", map[string]any{"error": err.Error()})
		return
	}

	saved, err := h.engine.SaveDocument(r.Context(), spec)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entityResponse(saved.Record, saved.Document))
}

// CreateDocuments godoc
// @Summary Create documents in bulk
// @Description Store many documents. Documents without an identity are skipped and reported.
// @Tags documents
// @Accept json
// @Produce json
// @Param documents body DocumentBatchRequest true "Documents"
// @Success 200 {object} core.BatchResult
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /api/v1/documents/batch [post]
func (h *DocumentHandler) CreateDocuments(w http.ResponseWriter, r *http.Request) {
	var req DocumentBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Specs that fail to build never reach the engine; positions in its
	// result are mapped back onto the request.
	result := &core.BatchResult{Saved: []string{}}
	docs := make([]*models.Document, 0, len(req.Documents))
	positions := make([]int, 0, len(req.Documents))
	for i := range req.Documents {
		spec := req.Documents[i]
		err := h.sanitize(&spec)
		var doc *models.Document
		if err == nil {
			doc, err = h.engine.NewDocument(spec)
		}
		if err != nil {
			result.Skipped = append(result.Skipped, core.BatchSkip{Index: i, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
		positions = append(positions, i)
	}

	saved, err := h.engine.SaveDocuments(r.Context(), docs)
	if saved != nil {
		result.Saved = saved.Saved
		for _, skip := range saved.Skipped {
			result.Skipped = append(result.Skipped, core.BatchSkip{Index: positions[skip.Index], Reason: skip.Reason})
		}
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListDocuments godoc
// @Summary List documents
// @Description Page through stored documents in identifier order
// @Tags documents
// @Produce json
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} DocumentListResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /api/v1/documents [get]
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}

	page, err := h.engine.ListDocuments(r.Context(), limit, offset)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	response := DocumentListResponse{
		Documents: make([]EntityResponse, 0, len(page.Documents)),
		Total:     page.Total,
		Limit:     page.Limit,
		Offset:    page.Offset,
	}
	for _, d := range page.Documents {
		response.Documents = append(response.Documents, entityResponse(d.Record, d.Document))
	}
	writeJSON(w, http.StatusOK, response)
}

// FindDocuments godoc
// @Summary Find documents by field value
// @Description Return the identifiers of documents whose field holds exactly value
// @Tags documents
// @Produce json
// @Param field query string true "Field name" Enums(author, uri, year, title, doi, wbid, pmid)
// @Param value query string true "Value"
// @Success 200 {object} IdentifierListResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Router /api/v1/documents/find [get]
func (h *DocumentHandler) FindDocuments(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if field == "" || value == "" {
		middleware.SendValidationError(w, r, "field and value are required", nil)
		return
	}

	iris, err := h.engine.FindDocuments(r.Context(), field, value)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if iris == nil {
		iris = []string{}
	}
	writeJSON(w, http.StatusOK, IdentifierListResponse{Identifiers: iris})
}

// SearchDocuments godoc
// @Summary Search documents
// @Description Full-text search over document titles, authors and identifiers
// @Tags documents
// @Produce json
// @Param q query string false "Query text"
// @Param fields query string false "Comma separated fields to search"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.SearchResult
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/v1/documents/search [get]
func (h *DocumentHandler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paging(w, r)
	if !ok {
		return
	}

	q := r.URL.Query().Get("q")
	if h.sanitizer != nil {
		clean, err := h.sanitizer.SanitizeSearchQuery(q)
		if err != nil {
			middleware.SendValidationError(w, r, "invalid search query", map[string]any{"error": err.Error()})
			return
		}
		q = clean
	}

	query := &models.SearchQuery{
		Query:  q,
		Fields: parseCommaSeparated(r.URL.Query().Get("fields")),
		Limit:  limit,
		Offset: offset,
	}
	result, err := h.engine.SearchDocuments(r.Context(), query)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetDocument godoc
// @Summary Get a document
// @Tags documents
// @Produce json
// @Param iri path string true "Path-escaped document identifier"
// @Success 200 {object} EntityResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/documents/{iri} [get]
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	iri, ok := pathIRI(w, r)
	if !ok {
		return
	}

	stored, err := h.engine.GetDocument(r.Context(), iri)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse(stored.Record, stored.Document))
}

// DeleteDocument godoc
// @Summary Delete a document
// @Tags documents
// @Param iri path string true "Path-escaped document identifier"
// @Success 204 "No Content"
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/documents/{iri} [delete]
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	iri, ok := pathIRI(w, r)
	if !ok {
		return
	}

	if _, err := h.engine.GetDocument(r.Context(), iri); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := h.engine.DeleteEntity(r.Context(), iri); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnrichDocument godoc
// @Summary Enrich a document
// @Description Fetch metadata from a remote source and merge it into the document. The document moves when its identifier changes.
// @Tags documents
// @Produce json
// @Param iri path string true "Path-escaped document identifier"
// @Param source query string true "Metadata source" Enums(wormbase, pubmed, crossref)
// @Param replace query bool false "Overwrite fields that already hold values"
// @Success 200 {object} EnrichResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 422 {object} middleware.ErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Router /api/v1/documents/{iri}/enrich [post]
func (h *DocumentHandler) EnrichDocument(w http.ResponseWriter, r *http.Request) {
	iri, ok := pathIRI(w, r)
	if !ok {
		return
	}

	source := r.URL.Query().Get("source")
	switch source {
	case enrichment.SourceWormBase, enrichment.SourcePubMed, enrichment.SourceCrossRef:
	default:
		middleware.SendValidationError(w, r, "unknown enrichment source", map[string]any{"source": source})
		return
	}

	replace := false
	if raw := r.URL.Query().Get("replace"); raw != "" {
		var err error
		if replace, err = strconv.ParseBool(raw); err != nil {
			middleware.SendValidationError(w, r, "invalid replace flag", map[string]any{"replace": raw})
			return
		}
	}

	result, err := h.engine.EnrichDocument(r.Context(), iri, source, replace)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	report := result.Report
	writeJSON(w, http.StatusOK, EnrichResponse{
		RunID:         report.RunID,
		Source:        report.Source,
		ExternalID:    report.ExternalID,
		Status:        string(report.Status),
		Reason:        report.Reason(),
		Applied:       report.Applied,
		OldIdentifier: result.OldIdentifier,
		NewIdentifier: result.NewIdentifier,
		Moved:         result.Moved(),
		Version:       result.Version,
	})
}

func (h *DocumentHandler) sanitize(spec *models.DocumentSpec) error {
	if h.sanitizer == nil {
		return nil
	}
	title, err := h.sanitizer.SanitizeString(spec.Title)
	if err != nil {
		return err
	}
	authors, err := h.sanitizer.SanitizeStrings(spec.Author)
	if err != nil {
		return err
	}
	spec.Title = title
	spec.Author = authors
	return nil
}
