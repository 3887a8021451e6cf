package handlers

import (
	"net/http"

	"github.com/openworm/wormgraph/internal/api/middleware"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/models"
)

type IdentifierHandler struct {
	engine *core.Engine
}

func NewIdentifierHandler(engine *core.Engine) *IdentifierHandler {
	return &IdentifierHandler{engine: engine}
}

// PreviewDocumentIdentifier godoc
// @Summary Preview a document identifier
// @Description Derive the identifier a document would be stored under without storing it
// @Tags identifiers
// @Accept json
// @Produce json
// @Param document body models.DocumentSpec true "Document fields"
// @Success 200 {object} core.IdentifierPreview
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 422 {object} middleware.ErrorResponse
// @Router /api/v1/identifiers/documents [post]
func (h *IdentifierHandler) PreviewDocumentIdentifier(w http.ResponseWriter, r *http.Request) {
	var spec models.DocumentSpec
	if !decodeBody(w, r, &spec) {
		return
	}

	preview, err := h.engine.ResolveDocumentIdentifier(r.Context(), spec)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}
