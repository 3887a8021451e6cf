package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openworm/wormgraph/internal/api/middleware"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/models"
)

type CellHandler struct {
	engine *core.Engine
}

func NewCellHandler(engine *core.Engine) *CellHandler {
	return &CellHandler{engine: engine}
}

func (h *CellHandler) kind(w http.ResponseWriter, r *http.Request) (models.CellKind, bool) {
	kind, err := models.ParseCellKind(chi.URLParam(r, "kind"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return "", false
	}
	return kind, true
}

// CreateCell godoc
// @Summary Create a neuron or muscle
// @Description Store a cell under the identifier derived directly from its name
// @Tags cells
// @Accept json
// @Produce json
// @Param kind path string true "Cell kind" Enums(neuron, muscle)
// @Param cell body models.CellSpec true "Cell fields"
// @Success 201 {object} EntityResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /api/v1/cells/{kind} [post]
func (h *CellHandler) CreateCell(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	var spec models.CellSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	if err := h.engine.Validator().ValidateCellSpec(&spec); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	cell, rec, err := h.engine.SaveCell(r.Context(), kind, spec)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse(rec, cell))
}

// GetCell godoc
// @Summary Get a neuron or muscle by name
// @Tags cells
// @Produce json
// @Param kind path string true "Cell kind" Enums(neuron, muscle)
// @Param name path string true "Cell name" example(AVAL)
// @Success 200 {object} EntityResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/cells/{kind}/{name} [get]
func (h *CellHandler) GetCell(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	cell, rec, err := h.engine.GetCell(r.Context(), kind, chi.URLParam(r, "name"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse(rec, cell))
}
