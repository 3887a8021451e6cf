package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openworm/wormgraph/internal/api/middleware"
	"github.com/openworm/wormgraph/internal/models"
)

// EntityResponse is the JSON form of a stored document or cell.
type EntityResponse struct {
	IRI        string              `json:"iri" example:"http://openworm.org/entities/Document/a1f3c0..."`
	EntityType string              `json:"entity_type" example:"Document"`
	Fields     map[string][]string `json:"fields" swaggertype:"object"`
	CreatedAt  time.Time           `json:"created_at" example:"2023-01-01T00:00:00Z"`
	UpdatedAt  time.Time           `json:"updated_at" example:"2023-01-01T00:00:00Z"`
	Version    int                 `json:"version" example:"1"`
}

func entityResponse(rec *models.EntityRecord, ent models.Entity) EntityResponse {
	return EntityResponse{
		IRI:        rec.IRI,
		EntityType: rec.EntityType,
		Fields:     ent.Fields(),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		Version:    rec.Version,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeBody reads a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.SendValidationError(w, r, "invalid request body", map[string]any{
			"error": err.Error(),
		})
		return false
	}
	return true
}

// pathIRI returns the path-escaped IRI in the {iri} route parameter.
func pathIRI(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "iri")
	iri, err := url.PathUnescape(raw)
	if err != nil || iri == "" {
		middleware.SendValidationError(w, r, "invalid identifier", map[string]any{
			"iri": raw,
		})
		return "", false
	}
	return iri, true
}

// paging reads limit and offset query parameters. Missing values are zero.
func paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.SendValidationError(w, r, "invalid "+p.name, map[string]any{
				p.name: raw,
			})
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

func parseCommaSeparated(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
