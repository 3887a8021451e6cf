package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworm/wormgraph/internal/api/handlers"
	"github.com/openworm/wormgraph/internal/api/middleware"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/health"
	"github.com/openworm/wormgraph/internal/integration"
	"github.com/openworm/wormgraph/internal/lock"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/security"
	"github.com/openworm/wormgraph/internal/store/memory"
	"github.com/openworm/wormgraph/pkg/utils"
)

const overview = `{
  "overview": {
    "authors": {"data": [{"label": "Chalfie M"}, {"label": "Sulston JE"}]},
    "pmid":  {"data": "4006922"},
    "year":  {"data": 1985},
    "title": {"data": "The neural circuit for touch sensitivity in <i>Caenorhabditis elegans</i>."}
  }
}`

type testServer struct {
	*httptest.Server
	statements *memory.StatementStore
}

func newTestServer(t *testing.T, rateLimit security.RateLimitConfig) *testServer {
	t.Helper()

	wormbase := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "WBPaper00000001") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(overview))
	}))
	t.Cleanup(wormbase.Close)

	sec := integration.NewSecurityManager(rateLimit, security.SanitizerConfig{Enabled: true, MaxStringLength: 1000})
	t.Cleanup(sec.Stop)

	enricher := enrichment.NewEnricher(
		[]*enrichment.Fetcher{enrichment.NewFetcher(enrichment.NewWormBaseSource(enrichment.SourceConfig{BaseURL: wormbase.URL}))},
		enrichment.WithSanitizer(sec.GetSanitizer()),
	)

	statements := memory.NewStatementStore()
	index := memory.NewIndex()
	engine, err := core.NewEngine(statements, index, enricher, lock.NewLockManager(nil), nil, core.Options{})
	require.NoError(t, err)

	checker := health.NewHealthChecker(0)
	checker.RegisterComponent("database", health.CreateDatabaseHealthCheck(statements))
	checker.RegisterComponent("search", health.CreateSearchHealthCheck(index))

	router := NewRouter(engine, checker, nil, sec, Config{Version: "test"})
	srv := httptest.NewServer(router.SetupRoutes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, statements: statements}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	return decode[middleware.ErrorResponse](t, raw).Error.Code
}

func docPath(iri string) string {
	return "/api/v1/documents/" + url.PathEscape(iri)
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	resp, body := srv.do(t, http.MethodPost, "/api/v1/documents", models.DocumentSpec{
		PMID:   "24098140",
		Title:  "<b>OpenWorm</b>: an open-science approach",
		Author: []string{"Szigeti B", "Gleeson P"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[handlers.EntityResponse](t, body)
	assert.Equal(t, models.DocumentType, created.EntityType)
	assert.Equal(t, []string{"OpenWorm: an open-science approach"}, created.Fields[models.FieldTitle])
	assert.Equal(t, 1, created.Version)

	resp, body = srv.do(t, http.MethodGet, docPath(created.IRI), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decode[handlers.EntityResponse](t, body)
	assert.Equal(t, created.IRI, got.IRI)
	assert.Equal(t, []string{"Szigeti B", "Gleeson P"}, got.Fields[models.FieldAuthor])

	resp, body = srv.do(t, http.MethodGet, "/api/v1/documents?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[handlers.DocumentListResponse](t, body)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 10, list.Limit)
	require.Len(t, list.Documents, 1)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/documents/find?field=pmid&value=24098140", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{created.IRI}, decode[handlers.IdentifierListResponse](t, body).Identifiers)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/documents/search?q=openworm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	result := decode[models.SearchResult](t, body)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, created.IRI, result.Hits[0].IRI)

	resp, _ = srv.do(t, http.MethodDelete, docPath(created.IRI), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = srv.do(t, http.MethodGet, docPath(created.IRI), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, utils.CodeNotFound, errorCode(t, body))
}

func TestRouter_DocumentErrors(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "no identity",
			method: http.MethodPost, path: "/api/v1/documents",
			body:   models.DocumentSpec{Title: "untitled notes"},
			status: http.StatusUnprocessableEntity, code: utils.CodeIdentifierMissing,
		},
		{
			name:   "bad pmid",
			method: http.MethodPost, path: "/api/v1/documents",
			body:   models.DocumentSpec{PMID: "PMC123"},
			status: http.StatusBadRequest, code: utils.CodeValidation,
		},
		{
			name:   "unknown body field",
			method: http.MethodPost, path: "/api/v1/documents",
			body:   map[string]string{"isbn": "978-0"},
			status: http.StatusBadRequest, code: utils.CodeValidation,
		},
		{
			name:   "bad limit",
			method: http.MethodGet, path: "/api/v1/documents?limit=x",
			status: http.StatusBadRequest, code: utils.CodeValidation,
		},
		{
			name:   "unknown find field",
			method: http.MethodGet, path: "/api/v1/documents/find?field=isbn&value=1",
			status: http.StatusBadRequest, code: utils.CodeInvalidInput,
		},
		{
			name:   "missing document",
			method: http.MethodGet, path: docPath("http://example.org/missing"),
			status: http.StatusNotFound, code: utils.CodeNotFound,
		},
		{
			name:   "unknown enrichment source",
			method: http.MethodPost, path: docPath("http://example.org/missing") + "/enrich?source=scholar",
			status: http.StatusBadRequest, code: utils.CodeValidation,
		},
		{
			name:   "unknown cell kind",
			method: http.MethodPost, path: "/api/v1/cells/glia",
			body:   models.CellSpec{Name: "AMsh"},
			status: http.StatusBadRequest, code: utils.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := srv.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestRouter_EnrichMovesDocument(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	resp, body := srv.do(t, http.MethodPost, "/api/v1/documents", models.DocumentSpec{WBID: "WBPaper00000001"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[handlers.EntityResponse](t, body)

	resp, body = srv.do(t, http.MethodPost, docPath(created.IRI)+"/enrich?source=wormbase", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	enriched := decode[handlers.EnrichResponse](t, body)
	assert.Equal(t, string(enrichment.StatusApplied), enriched.Status)
	assert.True(t, enriched.Moved)
	assert.Equal(t, created.IRI, enriched.OldIdentifier)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/identifiers/documents", models.DocumentSpec{PMID: "4006922"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, enriched.NewIdentifier, decode[core.IdentifierPreview](t, body).Identifier)

	resp, _ = srv.do(t, http.MethodGet, docPath(created.IRI), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = srv.do(t, http.MethodGet, docPath(enriched.NewIdentifier), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[handlers.EntityResponse](t, body)
	assert.Equal(t, []string{"The neural circuit for touch sensitivity in Caenorhabditis elegans."}, got.Fields[models.FieldTitle])

	resp, body = srv.do(t, http.MethodPost, docPath(enriched.NewIdentifier)+"/enrich?source=wormbase&replace=false", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[handlers.EnrichResponse](t, body)
	assert.Equal(t, string(enrichment.StatusUnchanged), again.Status)
	assert.False(t, again.Moved)
}

func TestRouter_BatchCreate(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	resp, body := srv.do(t, http.MethodPost, "/api/v1/documents/batch", handlers.DocumentBatchRequest{
		Documents: []models.DocumentSpec{
			{PMID: "24098140"},
			{PMID: "not-a-pmid"},
			{Title: "no identity"},
			{DOI: "10.1038/nature12354"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	result := decode[core.BatchResult](t, body)
	assert.Len(t, result.Saved, 2)
	require.Len(t, result.Skipped, 2)

	skipped := map[int]bool{}
	for _, s := range result.Skipped {
		skipped[s.Index] = true
		assert.NotEmpty(t, s.Reason)
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, skipped)
	assert.Equal(t, 2, srv.statements.Len())
}

func TestRouter_Cells(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	resp, body := srv.do(t, http.MethodPost, "/api/v1/cells/neuron", models.CellSpec{
		Name:              "AVAL",
		Types:             []string{"interneuron"},
		Neurotransmitters: []string{"acetylcholine"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[handlers.EntityResponse](t, body)
	assert.Equal(t, "Neuron", created.EntityType)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/cells/neuron/AVAL", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decode[handlers.EntityResponse](t, body)
	assert.Equal(t, created.IRI, got.IRI)
	assert.Equal(t, []string{"AVAL"}, got.Fields["name"])

	resp, _ = srv.do(t, http.MethodGet, "/api/v1/cells/muscle/AVAL", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/cells/muscle", models.CellSpec{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, utils.CodeValidation, errorCode(t, body))
}

func TestRouter_RateLimit(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.001,
		BurstSize:         1,
	})

	resp, _ := srv.do(t, http.MethodGet, "/api/v1/documents", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := srv.do(t, http.MethodGet, "/api/v1/documents", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, utils.CodeRateLimited, errorCode(t, body))

	resp, _ = srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_HealthAndStats(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	resp, body := srv.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decode[health.SystemHealth](t, body)
	assert.Equal(t, health.StatusHealthy, h.Status)
	assert.Contains(t, h.Components, "database")

	resp, _ = srv.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, body)
	assert.Contains(t, stats, "transactions")
	assert.Contains(t, stats, "rate_limit")
}

type togglePinger struct{ down atomic.Bool }

func (p *togglePinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestRouter_ReadyUsesLastHealthResult(t *testing.T) {
	engine, err := core.NewEngine(memory.NewStatementStore(), nil, nil, nil, nil, core.Options{})
	require.NoError(t, err)

	db := &togglePinger{}
	checker := health.NewHealthChecker(time.Second)
	checker.RegisterStore("database", db)

	srv := httptest.NewServer(NewRouter(engine, checker, nil, nil, Config{}).SetupRoutes())
	defer srv.Close()

	ready := func() int {
		resp, err := http.Get(srv.URL + "/ready")
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// no result yet, so the checks run inline
	db.down.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, ready())

	db.down.Store(false)
	assert.Equal(t, http.StatusServiceUnavailable, ready())

	checker.Check(context.Background())
	assert.Equal(t, http.StatusOK, ready())
}
