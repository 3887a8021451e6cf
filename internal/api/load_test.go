//go:build performance

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vegeta "github.com/tsenart/vegeta/v12/lib"

	"github.com/openworm/wormgraph/internal/api/handlers"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/security"
)

func attack(t *testing.T, srv *testServer, name string, rate int, targets ...vegeta.Target) *vegeta.Metrics {
	t.Helper()

	attacker := vegeta.NewAttacker(vegeta.Client(srv.Client()), vegeta.Workers(8))
	pacer := vegeta.Rate{Freq: rate, Per: time.Second}

	var metrics vegeta.Metrics
	for res := range attacker.Attack(vegeta.NewStaticTargeter(targets...), pacer, 3*time.Second, name) {
		metrics.Add(res)
	}
	metrics.Close()

	t.Logf("%s: %d requests, success %.2f%%, p50=%s p95=%s p99=%s, status %v",
		name, metrics.Requests, metrics.Success*100,
		metrics.Latencies.P50, metrics.Latencies.P95, metrics.Latencies.P99, metrics.StatusCodes)
	return &metrics
}

func TestLoad_ReadPath(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	var targets []vegeta.Target
	for i := 0; i < 50; i++ {
		resp, body := srv.do(t, http.MethodPost, "/api/v1/documents", models.DocumentSpec{
			DOI:   fmt.Sprintf("10.5555/load.%04d", i),
			Title: fmt.Sprintf("Pharyngeal pumping %d", i),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

		var created handlers.EntityResponse
		require.NoError(t, json.Unmarshal(body, &created))
		targets = append(targets, vegeta.Target{
			Method: http.MethodGet,
			URL:    srv.URL + "/api/v1/documents/" + url.PathEscape(created.IRI),
		})
	}
	targets = append(targets, vegeta.Target{
		Method: http.MethodGet,
		URL:    srv.URL + "/api/v1/documents/search?q=pumping&limit=10",
	})

	metrics := attack(t, srv, "read", 200, targets...)
	assert.Empty(t, metrics.Errors)
	assert.Equal(t, 1.0, metrics.Success)
}

func TestLoad_WritePath(t *testing.T) {
	srv := newTestServer(t, security.RateLimitConfig{})

	// Repeated writes of the same documents exercise the per-identifier lock.
	var targets []vegeta.Target
	for i := 0; i < 20; i++ {
		body, err := json.Marshal(models.DocumentSpec{
			PMID:  fmt.Sprintf("%d", 1000+i),
			Title: "Egg laying behaviour",
		})
		require.NoError(t, err)
		targets = append(targets, vegeta.Target{
			Method: http.MethodPost,
			URL:    srv.URL + "/api/v1/documents",
			Body:   body,
			Header: http.Header{"Content-Type": []string{"application/json"}},
		})
	}

	metrics := attack(t, srv, "write", 100, targets...)
	assert.Empty(t, metrics.Errors)
	assert.Equal(t, 1.0, metrics.Success)
	assert.Equal(t, 20, srv.statements.Len())
}
