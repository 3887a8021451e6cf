package sdk_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworm/wormgraph/pkg/sdk"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid URL",
			baseURL: "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "invalid URL",
			baseURL: "://invalid-url",
			wantErr: true,
		},
		{
			name:    "missing host",
			baseURL: "/api",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := sdk.NewClient(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, client)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy"})
	}))
	defer server.Close()

	client, err := sdk.NewClient(server.URL)
	require.NoError(t, err)

	err = client.HealthCheck(context.Background())
	assert.NoError(t, err)
}

func TestHealthCheckError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := sdk.NewClient(server.URL)
	require.NoError(t, err)

	err = client.HealthCheck(context.Background())
	assert.Error(t, err)
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, apiErr *sdk.APIError)
	}{
		{
			name:   "identifier missing",
			status: http.StatusUnprocessableEntity,
			body:   `{"error":{"code":"IDENTIFIER_MISSING","message":"no identity","details":{"entity_type":"Document"},"request_id":"req-1"}}`,
			check: func(t *testing.T, apiErr *sdk.APIError) {
				assert.True(t, apiErr.IsIdentifierMissing())
				assert.Equal(t, "req-1", apiErr.RequestID)
				assert.Equal(t, "Document", apiErr.Details["entity_type"])
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"error":{"code":"NOT_FOUND","message":"gone"}}`,
			check: func(t *testing.T, apiErr *sdk.APIError) {
				assert.True(t, apiErr.IsNotFound())
				assert.False(t, apiErr.IsInternal())
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`,
			check: func(t *testing.T, apiErr *sdk.APIError) {
				assert.True(t, apiErr.IsRateLimited())
			},
		},
		{
			name:   "plain text",
			status: http.StatusBadGateway,
			body:   "upstream broke\n",
			check: func(t *testing.T, apiErr *sdk.APIError) {
				assert.Equal(t, sdk.ErrorCodeUnknown, apiErr.Code)
				assert.Equal(t, "upstream broke", apiErr.Message)
				assert.True(t, apiErr.IsInternal())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client, err := sdk.NewClient(server.URL)
			require.NoError(t, err)

			_, err = client.Documents.Get(context.Background(), "http://openworm.org/entities/Document/x")
			require.Error(t, err)

			apiErr, ok := sdk.AsAPIError(fmt.Errorf("wrapped: %w", err))
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			tt.check(t, apiErr)
		})
	}
}

func TestEscapedIRIPath(t *testing.T) {
	iri := "http://openworm.org/entities/Document/a1b2"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/documents/http:%2F%2Fopenworm.org%2Fentities%2FDocument%2Fa1b2/enrich", r.URL.EscapedPath())
		assert.Equal(t, "crossref", r.URL.Query().Get("source"))
		assert.Equal(t, "true", r.URL.Query().Get("replace"))
		json.NewEncoder(w).Encode(sdk.EnrichResult{Source: "crossref", Status: "applied"})
	}))
	defer server.Close()

	client, err := sdk.NewClient(server.URL)
	require.NoError(t, err)

	result, err := client.Documents.Enrich(context.Background(), iri, sdk.EnrichOptions{Source: "crossref", Replace: true})
	require.NoError(t, err)
	assert.Equal(t, "applied", result.Status)
}

func TestClientSideValidation(t *testing.T) {
	client, err := sdk.NewClient("http://localhost:1")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Documents.Create(ctx, nil)
	assert.Error(t, err)
	_, err = client.Documents.Get(ctx, "")
	assert.Error(t, err)
	_, err = client.Documents.Find(ctx, "doi", "")
	assert.Error(t, err)
	_, err = client.Documents.Enrich(ctx, "http://x", sdk.EnrichOptions{})
	assert.Error(t, err)
	_, err = client.Cells.Create(ctx, sdk.Neuron, &sdk.CellSpec{})
	assert.Error(t, err)

	result, err := client.Documents.CreateBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Saved)
}
