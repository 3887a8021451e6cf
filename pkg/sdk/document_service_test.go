package sdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworm/wormgraph/internal/api"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/store/memory"
	"github.com/openworm/wormgraph/pkg/sdk"
)

const overview = `{
  "overview": {
    "authors": {"data": [{"label": "Chalfie M"}]},
    "pmid":  {"data": "4006922"},
    "year":  {"data": 1985},
    "title": {"data": "The neural circuit for touch sensitivity"}
  }
}`

func newAPIClient(t *testing.T) *sdk.Client {
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

	enricher := enrichment.NewEnricher([]*enrichment.Fetcher{
		enrichment.NewFetcher(enrichment.NewWormBaseSource(enrichment.SourceConfig{BaseURL: wormbase.URL})),
	})
	engine, err := core.NewEngine(memory.NewStatementStore(), memory.NewIndex(), enricher, nil, nil, core.Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(engine, nil, nil, nil, api.Config{}).SetupRoutes())
	t.Cleanup(srv.Close)

	client, err := sdk.NewClient(srv.URL)
	require.NoError(t, err)
	return client
}

func TestDocuments_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := newAPIClient(t)
	require.NoError(t, client.ReadinessCheck(ctx))

	spec := &sdk.DocumentSpec{DOI: "10.1038/nature12345", Title: "Connectome", Author: []string{"White JG"}}
	preview, err := client.Identifiers.PreviewDocument(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "hashed", preview.Path)

	created, err := client.Documents.Create(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, preview.Identifier, created.IRI)
	assert.Equal(t, "Document", created.EntityType)
	assert.Equal(t, "Connectome", created.Field("title"))

	got, err := client.Documents.Get(ctx, created.IRI)
	require.NoError(t, err)
	assert.Equal(t, created.IRI, got.IRI)

	found, err := client.Documents.Find(ctx, "doi", "10.1038/nature12345")
	require.NoError(t, err)
	assert.Equal(t, []string{created.IRI}, found)

	list, err := client.Documents.List(ctx, &sdk.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	result, err := client.Documents.Search(ctx, &sdk.SearchQuery{Query: "connectome"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	assert.Equal(t, created.IRI, result.Hits[0].IRI)

	require.NoError(t, client.Documents.Delete(ctx, created.IRI))
	_, err = client.Documents.Get(ctx, created.IRI)
	apiErr, ok := sdk.AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
}

func TestDocuments_IdentifierMissing(t *testing.T) {
	client := newAPIClient(t)

	_, err := client.Documents.Create(context.Background(), &sdk.DocumentSpec{Title: "anonymous"})
	apiErr, ok := sdk.AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsIdentifierMissing())
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestDocuments_BatchAndEnrich(t *testing.T) {
	ctx := context.Background()
	client := newAPIClient(t)

	batch, err := client.Documents.CreateBatch(ctx, []sdk.DocumentSpec{
		{WBID: "WBPaper00000001"},
		{Title: "no identity"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Saved, 1)
	require.Len(t, batch.Skipped, 1)
	assert.Equal(t, 1, batch.Skipped[0].Index)

	result, err := client.Documents.Enrich(ctx, batch.Saved[0], sdk.EnrichOptions{Source: "wormbase"})
	require.NoError(t, err)
	assert.True(t, result.Moved)
	assert.Equal(t, batch.Saved[0], result.OldIdentifier)

	moved, err := client.Documents.Get(ctx, result.NewIdentifier)
	require.NoError(t, err)
	assert.Equal(t, "4006922", moved.Field("pmid"))
}

func TestCells(t *testing.T) {
	ctx := context.Background()
	client := newAPIClient(t)

	created, err := client.Cells.Create(ctx, sdk.Neuron, &sdk.CellSpec{Name: "AVAL", Neurotransmitters: []string{"Acetylcholine"}})
	require.NoError(t, err)
	assert.Equal(t, "Neuron", created.EntityType)

	got, err := client.Cells.Get(ctx, sdk.Neuron, "AVAL")
	require.NoError(t, err)
	assert.Equal(t, created.IRI, got.IRI)

	_, err = client.Cells.Get(ctx, sdk.Muscle, "AVAL")
	apiErr, ok := sdk.AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
}

func TestSearchIterator(t *testing.T) {
	ctx := context.Background()
	client := newAPIClient(t)

	for _, doi := range []string{"10.1000/worm1", "10.1000/worm2", "10.1000/worm3"} {
		_, err := client.Documents.Create(ctx, &sdk.DocumentSpec{DOI: doi, Title: "worm locomotion"})
		require.NoError(t, err)
	}

	iter := client.Documents.NewSearchIterator(sdk.SearchQuery{Query: "locomotion", Limit: 2})
	seen := map[string]bool{}
	for iter.HasMore() {
		page, err := iter.Next(ctx)
		require.NoError(t, err)
		for _, hit := range page.Hits {
			seen[hit.IRI] = true
		}
	}
	assert.Len(t, seen, 3)
}
