package typesense

import (
	"testing"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/typesense/api"
)

func TestFlattenRoundTrip(t *testing.T) {
	entry := models.DocumentIndexEntry{
		IRI:     "http://openworm.org/entities/Document/a1b2",
		Title:   "Neuronal connectivity",
		Authors: []string{"Varshney, L.", "Chen, B."},
		Year:    "2011",
		DOI:     "10.1371/journal.pcbi.1001066",
		Indexed: 1700000000,
	}

	doc := flatten(entry)
	assert.Equal(t, documentID(entry.IRI), doc["id"])
	assert.NotContains(t, doc, "pmid")
	assert.NotContains(t, doc, "uris")

	// Documents come back from the JSON API with generic types.
	decoded := map[string]any{
		"id":         doc["id"],
		"iri":        entry.IRI,
		"title":      entry.Title,
		"authors":    []any{"Varshney, L.", "Chen, B."},
		"year":       "2011",
		"doi":        entry.DOI,
		"indexed_at": float64(1700000000),
	}
	assert.Equal(t, entry, unflatten(decoded))
}

func TestDocumentID(t *testing.T) {
	a := documentID("http://openworm.org/entities/Document/a")
	assert.Len(t, a, 40)
	assert.Equal(t, a, documentID("http://openworm.org/entities/Document/a"))
	assert.NotEqual(t, a, documentID("http://openworm.org/entities/Document/b"))
}

func TestQueryBy(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{"default", nil, defaultQueryBy},
		{"mapped", []string{models.FieldAuthor, models.FieldTitle, models.FieldURI}, []string{"authors", "title", "uris"}},
		{"unknown only", []string{"abstract"}, defaultQueryBy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queryBy(tt.fields))
		})
	}
}

func TestConvertSearchResult(t *testing.T) {
	found := 7
	match := int64(578730123365187705)
	hits := []api.SearchResultHit{
		{
			Document: &map[string]interface{}{
				"iri":   "http://openworm.org/entities/Document/x",
				"title": "Muscle arms",
				"pmid":  "24098140",
			},
			TextMatch: &match,
		},
		{Document: nil},
	}
	res := convertSearchResult(&api.SearchResult{Found: &found, Hits: &hits}, "muscle", 0)

	assert.Equal(t, int64(7), res.TotalHits)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "http://openworm.org/entities/Document/x", res.Hits[0].IRI)
	assert.Equal(t, models.DocumentType, res.Hits[0].EntityType)
	assert.Equal(t, []string{"24098140"}, res.Hits[0].Fields[models.FieldPMID])
	assert.Greater(t, res.Hits[0].Score, float32(0))
}

func TestCalculatePage(t *testing.T) {
	assert.Equal(t, 1, calculatePage(0, 20))
	assert.Equal(t, 2, calculatePage(20, 20))
	assert.Equal(t, 3, calculatePage(45, 20))
	assert.Equal(t, 1, calculatePage(5, 0))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg = &Config{ServerURL: "http://localhost:8108", APIKey: "k"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultCollection, cfg.Collection)
	assert.Positive(t, cfg.ConnectionTimeout)
}
