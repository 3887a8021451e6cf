package memory

import (
	"context"
	"testing"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.StatementStore {
		return NewStatementStore()
	})
}

func TestStatementStore_Closed(t *testing.T) {
	s := NewStatementStore()
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
	_, _, err := s.GetSubject(ctx, "http://openworm.org/entities/Document/x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	entries := []models.DocumentIndexEntry{
		{IRI: "http://openworm.org/entities/Document/a", Title: "The structure of the nervous system of the nematode C. elegans", Authors: []string{"White, J."}, Year: "1986"},
		{IRI: "http://openworm.org/entities/Document/b", Title: "Neuronal connectivity", Authors: []string{"Varshney, L."}, Year: "2011", DOI: "10.1371/journal.pcbi.1001066"},
		{IRI: "http://openworm.org/entities/Document/c", Title: "Muscle arms", PMID: "24098140"},
	}
	require.NoError(t, idx.IndexDocuments(ctx, entries))

	tests := []struct {
		name  string
		query models.SearchQuery
		want  []string
		total int64
	}{
		{"single token", models.SearchQuery{Query: "nervous", Limit: 10}, []string{entries[0].IRI}, 1},
		{"case insensitive", models.SearchQuery{Query: "NEURONAL", Limit: 10}, []string{entries[1].IRI}, 1},
		{"all tokens required", models.SearchQuery{Query: "neuronal white", Limit: 10}, nil, 0},
		{"restricted fields", models.SearchQuery{Query: "white", Fields: []string{models.FieldTitle}, Limit: 10}, nil, 0},
		{"by pmid", models.SearchQuery{Query: "24098140", Limit: 10}, []string{entries[2].IRI}, 1},
		{"match all paged", models.SearchQuery{Query: "*", Limit: 2, Offset: 1}, []string{entries[1].IRI, entries[2].IRI}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := idx.SearchDocuments(ctx, &tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.TotalHits)
			var got []string
			for _, h := range res.Hits {
				got = append(got, h.IRI)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, idx.DeleteDocument(ctx, entries[0].IRI))
	res, err := idx.SearchDocuments(ctx, &models.SearchQuery{Query: "nervous", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}
