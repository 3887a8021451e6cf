package core

import (
	"context"
	"errors"
	"testing"

	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wormbaseStub() *stubSource {
	return &stubSource{
		name: enrichment.SourceWormBase,
		records: map[string]enrichment.Record{
			"WBPaper00000001": {
				models.FieldAuthor: {"Chalfie M", "Sulston JE"},
				models.FieldTitle:  {"The neural circuit for touch sensitivity in <i>Caenorhabditis elegans</i>."},
				models.FieldYear:   {"1985"},
				models.FieldPMID:   {"4006922"},
			},
			"WBPaper00000002": {
				models.FieldTitle: {"already known"},
			},
		},
	}
}

func TestEngine_EnrichDocumentMovesSubject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, wormbaseStub())

	saved, err := env.engine.SaveDocument(ctx, models.DocumentSpec{WBID: "WBPaper00000001"})
	require.NoError(t, err)
	oldIRI := saved.Record.IRI

	result, err := env.engine.EnrichDocument(ctx, oldIRI, enrichment.SourceWormBase, false)
	require.NoError(t, err)
	assert.Equal(t, enrichment.StatusApplied, result.Report.Status)
	assert.True(t, result.Moved())
	assert.Equal(t, oldIRI, result.OldIdentifier)

	newIRI := documentIRI(t, models.DocumentSpec{PMID: "4006922"})
	assert.Equal(t, newIRI, result.NewIdentifier)
	assert.Equal(t, 1, result.Version)

	_, err = env.engine.GetDocument(ctx, oldIRI)
	assert.True(t, utils.IsNotFound(err))

	got, err := env.engine.GetDocument(ctx, newIRI)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chalfie M", "Sulston JE"}, got.Document.Author.Strings())
	assert.Equal(t, []string{"The neural circuit for touch sensitivity in Caenorhabditis elegans."}, got.Document.Title.Strings())
	assert.Equal(t, []string{"WBPaper00000001"}, got.Document.WBID.Strings())

	res, err := env.engine.SearchDocuments(ctx, &models.SearchQuery{Query: "chalfie"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, newIRI, res.Hits[0].IRI)

	locked, err := env.engine.lockManager.IsEntityLocked(ctx, oldIRI)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestEngine_EnrichDocumentKeepsExplicitIdentifier(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, wormbaseStub())

	const iri = "http://example.org/papers/touch"
	saved, err := env.engine.SaveDocument(ctx, models.DocumentSpec{Identifier: iri, WBID: "WBPaper00000001"})
	require.NoError(t, err)
	require.Equal(t, iri, saved.Record.IRI)

	result, err := env.engine.EnrichDocument(ctx, iri, enrichment.SourceWormBase, false)
	require.NoError(t, err)
	assert.False(t, result.Moved())
	assert.Equal(t, 2, result.Version)

	got, err := env.engine.GetDocument(ctx, iri)
	require.NoError(t, err)
	assert.Equal(t, []string{"4006922"}, got.Document.PMID.Strings())
}

func TestEngine_EnrichDocumentOutcomes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		spec    models.DocumentSpec
		source  *stubSource
		replace bool
		status  enrichment.Status
		errCode string
	}{
		{
			name:   "unchanged",
			spec:   models.DocumentSpec{WBID: "WBPaper00000002", Title: "already known"},
			source: wormbaseStub(),
			status: enrichment.StatusUnchanged,
		},
		{
			name:   "fill keeps existing title",
			spec:   models.DocumentSpec{WBID: "WBPaper00000002", Title: "mine"},
			source: wormbaseStub(),
			status: enrichment.StatusUnchanged,
		},
		{
			name:    "replace overwrites title",
			spec:    models.DocumentSpec{WBID: "WBPaper00000002", Title: "mine"},
			source:  wormbaseStub(),
			replace: true,
			status:  enrichment.StatusApplied,
		},
		{
			name:   "fetch failure is skipped",
			spec:   models.DocumentSpec{WBID: "WBPaper00000001", Title: "mine"},
			source: &stubSource{name: enrichment.SourceWormBase, err: errors.New("connection refused")},
			status: enrichment.StatusSkipped,
		},
		{
			name:   "empty record is skipped",
			spec:   models.DocumentSpec{WBID: "WBPaper00000009"},
			source: wormbaseStub(),
			status: enrichment.StatusSkipped,
		},
		{
			name:    "no wormbase id",
			spec:    models.DocumentSpec{PMID: "4006922"},
			source:  wormbaseStub(),
			errCode: utils.CodeMultiplicity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.source)
			saved, err := env.engine.SaveDocument(ctx, tt.spec)
			require.NoError(t, err)
			before := saved.Document.Fields()

			result, err := env.engine.EnrichDocument(ctx, saved.Record.IRI, enrichment.SourceWormBase, tt.replace)
			if tt.errCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errCode, appCode(err))
				assert.True(t, utils.IsMultiplicity(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Report.Status)
			assert.False(t, result.Moved())

			got, err := env.engine.GetDocument(ctx, saved.Record.IRI)
			require.NoError(t, err)
			if tt.status == enrichment.StatusApplied {
				assert.NotEqual(t, before, got.Document.Fields())
				assert.Equal(t, 2, got.Record.Version)
			} else {
				assert.Equal(t, before, got.Document.Fields())
				assert.Equal(t, 1, got.Record.Version)
			}
			if tt.status == enrichment.StatusSkipped {
				assert.NotEmpty(t, result.Report.Reason())
			}
		})
	}
}

func TestEngine_EnrichDocumentErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.engine.EnrichDocument(ctx, "http://example.org/x", enrichment.SourceWormBase, false)
		assert.ErrorIs(t, err, utils.ErrConfiguration)
	})

	t.Run("missing document", func(t *testing.T) {
		env := newTestEnv(t, wormbaseStub())
		_, err := env.engine.EnrichDocument(ctx, "http://example.org/x", enrichment.SourceWormBase, false)
		assert.True(t, utils.IsNotFound(err))
	})

	t.Run("unknown source", func(t *testing.T) {
		env := newTestEnv(t, wormbaseStub())
		saved, err := env.engine.SaveDocument(ctx, models.DocumentSpec{WBID: "WBPaper00000001"})
		require.NoError(t, err)
		_, err = env.engine.EnrichDocument(ctx, saved.Record.IRI, enrichment.SourcePubMed, false)
		assert.Equal(t, utils.CodeInvalidInput, appCode(err))
	})
}
