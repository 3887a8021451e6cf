package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/pkg/utils"
)

func TestEngine_ImportStatements(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	docIRI := documentIRI(t, models.DocumentSpec{DOI: "10.1038/nature12345"})
	neuronIRI := rdf.TypeNamespace("Neuron") + "AVAL"
	orphan := rdf.IRI("http://example.org/orphan")

	triple := func(s, p string, o rdf.Term) string {
		return rdf.Statement{Subject: rdf.IRI(s), Predicate: rdf.IRI(p), Object: o}.NTriple()
	}
	lines := []string{
		triple(docIRI, string(rdf.RDFType), rdf.TypeIRI(models.DocumentType)),
		triple(docIRI, string(rdf.Predicate(models.DocumentType, "doi")), rdf.PlainLiteral("10.1038/nature12345")),
		triple(neuronIRI, string(rdf.RDFType), rdf.TypeIRI("Neuron")),
		triple(neuronIRI, string(rdf.Predicate("Neuron", "name")), rdf.PlainLiteral("AVAL")),
		triple(docIRI, string(rdf.Predicate(models.DocumentType, "title")), rdf.PlainLiteral("Worm paper")),
		triple(string(orphan), string(rdf.Predicate(models.DocumentType, "title")), rdf.PlainLiteral("untyped")),
	}
	stmts, err := rdf.ParseNTriplesString(strings.Join(lines, "\n")+"\n", "import")
	require.NoError(t, err)

	result, err := env.engine.ImportStatements(ctx, stmts)
	require.NoError(t, err)
	assert.Equal(t, []string{docIRI, neuronIRI}, result.Saved)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 2, result.Skipped[0].Index)

	stored, err := env.engine.GetDocument(ctx, docIRI)
	require.NoError(t, err)
	assert.Equal(t, []string{"Worm paper"}, stored.Document.Title.Strings())

	cell, _, err := env.engine.GetCell(ctx, models.KindNeuron, "AVAL")
	require.NoError(t, err)
	assert.Equal(t, []string{"AVAL"}, cell.Name.Strings())
}

func TestEngine_ImportKeepsStoredSubject(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, wormbaseStub())

	subject := rdf.IRI("http://example.org/legacy/paper-7")
	wbid := rdf.Predicate(models.DocumentType, models.FieldWBID)
	stmts := []rdf.Statement{
		{Subject: subject, Predicate: rdf.RDFType, Object: rdf.TypeIRI(models.DocumentType)},
		{Subject: subject, Predicate: wbid, Object: rdf.PlainLiteral("WBPaper00000001")},
		{Subject: subject, Predicate: wbid, Object: rdf.PlainLiteral("WBPaper00000002")},
	}

	result, err := env.engine.ImportStatements(ctx, stmts)
	require.NoError(t, err)
	assert.Equal(t, []string{string(subject)}, result.Saved)
	assert.NotContains(t, result.Saved, documentIRI(t, models.DocumentSpec{WBID: "WBPaper00000001"}))

	stored, err := env.engine.GetDocument(ctx, string(subject))
	require.NoError(t, err)
	assert.Equal(t, []string{"WBPaper00000001", "WBPaper00000002"}, stored.Document.WBID.Strings())

	_, err = env.engine.EnrichDocument(ctx, string(subject), enrichment.SourceWormBase, false)
	assert.Equal(t, utils.CodeMultiplicity, appCode(err))
}
