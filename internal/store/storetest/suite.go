// Package storetest holds the behaviour every store.StatementStore must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.StatementStore

func subject(typeName, name string) string {
	return rdf.TypeNamespace(typeName) + name
}

func describe(iri, typeName string, fields map[string][]rdf.Term) []rdf.Statement {
	s := rdf.IRI(iri)
	out := []rdf.Statement{{Subject: s, Predicate: rdf.RDFType, Object: rdf.TypeIRI(typeName), Source: "test"}}
	for _, name := range []string{"title", "author", "year", "doi", "note"} {
		for _, v := range fields[name] {
			out = append(out, rdf.Statement{Subject: s, Predicate: rdf.Predicate(typeName, name), Object: v, Source: "test"})
		}
	}
	return out
}

func record(iri, typeName string) *models.EntityRecord {
	return &models.EntityRecord{IRI: iri, EntityType: typeName}
}

func n3s(stmts []rdf.Statement) []string {
	out := make([]string, len(stmts))
	for i, st := range stmts {
		out[i] = st.NTriple()
	}
	return out
}

// Run exercises newStore against the StatementStore contract.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("ReplaceAndGet", func(t *testing.T) {
		s := newStore(t)
		doc, err := models.NewDocument(models.DocumentSpec{
			Title:  "Mapping the C. elegans connectome",
			Author: []string{"White, J.", "Brenner, S."},
			PMID:   "24098140",
			Year:   "1986",
		})
		require.NoError(t, err)
		iri, err := doc.Identifier()
		require.NoError(t, err)
		stmts, err := doc.Statements()
		require.NoError(t, err)

		rec := record(iri, models.DocumentType)
		require.NoError(t, s.ReplaceSubject(ctx, rec, stmts))
		assert.Equal(t, 1, rec.Version)
		assert.False(t, rec.CreatedAt.IsZero())

		got, loaded, err := s.GetSubject(ctx, iri)
		require.NoError(t, err)
		assert.Equal(t, models.DocumentType, got.EntityType)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, n3s(stmts), n3s(loaded))

		back, err := models.DocumentFromStatements(iri, loaded)
		require.NoError(t, err)
		backIRI, err := back.Identifier()
		require.NoError(t, err)
		assert.Equal(t, iri, backIRI)
		assert.Equal(t, doc.Fields(), back.Fields())
	})

	t.Run("ReplaceOverwrites", func(t *testing.T) {
		s := newStore(t)
		iri := subject("Document", "replace")

		first := describe(iri, "Document", map[string][]rdf.Term{
			"title":  {rdf.PlainLiteral("old")},
			"author": {rdf.PlainLiteral("a"), rdf.PlainLiteral("b")},
		})
		rec := record(iri, "Document")
		require.NoError(t, s.ReplaceSubject(ctx, rec, first))
		created := rec.CreatedAt

		second := describe(iri, "Document", map[string][]rdf.Term{"title": {rdf.PlainLiteral("new")}})
		rec2 := record(iri, "Document")
		require.NoError(t, s.ReplaceSubject(ctx, rec2, second))
		assert.Equal(t, 2, rec2.Version)
		assert.WithinDuration(t, created, rec2.CreatedAt, time.Millisecond)

		_, loaded, err := s.GetSubject(ctx, iri)
		require.NoError(t, err)
		assert.Equal(t, n3s(second), n3s(loaded))
	})

	t.Run("LiteralsRoundTrip", func(t *testing.T) {
		s := newStore(t)
		iri := subject("Document", "literals")
		terms := []rdf.Term{
			rdf.PlainLiteral(`quote " and backslash \ and` + "\nnewline"),
			rdf.LangLiteral("titre", "fr"),
			rdf.TypedLiteral("1986", rdf.XSDInteger),
			rdf.IRI("http://example.org/x"),
		}
		stmts := describe(iri, "Document", map[string][]rdf.Term{"note": terms})
		require.NoError(t, s.ReplaceSubject(ctx, record(iri, "Document"), stmts))

		_, loaded, err := s.GetSubject(ctx, iri)
		require.NoError(t, err)
		require.Len(t, loaded, len(stmts))
		for i := range stmts {
			assert.True(t, rdf.Equal(stmts[i].Object, loaded[i].Object), "object %d: %s != %s", i, stmts[i].Object.N3(), loaded[i].Object.N3())
			assert.Equal(t, "test", loaded[i].Source)
		}
	})

	t.Run("RejectsForeignSubject", func(t *testing.T) {
		s := newStore(t)
		iri := subject("Document", "mine")
		stmts := describe(subject("Document", "other"), "Document", nil)
		err := s.ReplaceSubject(ctx, record(iri, "Document"), stmts)
		require.Error(t, err)
		assert.True(t, errors.Is(err, utils.ErrInvalidInput))

		ok, err := s.ExistsSubject(ctx, iri)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.GetSubject(ctx, subject("Document", "missing"))
		assert.True(t, utils.IsNotFound(err))
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		iri := subject("Neuron", "AVAL")
		require.NoError(t, s.ReplaceSubject(ctx, record(iri, "Neuron"), describe(iri, "Neuron", nil)))

		ok, err := s.ExistsSubject(ctx, iri)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.DeleteSubject(ctx, iri))
		ok, err = s.ExistsSubject(ctx, iri)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.True(t, utils.IsNotFound(s.DeleteSubject(ctx, iri)))
	})

	t.Run("ListAndCount", func(t *testing.T) {
		s := newStore(t)
		for i := 4; i >= 0; i-- {
			iri := subject("Document", fmt.Sprintf("d%d", i))
			require.NoError(t, s.ReplaceSubject(ctx, record(iri, "Document"), describe(iri, "Document", nil)))
		}
		muscle := subject("Muscle", "MDL08")
		require.NoError(t, s.ReplaceSubject(ctx, record(muscle, "Muscle"), describe(muscle, "Muscle", nil)))

		n, err := s.CountSubjects(ctx, "Document")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		n, err = s.CountSubjects(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		page, err := s.ListSubjects(ctx, "Document", 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, subject("Document", "d1"), page[0].IRI)
		assert.Equal(t, subject("Document", "d2"), page[1].IRI)

		empty, err := s.ListSubjects(ctx, "Document", 10, 50)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("SubjectsWith", func(t *testing.T) {
		s := newStore(t)
		doi := rdf.PlainLiteral("10.1098/rstb.1986.0056")
		for _, name := range []string{"b", "a"} {
			iri := subject("Document", name)
			stmts := describe(iri, "Document", map[string][]rdf.Term{"doi": {doi}})
			require.NoError(t, s.ReplaceSubject(ctx, record(iri, "Document"), stmts))
		}
		other := subject("Document", "c")
		require.NoError(t, s.ReplaceSubject(ctx, record(other, "Document"),
			describe(other, "Document", map[string][]rdf.Term{"doi": {rdf.PlainLiteral("10.1/other")}})))

		got, err := s.SubjectsWith(ctx, rdf.Predicate("Document", "doi"), doi)
		require.NoError(t, err)
		assert.Equal(t, []string{subject("Document", "a"), subject("Document", "b")}, got)
	})

	t.Run("TransactionCommit", func(t *testing.T) {
		s := newStore(t)
		oldIRI := subject("Document", "old")
		newIRI := subject("Document", "new")
		require.NoError(t, s.ReplaceSubject(ctx, record(oldIRI, "Document"), describe(oldIRI, "Document", nil)))

		tx, err := s.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.DeleteSubject(ctx, oldIRI))
		require.NoError(t, tx.ReplaceSubject(ctx, record(newIRI, "Document"), describe(newIRI, "Document", nil)))
		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, tx.Rollback(ctx))
		assert.ErrorIs(t, tx.DeleteSubject(ctx, newIRI), store.ErrTxDone)

		ok, err := s.ExistsSubject(ctx, oldIRI)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = s.ExistsSubject(ctx, newIRI)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("TransactionRollback", func(t *testing.T) {
		s := newStore(t)
		iri := subject("Document", "rolled-back")

		tx, err := s.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.ReplaceSubject(ctx, record(iri, "Document"), describe(iri, "Document", nil)))
		require.NoError(t, tx.Rollback(ctx))

		ok, err := s.ExistsSubject(ctx, iri)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
