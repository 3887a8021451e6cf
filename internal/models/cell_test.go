package models

import (
	"testing"

	"github.com/openworm/wormgraph/internal/identity"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeuronIdentity(t *testing.T) {
	n, err := NewNeuron(CellSpec{
		Name:              "AVAL",
		LineageName:       "AB alppaaaapp",
		Types:             []string{"interneuron"},
		Neurotransmitters: []string{"Acetylcholine"},
	})
	require.NoError(t, err)

	iri, err := n.Identifier()
	require.NoError(t, err)
	assert.Equal(t, "http://openworm.org/entities/Neuron/AVAL", iri)

	key, ok := n.Key()
	assert.True(t, ok)
	assert.Equal(t, "AVAL", key)
	assert.Equal(t, "Neuron", n.TypeName())
	assert.Equal(t, []string{"interneuron"}, n.Fields()["type"])
}

func TestMuscleInnervation(t *testing.T) {
	m, err := NewMuscle(CellSpec{Name: "MDR21", InnervatedBy: []string{"VD11", "DA7"}, Receptors: []string{"GABA"}})
	require.NoError(t, err)

	vals := m.InnervatedBy.DefinedValues()
	require.Len(t, vals, 2)
	assert.Equal(t, rdf.IRI("http://openworm.org/entities/Neuron/VD11"), vals[0])

	stmts, err := m.Statements()
	require.NoError(t, err)
	assert.Len(t, rdf.Objects(stmts, rdf.Predicate("Muscle", "innervatedBy")), 2)

	iri, _ := m.Identifier()
	loaded, err := CellFromStatements(KindMuscle, iri, stmts)
	require.NoError(t, err)
	assert.Equal(t, m.Fields(), loaded.Fields())
	got, _ := loaded.Identifier()
	assert.Equal(t, iri, got)
}

func TestCellErrors(t *testing.T) {
	_, err := NewNeuron(CellSpec{Name: "AVAL"}, WithIdentifier("http://x/y"))
	assert.ErrorIs(t, err, identity.ErrConflictingIdentity)

	c, err := NewNeuron(CellSpec{})
	require.NoError(t, err)
	assert.False(t, c.Defined())

	_, err = ParseCellKind("glia")
	assert.Error(t, err)

	k, err := ParseCellKind("Muscle")
	require.NoError(t, err)
	assert.Equal(t, KindMuscle, k)
}

func TestNameWithSpaces(t *testing.T) {
	n, err := NewNeuron(CellSpec{Name: "odd name"})
	require.NoError(t, err)
	iri, err := n.Identifier()
	require.NoError(t, err)
	assert.Equal(t, "http://openworm.org/entities/Neuron/odd%20name", iri)
}
