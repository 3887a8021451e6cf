package models

import (
	"fmt"

	"github.com/openworm/wormgraph/internal/identity"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/pkg/utils"
)

// CellKind selects the concrete cell type.
type CellKind string

const (
	KindNeuron CellKind = "neuron"
	KindMuscle CellKind = "muscle"
)

// TypeName maps the kind onto its RDF type name.
func (k CellKind) TypeName() string {
	switch k {
	case KindNeuron:
		return "Neuron"
	case KindMuscle:
		return "Muscle"
	}
	return ""
}

// Namespace is where cells of this kind are identified.
func (k CellKind) Namespace() identity.Namespace {
	return identity.Namespace(rdf.TypeNamespace(k.TypeName()))
}

// ParseCellKind accepts "neuron" and "muscle", or their type names.
func ParseCellKind(s string) (CellKind, error) {
	switch s {
	case "neuron", "Neuron":
		return KindNeuron, nil
	case "muscle", "Muscle":
		return KindMuscle, nil
	}
	return "", utils.NewAppError(utils.CodeInvalidInput, fmt.Sprintf("unknown cell kind %q", s), utils.ErrInvalidInput)
}

// CellSpec is the constructor input of a Cell.
type CellSpec struct {
	Name        string `json:"name" yaml:"name" validate:"required,max=64"`
	LineageName string `json:"lineage_name,omitempty" yaml:"lineage_name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	WormbaseID  string `json:"wormbase_id,omitempty" yaml:"wormbase_id,omitempty"`

	// Neuron only.
	Types             []string `json:"types,omitempty" yaml:"types,omitempty"`
	Neurotransmitters []string `json:"neurotransmitters,omitempty" yaml:"neurotransmitters,omitempty"`
	Neuropeptides     []string `json:"neuropeptides,omitempty" yaml:"neuropeptides,omitempty"`

	Receptors []string `json:"receptors,omitempty" yaml:"receptors,omitempty"`

	// Muscle only: names of neurons synapsing onto the muscle.
	InnervatedBy []string `json:"innervated_by,omitempty" yaml:"innervated_by,omitempty"`
}

// Cell is a neuron or a muscle cell. Its identifier is its name on the direct
// path, e.g. http://openworm.org/entities/Neuron/AVAL.
type Cell struct {
	*identity.Identity

	kind CellKind

	Name        *Property
	LineageName *Property
	Description *Property
	WormbaseID  *Property
	Receptor    *Property

	Type             *Property
	Neurotransmitter *Property
	Neuropeptide     *Property

	InnervatedBy *Property

	props []*Property
}

func emptyCell(kind CellKind, opts []Option) (*Cell, error) {
	if kind.TypeName() == "" {
		return nil, utils.NewAppError(utils.CodeInvalidInput, fmt.Sprintf("unknown cell kind %q", kind), utils.ErrInvalidInput)
	}
	id, err := buildIdentity(kind.Namespace(), kind.TypeName(), opts)
	if err != nil {
		return nil, err
	}

	c := &Cell{
		Identity:    id,
		kind:        kind,
		Name:        NewProperty("name", false),
		LineageName: NewProperty("lineageName", false),
		Description: NewProperty("description", false),
		WormbaseID:  NewProperty("wormbaseID", false),
		Receptor:    NewProperty("receptor", true),
	}
	c.props = []*Property{c.Name, c.LineageName, c.Description, c.WormbaseID, c.Receptor}

	switch kind {
	case KindNeuron:
		c.Type = NewProperty("type", true)
		c.Neurotransmitter = NewProperty("neurotransmitter", true)
		c.Neuropeptide = NewProperty("neuropeptide", true)
		c.props = append(c.props, c.Type, c.Neurotransmitter, c.Neuropeptide)
	case KindMuscle:
		c.InnervatedBy = NewProperty("innervatedBy", true)
		c.props = append(c.props, c.InnervatedBy)
	}
	return c, nil
}

// NewCell builds a cell of kind. A non-empty name becomes the identity key.
func NewCell(kind CellKind, spec CellSpec, opts ...Option) (*Cell, error) {
	if spec.Name != "" {
		opts = append(opts, WithKey(spec.Name))
	}
	c, err := emptyCell(kind, opts)
	if err != nil {
		return nil, err
	}

	setIf(c.Name, spec.Name)
	setIf(c.LineageName, spec.LineageName)
	setIf(c.Description, spec.Description)
	setIf(c.WormbaseID, spec.WormbaseID)
	setAll(c.Receptor, spec.Receptors)

	switch kind {
	case KindNeuron:
		setAll(c.Type, spec.Types)
		setAll(c.Neurotransmitter, spec.Neurotransmitters)
		setAll(c.Neuropeptide, spec.Neuropeptides)
	case KindMuscle:
		neurons := KindNeuron.Namespace()
		for _, n := range spec.InnervatedBy {
			if n != "" {
				c.InnervatedBy.Set(rdf.IRI(neurons.Term(identity.Quote(n))))
			}
		}
	}
	return c, nil
}

func NewNeuron(spec CellSpec, opts ...Option) (*Cell, error) {
	return NewCell(KindNeuron, spec, opts...)
}

func NewMuscle(spec CellSpec, opts ...Option) (*Cell, error) {
	return NewCell(KindMuscle, spec, opts...)
}

// CellFromStatements rebuilds the cell stored under iri.
func CellFromStatements(kind CellKind, iri string, stmts []rdf.Statement, opts ...Option) (*Cell, error) {
	c, err := emptyCell(kind, opts)
	if err != nil {
		return nil, err
	}
	loadProperties(kind.TypeName(), c.props, stmts)
	if v, ok := c.Name.First(); ok {
		if err := c.SetKey(v.String()); err != nil {
			return nil, err
		}
	}
	settleIdentifier(c.Identity, iri)
	return c, nil
}

func (c *Cell) Kind() CellKind {
	return c.kind
}

func (c *Cell) TypeName() string {
	return c.kind.TypeName()
}

func (c *Cell) Properties() []*Property {
	return c.props
}

func (c *Cell) Statements() ([]rdf.Statement, error) {
	iri, err := c.Identifier()
	if err != nil {
		return nil, err
	}
	return statementsFor(iri, c.TypeName(), c.props), nil
}

func (c *Cell) Fields() map[string][]string {
	return fieldsOf(c.props)
}

func setIf(p *Property, v string) {
	if v != "" {
		p.Set(v)
	}
}

func setAll(p *Property, vs []string) {
	for _, v := range vs {
		setIf(p, v)
	}
}
