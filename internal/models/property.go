package models

import (
	"github.com/openworm/wormgraph/internal/rdf"
)

// Property is a named field of an entity. Values keep insertion order and are
// de-duplicated by their N3 form, so the first value is stable across reloads.
type Property struct {
	name     string
	multiple bool
	values   []rdf.Term
}

func NewProperty(name string, multiple bool) *Property {
	return &Property{name: name, multiple: multiple}
}

func (p *Property) Name() string {
	return p.name
}

func (p *Property) Multiple() bool {
	return p.multiple
}

// Set adds v. Single-valued properties drop any previous value first. Values
// that are not already rdf terms become literals.
func (p *Property) Set(v any) {
	term := toTerm(v)
	if term == nil {
		return
	}
	if !p.multiple {
		p.values = []rdf.Term{term}
		return
	}
	p.add(term)
}

// Add appends v without dropping earlier values, even on a single-valued
// property. Stored data may attach more than one value to such a field and
// every one of them is kept in order.
func (p *Property) Add(v any) {
	if term := toTerm(v); term != nil {
		p.add(term)
	}
}

func (p *Property) add(term rdf.Term) {
	for _, existing := range p.values {
		if rdf.Equal(existing, term) {
			return
		}
	}
	p.values = append(p.values, term)
}

// Contains reports whether v is already one of the values.
func (p *Property) Contains(v any) bool {
	term := toTerm(v)
	for _, existing := range p.values {
		if rdf.Equal(existing, term) {
			return true
		}
	}
	return false
}

func (p *Property) Clear() {
	p.values = nil
}

func (p *Property) HasDefinedValue() bool {
	return len(p.values) > 0
}

// DefinedValues returns a copy of the values in insertion order.
func (p *Property) DefinedValues() []rdf.Term {
	out := make([]rdf.Term, len(p.values))
	copy(out, p.values)
	return out
}

func (p *Property) First() (rdf.Term, bool) {
	if len(p.values) == 0 {
		return nil, false
	}
	return p.values[0], true
}

// Strings returns the lexical form of every value.
func (p *Property) Strings() []string {
	out := make([]string, 0, len(p.values))
	for _, v := range p.values {
		out = append(out, v.String())
	}
	return out
}

func toTerm(v any) rdf.Term {
	switch x := v.(type) {
	case nil:
		return nil
	case rdf.Term:
		return x
	default:
		return rdf.NewLiteral(v)
	}
}
