package models

import (
	"strings"
	"time"

	"github.com/openworm/wormgraph/internal/identity"
	"github.com/openworm/wormgraph/internal/rdf"
)

// Entity is anything that can be written to the statement store.
type Entity interface {
	TypeName() string
	Identifier() (string, error)
	Defined() bool
	Statements() ([]rdf.Statement, error)
	Fields() map[string][]string
}

// EntityRecord is the stored summary row of an entity.
type EntityRecord struct {
	IRI        string    `json:"iri"`
	EntityType string    `json:"entity_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int       `json:"version"`
}

// Option adjusts the identity configuration of a new entity.
type Option func(*identity.Config)

// WithHashFunc overrides the digest of the hashed derivation path.
func WithHashFunc(hf identity.HashFunc) Option {
	return func(c *identity.Config) {
		c.HashFunc = hf
	}
}

// WithIdentifier assigns an explicit identifier.
func WithIdentifier(iri string) Option {
	return func(c *identity.Config) {
		c.Identifier = iri
	}
}

// WithKey sets a key; string keys use the direct path.
func WithKey(key any) Option {
	return func(c *identity.Config) {
		c.Key = key
	}
}

func buildIdentity(ns identity.Namespace, label string, opts []Option) (*identity.Identity, error) {
	cfg := identity.Config{Namespace: ns, Label: label}
	for _, opt := range opts {
		opt(&cfg)
	}
	return identity.New(cfg)
}

// statementsFor renders subject's typed statements from props in order.
func statementsFor(subject, typeName string, props []*Property) []rdf.Statement {
	now := time.Now().UTC()
	s := rdf.IRI(subject)
	out := []rdf.Statement{{
		Subject:   s,
		Predicate: rdf.RDFType,
		Object:    rdf.TypeIRI(typeName),
		Timestamp: now,
	}}
	for _, p := range props {
		for _, v := range p.values {
			out = append(out, rdf.Statement{
				Subject:   s,
				Predicate: rdf.Predicate(typeName, p.name),
				Object:    v,
				Timestamp: now,
			})
		}
	}
	return out
}

func fieldsOf(props []*Property) map[string][]string {
	out := make(map[string][]string, len(props))
	for _, p := range props {
		if p.HasDefinedValue() {
			out[p.name] = p.Strings()
		}
	}
	return out
}

// loadProperties fills props from stmts about typeName, in statement order.
// Every stored value is kept, including repeats on single-valued fields.
func loadProperties(typeName string, props []*Property, stmts []rdf.Statement) {
	byPredicate := make(map[rdf.IRI]*Property, len(props))
	for _, p := range props {
		byPredicate[rdf.Predicate(typeName, p.name)] = p
	}
	for _, st := range stmts {
		if p, ok := byPredicate[st.Predicate]; ok {
			p.Add(st.Object)
		}
	}
}

// settleIdentifier keeps a stored subject explicit only when it cannot be
// re-derived from the loaded fields.
func settleIdentifier(id *identity.Identity, stored string) {
	if derived, err := id.Identifier(); err == nil && derived == stored {
		return
	}
	id.SetIdentifier(stored)
}

// TypeOf returns the rdf:type local name among stmts, if any.
func TypeOf(stmts []rdf.Statement) (string, bool) {
	for _, st := range stmts {
		if st.Predicate != rdf.RDFType {
			continue
		}
		if iri, ok := st.Object.(rdf.IRI); ok {
			if name, ok := strings.CutPrefix(string(iri), rdf.EntitiesNS); ok && name != "" {
				return name, true
			}
		}
	}
	return "", false
}
