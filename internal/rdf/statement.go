package rdf

import (
	"fmt"
	"time"
)

// Statement is a subject-predicate-object assertion with provenance.
type Statement struct {
	Subject   IRI       `json:"subject"`
	Predicate IRI       `json:"predicate"`
	Object    Term      `json:"-"`
	// Source names what produced the statement, e.g. "api" or "wormbase".
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NTriple renders the statement as one N-Triples line without the newline.
func (s Statement) NTriple() string {
	return fmt.Sprintf("%s %s %s .", s.Subject.N3(), s.Predicate.N3(), s.Object.N3())
}

func (s Statement) String() string {
	return s.NTriple()
}

// Validate checks that all three positions are filled.
func (s Statement) Validate() error {
	if s.Subject == "" {
		return fmt.Errorf("statement has no subject")
	}
	if s.Predicate == "" {
		return fmt.Errorf("statement %s has no predicate", s.Subject)
	}
	if s.Object == nil {
		return fmt.Errorf("statement %s %s has no object", s.Subject, s.Predicate)
	}
	return nil
}

// Objects returns the objects of statements matching predicate, in order.
func Objects(stmts []Statement, predicate IRI) []Term {
	var out []Term
	for _, st := range stmts {
		if st.Predicate == predicate {
			out = append(out, st.Object)
		}
	}
	return out
}
