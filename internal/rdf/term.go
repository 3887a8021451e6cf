// Package rdf holds the RDF terms and statements wormgraph stores, together
// with their N3 and N-Triples text forms.
package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TermKind distinguishes the concrete term types.
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

// Term is a node in an RDF statement.
type Term interface {
	// N3 returns the term in Notation3 / N-Triples syntax.
	N3() string
	// String returns the bare value: the IRI, the blank node label or the
	// literal's lexical form.
	String() string
	Kind() TermKind
}

// IRI is a resource reference.
type IRI string

func (i IRI) N3() string     { return "<" + string(i) + ">" }
func (i IRI) String() string { return string(i) }
func (i IRI) Kind() TermKind { return KindIRI }

// BlankNode is an anonymous resource.
type BlankNode string

func (b BlankNode) N3() string     { return "_:" + string(b) }
func (b BlankNode) String() string { return string(b) }
func (b BlankNode) Kind() TermKind { return KindBlank }

// Literal is a value with an optional datatype or language tag. A literal never
// carries both.
type Literal struct {
	Lexical  string
	Datatype IRI
	Lang     string
}

func (l Literal) String() string { return l.Lexical }
func (l Literal) Kind() TermKind { return KindLiteral }

// N3 renders the literal on one line, as N-Triples requires.
func (l Literal) N3() string {
	return l.suffix(quoteLiteral(l.Lexical))
}

func (l Literal) suffix(s string) string {
	switch {
	case l.Lang != "":
		return s + "@" + l.Lang
	case l.Datatype != "":
		return s + "^^" + l.Datatype.N3()
	}
	return s
}

// HashForm is the text identifier hashing uses for t: N3, except that a
// literal containing a newline is triple-quoted with the newline kept, as
// rdflib writes it.
func HashForm(t Term) string {
	l, ok := t.(Literal)
	if !ok || !strings.Contains(l.Lexical, "\n") {
		return t.N3()
	}
	enc := strings.ReplaceAll(l.Lexical, `\`, `\\`)
	enc = strings.ReplaceAll(enc, `"""`, `\"\"\"`)
	if n := len(enc); n >= 2 && enc[n-1] == '"' && enc[n-2] != '\\' {
		enc = enc[:n-1] + `\"`
	}
	return l.suffix(`"""` + strings.ReplaceAll(enc, "\r", `\r`) + `"""`)
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	`"`, `\"`,
	"\r", `\r`,
)

func quoteLiteral(s string) string {
	return `"` + literalEscaper.Replace(s) + `"`
}

// PlainLiteral builds an untyped literal.
func PlainLiteral(s string) Literal {
	return Literal{Lexical: s}
}

// TypedLiteral builds a literal with a datatype.
func TypedLiteral(s string, dt IRI) Literal {
	return Literal{Lexical: s, Datatype: dt}
}

// LangLiteral builds a language-tagged literal.
func LangLiteral(s, lang string) Literal {
	return Literal{Lexical: s, Lang: lang}
}

// NewLiteral maps a Go value onto a literal. Strings stay plain so that the N3
// form of a field value does not depend on how it was loaded.
func NewLiteral(v any) Literal {
	switch x := v.(type) {
	case Literal:
		return x
	case string:
		return PlainLiteral(x)
	case bool:
		return TypedLiteral(strconv.FormatBool(x), XSDBoolean)
	case int:
		return TypedLiteral(strconv.Itoa(x), XSDInteger)
	case int32:
		return TypedLiteral(strconv.FormatInt(int64(x), 10), XSDInteger)
	case int64:
		return TypedLiteral(strconv.FormatInt(x, 10), XSDInteger)
	case uint:
		return TypedLiteral(strconv.FormatUint(uint64(x), 10), XSDInteger)
	case uint64:
		return TypedLiteral(strconv.FormatUint(x, 10), XSDInteger)
	case float32:
		return TypedLiteral(strconv.FormatFloat(float64(x), 'g', -1, 32), XSDDouble)
	case float64:
		return TypedLiteral(strconv.FormatFloat(x, 'g', -1, 64), XSDDouble)
	case time.Time:
		return TypedLiteral(x.UTC().Format(time.RFC3339), XSDDateTime)
	case fmt.Stringer:
		return PlainLiteral(x.String())
	default:
		return PlainLiteral(fmt.Sprint(v))
	}
}

// Equal compares two terms by kind and N3 form.
func Equal(a, b Term) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.N3() == b.N3()
}
