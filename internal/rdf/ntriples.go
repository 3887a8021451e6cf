package rdf

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var ntLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "IRIRef", Pattern: `<[^<>"{}|^\x60\\\s]*>`},
	{Name: "BNode", Pattern: `_:[A-Za-z0-9_](?:[A-Za-z0-9_.\-]*[A-Za-z0-9_\-])?`},
	{Name: "String", Pattern: `"(?:[^"\\\n\r]|\\.)*"`},
	{Name: "LangTag", Pattern: `@[a-zA-Z]+(?:-[a-zA-Z0-9]+)*`},
	{Name: "Caret", Pattern: `\^\^`},
	{Name: "Dot", Pattern: `\.`},
})

type ntDocument struct {
	Triples []*ntTriple `parser:"@@*"`
}

type ntTriple struct {
	Pos lexer.Position

	Subject   *ntSubject `parser:"@@"`
	Predicate string     `parser:"@IRIRef"`
	Object    *ntObject  `parser:"@@ Dot"`
}

type ntSubject struct {
	IRI   string `parser:"  @IRIRef"`
	BNode string `parser:"| @BNode"`
}

type ntObject struct {
	IRI     string     `parser:"  @IRIRef"`
	BNode   string     `parser:"| @BNode"`
	Literal *ntLiteral `parser:"| @@"`
}

type ntLiteral struct {
	Lexical  string `parser:"@String"`
	Lang     string `parser:"( @LangTag"`
	Datatype string `parser:"| Caret @IRIRef )?"`
}

var (
	ntParser = participle.MustBuild[ntDocument](
		participle.Lexer(ntLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
	termParser = participle.MustBuild[ntObject](
		participle.Lexer(ntLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)
)

// ParseTerm reads a single term in N-Triples syntax, e.g. `<http://x>`,
// `"abc"@en` or `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`.
func ParseTerm(s string) (Term, error) {
	obj, err := termParser.ParseString("term", s)
	if err != nil {
		return nil, fmt.Errorf("parse term %q: %w", s, err)
	}
	return obj.term(), nil
}

// MustParseTerm is ParseTerm for trusted input such as stored N3 columns.
func MustParseTerm(s string) Term {
	t, err := ParseTerm(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseNTriples reads an N-Triples document. Blank node subjects are rejected
// since stored statements are always keyed by an entity IRI.
func ParseNTriples(r io.Reader, source string) ([]Statement, error) {
	doc, err := ntParser.Parse(source, r)
	if err != nil {
		return nil, fmt.Errorf("parse n-triples: %w", err)
	}

	now := time.Now().UTC()
	out := make([]Statement, 0, len(doc.Triples))
	for _, t := range doc.Triples {
		if t.Subject.IRI == "" {
			return nil, fmt.Errorf("%s: blank node subject %s not supported", t.Pos, t.Subject.BNode)
		}
		out = append(out, Statement{
			Subject:   IRI(stripIRI(t.Subject.IRI)),
			Predicate: IRI(stripIRI(t.Predicate)),
			Object:    t.Object.term(),
			Source:    source,
			Timestamp: now,
		})
	}
	return out, nil
}

// ParseNTriplesString is ParseNTriples over a string.
func ParseNTriplesString(s, source string) ([]Statement, error) {
	return ParseNTriples(strings.NewReader(s), source)
}

// WriteNTriples writes one line per statement.
func WriteNTriples(w io.Writer, stmts []Statement) error {
	for _, st := range stmts {
		if _, err := io.WriteString(w, st.NTriple()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (o *ntObject) term() Term {
	switch {
	case o.IRI != "":
		return IRI(stripIRI(o.IRI))
	case o.BNode != "":
		return BlankNode(strings.TrimPrefix(o.BNode, "_:"))
	}
	lit := o.Literal
	return Literal{
		Lexical:  lit.Lexical,
		Lang:     strings.TrimPrefix(lit.Lang, "@"),
		Datatype: IRI(stripIRI(lit.Datatype)),
	}
}

func stripIRI(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
}
