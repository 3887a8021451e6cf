package store

import (
	"fmt"
	"time"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/pkg/utils"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// Row is the flat form of a statement as adapters store it. The object is
// kept in its N3 form so literals round-trip with their datatype and language.
type Row struct {
	Subject   string
	Position  int
	Predicate string
	Object    string
	Kind      int
	Source    string
	CreatedAt time.Time
}

// EncodeStatements flattens stmts about subject. Statements about any other
// subject are rejected.
func EncodeStatements(subject string, stmts []rdf.Statement) ([]Row, error) {
	rows := make([]Row, 0, len(stmts))
	for i, st := range stmts {
		if err := st.Validate(); err != nil {
			return nil, utils.NewAppError(utils.CodeInvalidInput, err.Error(), utils.ErrInvalidInput)
		}
		if string(st.Subject) != subject {
			return nil, utils.NewAppError(utils.CodeInvalidInput,
				fmt.Sprintf("statement subject %s does not match %s", st.Subject, subject), utils.ErrInvalidInput)
		}
		ts := st.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		rows = append(rows, Row{
			Subject:   subject,
			Position:  i,
			Predicate: string(st.Predicate),
			Object:    st.Object.N3(),
			Kind:      int(st.Object.Kind()),
			Source:    st.Source,
			CreatedAt: ts,
		})
	}
	return rows, nil
}

// Decode rebuilds the statement held in r.
func (r Row) Decode() (rdf.Statement, error) {
	obj, err := rdf.ParseTerm(r.Object)
	if err != nil {
		return rdf.Statement{}, fmt.Errorf("stored object of %s: %w", r.Subject, err)
	}
	return rdf.Statement{
		Subject:   rdf.IRI(r.Subject),
		Predicate: rdf.IRI(r.Predicate),
		Object:    obj,
		Source:    r.Source,
		Timestamp: r.CreatedAt,
	}, nil
}

// EntityTypeOf returns the rdf:type local name among stmts, or "Resource"
// when there is none.
func EntityTypeOf(stmts []rdf.Statement) string {
	if name, ok := models.TypeOf(stmts); ok {
		return name
	}
	return "Resource"
}

// NotFound is the error adapters return for a missing subject.
func NotFound(iri string) error {
	return utils.NewAppError(utils.CodeNotFound, "entity not found", utils.ErrNotFound).
		WithDetail("iri", iri)
}

// Page clamps list paging arguments.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
