package core

import (
	"context"
	"fmt"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
)

// ImportResult reports the outcome of ImportStatements.
type ImportResult struct {
	Saved   []string    `json:"saved"`
	Skipped []BatchSkip `json:"skipped,omitempty"`
}

// ImportStatements groups stmts by subject, rebuilds the entity each subject
// describes and saves it under that subject. Subjects with no known rdf:type
// are skipped; Index in a skip is the subject's position in first-seen order.
func (e *Engine) ImportStatements(ctx context.Context, stmts []rdf.Statement) (*ImportResult, error) {
	var order []rdf.IRI
	bySubject := make(map[rdf.IRI][]rdf.Statement)
	for _, st := range stmts {
		if _, seen := bySubject[st.Subject]; !seen {
			order = append(order, st.Subject)
		}
		bySubject[st.Subject] = append(bySubject[st.Subject], st)
	}

	result := &ImportResult{Saved: []string{}}
	for i, subject := range order {
		ent, err := e.entityFromStatements(string(subject), bySubject[subject])
		if err == nil {
			_, err = e.SaveEntity(ctx, ent)
		}
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Skipped = append(result.Skipped, BatchSkip{Index: i, Reason: err.Error()})
			e.logger.WithOperation("import").Debug().Err(err).Str("subject", string(subject)).Msg("subject skipped")
			continue
		}
		result.Saved = append(result.Saved, string(subject))
	}
	return result, nil
}

func (e *Engine) entityFromStatements(iri string, stmts []rdf.Statement) (models.Entity, error) {
	typeName, ok := models.TypeOf(stmts)
	if !ok {
		return nil, fmt.Errorf("%s has no entity type", iri)
	}
	if typeName == models.DocumentType {
		return models.DocumentFromStatements(iri, stmts, e.modelOpts...)
	}
	kind, err := models.ParseCellKind(typeName)
	if err != nil {
		return nil, err
	}
	return models.CellFromStatements(kind, iri, stmts, e.modelOpts...)
}
