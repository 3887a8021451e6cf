package core

import (
	"context"
	"errors"
	"time"

	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
)

// EnrichResult is the outcome of EnrichDocument. When the enrichment changed
// the fields the identifier is derived from, NewIdentifier differs from
// OldIdentifier and the document now lives under NewIdentifier.
type EnrichResult struct {
	Report        *enrichment.Report `json:"report"`
	OldIdentifier string             `json:"old_identifier"`
	NewIdentifier string             `json:"new_identifier"`
	Version       int                `json:"version"`
}

// Moved reports whether the document changed subject.
func (r *EnrichResult) Moved() bool {
	return r.OldIdentifier != r.NewIdentifier
}

// EnrichDocument fetches metadata for the document stored under iri from
// source and stores the result. The subject is locked for the whole
// read-modify-write. A skipped enrichment leaves the store untouched and is
// not an error.
func (e *Engine) EnrichDocument(ctx context.Context, iri, source string, replace bool) (*EnrichResult, error) {
	if e.enricher == nil {
		return nil, utils.NewAppError(utils.CodeConfiguration, "enrichment is not configured", utils.ErrConfiguration)
	}

	start := time.Now()
	ctx, span := e.tracing.StartEntityOperation(ctx, "enrich", models.DocumentType, iri)
	defer span.End()
	span.SetAttributes(attribute.String("enrichment.source", source), attribute.Bool("enrichment.replace", replace))

	var result *EnrichResult
	err := e.lockManager.WithEntityLock(ctx, iri, e.lockTTL, func() error {
		var err error
		result, err = e.enrichLocked(ctx, iri, source, replace)
		return err
	})
	e.observe("enrich", models.DocumentType, start, err)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("enrichment.status", string(result.Report.Status)))
	return result, nil
}

func (e *Engine) enrichLocked(ctx context.Context, iri, source string, replace bool) (*EnrichResult, error) {
	stored, err := e.GetDocument(ctx, iri)
	if err != nil {
		return nil, err
	}
	doc := stored.Document

	report, err := e.enricher.Enrich(ctx, doc, source, replace)
	if err != nil {
		e.logger.WithError(err).Warn().Str("iri", iri).Str("source", source).Msg("enrichment failed")
		return nil, enrichmentError(err, source)
	}

	result := &EnrichResult{
		Report:        report,
		OldIdentifier: iri,
		NewIdentifier: iri,
		Version:       stored.Record.Version,
	}
	if report.Status != enrichment.StatusApplied {
		return result, nil
	}

	newIRI, err := e.resolve(doc)
	if err != nil {
		return nil, err
	}
	stmts, err := doc.Statements()
	if err != nil {
		return nil, err
	}

	var lockIRIs []string
	if newIRI != iri {
		lockIRIs = []string{newIRI}
		if exists, err := e.statements.ExistsSubject(ctx, newIRI); err == nil && exists {
			e.logger.WithEntity(models.DocumentType, newIRI).Warn().
				Str("old_identifier", iri).
				Msg("enriched document replaces an existing subject")
		}
	}

	rec := &models.EntityRecord{IRI: newIRI, EntityType: models.DocumentType}
	err = e.txManager.ExecuteWithTimeout(ctx, lockIRIs, func(ctx context.Context, txCtx *TransactionContext) error {
		if newIRI != iri {
			if err := e.txCoordinator.RemoveEntity(ctx, txCtx, iri); err != nil {
				return err
			}
		}
		return e.txCoordinator.WriteEntity(ctx, txCtx, rec, stmts, doc)
	})
	if err != nil {
		return nil, err
	}

	result.NewIdentifier = newIRI
	result.Version = rec.Version
	e.metrics.RecordStatementsWritten(models.DocumentType, len(stmts))
	e.logger.WithEntity(models.DocumentType, newIRI).Info().
		Str("source", source).
		Str("old_identifier", iri).
		Int("fields", len(report.Applied)).
		Msg("document enriched")
	return result, nil
}

func enrichmentError(err error, source string) error {
	var me *enrichment.MultiplicityError
	switch {
	case errors.As(err, &me):
		return utils.NewAppError(utils.CodeMultiplicity, me.Error(), err).
			WithDetail("source", source).
			WithDetail("field", me.Field).
			WithDetail("count", me.Count)
	case errors.Is(err, enrichment.ErrUnknownSource):
		return utils.NewAppError(utils.CodeInvalidInput, "unknown enrichment source", err).
			WithDetail("source", source)
	}
	return err
}
