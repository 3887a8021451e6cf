package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/identity"
	"github.com/openworm/wormgraph/internal/integration"
	"github.com/openworm/wormgraph/internal/lock"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
)

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	// HashFunc is the digest of the hashed identifier path.
	HashFunc identity.HashFunc
	// LockTTL bounds how long a subject lock is held.
	LockTTL time.Duration
	// TxTimeout bounds every statement transaction.
	TxTimeout time.Duration
	// BatchSize is the number of entities written per transaction by
	// SaveDocuments.
	BatchSize int
}

// Engine is the entry point for reading and writing graph entities.
type Engine struct {
	statements    store.StatementStore
	index         store.IndexStore
	enricher      *enrichment.Enricher
	lockManager   *lock.LockManager
	validator     *Validator
	txCoordinator *TransactionCoordinator
	txManager     *TransactionManager
	batches       *BatchProcessor
	denormalizer  *DenormalizationManager
	modelOpts     []models.Option
	lockTTL       time.Duration

	logger  *observability.Logger
	tracing *observability.TracingManager
	metrics *observability.MetricsManager
}

// NewEngine wires an engine. index and enricher may be nil, which disables
// search and enrichment respectively. A nil lockManager uses in-process locks
// and a nil obsManager discards telemetry.
func NewEngine(
	statements store.StatementStore,
	index store.IndexStore,
	enricher *enrichment.Enricher,
	lockManager *lock.LockManager,
	obsManager *integration.ObservabilityManager,
	opts Options,
) (*Engine, error) {
	if statements == nil {
		return nil, utils.NewAppError(utils.CodeConfiguration, "engine needs a statement store", utils.ErrConfiguration)
	}
	if lockManager == nil {
		lockManager = lock.NewLockManager(nil)
	}
	if obsManager == nil {
		obsManager = integration.NewNopObservabilityManager()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}

	var modelOpts []models.Option
	if opts.HashFunc != nil {
		modelOpts = append(modelOpts, models.WithHashFunc(opts.HashFunc))
	}

	logger := obsManager.GetLogging()
	zl := logger.GetZerologLogger()

	txCoordinator := NewTransactionCoordinator(statements, index, lockManager, opts.LockTTL, zl)
	txCoordinator.SetObservability(obsManager.GetMetrics(), obsManager.GetTracing())
	txManager := NewTransactionManager(txCoordinator, opts.TxTimeout)

	return &Engine{
		statements:    statements,
		index:         index,
		enricher:      enricher,
		lockManager:   lockManager,
		validator:     NewValidator(),
		txCoordinator: txCoordinator,
		txManager:     txManager,
		batches:       NewBatchProcessor(txManager, opts.BatchSize),
		denormalizer:  NewDenormalizationManager(statements, index, modelOpts, zl),
		modelOpts:     modelOpts,
		lockTTL:       opts.LockTTL,
		logger:        logger,
		tracing:       obsManager.GetTracing(),
		metrics:       obsManager.GetMetrics(),
	}, nil
}

// Validator exposes the request validator used by the engine.
func (e *Engine) Validator() *Validator {
	return e.validator
}

// NewDocument validates spec and builds a document with the engine's
// identity options.
func (e *Engine) NewDocument(spec models.DocumentSpec) (*models.Document, error) {
	if err := e.validator.ValidateDocumentSpec(&spec); err != nil {
		return nil, err
	}
	return models.NewDocument(spec, e.modelOpts...)
}

// IdentifierPreview describes the identifier a document would be stored under.
type IdentifierPreview struct {
	Identifier string `json:"identifier"`
	// Key is the string the identifier was hashed from; empty for explicit
	// identifiers.
	Key  string `json:"key,omitempty"`
	Path string `json:"path"`
}

// ResolveDocumentIdentifier derives the identifier of spec without storing
// anything.
func (e *Engine) ResolveDocumentIdentifier(ctx context.Context, spec models.DocumentSpec) (*IdentifierPreview, error) {
	doc, err := e.NewDocument(spec)
	if err != nil {
		return nil, err
	}
	iri, err := e.resolve(doc)
	if err != nil {
		return nil, err
	}
	preview := &IdentifierPreview{Identifier: iri, Path: identifierPath(doc)}
	if preview.Path == pathHashed {
		preview.Key, _ = doc.IdentityKey()
	}
	return preview, nil
}

const (
	pathExplicit = "explicit"
	pathHashed   = "hashed"
	pathDirect   = "direct"
)

func identifierPath(ent models.Entity) string {
	type explicit interface {
		ExplicitIdentifier() (string, bool)
		Key() (string, bool)
	}
	if x, ok := ent.(explicit); ok {
		if _, hasKey := x.Key(); hasKey {
			return pathDirect
		}
		if _, set := x.ExplicitIdentifier(); set {
			return pathExplicit
		}
	}
	return pathHashed
}

// resolve returns the identifier of ent, mapping a missing identity onto a
// CodeIdentifierMissing error.
func (e *Engine) resolve(ent models.Entity) (string, error) {
	iri, err := ent.Identifier()
	if err != nil {
		if errors.Is(err, identity.ErrIdentifierMissing) {
			e.metrics.RecordIdentifierMissing(ent.TypeName())
			return "", utils.NewAppError(utils.CodeIdentifierMissing, err.Error(), err).
				WithDetail("entity_type", ent.TypeName())
		}
		return "", err
	}
	e.metrics.RecordIdentifier(ent.TypeName(), identifierPath(ent))
	return iri, nil
}

func (e *Engine) observe(operation, entityType string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordEntityOperation(operation, entityType, status, time.Since(start))
}

// SaveEntity writes ent under its identifier, replacing whatever the subject
// held before. Documents are also indexed.
func (e *Engine) SaveEntity(ctx context.Context, ent models.Entity) (*models.EntityRecord, error) {
	start := time.Now()
	iri, err := e.resolve(ent)
	if err != nil {
		e.observe("save", ent.TypeName(), start, err)
		return nil, err
	}

	ctx, span := e.tracing.StartEntityOperation(ctx, "save", ent.TypeName(), iri)
	defer span.End()

	rec, n, err := e.saveResolved(ctx, iri, ent)
	e.observe("save", ent.TypeName(), start, err)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return nil, err
	}

	e.metrics.RecordStatementsWritten(ent.TypeName(), n)
	e.logger.WithEntity(ent.TypeName(), iri).Debug().Int("statements", n).Int("version", rec.Version).Msg("entity saved")
	return rec, nil
}

func (e *Engine) saveResolved(ctx context.Context, iri string, ent models.Entity) (*models.EntityRecord, int, error) {
	if err := e.validator.ValidateEntity(ent); err != nil {
		return nil, 0, err
	}
	stmts, err := ent.Statements()
	if err != nil {
		return nil, 0, err
	}

	rec := &models.EntityRecord{IRI: iri, EntityType: ent.TypeName()}
	doc, _ := ent.(*models.Document)
	err = e.txManager.ExecuteWithTimeout(ctx, []string{iri}, func(ctx context.Context, txCtx *TransactionContext) error {
		return e.txCoordinator.WriteEntity(ctx, txCtx, rec, stmts, doc)
	})
	if err != nil {
		return nil, 0, err
	}
	return rec, len(stmts), nil
}

// SaveDocument builds a document from spec and saves it.
func (e *Engine) SaveDocument(ctx context.Context, spec models.DocumentSpec) (*StoredDocument, error) {
	doc, err := e.NewDocument(spec)
	if err != nil {
		return nil, err
	}
	rec, err := e.SaveEntity(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &StoredDocument{Record: rec, Document: doc}, nil
}

// BatchSkip names an input SaveDocuments did not write.
type BatchSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of SaveDocuments.
type BatchResult struct {
	Saved   []string    `json:"saved"`
	Skipped []BatchSkip `json:"skipped,omitempty"`
}

// SaveDocuments writes docs in transactional chunks. Documents without an
// identity or with invalid values are skipped and reported; a store failure
// stops the batch and is returned along with what was written before it.
func (e *Engine) SaveDocuments(ctx context.Context, docs []*models.Document) (*BatchResult, error) {
	start := time.Now()
	ctx, span := e.tracing.StartEntityOperation(ctx, "save_batch", models.DocumentType, "")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(docs)))

	result := &BatchResult{Saved: []string{}}
	writes := make([]BatchWrite, 0, len(docs))
	for i, doc := range docs {
		iri, err := e.resolve(doc)
		if err == nil {
			err = e.validator.ValidateEntity(doc)
		}
		var stmts []rdf.Statement
		if err == nil {
			stmts, err = doc.Statements()
		}
		if err != nil {
			result.Skipped = append(result.Skipped, BatchSkip{Index: i, Reason: err.Error()})
			e.logger.WithOperation("save_batch").Debug().Err(err).Int("index", i).Msg("document skipped")
			continue
		}
		writes = append(writes, BatchWrite{
			Record:     &models.EntityRecord{IRI: iri, EntityType: models.DocumentType},
			Statements: stmts,
			Document:   doc,
		})
	}

	committed, err := e.batches.ProcessBatch(ctx, writes)
	for _, w := range writes[:committed] {
		result.Saved = append(result.Saved, w.Record.IRI)
		e.metrics.RecordStatementsWritten(models.DocumentType, len(w.Statements))
	}
	e.observe("save_batch", models.DocumentType, start, err)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return result, err
	}
	return result, nil
}

// StoredDocument is a document together with its store record.
type StoredDocument struct {
	Record   *models.EntityRecord
	Document *models.Document
}

// GetEntity returns the record and statements of any stored subject.
func (e *Engine) GetEntity(ctx context.Context, iri string) (*models.EntityRecord, []rdf.Statement, error) {
	ctx, span := e.tracing.StartEntityOperation(ctx, "get", "", iri)
	defer span.End()

	rec, stmts, err := e.statements.GetSubject(ctx, iri)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return nil, nil, err
	}
	return rec, stmts, nil
}

// GetDocument loads the document stored under iri. A subject of another type
// is reported as not found.
func (e *Engine) GetDocument(ctx context.Context, iri string) (*StoredDocument, error) {
	rec, stmts, err := e.GetEntity(ctx, iri)
	if err != nil {
		return nil, err
	}
	if rec.EntityType != models.DocumentType {
		return nil, wrongType(iri, models.DocumentType, rec.EntityType)
	}
	doc, err := models.DocumentFromStatements(iri, stmts, e.modelOpts...)
	if err != nil {
		return nil, err
	}
	return &StoredDocument{Record: rec, Document: doc}, nil
}

func wrongType(iri, want, got string) error {
	return utils.NewAppError(utils.CodeNotFound, fmt.Sprintf("%s not found", want), utils.ErrNotFound).
		WithDetail("iri", iri).
		WithDetail("entity_type", got)
}

// DeleteEntity removes iri and its index entry.
func (e *Engine) DeleteEntity(ctx context.Context, iri string) error {
	start := time.Now()
	ctx, span := e.tracing.StartEntityOperation(ctx, "delete", "", iri)
	defer span.End()

	err := e.txManager.ExecuteWithTimeout(ctx, []string{iri}, func(ctx context.Context, txCtx *TransactionContext) error {
		return e.txCoordinator.RemoveEntity(ctx, txCtx, iri)
	})
	e.observe("delete", "", start, err)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return err
	}
	e.logger.WithEntity("", iri).Debug().Msg("entity deleted")
	return nil
}

// DocumentPage is one page of stored documents.
type DocumentPage struct {
	Documents []*StoredDocument
	Total     int
	Limit     int
	Offset    int
}

// ListDocuments pages through documents in identifier order.
func (e *Engine) ListDocuments(ctx context.Context, limit, offset int) (*DocumentPage, error) {
	ctx, span := e.tracing.StartEntityOperation(ctx, "list", models.DocumentType, "")
	defer span.End()

	limit, offset = store.Page(limit, offset)
	records, err := e.statements.ListSubjects(ctx, models.DocumentType, limit, offset)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return nil, err
	}
	total, err := e.statements.CountSubjects(ctx, models.DocumentType)
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return nil, err
	}

	page := &DocumentPage{Documents: make([]*StoredDocument, 0, len(records)), Total: total, Limit: limit, Offset: offset}
	for _, rec := range records {
		doc, err := e.GetDocument(ctx, rec.IRI)
		if err != nil {
			if utils.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		page.Documents = append(page.Documents, doc)
	}
	return page, nil
}

// FindDocuments returns the identifiers of documents whose field holds value.
func (e *Engine) FindDocuments(ctx context.Context, field, value string) ([]string, error) {
	ctx, span := e.tracing.StartEntityOperation(ctx, "find", models.DocumentType, "")
	defer span.End()

	if !isDocumentField(field) {
		return nil, utils.NewAppError(utils.CodeInvalidInput, fmt.Sprintf("unknown document field %q", field), utils.ErrInvalidInput)
	}
	iris, err := e.statements.SubjectsWith(ctx, rdf.Predicate(models.DocumentType, field), rdf.PlainLiteral(value))
	if err != nil {
		e.tracing.SetSpanError(span, err)
		return nil, err
	}
	return iris, nil
}

func isDocumentField(field string) bool {
	switch field {
	case models.FieldAuthor, models.FieldURI, models.FieldYear, models.FieldTitle,
		models.FieldDOI, models.FieldWBID, models.FieldPMID:
		return true
	}
	return false
}

// SaveCell builds a neuron or muscle from spec and saves it.
func (e *Engine) SaveCell(ctx context.Context, kind models.CellKind, spec models.CellSpec) (*models.Cell, *models.EntityRecord, error) {
	cell, err := models.NewCell(kind, spec, e.modelOpts...)
	if err != nil {
		return nil, nil, err
	}
	rec, err := e.SaveEntity(ctx, cell)
	if err != nil {
		return nil, nil, err
	}
	return cell, rec, nil
}

// GetCell loads the cell of kind called name.
func (e *Engine) GetCell(ctx context.Context, kind models.CellKind, name string) (*models.Cell, *models.EntityRecord, error) {
	if kind.TypeName() == "" {
		return nil, nil, utils.NewAppError(utils.CodeInvalidInput, fmt.Sprintf("unknown cell kind %q", kind), utils.ErrInvalidInput)
	}
	iri := kind.Namespace().Term(identity.Quote(name))
	rec, stmts, err := e.GetEntity(ctx, iri)
	if err != nil {
		return nil, nil, err
	}
	if rec.EntityType != kind.TypeName() {
		return nil, nil, wrongType(iri, kind.TypeName(), rec.EntityType)
	}
	cell, err := models.CellFromStatements(kind, iri, stmts, e.modelOpts...)
	if err != nil {
		return nil, nil, err
	}
	return cell, rec, nil
}

// SearchDocuments queries the document index.
func (e *Engine) SearchDocuments(ctx context.Context, query *models.SearchQuery) (*models.SearchResult, error) {
	if e.index == nil {
		return nil, utils.NewAppError(utils.CodeConfiguration, "search index is not configured", utils.ErrConfiguration)
	}
	query.Page(20, store.MaxListLimit)
	if err := e.validator.ValidateSearchQuery(query); err != nil {
		return nil, err
	}
	return e.index.SearchDocuments(ctx, query)
}

// Reindex rebuilds the search index from the statement store. Only one
// reindex runs at a time.
func (e *Engine) Reindex(ctx context.Context, batchSize int) (*ReindexStats, error) {
	var stats *ReindexStats
	err := e.lockManager.WithGlobalLock(ctx, "reindex", 10*time.Minute, func() error {
		var err error
		stats, err = e.denormalizer.Reindex(ctx, batchSize)
		return err
	})
	return stats, err
}

// TransactionStats reports the counters of the transaction manager.
func (e *Engine) TransactionStats() TransactionStats {
	return e.txManager.GetStats()
}
