package store

import (
	"context"
	"errors"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
)

// ErrTxDone is returned by writes on a committed or rolled back transaction.
var ErrTxDone = errors.New("transaction already finished")

// StatementStore persists entities as the statements about their subject IRI.
// A subject is always written as a whole: ReplaceSubject drops every statement
// it held before.
type StatementStore interface {
	// ReplaceSubject writes stmts as the complete description of rec.IRI.
	// CreatedAt and Version of rec are updated from the stored row.
	ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error
	GetSubject(ctx context.Context, iri string) (*models.EntityRecord, []rdf.Statement, error)
	DeleteSubject(ctx context.Context, iri string) error
	ExistsSubject(ctx context.Context, iri string) (bool, error)
	ListSubjects(ctx context.Context, entityType string, limit, offset int) ([]*models.EntityRecord, error)
	CountSubjects(ctx context.Context, entityType string) (int, error)
	// SubjectsWith returns the subjects holding object under predicate,
	// ordered by IRI.
	SubjectsWith(ctx context.Context, predicate rdf.IRI, object rdf.Term) ([]string, error)

	BeginTx(ctx context.Context) (Transaction, error)

	Ping(ctx context.Context) error
	Close() error
}

// Transaction groups subject writes that must land together, such as moving a
// document to the identifier enrichment derived for it.
type Transaction interface {
	ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error
	DeleteSubject(ctx context.Context, iri string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IndexStore is the full-text document index.
type IndexStore interface {
	EnsureCollection(ctx context.Context) error
	IndexDocument(ctx context.Context, entry models.DocumentIndexEntry) error
	IndexDocuments(ctx context.Context, entries []models.DocumentIndexEntry) error
	DeleteDocument(ctx context.Context, iri string) error
	SearchDocuments(ctx context.Context, query *models.SearchQuery) (*models.SearchResult, error)

	Ping(ctx context.Context) error
	Close() error
}
