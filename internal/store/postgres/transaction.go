package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
)

type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error {
	rows, err := store.EncodeStatements(rec.IRI, stmts)
	if err != nil {
		return err
	}
	return txErr(replaceSubject(ctx, t.tx, rec, rows))
}

func (t *PostgresTx) DeleteSubject(ctx context.Context, iri string) error {
	return txErr(deleteSubject(ctx, t.tx, iri))
}

func (t *PostgresTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return store.ErrTxDone
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op on a finished transaction so it can always be deferred.
func (t *PostgresTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func txErr(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return store.ErrTxDone
	}
	return err
}

var _ store.Transaction = (*PostgresTx)(nil)
