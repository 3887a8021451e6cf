// Package sqlite is a single-file statement store for local use and for the
// CLI tools.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements store.StatementStore on SQLite.
type Store struct {
	db *sql.DB
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens or creates the database at path and applies pending
// migrations. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn = "file:" + dsn + "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps an in-memory
	// database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE version = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("failed to read migration state: %w", err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, name, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error {
	rows, err := store.EncodeStatements(rec.IRI, stmts)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceSubject(ctx, tx, rec, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subject %s: %w", rec.IRI, err)
	}
	return nil
}

func replaceSubject(ctx context.Context, q execer, rec *models.EntityRecord, rows []store.Row) error {
	now := time.Now().UTC()
	var created, version int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO entities (iri, entity_type, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (iri) DO UPDATE
		SET entity_type = excluded.entity_type,
			updated_at = excluded.updated_at,
			version = entities.version + 1
		RETURNING created_at, version
	`, rec.IRI, rec.EntityType, now.UnixNano(), now.UnixNano()).Scan(&created, &version)
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", rec.IRI, err)
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = now
	rec.Version = int(version)

	if _, err := q.ExecContext(ctx, `DELETE FROM statements WHERE subject = ?`, rec.IRI); err != nil {
		return fmt.Errorf("failed to clear statements of %s: %w", rec.IRI, err)
	}
	for _, r := range rows {
		_, err := q.ExecContext(ctx, `
			INSERT INTO statements (subject, position, predicate, object_n3, object_kind, source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.Subject, r.Position, r.Predicate, r.Object, r.Kind, r.Source, r.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to write statements of %s: %w", rec.IRI, err)
		}
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, iri string) (*models.EntityRecord, []rdf.Statement, error) {
	rec := &models.EntityRecord{IRI: iri}
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_type, created_at, updated_at, version FROM entities WHERE iri = ?`, iri,
	).Scan(&rec.EntityType, &created, &updated, &rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.NotFound(iri)
		}
		return nil, nil, fmt.Errorf("failed to get entity: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, predicate, object_n3, object_kind, source, created_at
		FROM statements
		WHERE subject = ?
		ORDER BY position
	`, iri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	var stmts []rdf.Statement
	for rows.Next() {
		r := store.Row{Subject: iri}
		var ts int64
		if err := rows.Scan(&r.Position, &r.Predicate, &r.Object, &r.Kind, &r.Source, &ts); err != nil {
			return nil, nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		r.CreatedAt = time.Unix(0, ts).UTC()
		st, err := r.Decode()
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, st)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read statements: %w", err)
	}
	return rec, stmts, nil
}

func (s *Store) DeleteSubject(ctx context.Context, iri string) error {
	return deleteSubject(ctx, s.db, iri)
}

func deleteSubject(ctx context.Context, q execer, iri string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM entities WHERE iri = ?`, iri)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if n == 0 {
		return store.NotFound(iri)
	}
	return nil
}

func (s *Store) ExistsSubject(ctx context.Context, iri string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM entities WHERE iri = ?`, iri).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check entity existence: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListSubjects(ctx context.Context, entityType string, limit, offset int) ([]*models.EntityRecord, error) {
	limit, offset = store.Page(limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT iri, entity_type, created_at, updated_at, version
		FROM entities
		WHERE (? = '' OR entity_type = ?)
		ORDER BY iri
		LIMIT ? OFFSET ?
	`, entityType, entityType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	out := []*models.EntityRecord{}
	for rows.Next() {
		var rec models.EntityRecord
		var created, updated int64
		if err := rows.Scan(&rec.IRI, &rec.EntityType, &created, &updated, &rec.Version); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Store) CountSubjects(ctx context.Context, entityType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM entities WHERE (? = '' OR entity_type = ?)`,
		entityType, entityType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

func (s *Store) SubjectsWith(ctx context.Context, predicate rdf.IRI, object rdf.Term) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT subject FROM statements
		WHERE predicate = ? AND object_n3 = ?
		ORDER BY subject
	`, string(predicate), object.N3())
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var iri string
		if err := rows.Scan(&iri); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		out = append(out, iri)
	}
	return out, rows.Err()
}

func (s *Store) BeginTx(ctx context.Context) (store.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a store.Transaction over a SQLite transaction. The store holds a
// single connection, so no other store call may run until it finishes.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error {
	rows, err := store.EncodeStatements(rec.IRI, stmts)
	if err != nil {
		return err
	}
	return txErr(replaceSubject(ctx, t.tx, rec, rows))
}

func (t *Tx) DeleteSubject(ctx context.Context, iri string) error {
	return txErr(deleteSubject(ctx, t.tx, iri))
}

func (t *Tx) Commit(ctx context.Context) error {
	return txErr(t.tx.Commit())
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func txErr(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return store.ErrTxDone
	}
	return err
}

var (
	_ store.StatementStore = (*Store)(nil)
	_ store.Transaction    = (*Tx)(nil)
)
