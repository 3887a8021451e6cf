package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
)

// PoolOptions tunes the connection pool. Zero values keep the defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PostgresStore implements store.StatementStore on PostgreSQL.
type PostgresStore struct {
	pool    *pgxpool.Pool
	metrics *observability.MetricsManager
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// NewPostgresStore opens a connection pool for connectionString.
func NewPostgresStore(ctx context.Context, connectionString string, opts PoolOptions) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = min(opts.MinConns, config.MaxConns)
	}
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SetMetrics(m *observability.MetricsManager) {
	s.metrics = m
}

func (s *PostgresStore) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDatabaseOperation(op, "postgres", status, time.Since(start))
}

func (s *PostgresStore) ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) (err error) {
	defer func(start time.Time) { s.observe("replace_subject", start, err) }(time.Now())

	rows, err := store.EncodeStatements(rec.IRI, stmts)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := replaceSubject(ctx, tx, rec, rows); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit subject %s: %w", rec.IRI, err)
	}
	return nil
}

func replaceSubject(ctx context.Context, q querier, rec *models.EntityRecord, rows []store.Row) error {
	upsert := `
		INSERT INTO entities (iri, entity_type, created_at, updated_at, version)
		VALUES ($1, $2, now(), now(), 1)
		ON CONFLICT (iri) DO UPDATE
		SET entity_type = EXCLUDED.entity_type,
			updated_at = now(),
			version = entities.version + 1
		RETURNING created_at, updated_at, version
	`
	err := q.QueryRow(ctx, upsert, rec.IRI, rec.EntityType).Scan(&rec.CreatedAt, &rec.UpdatedAt, &rec.Version)
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", rec.IRI, err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM statements WHERE subject = $1`, rec.IRI); err != nil {
		return fmt.Errorf("failed to clear statements of %s: %w", rec.IRI, err)
	}

	if len(rows) == 0 {
		return nil
	}
	_, err = q.CopyFrom(ctx,
		pgx.Identifier{"statements"},
		[]string{"subject", "position", "predicate", "object_n3", "object_kind", "source", "created_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.Subject, r.Position, r.Predicate, r.Object, int16(r.Kind), r.Source, r.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to write statements of %s: %w", rec.IRI, err)
	}
	return nil
}

func (s *PostgresStore) GetSubject(ctx context.Context, iri string) (rec *models.EntityRecord, stmts []rdf.Statement, err error) {
	defer func(start time.Time) { s.observe("get_subject", start, err) }(time.Now())

	rec = &models.EntityRecord{IRI: iri}
	query := `
		SELECT entity_type, created_at, updated_at, version
		FROM entities
		WHERE iri = $1
	`
	err = s.pool.QueryRow(ctx, query, iri).Scan(&rec.EntityType, &rec.CreatedAt, &rec.UpdatedAt, &rec.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, store.NotFound(iri)
		}
		return nil, nil, fmt.Errorf("failed to get entity: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT position, predicate, object_n3, object_kind, source, created_at
		FROM statements
		WHERE subject = $1
		ORDER BY position
	`, iri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := store.Row{Subject: iri}
		var kind int16
		if err := rows.Scan(&r.Position, &r.Predicate, &r.Object, &kind, &r.Source, &r.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		r.Kind = int(kind)
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

func (s *PostgresStore) DeleteSubject(ctx context.Context, iri string) (err error) {
	defer func(start time.Time) { s.observe("delete_subject", start, err) }(time.Now())
	return deleteSubject(ctx, s.pool, iri)
}

func deleteSubject(ctx context.Context, q querier, iri string) error {
	result, err := q.Exec(ctx, `DELETE FROM entities WHERE iri = $1`, iri)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.NotFound(iri)
	}
	return nil
}

func (s *PostgresStore) ExistsSubject(ctx context.Context, iri string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM entities WHERE iri = $1)`, iri).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check entity existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListSubjects(ctx context.Context, entityType string, limit, offset int) (out []*models.EntityRecord, err error) {
	defer func(start time.Time) { s.observe("list_subjects", start, err) }(time.Now())

	limit, offset = store.Page(limit, offset)
	query := `
		SELECT iri, entity_type, created_at, updated_at, version
		FROM entities
		WHERE ($1 = '' OR entity_type = $1)
		ORDER BY iri
		LIMIT $2 OFFSET $3
	`
	rows, err := s.pool.Query(ctx, query, entityType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	out = []*models.EntityRecord{}
	for rows.Next() {
		var rec models.EntityRecord
		if err := rows.Scan(&rec.IRI, &rec.EntityType, &rec.CreatedAt, &rec.UpdatedAt, &rec.Version); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountSubjects(ctx context.Context, entityType string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM entities WHERE ($1 = '' OR entity_type = $1)`, entityType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) SubjectsWith(ctx context.Context, predicate rdf.IRI, object rdf.Term) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT subject
		FROM statements
		WHERE predicate = $1 AND md5(object_n3) = md5($2) AND object_n3 = $2
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

// Transaction support

func (s *PostgresStore) BeginTx(ctx context.Context) (store.Transaction, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.Serializable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &PostgresTx{tx: tx}, nil
}

// Health check and cleanup

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetPool returns the connection pool for migrations
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

// Stats reports pool usage and feeds the connection gauge.
func (s *PostgresStore) Stats() *pgxpool.Stat {
	st := s.pool.Stat()
	if s.metrics != nil {
		s.metrics.SetDatabaseConnections(int(st.AcquiredConns()))
	}
	return st
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ store.StatementStore = (*PostgresStore)(nil)
