// Package memory holds process-local store implementations used by tests and
// by `wormgraph serve --store memory`.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
)

var ErrClosed = errors.New("store is closed")

// StatementStore keeps subjects in maps guarded by a single mutex.
type StatementStore struct {
	mu      sync.RWMutex
	records map[string]models.EntityRecord
	rows    map[string][]store.Row
	closed  bool
}

func NewStatementStore() *StatementStore {
	return &StatementStore{
		records: make(map[string]models.EntityRecord),
		rows:    make(map[string][]store.Row),
	}
}

func (s *StatementStore) ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error {
	rows, err := store.EncodeStatements(rec.IRI, stmts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.replaceLocked(rec, rows)
	return nil
}

func (s *StatementStore) replaceLocked(rec *models.EntityRecord, rows []store.Row) {
	now := time.Now().UTC()
	if prev, ok := s.records[rec.IRI]; ok {
		rec.CreatedAt = prev.CreatedAt
		rec.Version = prev.Version + 1
	} else {
		rec.CreatedAt = now
		rec.Version = 1
	}
	rec.UpdatedAt = now
	s.records[rec.IRI] = *rec
	s.rows[rec.IRI] = rows
}

func (s *StatementStore) GetSubject(ctx context.Context, iri string) (*models.EntityRecord, []rdf.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, ErrClosed
	}

	rec, ok := s.records[iri]
	if !ok {
		return nil, nil, store.NotFound(iri)
	}
	stmts := make([]rdf.Statement, 0, len(s.rows[iri]))
	for _, row := range s.rows[iri] {
		st, err := row.Decode()
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, st)
	}
	return &rec, stmts, nil
}

func (s *StatementStore) DeleteSubject(ctx context.Context, iri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.deleteLocked(iri)
}

func (s *StatementStore) deleteLocked(iri string) error {
	if _, ok := s.records[iri]; !ok {
		return store.NotFound(iri)
	}
	delete(s.records, iri)
	delete(s.rows, iri)
	return nil
}

func (s *StatementStore) ExistsSubject(ctx context.Context, iri string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.records[iri]
	return ok, nil
}

// ListSubjects returns records of entityType ordered by IRI. An empty
// entityType lists every subject.
func (s *StatementStore) ListSubjects(ctx context.Context, entityType string, limit, offset int) ([]*models.EntityRecord, error) {
	limit, offset = store.Page(limit, offset)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	iris := s.matching(entityType)
	if offset >= len(iris) {
		return []*models.EntityRecord{}, nil
	}
	iris = iris[offset:min(offset+limit, len(iris))]

	out := make([]*models.EntityRecord, 0, len(iris))
	for _, iri := range iris {
		rec := s.records[iri]
		out = append(out, &rec)
	}
	return out, nil
}

func (s *StatementStore) CountSubjects(ctx context.Context, entityType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.matching(entityType)), nil
}

func (s *StatementStore) SubjectsWith(ctx context.Context, predicate rdf.IRI, object rdf.Term) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	want := object.N3()
	var out []string
	for iri, rows := range s.rows {
		for _, row := range rows {
			if row.Predicate == string(predicate) && row.Object == want {
				out = append(out, iri)
				break
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *StatementStore) matching(entityType string) []string {
	var iris []string
	for iri, rec := range s.records {
		if entityType == "" || rec.EntityType == entityType {
			iris = append(iris, iri)
		}
	}
	slices.Sort(iris)
	return iris
}

func (s *StatementStore) BeginTx(ctx context.Context) (store.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &tx{store: s}, nil
}

func (s *StatementStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *StatementStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored subjects.
func (s *StatementStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

type txOp struct {
	rec    *models.EntityRecord
	rows   []store.Row
	delete string
}

// tx buffers writes and applies them atomically on Commit.
type tx struct {
	store *StatementStore
	ops   []txOp
	done  bool
}

func (t *tx) ReplaceSubject(ctx context.Context, rec *models.EntityRecord, stmts []rdf.Statement) error {
	if t.done {
		return store.ErrTxDone
	}
	rows, err := store.EncodeStatements(rec.IRI, stmts)
	if err != nil {
		return err
	}
	t.ops = append(t.ops, txOp{rec: rec, rows: rows})
	return nil
}

func (t *tx) DeleteSubject(ctx context.Context, iri string) error {
	if t.done {
		return store.ErrTxDone
	}
	t.ops = append(t.ops, txOp{delete: iri})
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	// Validate deletes up front so a failed commit leaves nothing applied.
	exists := make(map[string]bool, len(s.records))
	for iri := range s.records {
		exists[iri] = true
	}
	for _, op := range t.ops {
		switch {
		case op.delete != "":
			if !exists[op.delete] {
				return store.NotFound(op.delete)
			}
			exists[op.delete] = false
		default:
			exists[op.rec.IRI] = true
		}
	}

	for _, op := range t.ops {
		if op.delete != "" {
			_ = s.deleteLocked(op.delete)
			continue
		}
		s.replaceLocked(op.rec, op.rows)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.ops = nil
	return nil
}

var _ store.StatementStore = (*StatementStore)(nil)
