package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openworm/wormgraph/internal/lock"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/pkg/utils"
	"github.com/rs/zerolog"
)

// TransactionCoordinator writes subjects to the statement store and, once the
// write has committed, mirrors documents into the index store.
type TransactionCoordinator struct {
	statements store.StatementStore
	index      store.IndexStore
	locks      *lock.LockManager
	lockTTL    time.Duration
	logger     zerolog.Logger
	metrics    *observability.MetricsManager
	tracing    *observability.TracingManager
}

func NewTransactionCoordinator(statements store.StatementStore, index store.IndexStore, locks *lock.LockManager, lockTTL time.Duration, logger zerolog.Logger) *TransactionCoordinator {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &TransactionCoordinator{
		statements: statements,
		index:      index,
		locks:      locks,
		lockTTL:    lockTTL,
		logger:     logger.With().Str("component", "transaction").Logger(),
	}
}

// SetObservability records lock waits on m and traces them on t. Either may
// be nil.
func (tc *TransactionCoordinator) SetObservability(m *observability.MetricsManager, t *observability.TracingManager) {
	tc.metrics = m
	tc.tracing = t
}

// TransactionContext holds the context for a transaction
type TransactionContext struct {
	ID              string
	tx              store.Transaction
	indexOperations []IndexOperation
	locks           []lock.LockHandle
	startTime       time.Time
}

type IndexOperationType string

const (
	IndexOpUpsert IndexOperationType = "upsert"
	IndexOpDelete IndexOperationType = "delete"
)

// IndexOperation is applied to the index store after commit.
type IndexOperation struct {
	Type  IndexOperationType
	Entry models.DocumentIndexEntry
	IRI   string
}

// BeginTransaction locks iris in sorted order and then opens a statement
// transaction. Locks are taken first so a caller never waits on a lock while
// holding a store connection.
func (tc *TransactionCoordinator) BeginTransaction(ctx context.Context, iris ...string) (*TransactionContext, error) {
	txCtx := &TransactionContext{
		ID:        uuid.New().String(),
		startTime: time.Now(),
	}

	for _, iri := range sortedUnique(iris) {
		waitStart := time.Now()
		handle, err := tc.acquire(ctx, iri)
		if tc.metrics != nil {
			status := "acquired"
			if err != nil {
				status = "failed"
			}
			tc.metrics.RecordLockOperation("acquire", status, time.Since(waitStart), "entity")
		}
		if err != nil {
			tc.releaseLocks(ctx, txCtx)
			return nil, utils.NewAppError(utils.CodeConcurrentModification, "failed to acquire entity lock", err).
				WithDetail("iri", iri)
		}
		txCtx.locks = append(txCtx.locks, handle)
	}

	tx, err := tc.statements.BeginTx(ctx)
	if err != nil {
		tc.releaseLocks(ctx, txCtx)
		return nil, fmt.Errorf("failed to begin statement transaction: %w", err)
	}
	txCtx.tx = tx
	return txCtx, nil
}

func (tc *TransactionCoordinator) acquire(ctx context.Context, iri string) (lock.LockHandle, error) {
	if tc.tracing == nil {
		return tc.locks.AcquireEntityLock(ctx, iri, tc.lockTTL)
	}
	lockCtx, span := tc.tracing.StartLockOperation(ctx, "acquire", iri)
	defer span.End()
	handle, err := tc.locks.AcquireEntityLock(lockCtx, iri, tc.lockTTL)
	if err != nil {
		tc.tracing.SetSpanError(span, err)
	}
	return handle, err
}

// WriteEntity replaces the statements of rec.IRI. Documents are queued for
// indexing.
func (tc *TransactionCoordinator) WriteEntity(ctx context.Context, txCtx *TransactionContext, rec *models.EntityRecord, stmts []rdf.Statement, doc *models.Document) error {
	if err := txCtx.tx.ReplaceSubject(ctx, rec, stmts); err != nil {
		return fmt.Errorf("failed to write %s: %w", rec.IRI, err)
	}
	if doc != nil {
		txCtx.indexOperations = append(txCtx.indexOperations, IndexOperation{
			Type:  IndexOpUpsert,
			Entry: models.NewDocumentIndexEntry(rec.IRI, doc),
			IRI:   rec.IRI,
		})
	}
	return nil
}

// RemoveEntity deletes iri and queues its removal from the index.
func (tc *TransactionCoordinator) RemoveEntity(ctx context.Context, txCtx *TransactionContext, iri string) error {
	if err := txCtx.tx.DeleteSubject(ctx, iri); err != nil {
		return fmt.Errorf("failed to delete %s: %w", iri, err)
	}
	txCtx.indexOperations = append(txCtx.indexOperations, IndexOperation{Type: IndexOpDelete, IRI: iri})
	return nil
}

// CommitTransaction commits the statement transaction and then applies the
// queued index operations. Index failures are logged and counted; the
// statement store stays authoritative and a reindex repairs the index.
func (tc *TransactionCoordinator) CommitTransaction(ctx context.Context, txCtx *TransactionContext) (int, error) {
	defer tc.releaseLocks(ctx, txCtx)

	if err := txCtx.tx.Commit(ctx); err != nil {
		_ = txCtx.tx.Rollback(ctx)
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return 0, err
		}
		return 0, utils.NewAppError(utils.CodeInternal, "statement store commit failed", err).
			WithDetail("tx_id", txCtx.ID)
	}

	failed := 0
	for _, op := range txCtx.indexOperations {
		if err := tc.applyIndexOperation(ctx, op); err != nil {
			failed++
			tc.logger.Warn().Err(err).
				Str("tx_id", txCtx.ID).
				Str("iri", op.IRI).
				Str("op", string(op.Type)).
				Msg("index operation failed")
		}
	}
	return failed, nil
}

func (tc *TransactionCoordinator) RollbackTransaction(ctx context.Context, txCtx *TransactionContext) error {
	defer tc.releaseLocks(ctx, txCtx)
	if txCtx.tx == nil {
		return nil
	}
	return txCtx.tx.Rollback(ctx)
}

func (tc *TransactionCoordinator) applyIndexOperation(ctx context.Context, op IndexOperation) error {
	if tc.index == nil {
		return nil
	}
	switch op.Type {
	case IndexOpUpsert:
		return tc.index.IndexDocument(ctx, op.Entry)
	case IndexOpDelete:
		return tc.index.DeleteDocument(ctx, op.IRI)
	default:
		return fmt.Errorf("unknown index operation type: %s", op.Type)
	}
}

func (tc *TransactionCoordinator) releaseLocks(ctx context.Context, txCtx *TransactionContext) {
	for i := len(txCtx.locks) - 1; i >= 0; i-- {
		handle := txCtx.locks[i]
		if err := tc.locks.ReleaseLock(context.WithoutCancel(ctx), handle); err != nil {
			tc.logger.Warn().Err(err).Str("resource", handle.Resource()).Msg("failed to release lock")
		}
	}
	txCtx.locks = nil
}

// WithTransaction runs fn inside a transaction holding locks on iris.
func (tc *TransactionCoordinator) WithTransaction(ctx context.Context, iris []string, fn func(context.Context, *TransactionContext) error) (int, error) {
	txCtx, err := tc.BeginTransaction(ctx, iris...)
	if err != nil {
		return 0, err
	}

	if err := fn(ctx, txCtx); err != nil {
		if rollbackErr := tc.RollbackTransaction(ctx, txCtx); rollbackErr != nil && !errors.Is(rollbackErr, store.ErrTxDone) {
			return 0, fmt.Errorf("%w (rollback failed: %v)", err, rollbackErr)
		}
		return 0, err
	}

	return tc.CommitTransaction(ctx, txCtx)
}

// TransactionStats holds transaction statistics
type TransactionStats struct {
	TotalCommitted    uint64        `json:"total_committed"`
	TotalRolledBack   uint64        `json:"total_rolled_back"`
	TotalIndexErrors  uint64        `json:"total_index_errors"`
	CommitTimeouts    uint64        `json:"commit_timeouts"`
	AverageCommitTime time.Duration `json:"average_commit_time"`
}

// TransactionManager bounds every transaction by a timeout and keeps counts.
type TransactionManager struct {
	coordinator *TransactionCoordinator
	timeout     time.Duration

	mu    sync.Mutex
	stats TransactionStats
}

func NewTransactionManager(coordinator *TransactionCoordinator, timeout time.Duration) *TransactionManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TransactionManager{
		coordinator: coordinator,
		timeout:     timeout,
	}
}

// ExecuteWithTimeout runs fn through the coordinator under the manager's timeout.
func (tm *TransactionManager) ExecuteWithTimeout(ctx context.Context, iris []string, fn func(context.Context, *TransactionContext) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, tm.timeout)
	defer cancel()

	start := time.Now()
	indexErrors, err := tm.coordinator.WithTransaction(timeoutCtx, iris, fn)
	duration := time.Since(start)

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stats.TotalIndexErrors += uint64(indexErrors)
	switch {
	case err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded):
		tm.stats.CommitTimeouts++
		return utils.NewAppError(utils.CodeTimeout, "transaction timed out", errors.Join(err, utils.ErrTimeout))
	case err != nil:
		tm.stats.TotalRolledBack++
	default:
		tm.stats.TotalCommitted++
		n := time.Duration(tm.stats.TotalCommitted)
		tm.stats.AverageCommitTime += (duration - tm.stats.AverageCommitTime) / n
	}
	return err
}

func (tm *TransactionManager) GetStats() TransactionStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.stats
}

// BatchProcessor writes many entities, one transaction per chunk.
type BatchProcessor struct {
	manager   *TransactionManager
	batchSize int
}

func NewBatchProcessor(manager *TransactionManager, batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BatchProcessor{
		manager:   manager,
		batchSize: batchSize,
	}
}

// BatchWrite is a prepared entity write.
type BatchWrite struct {
	Record     *models.EntityRecord
	Statements []rdf.Statement
	Document   *models.Document
}

// ProcessBatch writes ops in chunks. It stops at the first failed chunk and
// returns how many writes committed before it.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, ops []BatchWrite) (int, error) {
	committed := 0
	for i := 0; i < len(ops); i += bp.batchSize {
		end := min(i+bp.batchSize, len(ops))
		chunk := ops[i:end]

		iris := make([]string, len(chunk))
		for j, op := range chunk {
			iris[j] = op.Record.IRI
		}

		err := bp.manager.ExecuteWithTimeout(ctx, iris, func(ctx context.Context, txCtx *TransactionContext) error {
			for _, op := range chunk {
				if err := bp.manager.coordinator.WriteEntity(ctx, txCtx, op.Record, op.Statements, op.Document); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return committed, fmt.Errorf("failed to process batch chunk %d-%d: %w", i, end, err)
		}
		committed += len(chunk)
	}
	return committed, nil
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
