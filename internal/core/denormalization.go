package core

import (
	"context"
	"fmt"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/rs/zerolog"
)

// DenormalizationManager maintains the search index, which holds a flattened
// copy of every stored document.
type DenormalizationManager struct {
	statements store.StatementStore
	index      store.IndexStore
	modelOpts  []models.Option
	logger     zerolog.Logger
}

func NewDenormalizationManager(statements store.StatementStore, index store.IndexStore, modelOpts []models.Option, logger zerolog.Logger) *DenormalizationManager {
	return &DenormalizationManager{
		statements: statements,
		index:      index,
		modelOpts:  modelOpts,
		logger:     logger.With().Str("component", "denormalization").Logger(),
	}
}

// ReindexStats summarises a reindex run.
type ReindexStats struct {
	Documents int `json:"documents"`
	Indexed   int `json:"indexed"`
	Failed    int `json:"failed"`
}

// Reindex rebuilds the index entry of every stored document, batchSize
// documents at a time. Documents that cannot be decoded are counted as failed
// and skipped.
func (dm *DenormalizationManager) Reindex(ctx context.Context, batchSize int) (*ReindexStats, error) {
	stats := &ReindexStats{}
	if dm.index == nil {
		return stats, nil
	}
	if batchSize <= 0 || batchSize > store.MaxListLimit {
		batchSize = store.DefaultListLimit
	}
	if err := dm.index.EnsureCollection(ctx); err != nil {
		return stats, fmt.Errorf("failed to ensure index collection: %w", err)
	}

	for offset := 0; ; offset += batchSize {
		records, err := dm.statements.ListSubjects(ctx, models.DocumentType, batchSize, offset)
		if err != nil {
			return stats, fmt.Errorf("failed to list documents: %w", err)
		}
		if len(records) == 0 {
			break
		}

		entries := make([]models.DocumentIndexEntry, 0, len(records))
		for _, rec := range records {
			stats.Documents++
			entry, err := dm.entryFor(ctx, rec.IRI)
			if err != nil {
				stats.Failed++
				dm.logger.Warn().Err(err).Str("iri", rec.IRI).Msg("skipping document during reindex")
				continue
			}
			entries = append(entries, entry)
		}

		if err := dm.index.IndexDocuments(ctx, entries); err != nil {
			return stats, fmt.Errorf("failed to index batch at offset %d: %w", offset, err)
		}
		stats.Indexed += len(entries)

		if len(records) < batchSize {
			break
		}
	}

	dm.logger.Info().
		Int("documents", stats.Documents).
		Int("indexed", stats.Indexed).
		Int("failed", stats.Failed).
		Msg("reindex finished")
	return stats, nil
}

func (dm *DenormalizationManager) entryFor(ctx context.Context, iri string) (models.DocumentIndexEntry, error) {
	_, stmts, err := dm.statements.GetSubject(ctx, iri)
	if err != nil {
		return models.DocumentIndexEntry{}, err
	}
	doc, err := models.DocumentFromStatements(iri, stmts, dm.modelOpts...)
	if err != nil {
		return models.DocumentIndexEntry{}, err
	}
	return models.NewDocumentIndexEntry(iri, doc), nil
}
