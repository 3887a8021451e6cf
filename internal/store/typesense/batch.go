package typesense

import (
	"context"
	"fmt"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/typesense/typesense-go/typesense/api"
)

// DefaultBatchSize is the number of documents sent per import request.
const DefaultBatchSize = 100

// IndexDocuments bulk-upserts entries in batches. A rejected document fails
// the whole call after the remaining batches have been sent.
func (s *TypesenseStore) IndexDocuments(ctx context.Context, entries []models.DocumentIndexEntry) error {
	return s.IndexDocumentsWithProgress(ctx, entries, DefaultBatchSize, nil)
}

// ProgressCallback is called after each batch with the number of documents
// sent so far.
type ProgressCallback func(processed, total int)

func (s *TypesenseStore) IndexDocumentsWithProgress(ctx context.Context, entries []models.DocumentIndexEntry, batchSize int, callback ProgressCallback) error {
	if len(entries) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return err
	}

	action := "upsert"
	params := &api.ImportDocumentsParams{Action: &action}

	var failed int
	var firstErr string
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))

		docs := make([]interface{}, 0, end-i)
		for _, e := range entries[i:end] {
			docs = append(docs, flatten(e))
		}

		responses, err := s.client.Collection(s.collection).Documents().Import(ctx, docs, params)
		if err != nil {
			return fmt.Errorf("failed to import batch %d-%d: %w", i, end, err)
		}
		for _, r := range responses {
			if !r.Success {
				failed++
				if firstErr == "" {
					firstErr = r.Error
				}
			}
		}

		if callback != nil {
			callback(end, len(entries))
		}
	}

	if failed > 0 {
		s.logger.Warn().Int("failed", failed).Str("first_error", firstErr).Msg("some documents were not indexed")
		return fmt.Errorf("%d of %d documents were not indexed: %s", failed, len(entries), firstErr)
	}
	return nil
}
