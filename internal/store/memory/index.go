package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/store"
)

// Index is a naive in-process document index. Every query token must occur in
// some indexed field; hits are scored by the number of field matches.
type Index struct {
	mu      sync.RWMutex
	entries map[string]models.DocumentIndexEntry
	closed  bool
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]models.DocumentIndexEntry)}
}

func (x *Index) EnsureCollection(ctx context.Context) error {
	return x.Ping(ctx)
}

func (x *Index) IndexDocument(ctx context.Context, entry models.DocumentIndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	x.entries[entry.IRI] = entry
	return nil
}

func (x *Index) IndexDocuments(ctx context.Context, entries []models.DocumentIndexEntry) error {
	for _, e := range entries {
		if err := x.IndexDocument(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) DeleteDocument(ctx context.Context, iri string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	delete(x.entries, iri)
	return nil
}

func (x *Index) SearchDocuments(ctx context.Context, query *models.SearchQuery) (*models.SearchResult, error) {
	start := time.Now()
	tokens := strings.Fields(strings.ToLower(query.Query))
	if len(tokens) == 1 && tokens[0] == "*" {
		tokens = nil
	}

	x.mu.RLock()
	if x.closed {
		x.mu.RUnlock()
		return nil, ErrClosed
	}
	var hits []models.SearchHit
	for _, e := range x.entries {
		fields := e.FieldMap()
		score, ok := match(fields, query.Fields, tokens)
		if !ok {
			continue
		}
		hits = append(hits, models.SearchHit{
			IRI:        e.IRI,
			EntityType: models.DocumentType,
			Score:      float32(score),
			Fields:     fields,
		})
	}
	x.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].IRI < hits[j].IRI
	})

	total := len(hits)
	limit, offset := store.Page(query.Limit, query.Offset)
	if offset >= len(hits) {
		hits = []models.SearchHit{}
	} else {
		hits = hits[offset:min(offset+limit, len(hits))]
	}

	return &models.SearchResult{
		Hits:       hits,
		TotalHits:  int64(total),
		SearchTime: time.Since(start).Milliseconds(),
		Query:      query.Query,
	}, nil
}

func match(fields map[string][]string, queryBy []string, tokens []string) (int, bool) {
	if len(tokens) == 0 {
		return 0, true
	}
	if len(queryBy) == 0 {
		for name := range fields {
			queryBy = append(queryBy, name)
		}
	}

	score := 0
	for _, tok := range tokens {
		found := false
		for _, name := range queryBy {
			for _, v := range fields[name] {
				if strings.Contains(strings.ToLower(v), tok) {
					found = true
					score++
				}
			}
		}
		if !found {
			return 0, false
		}
	}
	return score, true
}

func (x *Index) Ping(ctx context.Context) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return ErrClosed
	}
	return nil
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	return nil
}

var _ store.IndexStore = (*Index)(nil)
