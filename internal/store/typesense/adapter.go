package typesense

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/pkg/utils"
	"github.com/rs/zerolog"
	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
	"github.com/typesense/typesense-go/typesense/api/pointer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TypesenseStore indexes documents in a single Typesense collection.
type TypesenseStore struct {
	client     *typesense.Client
	collection string
	logger     zerolog.Logger
	tracing    *observability.TracingManager
	metrics    *observability.MetricsManager

	healthInterval time.Duration
	monitor        *HealthChecker
}

func boolPtr(b bool) *bool {
	return &b
}

func NewTypesenseStore(config *Config) (*TypesenseStore, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}

	return &TypesenseStore{
		client:         client,
		collection:     config.Collection,
		logger:         zerolog.Nop(),
		healthInterval: config.HealthCheckInterval,
	}, nil
}

// StartHealthMonitor polls the server in the background until Close is called
// or ctx is done. It does nothing when the health check interval is zero.
func (s *TypesenseStore) StartHealthMonitor(ctx context.Context) {
	if s.healthInterval <= 0 || s.monitor != nil {
		return
	}
	s.monitor = NewHealthChecker(s.client, s.healthInterval, s.logger)
	go s.monitor.Start(ctx)
}

func (s *TypesenseStore) SetObservability(logger *observability.Logger, tracing *observability.TracingManager, metrics *observability.MetricsManager) {
	if logger != nil {
		s.logger = logger.GetZerologLogger()
	}
	s.tracing = tracing
	s.metrics = metrics
}

func (s *TypesenseStore) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracing == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := s.tracing.StartSpan(ctx, "typesense."+name)
	span.SetAttributes(attrs...)
	return ctx, span
}

func (s *TypesenseStore) fail(span trace.Span, err error) error {
	if s.tracing != nil {
		s.tracing.SetSpanError(span, err)
	}
	return err
}

func collectionSchema(name string) *api.CollectionSchema {
	optional := boolPtr(true)
	return &api.CollectionSchema{
		Name: name,
		Fields: []api.Field{
			{Name: "iri", Type: "string"},
			{Name: "title", Type: "string", Optional: optional},
			{Name: "authors", Type: "string[]", Optional: optional},
			{Name: "year", Type: "string", Optional: optional, Facet: boolPtr(true)},
			{Name: "doi", Type: "string", Optional: optional},
			{Name: "pmid", Type: "string", Optional: optional},
			{Name: "wbid", Type: "string", Optional: optional},
			{Name: "uris", Type: "string[]", Optional: optional},
			{Name: "indexed_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("indexed_at"),
	}
}

// EnsureCollection creates the document collection when it is missing.
func (s *TypesenseStore) EnsureCollection(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "ensure_collection", attribute.String("collection", s.collection))
	defer span.End()

	_, err := s.client.Collection(s.collection).Retrieve(ctx)
	if err == nil {
		return nil
	}
	if !isNotFoundError(err) {
		return s.fail(span, fmt.Errorf("failed to retrieve collection: %w", err))
	}

	_, err = s.client.Collections().Create(ctx, collectionSchema(s.collection))
	if err != nil && !isAlreadyExistsError(err) {
		return s.fail(span, fmt.Errorf("failed to create collection: %w", err))
	}
	s.logger.Info().Str("collection", s.collection).Msg("created typesense collection")
	return nil
}

func (s *TypesenseStore) IndexDocument(ctx context.Context, entry models.DocumentIndexEntry) error {
	ctx, span := s.startSpan(ctx, "index_document", attribute.String("entity.iri", entry.IRI))
	defer span.End()

	_, err := s.client.Collection(s.collection).Documents().Upsert(ctx, flatten(entry))
	if err != nil && isNotFoundError(err) {
		if err := s.EnsureCollection(ctx); err != nil {
			return s.fail(span, err)
		}
		_, err = s.client.Collection(s.collection).Documents().Upsert(ctx, flatten(entry))
	}
	if err != nil {
		return s.fail(span, fmt.Errorf("failed to index document: %w", err))
	}
	return nil
}

func (s *TypesenseStore) DeleteDocument(ctx context.Context, iri string) error {
	ctx, span := s.startSpan(ctx, "delete_document", attribute.String("entity.iri", iri))
	defer span.End()

	_, err := s.client.Collection(s.collection).Document(documentID(iri)).Delete(ctx)
	if err != nil {
		// Not found is not an error for deletion
		if isNotFoundError(err) {
			return nil
		}
		return s.fail(span, fmt.Errorf("failed to delete document from index: %w", err))
	}
	return nil
}

var defaultQueryBy = []string{models.FieldTitle, "authors", models.FieldDOI, models.FieldPMID, models.FieldWBID}

func (s *TypesenseStore) SearchDocuments(ctx context.Context, query *models.SearchQuery) (*models.SearchResult, error) {
	var span trace.Span
	if s.tracing != nil {
		ctx, span = s.tracing.StartSearchOperation(ctx, query.Query)
		defer span.End()
	}

	if query.Limit <= 0 || query.Limit > store.MaxListLimit {
		err := utils.NewAppError(utils.CodeInvalidInput, "limit must be between 1 and 1000", utils.ErrInvalidInput)
		if s.tracing != nil {
			s.tracing.SetSpanError(span, err)
		}
		return nil, err
	}

	q := strings.TrimSpace(query.Query)
	if q == "" {
		q = "*"
	}
	params := &api.SearchCollectionParams{
		Q:       q,
		QueryBy: strings.Join(queryBy(query.Fields), ","),
		Page:    pointer.Int(calculatePage(query.Offset, query.Limit)),
		PerPage: pointer.Int(query.Limit),
	}

	start := time.Now()
	result, err := s.client.Collection(s.collection).Documents().Search(ctx, params)
	s.recordSearch(err, time.Since(start))
	if err != nil {
		if isNotFoundError(err) {
			return &models.SearchResult{Hits: []models.SearchHit{}, Query: query.Query}, nil
		}
		if s.tracing != nil {
			s.tracing.SetSpanError(span, err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return convertSearchResult(result, query.Query, time.Since(start)), nil
}

func (s *TypesenseStore) recordSearch(err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordSearchOperation(status, d)
}

func (s *TypesenseStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "ping")
	defer span.End()

	healthy, err := s.client.Health(ctx, 5*time.Second)
	if err != nil {
		return s.fail(span, err)
	}
	if !healthy {
		return s.fail(span, fmt.Errorf("typesense is not healthy"))
	}
	return nil
}

func (s *TypesenseStore) Close() error {
	if s.monitor != nil {
		s.monitor.Stop()
		s.monitor = nil
	}
	return nil
}

// queryBy maps document field names onto collection fields.
func queryBy(fields []string) []string {
	if len(fields) == 0 {
		return defaultQueryBy
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case models.FieldAuthor:
			out = append(out, "authors")
		case models.FieldURI:
			out = append(out, "uris")
		case models.FieldTitle, models.FieldYear, models.FieldDOI, models.FieldPMID, models.FieldWBID:
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return defaultQueryBy
	}
	return out
}

// documentID keys an IRI in the collection. IRIs contain characters Typesense
// does not accept in ids.
func documentID(iri string) string {
	sum := sha1.Sum([]byte(iri))
	return hex.EncodeToString(sum[:])
}

func flatten(e models.DocumentIndexEntry) map[string]any {
	doc := map[string]any{
		"id":         documentID(e.IRI),
		"iri":        e.IRI,
		"indexed_at": e.Indexed,
	}
	set := func(k, v string) {
		if v != "" {
			doc[k] = v
		}
	}
	set("title", e.Title)
	set("year", e.Year)
	set("doi", e.DOI)
	set("pmid", e.PMID)
	set("wbid", e.WBID)
	if len(e.Authors) > 0 {
		doc["authors"] = e.Authors
	}
	if len(e.URIs) > 0 {
		doc["uris"] = e.URIs
	}
	return doc
}

func unflatten(doc map[string]any) models.DocumentIndexEntry {
	str := func(k string) string {
		v, _ := doc[k].(string)
		return v
	}
	strs := func(k string) []string {
		raw, _ := doc[k].([]any)
		var out []string
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	e := models.DocumentIndexEntry{
		IRI:     str("iri"),
		Title:   str("title"),
		Authors: strs("authors"),
		Year:    str("year"),
		DOI:     str("doi"),
		PMID:    str("pmid"),
		WBID:    str("wbid"),
		URIs:    strs("uris"),
	}
	if n, ok := doc["indexed_at"].(float64); ok {
		e.Indexed = int64(n)
	}
	return e
}

func convertSearchResult(tsResult *api.SearchResult, query string, searchTime time.Duration) *models.SearchResult {
	result := &models.SearchResult{
		Hits:       []models.SearchHit{},
		SearchTime: searchTime.Milliseconds(),
		Query:      query,
	}
	if tsResult.Found != nil {
		result.TotalHits = int64(*tsResult.Found)
	}
	if tsResult.Hits == nil {
		return result
	}

	for _, tsHit := range *tsResult.Hits {
		if tsHit.Document == nil {
			continue
		}
		entry := unflatten(*tsHit.Document)
		hit := models.SearchHit{
			IRI:        entry.IRI,
			EntityType: models.DocumentType,
			Score:      1,
			Fields:     entry.FieldMap(),
		}
		if tsHit.TextMatch != nil {
			hit.Score = float32(*tsHit.TextMatch)
		}
		result.Hits = append(result.Hits, hit)
	}
	return result
}

// calculatePage calculates the page number from offset and limit
func calculatePage(offset, limit int) int {
	if limit <= 0 {
		limit = 1
	}
	return (offset / limit) + 1
}

var _ store.IndexStore = (*TypesenseStore)(nil)
