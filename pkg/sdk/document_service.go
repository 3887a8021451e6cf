package sdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DocumentService handles document operations
type DocumentService struct {
	client *Client
}

const documentsPath = apiV1BasePath + "/documents"

// Create stores a document under the identifier derived from spec.
func (s *DocumentService) Create(ctx context.Context, spec *DocumentSpec) (*Entity, error) {
	if spec == nil {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "document spec is required"}
	}

	var entity Entity
	if err := s.client.doJSONRequest(ctx, http.MethodPost, documentsPath, nil, spec, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// CreateBatch stores several documents. Entries that cannot be identified or
// fail validation are reported in BatchResult.Skipped by their position.
func (s *DocumentService) CreateBatch(ctx context.Context, specs []DocumentSpec) (*BatchResult, error) {
	if len(specs) == 0 {
		return &BatchResult{Saved: []string{}}, nil
	}

	req := struct {
		Documents []DocumentSpec `json:"documents"`
	}{Documents: specs}

	var result BatchResult
	if err := s.client.doJSONRequest(ctx, http.MethodPost, documentsPath+"/batch", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get retrieves the document stored under iri.
func (s *DocumentService) Get(ctx context.Context, iri string) (*Entity, error) {
	if iri == "" {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "document IRI is required"}
	}

	var entity Entity
	if err := s.client.doJSONRequest(ctx, http.MethodGet, documentsPath+"/"+escapeIRI(iri), nil, nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// Delete removes the document stored under iri.
func (s *DocumentService) Delete(ctx context.Context, iri string) error {
	if iri == "" {
		return &APIError{Code: ErrorCodeValidation, Message: "document IRI is required"}
	}
	return s.client.doJSONRequest(ctx, http.MethodDelete, documentsPath+"/"+escapeIRI(iri), nil, nil, nil)
}

// List retrieves a page of documents in identifier order.
func (s *DocumentService) List(ctx context.Context, opts *ListOptions) (*DocumentListResponse, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Limit > 0 {
			query.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			query.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	var resp DocumentListResponse
	if err := s.client.doJSONRequest(ctx, http.MethodGet, documentsPath, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Find returns the identifiers of documents whose field holds value.
func (s *DocumentService) Find(ctx context.Context, field, value string) ([]string, error) {
	if field == "" || value == "" {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "field and value are required"}
	}

	query := url.Values{"field": {field}, "value": {value}}
	var resp struct {
		Identifiers []string `json:"identifiers"`
	}
	if err := s.client.doJSONRequest(ctx, http.MethodGet, documentsPath+"/find", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Identifiers, nil
}

// Search performs a full-text search over documents.
func (s *DocumentService) Search(ctx context.Context, q *SearchQuery) (*SearchResult, error) {
	if q == nil {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "search query is required"}
	}

	query := url.Values{"q": {q.Query}}
	if len(q.Fields) > 0 {
		query.Set("fields", strings.Join(q.Fields, ","))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}

	var result SearchResult
	if err := s.client.doJSONRequest(ctx, http.MethodGet, documentsPath+"/search", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Enrich fills in the document stored under iri from an external source. When
// the enrichment changes the fields the identifier derives from, the result's
// NewIdentifier names where the document now lives.
func (s *DocumentService) Enrich(ctx context.Context, iri string, opts EnrichOptions) (*EnrichResult, error) {
	if iri == "" || opts.Source == "" {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "document IRI and source are required"}
	}

	query := url.Values{"source": {opts.Source}}
	if opts.Replace {
		query.Set("replace", "true")
	}

	var result EnrichResult
	if err := s.client.doJSONRequest(ctx, http.MethodPost, documentsPath+"/"+escapeIRI(iri)+"/enrich", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchResultIterator pages through search results.
type SearchResultIterator struct {
	service    *DocumentService
	query      SearchQuery
	nextOffset int
	hasMore    bool
}

// NewSearchIterator starts at query.Offset.
func (s *DocumentService) NewSearchIterator(query SearchQuery) *SearchResultIterator {
	return &SearchResultIterator{
		service:    s,
		query:      query,
		nextOffset: query.Offset,
		hasMore:    true,
	}
}

// Next fetches the next page of results. It returns nil once the results are
// exhausted.
func (iter *SearchResultIterator) Next(ctx context.Context) (*SearchResult, error) {
	if !iter.hasMore {
		return nil, nil
	}

	iter.query.Offset = iter.nextOffset
	result, err := iter.service.Search(ctx, &iter.query)
	if err != nil {
		return nil, err
	}

	iter.nextOffset += len(result.Hits)
	iter.hasMore = len(result.Hits) > 0 && int64(iter.nextOffset) < result.TotalHits
	return result, nil
}

// HasMore returns true if there are more results to fetch
func (iter *SearchResultIterator) HasMore() bool {
	return iter.hasMore
}
