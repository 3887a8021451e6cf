package models

import (
	"time"
)

type SearchQuery struct {
	Query  string   `json:"query" validate:"max=512"`
	Fields []string `json:"fields,omitempty"`
	Limit  int      `json:"limit" validate:"min=1,max=1000"`
	Offset int      `json:"offset" validate:"min=0"`
}

type SearchResult struct {
	Hits       []SearchHit `json:"hits"`
	TotalHits  int64       `json:"total_hits"`
	SearchTime int64       `json:"search_time_ms"`
	Query      string      `json:"query"`
}

type SearchHit struct {
	IRI        string              `json:"iri"`
	EntityType string              `json:"entity_type"`
	Score      float32             `json:"score"`
	Fields     map[string][]string `json:"fields"`
}

// Page normalises limit and offset in place.
func (q *SearchQuery) Page(defaultLimit, maxLimit int) {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// DocumentIndexEntry is the flattened form of a document in the search index.
type DocumentIndexEntry struct {
	IRI     string   `json:"id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    string   `json:"year"`
	DOI     string   `json:"doi"`
	PMID    string   `json:"pmid"`
	WBID    string   `json:"wbid"`
	URIs    []string `json:"uris"`
	Indexed int64    `json:"indexed_at"`
}

// NewDocumentIndexEntry flattens d stored under iri.
func NewDocumentIndexEntry(iri string, d *Document) DocumentIndexEntry {
	first := func(p *Property) string {
		if v, ok := p.First(); ok {
			return v.String()
		}
		return ""
	}
	return DocumentIndexEntry{
		IRI:     iri,
		Title:   first(d.Title),
		Authors: d.Author.Strings(),
		Year:    first(d.Year),
		DOI:     first(d.DOI),
		PMID:    first(d.PMID),
		WBID:    first(d.WBID),
		URIs:    d.URI.Strings(),
		Indexed: time.Now().Unix(),
	}
}

// FieldMap returns the entry as document fields.
func (e DocumentIndexEntry) FieldMap() map[string][]string {
	out := map[string][]string{}
	add := func(name string, vs ...string) {
		for _, v := range vs {
			if v != "" {
				out[name] = append(out[name], v)
			}
		}
	}
	add(FieldTitle, e.Title)
	add(FieldAuthor, e.Authors...)
	add(FieldYear, e.Year)
	add(FieldDOI, e.DOI)
	add(FieldPMID, e.PMID)
	add(FieldWBID, e.WBID)
	add(FieldURI, e.URIs...)
	return out
}
