package sdk

import "time"

// DocumentSpec holds the fields of a document. The identifier is derived from
// the first of DOI, PMID, WBID and URI that is set, unless Identifier is given.
type DocumentSpec struct {
	Author     []string `json:"author,omitempty"`
	URI        []string `json:"uri,omitempty"`
	Year       string   `json:"year,omitempty"`
	Date       string   `json:"date,omitempty"`
	Title      string   `json:"title,omitempty"`
	DOI        string   `json:"doi,omitempty"`
	WBID       string   `json:"wbid,omitempty"`
	WormbaseID string   `json:"wormbaseid,omitempty"`
	Wormbase   string   `json:"wormbase,omitempty"`
	PMID       string   `json:"pmid,omitempty"`
	PubMed     string   `json:"pubmed,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
}

// CellSpec holds the fields of a neuron or muscle. Name is the identity.
type CellSpec struct {
	Name              string   `json:"name"`
	LineageName       string   `json:"lineage_name,omitempty"`
	Description       string   `json:"description,omitempty"`
	WormbaseID        string   `json:"wormbase_id,omitempty"`
	Types             []string `json:"types,omitempty"`
	Neurotransmitters []string `json:"neurotransmitters,omitempty"`
	Neuropeptides     []string `json:"neuropeptides,omitempty"`
	Receptors         []string `json:"receptors,omitempty"`
	InnervatedBy      []string `json:"innervated_by,omitempty"`
}

// CellKind selects neurons or muscles.
type CellKind string

const (
	Neuron CellKind = "neuron"
	Muscle CellKind = "muscle"
)

// Entity is a stored document or cell.
type Entity struct {
	IRI        string              `json:"iri"`
	EntityType string              `json:"entity_type"`
	Fields     map[string][]string `json:"fields"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Version    int                 `json:"version"`
}

// Field returns the first value of name, or "".
func (e *Entity) Field(name string) string {
	if vs := e.Fields[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// DocumentListResponse represents a paginated list of documents
type DocumentListResponse struct {
	Documents []Entity `json:"documents"`
	Total     int      `json:"total"`
	Limit     int      `json:"limit"`
	Offset    int      `json:"offset"`
}

// ListOptions represents pagination options
type ListOptions struct {
	Limit  int
	Offset int
}

// BatchSkip names a batch entry that was not stored.
type BatchSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of a batch create.
type BatchResult struct {
	Saved   []string    `json:"saved"`
	Skipped []BatchSkip `json:"skipped,omitempty"`
}

// IdentifierPreview describes the identifier a document would be stored under.
type IdentifierPreview struct {
	Identifier string `json:"identifier"`
	Key        string `json:"key,omitempty"`
	Path       string `json:"path"`
}

// EnrichOptions selects the metadata source of an enrichment.
type EnrichOptions struct {
	// Source is wormbase, pubmed or crossref.
	Source string
	// Replace overwrites fields that already hold values.
	Replace bool
}

// EnrichResult reports what an enrichment changed.
type EnrichResult struct {
	RunID         string              `json:"run_id"`
	Source        string              `json:"source"`
	ExternalID    string              `json:"external_id,omitempty"`
	Status        string              `json:"status"`
	Reason        string              `json:"reason,omitempty"`
	Applied       map[string][]string `json:"applied,omitempty"`
	OldIdentifier string              `json:"old_identifier"`
	NewIdentifier string              `json:"new_identifier"`
	Moved         bool                `json:"moved"`
	Version       int                 `json:"version"`
}

// SearchQuery represents a full-text document search.
type SearchQuery struct {
	Query  string
	Fields []string
	Limit  int
	Offset int
}

// SearchHit is one matching document.
type SearchHit struct {
	IRI        string              `json:"iri"`
	EntityType string              `json:"entity_type"`
	Score      float32             `json:"score"`
	Fields     map[string][]string `json:"fields"`
}

// SearchResult represents search results
type SearchResult struct {
	Hits       []SearchHit `json:"hits"`
	TotalHits  int64       `json:"total_hits"`
	SearchTime int64       `json:"search_time_ms"`
	Query      string      `json:"query"`
}
