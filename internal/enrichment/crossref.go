package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/openworm/wormgraph/internal/models"
)

// CrossRefSource queries the CrossRef DOI search service. Authors come from
// the COinS string of the first hit.
type CrossRefSource struct {
	httpSource
}

func NewCrossRefSource(cfg SourceConfig) *CrossRefSource {
	return &CrossRefSource{httpSource: newHTTPSource(SourceCrossRef, cfg, DefaultCrossRefURL)}
}

func (s *CrossRefSource) Name() string {
	return SourceCrossRef
}

type crossRefHit struct {
	Coins string          `json:"coins"`
	Title string          `json:"title"`
	Year  json.RawMessage `json:"year"`
	DOI   string          `json:"doi"`
}

func (s *CrossRefSource) Fetch(ctx context.Context, doi string) (Record, error) {
	query := url.Values{}
	query.Set("q", doi)

	body, err := s.get(ctx, s.baseURL+"/dois?"+query.Encode(), "application/json")
	if err != nil {
		return nil, err
	}
	return parseCrossRef(body)
}

func parseCrossRef(body []byte) (Record, error) {
	var hits []crossRefHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	// Unknown DOIs produce an empty list rather than an error status.
	if len(hits) == 0 {
		return nil, ErrNoResults
	}

	hit := hits[0]
	record := Record{}
	for _, pair := range coinsPairs(hit.Coins) {
		if pair[0] == "rft.au" {
			record.add(models.FieldAuthor, pair[1])
		}
	}
	record.add(models.FieldTitle, strings.TrimSpace(hit.Title))
	record.add(models.FieldYear, (&wbField{Data: hit.Year}).value())

	if len(record) == 0 {
		return nil, ErrNoResults
	}
	return record, nil
}

// coinsPairs splits an HTML-escaped COinS query string into key/value pairs.
func coinsPairs(coins string) [][2]string {
	var pairs [][2]string
	for _, part := range strings.Split(coins, "&amp;") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		} else {
			value = strings.ReplaceAll(value, "+", " ")
		}
		pairs = append(pairs, [2]string{strings.TrimSpace(key), strings.TrimSpace(value)})
	}
	return pairs
}
