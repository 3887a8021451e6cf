package enrichment

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/openworm/wormgraph/internal/models"
)

// PubMedSource reads NCBI E-utilities document summaries.
type PubMedSource struct {
	httpSource
	apiKey string
}

func NewPubMedSource(cfg SourceConfig, apiKey string) *PubMedSource {
	return &PubMedSource{
		httpSource: newHTTPSource(SourcePubMed, cfg, DefaultPubMedURL),
		apiKey:     apiKey,
	}
}

func (s *PubMedSource) Name() string {
	return SourcePubMed
}

type eSummaryResult struct {
	XMLName xml.Name `xml:"eSummaryResult"`
	DocSums []docSum `xml:"DocSum"`
	Errors  []string `xml:"ERROR"`
}

type docSum struct {
	ID    string    `xml:"Id"`
	Items []docItem `xml:"Item"`
}

type docItem struct {
	Name  string    `xml:"Name,attr"`
	Type  string    `xml:"Type,attr"`
	Value string    `xml:",chardata"`
	Items []docItem `xml:"Item"`
}

func (s *PubMedSource) Fetch(ctx context.Context, pmid string) (Record, error) {
	query := url.Values{}
	query.Set("db", "pubmed")
	query.Set("id", pmid)
	if s.apiKey != "" {
		query.Set("api_key", s.apiKey)
	}

	body, err := s.get(ctx, s.baseURL+"/entrez/eutils/esummary.fcgi?"+query.Encode(), "application/xml")
	if err != nil {
		return nil, err
	}
	return parseESummary(body)
}

func parseESummary(body []byte) (Record, error) {
	var result eSummaryResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	record := Record{}
	for _, doc := range result.DocSums {
		for _, item := range doc.Items {
			switch item.Name {
			case "AuthorList":
				for _, author := range item.Items {
					record.add(models.FieldAuthor, strings.TrimSpace(author.Value))
				}
			case "Title":
				record.add(models.FieldTitle, strings.TrimSpace(item.Value))
			case "DOI":
				record.add(models.FieldDOI, strings.TrimSpace(item.Value))
			case "PubDate":
				record.add(models.FieldYear, strings.TrimSpace(item.Value))
			}
		}
	}

	if len(record) == 0 {
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoResults, strings.Join(result.Errors, "; "))
		}
		return nil, ErrNoResults
	}
	return record, nil
}
