package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/openworm/wormgraph/internal/models"
)

// WormBaseSource reads the paper overview widget of the WormBase REST API.
type WormBaseSource struct {
	httpSource
}

func NewWormBaseSource(cfg SourceConfig) *WormBaseSource {
	return &WormBaseSource{httpSource: newHTTPSource(SourceWormBase, cfg, DefaultWormBaseURL)}
}

func (s *WormBaseSource) Name() string {
	return SourceWormBase
}

type wbOverviewResponse struct {
	Overview *struct {
		Authors *struct {
			Data []struct {
				Label string `json:"label"`
			} `json:"data"`
		} `json:"authors"`
		PMID  *wbField `json:"pmid"`
		Year  *wbField `json:"year"`
		Title *wbField `json:"title"`
		DOI   *wbField `json:"doi"`
	} `json:"overview"`
}

type wbField struct {
	Data json.RawMessage `json:"data"`
}

// value accepts string and number payloads; null and anything else yield "".
func (f *wbField) value() string {
	if f == nil || len(f.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(f.Data, &n); err == nil {
		return n.String()
	}
	return ""
}

func (s *WormBaseSource) Fetch(ctx context.Context, wbid string) (Record, error) {
	endpoint := s.baseURL + "/rest/field/paper/" + url.PathEscape(wbid) + "/overview"
	body, err := s.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	return parseWormBaseOverview(body)
}

func parseWormBaseOverview(body []byte) (Record, error) {
	var resp wbOverviewResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if resp.Overview == nil {
		return nil, fmt.Errorf("%w: no overview in response", ErrMalformedRecord)
	}

	o := resp.Overview
	record := Record{}
	if o.Authors != nil {
		for _, a := range o.Authors.Data {
			record.add(models.FieldAuthor, a.Label)
		}
	}
	record.add(models.FieldPMID, o.PMID.value())
	record.add(models.FieldYear, o.Year.value())
	record.add(models.FieldTitle, o.Title.value())
	record.add(models.FieldDOI, o.DOI.value())

	if len(record) == 0 {
		return nil, ErrNoResults
	}
	return record, nil
}

// numeric reports whether s is a non-empty run of ASCII digits.
func numeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return err == nil
}
