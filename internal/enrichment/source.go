// Package enrichment fills in document metadata from remote bibliographic
// services.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openworm/wormgraph/internal/resilience"
	"github.com/openworm/wormgraph/pkg/utils"
)

const (
	SourceWormBase = "wormbase"
	SourcePubMed   = "pubmed"
	SourceCrossRef = "crossref"
)

const (
	DefaultWormBaseURL = "http://api.wormbase.org"
	DefaultPubMedURL   = "https://eutils.ncbi.nlm.nih.gov"
	DefaultCrossRefURL = "http://search.labs.crossref.org"
)

const maxResponseSize = 4 << 20

var (
	// ErrMalformedRecord marks a response that could not be decoded into a
	// record.
	ErrMalformedRecord = errors.New("malformed metadata record")
	// ErrNoResults marks a well-formed response that carried no metadata.
	ErrNoResults = errors.New("no metadata returned")
	// ErrUnknownSource is returned for a source name with no fetcher.
	ErrUnknownSource = fmt.Errorf("unknown metadata source: %w", utils.ErrInvalidInput)
)

// Record maps document field names to raw values returned by a source.
type Record map[string][]string

func (r Record) add(field string, values ...string) {
	for _, v := range values {
		if v != "" {
			r[field] = append(r[field], v)
		}
	}
}

// Source retrieves the metadata record for one external identifier.
type Source interface {
	Name() string
	Fetch(ctx context.Context, externalID string) (Record, error)
}

type SourceConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
}

type httpSource struct {
	name      string
	client    *http.Client
	baseURL   string
	userAgent string
}

func newHTTPSource(name string, cfg SourceConfig, defaultURL string) httpSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wormgraph"
	}
	return httpSource{
		name:      name,
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
	}
}

// get issues a GET and returns the body. Throttling and server errors are
// marked retryable; 404 wraps utils.ErrNotFound.
func (s httpSource) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", s.name, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resilience.MarkRetryable(fmt.Errorf("failed to read %s response: %w", s.name, err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s returned %d: %w", s.name, resp.StatusCode, utils.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resilience.MarkRetryable(fmt.Errorf("%s returned %d", s.name, resp.StatusCode))
	default:
		return nil, fmt.Errorf("%s returned %d", s.name, resp.StatusCode)
	}
}
