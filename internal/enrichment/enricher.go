package enrichment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/openworm/wormgraph/internal/models"
	"github.com/openworm/wormgraph/internal/observability"
	"github.com/openworm/wormgraph/internal/security"
	"github.com/openworm/wormgraph/pkg/utils"
)

type Status string

const (
	// StatusApplied means at least one field changed.
	StatusApplied Status = "applied"
	// StatusUnchanged means the record held nothing new.
	StatusUnchanged Status = "unchanged"
	// StatusSkipped means no usable record was retrieved; the document was
	// left as it was.
	StatusSkipped Status = "skipped"
)

// Report describes one enrichment attempt.
type Report struct {
	RunID      string              `json:"run_id"`
	Source     string              `json:"source"`
	ExternalID string              `json:"external_id"`
	Status     Status              `json:"status"`
	Applied    map[string][]string `json:"applied,omitempty"`
	Cached     bool                `json:"cached"`
	Err        error               `json:"-"`
}

// Reason returns why a report was skipped, or "".
func (r *Report) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MultiplicityError is returned when a document does not carry exactly one
// value of the key field a source is queried by.
type MultiplicityError struct {
	Source string
	Field  string
	Count  int
}

func (e *MultiplicityError) Error() string {
	name := sourceDisplayName[e.Source]
	if e.Count == 0 {
		return fmt.Sprintf("There is no %s ID attached to this Document. So no data can be retrieved", name)
	}
	return fmt.Sprintf("There is more than one %s ID attached to this Document. Please try with just one %s ID", name, name)
}

func (e *MultiplicityError) Unwrap() error {
	return utils.ErrMultiplicity
}

var sourceDisplayName = map[string]string{
	SourceWormBase: "Wormbase",
	SourcePubMed:   "Pubmed",
	SourceCrossRef: "DOI",
}

// KeyField returns the document field a source is queried by.
func KeyField(source string) (string, bool) {
	switch source {
	case SourceWormBase:
		return models.FieldWBID, true
	case SourcePubMed:
		return models.FieldPMID, true
	case SourceCrossRef:
		return models.FieldDOI, true
	}
	return "", false
}

// applyOrder fixes the order fields are written in, so reports are stable.
var applyOrder = []string{
	models.FieldAuthor,
	models.FieldTitle,
	models.FieldYear,
	models.FieldDOI,
	models.FieldPMID,
	models.FieldWBID,
}

// Enricher applies remote metadata records to documents.
type Enricher struct {
	fetchers  map[string]*Fetcher
	sanitizer *security.InputSanitizer
	logger    *observability.Logger
	metrics   *observability.MetricsManager
}

type EnricherOption func(*Enricher)

func WithSanitizer(s *security.InputSanitizer) EnricherOption {
	return func(e *Enricher) { e.sanitizer = s }
}

func WithLogger(l *observability.Logger) EnricherOption {
	return func(e *Enricher) { e.logger = l }
}

func WithEnrichmentMetrics(m *observability.MetricsManager) EnricherOption {
	return func(e *Enricher) { e.metrics = m }
}

func NewEnricher(fetchers []*Fetcher, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		fetchers: make(map[string]*Fetcher, len(fetchers)),
		logger:   observability.NewNopLogger(),
	}
	for _, f := range fetchers {
		e.fetchers[f.Name()] = f
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sanitizer == nil {
		e.sanitizer = security.NewInputSanitizer(security.SanitizerConfig{Enabled: true, MaxStringLength: 2000})
	}
	return e
}

// Sources lists the configured source names.
func (e *Enricher) Sources() []string {
	names := make([]string, 0, len(e.fetchers))
	for name := range e.fetchers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *Enricher) UpdateFromWormBase(ctx context.Context, doc *models.Document, replace bool) (*Report, error) {
	return e.Enrich(ctx, doc, SourceWormBase, replace)
}

func (e *Enricher) UpdateFromPubMed(ctx context.Context, doc *models.Document, replace bool) (*Report, error) {
	return e.Enrich(ctx, doc, SourcePubMed, replace)
}

func (e *Enricher) UpdateFromCrossRef(ctx context.Context, doc *models.Document, replace bool) (*Report, error) {
	return e.Enrich(ctx, doc, SourceCrossRef, replace)
}

// Enrich fetches the record for doc from source and applies it. An error is
// returned only when the document cannot be queried (MultiplicityError) or the
// source is unknown; retrieval problems produce a skipped report and leave doc
// untouched.
func (e *Enricher) Enrich(ctx context.Context, doc *models.Document, source string, replace bool) (*Report, error) {
	field, ok := KeyField(source)
	fetcher := e.fetchers[source]
	if !ok || fetcher == nil {
		return nil, fmt.Errorf("%q: %w", source, ErrUnknownSource)
	}

	values := doc.Property(field).Strings()
	if len(values) != 1 {
		return nil, &MultiplicityError{Source: source, Field: field, Count: len(values)}
	}

	externalID := strings.TrimSpace(values[0])
	if source == SourceCrossRef {
		if bare, ok := models.DOIURLToDOI(externalID); ok {
			externalID = bare
		}
	}

	report := &Report{
		RunID:      uuid.New().String(),
		Source:     source,
		ExternalID: externalID,
	}

	result := fetcher.Fetch(ctx, externalID)
	report.Cached = result.Cached
	if !result.OK() {
		return e.skip(report, result.Err), nil
	}

	updates, err := e.normalize(result.Record)
	if err != nil {
		return e.skip(report, err), nil
	}

	report.Applied = apply(doc, updates, replace)
	report.Status = StatusUnchanged
	if len(report.Applied) > 0 {
		report.Status = StatusApplied
	}

	e.recordOutcome(report)
	e.logger.WithSource(source, externalID).Debug().
		Str("status", string(report.Status)).
		Int("fields", len(report.Applied)).
		Msg("document enriched")
	return report, nil
}

func (e *Enricher) skip(report *Report, err error) *Report {
	report.Status = StatusSkipped
	report.Err = fmt.Errorf("couldn't retrieve %s data: %w", report.Source, err)

	e.logger.WithSource(report.Source, report.ExternalID).Warn().
		Err(err).
		Str("run_id", report.RunID).
		Msgf("Couldn't retrieve %s data", sourceDisplayName[report.Source])
	e.recordOutcome(report)
	return report
}

func (e *Enricher) recordOutcome(report *Report) {
	if e.metrics != nil {
		e.metrics.RecordEnrichment(report.Source, string(report.Status))
	}
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// normalize sanitizes every value of record and converts it to the form the
// document stores. Values that normalise to nothing are dropped. A record left
// with no values at all is malformed.
func (e *Enricher) normalize(record Record) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, field := range applyOrder {
		for _, raw := range record[field] {
			v, err := e.sanitizer.SanitizeString(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, field, err)
			}
			v = normalizeValue(field, v)
			if v != "" && !slices.Contains(out[field], v) {
				out[field] = append(out[field], v)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return out, nil
}

func normalizeValue(field, v string) string {
	switch field {
	case models.FieldYear:
		return yearPattern.FindString(v)
	case models.FieldPMID:
		if !numeric(v) {
			return ""
		}
	case models.FieldDOI:
		if bare, ok := models.DOIURLToDOI(v); ok {
			v = bare
		}
		if !strings.HasPrefix(v, "10.") {
			return ""
		}
	}
	return v
}

// apply writes updates into doc and returns the fields whose values changed.
// With replace a field is cleared before its new values are set. Without it a
// single-valued field is only filled when empty and a multi-valued field
// gains the values it does not hold yet.
func apply(doc *models.Document, updates map[string][]string, replace bool) map[string][]string {
	applied := make(map[string][]string)
	for _, field := range applyOrder {
		values, ok := updates[field]
		if !ok {
			continue
		}
		p := doc.Property(field)
		if p == nil {
			continue
		}
		before := p.Strings()

		switch {
		case replace:
			p.Clear()
			if p.Multiple() {
				for _, v := range values {
					p.Set(v)
				}
			} else {
				p.Set(values[0])
			}
		case p.Multiple():
			for _, v := range values {
				p.Set(v)
			}
		case !p.HasDefinedValue():
			p.Set(values[0])
		}

		if after := p.Strings(); !slices.Equal(before, after) {
			applied[field] = after
		}
	}
	return applied
}

// IsMultiplicity reports whether err is a MultiplicityError.
func IsMultiplicity(err error) bool {
	var me *MultiplicityError
	return errors.As(err, &me)
}
