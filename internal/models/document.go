package models

import (
	"fmt"
	"strings"

	"github.com/openworm/wormgraph/internal/identity"
	"github.com/openworm/wormgraph/internal/rdf"
	"github.com/openworm/wormgraph/pkg/utils"
)

const DocumentType = "Document"

// Document field names. They double as predicate local names.
const (
	FieldAuthor = "author"
	FieldURI    = "uri"
	FieldYear   = "year"
	FieldTitle  = "title"
	FieldDOI    = "doi"
	FieldWBID   = "wbid"
	FieldPMID   = "pmid"
)

// DocumentNamespace scopes document identifiers.
var DocumentNamespace = identity.Namespace(rdf.TypeNamespace(DocumentType))

// IDPrecedence lists the fields consulted, in order, when deriving a document
// identifier. The first field holding a value wins.
var IDPrecedence = []string{FieldDOI, FieldPMID, FieldWBID, FieldURI}

// DocumentSpec is the constructor input of a Document. Empty strings are
// treated as absent.
type DocumentSpec struct {
	Author []string `json:"author,omitempty" yaml:"author,omitempty"`
	URI    []string `json:"uri,omitempty" yaml:"uri,omitempty" validate:"omitempty,dive,url"`
	Year   string   `json:"year,omitempty" yaml:"year,omitempty"`
	// Date is used for year when Year is empty.
	Date  string `json:"date,omitempty" yaml:"date,omitempty"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	// DOI may be a bare DOI or a doi.org URL.
	DOI  string `json:"doi,omitempty" yaml:"doi,omitempty" validate:"omitempty,doi"`
	WBID string `json:"wbid,omitempty" yaml:"wbid,omitempty" validate:"omitempty,wbpaper"`
	// WormbaseID is used when neither WBID nor Wormbase is set.
	WormbaseID string `json:"wormbaseid,omitempty" yaml:"wormbaseid,omitempty"`
	// Wormbase is a WormBase id or paper URL. It takes precedence over WormbaseID.
	Wormbase string `json:"wormbase,omitempty" yaml:"wormbase,omitempty"`
	PMID     string `json:"pmid,omitempty" yaml:"pmid,omitempty" validate:"omitempty,pmid"`
	// PubMed is a PubMed id or URL, ignored when PMID is set.
	PubMed string `json:"pubmed,omitempty" yaml:"pubmed,omitempty"`
	// Identifier assigns an explicit IRI instead of deriving one.
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty" validate:"omitempty,uri"`
}

// Document is a publication or other source of statements.
type Document struct {
	*identity.Identity

	Author *Property
	URI    *Property
	Year   *Property
	Title  *Property
	DOI    *Property
	WBID   *Property
	PMID   *Property

	props []*Property
}

// EmptyDocument returns a document with no fields set.
func EmptyDocument(opts ...Option) (*Document, error) {
	id, err := buildIdentity(DocumentNamespace, DocumentType, opts)
	if err != nil {
		return nil, err
	}

	d := &Document{
		Identity: id,
		Author:   NewProperty(FieldAuthor, true),
		URI:      NewProperty(FieldURI, true),
		Year:     NewProperty(FieldYear, false),
		Title:    NewProperty(FieldTitle, false),
		DOI:      NewProperty(FieldDOI, false),
		WBID:     NewProperty(FieldWBID, false),
		PMID:     NewProperty(FieldPMID, false),
	}
	d.props = []*Property{d.Author, d.URI, d.Year, d.Title, d.DOI, d.WBID, d.PMID}
	id.SetAugmenter(d)
	return d, nil
}

// NewDocument builds a document from spec. PubMed and WormBase URLs are reduced
// to their ids; a URL that cannot be reduced is a validation error.
func NewDocument(spec DocumentSpec, opts ...Option) (*Document, error) {
	if spec.Identifier != "" {
		opts = append(opts, WithIdentifier(spec.Identifier))
	}
	d, err := EmptyDocument(opts...)
	if err != nil {
		return nil, err
	}

	switch {
	case spec.PMID != "":
		d.PMID.Set(spec.PMID)
	case spec.PubMed != "":
		pmid := spec.PubMed
		if isHTTP(pmid) {
			if pmid, err = PubMedURLToPMID(spec.PubMed); err != nil {
				return nil, err
			}
		}
		d.PMID.Set(pmid)
	}

	wbid := spec.WBID
	switch {
	case spec.Wormbase != "":
		wbid = spec.Wormbase
		if isHTTP(wbid) {
			if wbid, err = WormBaseURLToWBID(spec.Wormbase); err != nil {
				return nil, err
			}
		}
	case wbid == "" && spec.WormbaseID != "":
		wbid = spec.WormbaseID
	}
	if wbid != "" {
		d.WBID.Set(wbid)
	}

	if spec.DOI != "" {
		doi := spec.DOI
		if isHTTP(doi) {
			if bare, ok := DOIURLToDOI(doi); ok {
				doi = bare
			}
		}
		d.DOI.Set(doi)
	}

	switch {
	case spec.Year != "":
		d.Year.Set(spec.Year)
	case spec.Date != "":
		d.Year.Set(spec.Date)
	}

	if spec.Title != "" {
		d.Title.Set(spec.Title)
	}
	for _, a := range spec.Author {
		if a != "" {
			d.Author.Set(a)
		}
	}
	for _, u := range spec.URI {
		if u != "" {
			d.URI.Set(u)
		}
	}

	return d, nil
}

// DocumentFromStatements rebuilds the document stored under iri.
func DocumentFromStatements(iri string, stmts []rdf.Statement, opts ...Option) (*Document, error) {
	d, err := EmptyDocument(opts...)
	if err != nil {
		return nil, err
	}
	loadProperties(DocumentType, d.props, stmts)
	settleIdentifier(d.Identity, iri)
	return d, nil
}

func (d *Document) TypeName() string {
	return DocumentType
}

// Property returns the field called name, or nil.
func (d *Document) Property(name string) *Property {
	for _, p := range d.props {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Properties returns all fields in declaration order.
func (d *Document) Properties() []*Property {
	return d.props
}

// AugmentIdentifier derives the identifier from the first field in
// IDPrecedence that has a value. The hash input is "<field>:" followed by the
// HashForm of that field's first value, e.g. pmid:"24098140".
func (d *Document) AugmentIdentifier() (string, bool) {
	key, ok := d.IdentityKey()
	if !ok {
		return "", false
	}
	iri, err := d.MakeIdentifier(key)
	if err != nil {
		return "", false
	}
	return iri, true
}

// IdentityKey returns the string the derived identifier is hashed from.
func (d *Document) IdentityKey() (string, bool) {
	for _, name := range IDPrecedence {
		if v, ok := d.Property(name).First(); ok {
			return name + ":" + rdf.HashForm(v), true
		}
	}
	return "", false
}

// Statements renders the document under its current identifier.
func (d *Document) Statements() ([]rdf.Statement, error) {
	iri, err := d.Identifier()
	if err != nil {
		return nil, err
	}
	return statementsFor(iri, DocumentType, d.props), nil
}

func (d *Document) Fields() map[string][]string {
	return fieldsOf(d.props)
}

func (d *Document) String() string {
	if iri, err := d.Identifier(); err == nil {
		return fmt.Sprintf("Document(%s)", iri)
	}
	return "Document(?)"
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http")
}

func invalidURL(kind, raw string, err error) error {
	return utils.NewAppError(utils.CodeValidation,
		fmt.Sprintf("couldn't convert %s URL to an id", kind),
		fmt.Errorf("%s: %w", raw, utils.ErrValidation)).WithDetail("url", raw).WithDetail("cause", fmt.Sprint(err))
}
