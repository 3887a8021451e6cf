package models

import (
	"errors"
	"net/url"
	"strings"
)

var errNoIDSegment = errors.New("url path has no id segment")

// PubMedURLToPMID extracts the id from URLs like
// https://www.ncbi.nlm.nih.gov/pubmed/24098140.
func PubMedURLToPMID(raw string) (string, error) {
	id, err := secondPathSegment(raw)
	if err != nil {
		return "", invalidURL("PubMed", raw, err)
	}
	return id, nil
}

// WormBaseURLToWBID extracts the id from URLs like
// http://www.wormbase.org/resources/paper/WBPaper00044287.
func WormBaseURLToWBID(raw string) (string, error) {
	id, err := secondPathSegment(raw)
	if err != nil {
		return "", invalidURL("WormBase", raw, err)
	}
	return id, nil
}

// DOIURLToDOI strips a doi.org URL down to the DOI. URLs on other hosts are
// reported as not convertible.
func DOIURLToDOI(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Host, "doi.org") {
		return "", false
	}
	_, doi, ok := strings.Cut(u.Path, "/")
	if !ok || doi == "" {
		return "", false
	}
	return doi, true
}

// secondPathSegment returns the segment after the first one: for /a/b/c it is b.
func secondPathSegment(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	parts := strings.Split(u.Path, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", errNoIDSegment
	}
	return parts[2], nil
}
