package security

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

type SanitizerConfig struct {
	Enabled         bool `yaml:"enabled" mapstructure:"enabled"`
	MaxStringLength int  `yaml:"max_string_length" mapstructure:"max_string_length"`
	StrictMode      bool `yaml:"strict_mode" mapstructure:"strict_mode"`
}

// InputSanitizer cleans text that enters the graph from outside: request
// bodies and metadata fetched from remote services. Remote titles often carry
// inline markup such as <i>C. elegans</i>, which is reduced to plain text.
type InputSanitizer struct {
	config SanitizerConfig
	policy *bluemonday.Policy
}

func NewInputSanitizer(config SanitizerConfig) *InputSanitizer {
	sanitizer := &InputSanitizer{
		config: config,
	}

	if config.Enabled {
		sanitizer.policy = bluemonday.StrictPolicy()
	}

	return sanitizer
}

// SanitizeString strips markup and control characters and collapses runs of
// whitespace.
func (is *InputSanitizer) SanitizeString(input string) (string, error) {
	if !is.config.Enabled {
		return input, nil
	}

	if !utf8.ValidString(input) {
		if is.config.StrictMode {
			return "", fmt.Errorf("invalid UTF-8 string")
		}
		input = strings.ToValidUTF8(input, "")
	}

	input = is.policy.Sanitize(input)
	// bluemonday escapes entities in its output; the graph stores plain text.
	input = html.UnescapeString(input)

	input = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	input = strings.Join(strings.Fields(input), " ")

	if max := is.config.MaxStringLength; max > 0 && utf8.RuneCountInString(input) > max {
		if is.config.StrictMode {
			return "", fmt.Errorf("string length exceeds maximum allowed length of %d", max)
		}
		input = string([]rune(input)[:max])
	}

	return input, nil
}

// SanitizeStrings applies SanitizeString to each value and drops values that
// end up empty.
func (is *InputSanitizer) SanitizeStrings(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, err := is.SanitizeString(v)
		if err != nil {
			return nil, err
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// SanitizeURL accepts absolute http(s) URLs only.
func (is *InputSanitizer) SanitizeURL(rawURL string) (string, error) {
	if !is.config.Enabled {
		return rawURL, nil
	}

	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(parsedURL.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("disallowed URL scheme: %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("URL has no host: %q", rawURL)
	}

	return parsedURL.String(), nil
}

// SanitizeSearchQuery cleans a free-text search query.
func (is *InputSanitizer) SanitizeSearchQuery(query string) (string, error) {
	sanitized, err := is.SanitizeString(query)
	if err != nil {
		return "", err
	}

	if len(sanitized) > 1000 {
		return "", fmt.Errorf("search query too long")
	}

	return sanitized, nil
}

func (is *InputSanitizer) IsEnabled() bool {
	return is.config.Enabled
}
