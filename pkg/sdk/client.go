package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 30 * time.Second
	apiV1BasePath  = "/api/v1"
)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	// Services
	Documents   *DocumentService
	Cells       *CellService
	Identifiers *IdentifierService
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q needs a scheme and host", baseURL)
	}

	client := &Client{
		baseURL: parsedURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	client.Documents = &DocumentService{client: client}
	client.Cells = &CellService{client: client}
	client.Identifiers = &IdentifierService{client: client}

	return client, nil
}

// HealthCheck checks if the wormgraph service is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}

	return nil
}

// ReadinessCheck checks if the wormgraph service is ready
func (c *Client) ReadinessCheck(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/ready", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("readiness check failed with status: %d", resp.StatusCode)
	}

	return nil
}

// GetStats retrieves transaction and rate limit counters.
func (c *Client) GetStats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.doJSONRequest(ctx, http.MethodGet, "/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// escapeIRI turns an IRI into a single path segment.
func escapeIRI(iri string) string {
	return url.PathEscape(iri)
}

// doRequest performs an HTTP request. rawPath may hold escaped segments such
// as IRIs produced by escapeIRI.
func (c *Client) doRequest(ctx context.Context, method, rawPath string, query url.Values, body any) (*http.Response, error) {
	u := *c.baseURL
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("invalid request path: %w", err)
	}
	base := strings.TrimSuffix(u.Path, "/")
	u.Path = base + path
	u.RawPath = base + rawPath
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// doJSONRequest performs a JSON request and decodes the response
func (c *Client) doJSONRequest(ctx context.Context, method, path string, query url.Values, reqBody, respBody any) error {
	resp, err := c.doRequest(ctx, method, path, query, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp)
	}

	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// handleErrorResponse processes error responses from the API
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return &APIError{
			Code:       ErrorCodeUnknown,
			Message:    strings.TrimSpace(string(body)),
			StatusCode: resp.StatusCode,
		}
	}

	apiErr := envelope.Error
	apiErr.StatusCode = resp.StatusCode
	if apiErr.Code == "" {
		apiErr.Code = ErrorCodeUnknown
	}
	return apiErr
}
