package sdk

import (
	"context"
	"net/http"
	"net/url"
)

// CellService handles neurons and muscles.
type CellService struct {
	client *Client
}

func cellPath(kind CellKind) string {
	return apiV1BasePath + "/cells/" + url.PathEscape(string(kind))
}

// Create stores a cell under the identifier built from its name.
func (s *CellService) Create(ctx context.Context, kind CellKind, spec *CellSpec) (*Entity, error) {
	if spec == nil || spec.Name == "" {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "cell name is required"}
	}

	var entity Entity
	if err := s.client.doJSONRequest(ctx, http.MethodPost, cellPath(kind), nil, spec, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// Get retrieves the cell of kind called name.
func (s *CellService) Get(ctx context.Context, kind CellKind, name string) (*Entity, error) {
	if name == "" {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "cell name is required"}
	}

	var entity Entity
	if err := s.client.doJSONRequest(ctx, http.MethodGet, cellPath(kind)+"/"+url.PathEscape(name), nil, nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// IdentifierService derives identifiers without storing anything.
type IdentifierService struct {
	client *Client
}

// PreviewDocument returns the identifier spec would be stored under.
func (s *IdentifierService) PreviewDocument(ctx context.Context, spec *DocumentSpec) (*IdentifierPreview, error) {
	if spec == nil {
		return nil, &APIError{Code: ErrorCodeValidation, Message: "document spec is required"}
	}

	var preview IdentifierPreview
	if err := s.client.doJSONRequest(ctx, http.MethodPost, apiV1BasePath+"/identifiers/documents", nil, spec, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}
