package pingone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mattpollicove/p1person/core"
)

const userSchemaName = "User"

// SchemaAPI exposes the User-schema attribute operations the reconciler
// needs. The Client implements it against the live API.
type SchemaAPI struct {
	client *Client

	mu           sync.Mutex
	userSchemaID string
}

func NewSchemaAPI(client *Client) (*SchemaAPI, error) {
	if client == nil {
		return nil, core.NewError("pingone: client is required", goerrors.CategoryInternal)
	}
	return &SchemaAPI{client: client}, nil
}

type schemaListResponse struct {
	Embedded struct {
		Schemas []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"schemas"`
	} `json:"_embedded"`
}

type attributeListResponse struct {
	Embedded struct {
		Attributes []core.RemoteAttribute `json:"attributes"`
	} `json:"_embedded"`
}

// UserSchemaID resolves and caches the environment's User schema id. The id
// is stable for the lifetime of an environment, so one lookup per process
// suffices.
func (s *SchemaAPI) UserSchemaID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userSchemaID != "" {
		return s.userSchemaID, nil
	}

	body, err := s.client.request(ctx, http.MethodGet,
		fmt.Sprintf("environments/%s/schemas", s.client.EnvironmentID()), nil)
	if err != nil {
		return "", err
	}

	var parsed schemaListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", core.WrapError(err, goerrors.CategoryExternal, "pingone: decode schema list")
	}
	for _, schema := range parsed.Embedded.Schemas {
		if schema.Name == userSchemaName {
			if strings.TrimSpace(schema.ID) == "" {
				break
			}
			s.userSchemaID = schema.ID
			return schema.ID, nil
		}
	}
	return "", core.NewError(
		fmt.Sprintf("pingone: schema %q not found in environment %s", userSchemaName, s.client.EnvironmentID()),
		goerrors.CategoryNotFound,
	)
}

// ListAttributes returns every attribute defined on the User schema.
func (s *SchemaAPI) ListAttributes(ctx context.Context) ([]core.RemoteAttribute, error) {
	schemaID, err := s.UserSchemaID(ctx)
	if err != nil {
		return nil, err
	}

	body, err := s.client.request(ctx, http.MethodGet,
		fmt.Sprintf("environments/%s/schemas/%s/attributes", s.client.EnvironmentID(), schemaID), nil)
	if err != nil {
		return nil, err
	}

	var parsed attributeListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryExternal, "pingone: decode attribute list")
	}
	return parsed.Embedded.Attributes, nil
}

// FindAttribute returns the attribute with the given name, or (nil, nil)
// when the schema resolves but no attribute matches. Lookup failures are
// returned as errors so callers can tell "known absent" from "unknown".
func (s *SchemaAPI) FindAttribute(ctx context.Context, name string) (*core.RemoteAttribute, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.NewError("pingone: attribute name is required", goerrors.CategoryBadInput)
	}
	attrs, err := s.ListAttributes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i], nil
		}
	}
	return nil, nil
}

type createAttributePayload struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Enabled     bool   `json:"enabled"`
	Unique      bool   `json:"unique"`
	MultiValued bool   `json:"multiValued"`
}

// CreateAttribute declares a new single-valued, non-unique STRING attribute
// on the User schema.
func (s *SchemaAPI) CreateAttribute(ctx context.Context, name, description string) (*core.RemoteAttribute, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.NewError("pingone: attribute name is required", goerrors.CategoryBadInput)
	}
	schemaID, err := s.UserSchemaID(ctx)
	if err != nil {
		return nil, err
	}

	body, err := s.client.request(ctx, http.MethodPost,
		fmt.Sprintf("environments/%s/schemas/%s/attributes", s.client.EnvironmentID(), schemaID),
		createAttributePayload{
			Name:        name,
			DisplayName: name,
			Description: description,
			Type:        "STRING",
			Enabled:     true,
			Unique:      false,
			MultiValued: false,
		})
	if err != nil {
		return nil, err
	}

	var created core.RemoteAttribute
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryExternal, "pingone: decode created attribute")
	}
	return &created, nil
}

// DeleteAttribute removes an attribute by id.
func (s *SchemaAPI) DeleteAttribute(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewError("pingone: attribute id is required", goerrors.CategoryBadInput)
	}
	schemaID, err := s.UserSchemaID(ctx)
	if err != nil {
		return err
	}
	_, err = s.client.request(ctx, http.MethodDelete,
		fmt.Sprintf("environments/%s/schemas/%s/attributes/%s", s.client.EnvironmentID(), schemaID, id), nil)
	return err
}

// UpdateAttribute patches the mutable fields of an attribute. Nil fields in
// the update are omitted from the request.
func (s *SchemaAPI) UpdateAttribute(ctx context.Context, id string, update core.AttributeUpdate) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewError("pingone: attribute id is required", goerrors.CategoryBadInput)
	}
	payload := map[string]any{}
	if update.Enabled != nil {
		payload["enabled"] = *update.Enabled
	}
	if update.Description != nil {
		payload["description"] = *update.Description
	}
	if len(payload) == 0 {
		return nil
	}
	schemaID, err := s.UserSchemaID(ctx)
	if err != nil {
		return err
	}
	_, err = s.client.request(ctx, http.MethodPatch,
		fmt.Sprintf("environments/%s/schemas/%s/attributes/%s", s.client.EnvironmentID(), schemaID, id), payload)
	return err
}
