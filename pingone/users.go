package pingone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mattpollicove/p1person/core"
)

// UserName is the structured name block of a PingOne user.
type UserName struct {
	Given  string `json:"given,omitempty"`
	Family string `json:"family,omitempty"`
}

// UserLifecycle carries the account lifecycle status.
type UserLifecycle struct {
	Status string `json:"status,omitempty"`
}

// User is the subset of the PingOne user resource this tool creates and
// reads back. Custom schema attributes ride along in Attributes.
type User struct {
	ID                string            `json:"id,omitempty"`
	Username          string            `json:"username"`
	Email             string            `json:"email"`
	Name              UserName          `json:"name"`
	Lifecycle         *UserLifecycle    `json:"lifecycle,omitempty"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description,omitempty"`
	TelephoneNumber   string            `json:"telephoneNumber,omitempty"`
	HomePhone         string            `json:"homePhone,omitempty"`
	Mobile            string            `json:"mobile,omitempty"`
	HomePostalAddress string            `json:"homePostalAddress,omitempty"`
	EmployeeNumber    string            `json:"employeeNumber,omitempty"`
	EmployeeType      string            `json:"employeeType,omitempty"`
	Attributes        map[string]string `json:"-"`
}

// CreateUser provisions a user in the environment and returns the created
// resource.
func (c *Client) CreateUser(ctx context.Context, user User) (*User, error) {
	if strings.TrimSpace(user.Username) == "" {
		return nil, core.NewError("pingone: username is required", goerrors.CategoryBadInput)
	}

	payload, err := user.payload()
	if err != nil {
		return nil, err
	}
	body, err := c.request(ctx, http.MethodPost, fmt.Sprintf("environments/%s/users", c.envID), payload)
	if err != nil {
		return nil, err
	}

	var created User
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryExternal, "pingone: decode created user")
	}
	return &created, nil
}

// payload flattens the custom attribute map into the top-level user object,
// which is how the schema exposes single-valued string attributes.
func (u User) payload() (map[string]any, error) {
	type alias User
	encoded, err := json.Marshal(alias(u))
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "pingone: encode user")
	}
	flat := map[string]any{}
	if err := json.Unmarshal(encoded, &flat); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "pingone: flatten user")
	}
	for name, value := range u.Attributes {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		flat[name] = value
	}
	return flat, nil
}
