package core

import (
	"sort"
	"strings"
	"time"
)

// Credential holds the worker-app connection details for one PingOne
// environment. ClientSecret is the in-memory plaintext form and must never
// be persisted; EncryptedSecret is the only form that touches disk.
type Credential struct {
	FriendlyName    string
	EnvironmentID   string
	ClientID        string
	ClientSecret    string
	EncryptedSecret string
}

// MissingFields lists the connection fields that still need values, in a
// stable order, so interactive callers can prompt for each one.
func (c Credential) MissingFields() []string {
	missing := []string{}
	if strings.TrimSpace(c.EnvironmentID) == "" {
		missing = append(missing, "environment_id")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	return missing
}

func (c Credential) Validate() error {
	if missing := c.MissingFields(); len(missing) > 0 {
		return missingFieldsError(missing)
	}
	return nil
}

// AccessToken is a bearer token scoped to a single client instance. It is
// valid only while now < ExpiresAt minus the transport's safety margin.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// AttributeSpec maps attribute names to their human-readable descriptions.
// A spec is treated as immutable once handed to a reconciler run.
type AttributeSpec map[string]string

// Names returns the attribute names in ascending order. Reconciliation
// iterates this ordering so traces and summaries are deterministic.
func (s AttributeSpec) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithPrefix returns a copy of the spec with every name prefixed.
func (s AttributeSpec) WithPrefix(prefix string) AttributeSpec {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return s.clone()
	}
	out := make(AttributeSpec, len(s))
	for name, description := range s {
		out[prefix+name] = description
	}
	return out
}

func (s AttributeSpec) clone() AttributeSpec {
	out := make(AttributeSpec, len(s))
	for name, description := range s {
		out[name] = description
	}
	return out
}

// DefaultAttributeSpec returns the twelve inetOrgPerson attributes the tool
// manages by default. The 'title' and 'preferredLanguage' attributes are
// intentionally excluded and are never added or removed.
func DefaultAttributeSpec() AttributeSpec {
	return AttributeSpec{
		"businessCategory":  "The type of business performed by the organization.",
		"carLicense":        "Vehicle license plate or registration.",
		"department":        "The organizational department name.",
		"departmentNumber":  "Identifies a specific department.",
		"employeeNumber":    "A numeric or alphanumeric ID assigned by the organization.",
		"employeeType":      "The nature of employment (e.g., Contractor, Intern, Temp).",
		"homePhone":         "The user's home telephone number.",
		"homePostalAddress": "The user's home address.",
		"manager":           "The name of the user's manager. (This does not update as LDAP Manager does)",
		"o":                 "The organization name.",
		"roomNumber":        "The user's office or room number.",
		"secretary":         "The name of the user's administrative assistant. (This does not update as LDAP Manager does)",
	}
}

// RemoteAttribute is the server-side representation of a schema attribute.
// Callers never assume ownership of it and re-fetch by name before mutating.
type RemoteAttribute struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
	Enabled     bool   `json:"enabled"`
	Unique      bool   `json:"unique"`
	MultiValued bool   `json:"multiValued"`
	Description string `json:"description"`
}

// AttributeUpdate carries the mutable fields of a schema attribute. Nil
// fields are left untouched by the update call.
type AttributeUpdate struct {
	Enabled     *bool
	Description *string
}

// OutcomeTag classifies the terminal state of one attribute within a run.
type OutcomeTag string

const (
	OutcomeCreated         OutcomeTag = "created"
	OutcomeSkippedExists   OutcomeTag = "skipped_exists"
	OutcomeRemoved         OutcomeTag = "removed"
	OutcomeNotFound        OutcomeTag = "not_found"
	OutcomeAlreadyDisabled OutcomeTag = "already_disabled"
	OutcomeCleared         OutcomeTag = "cleared"
	OutcomeDryRunCreate    OutcomeTag = "dry_run_would_create"
	OutcomeDryRunRemove    OutcomeTag = "dry_run_would_remove"
	OutcomeDryRunClear     OutcomeTag = "dry_run_would_clear"
	OutcomeError           OutcomeTag = "error"
)

// ItemOutcome is the per-attribute result of one reconciliation step.
type ItemOutcome struct {
	Name   string
	Tag    OutcomeTag
	Detail string
}

// RunSummary aggregates per-item outcomes for a whole reconciliation run.
type RunSummary struct {
	Items  []ItemOutcome
	counts map[OutcomeTag]int
}

func (s *RunSummary) Record(outcome ItemOutcome) {
	if s.counts == nil {
		s.counts = map[OutcomeTag]int{}
	}
	s.Items = append(s.Items, outcome)
	s.counts[outcome.Tag]++
}

func (s *RunSummary) Count(tag OutcomeTag) int {
	if s == nil || s.counts == nil {
		return 0
	}
	return s.counts[tag]
}

func (s *RunSummary) Total() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}
