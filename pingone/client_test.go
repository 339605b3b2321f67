package pingone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mattpollicove/p1person/core"
)

// testEnv wires a token endpoint and an API endpoint into one client.
type testEnv struct {
	client *Client
	api    *httptest.Server
}

func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "header.payload.signature",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenServer.Close)

	apiServer := httptest.NewServer(handler)
	t.Cleanup(apiServer.Close)

	source, err := NewTokenSource(TokenSourceConfig{
		Credential:  testCredential(),
		AuthBaseURL: tokenServer.URL,
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	cfg := core.DefaultConfig()
	cfg.EnvironmentID = "env-1"
	cfg.ClientID = "client-1"
	client, err := New(cfg, source, WithBaseURL(apiServer.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return &testEnv{client: client, api: apiServer}
}

func TestClient_ForbiddenNamesRolesAndClient(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"message": "insufficient permissions"})
	}))

	_, err := env.client.TestConnection(context.Background())
	if err == nil {
		t.Fatalf("expected forbidden error")
	}
	if !core.IsForbidden(err) {
		t.Fatalf("expected forbidden classification, got %v", err)
	}
	for _, want := range []string{"Environment Admin", "Identity Data Admin", "client-1"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %q: %v", want, err)
		}
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error")
	}
	if rich.Metadata["detail"] != "insufficient permissions" {
		t.Fatalf("expected api detail in metadata, got %v", rich.Metadata)
	}
}

func TestClient_UnauthorizedRetriesWithFreshToken(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))

	if _, err := env.client.TestConnection(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("api calls = %d, want 2", calls)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type failingDoer struct{ err error }

func (d failingDoer) Do(*http.Request) (*http.Response, error) { return nil, d.err }

func TestClient_ClassifiesTimeoutAndNetworkErrors(t *testing.T) {
	timeout := classifyRequestError(timeoutError{}, http.MethodGet, "https://api.pingone.com/v1/x")
	if !core.IsTimeout(timeout) {
		t.Fatalf("expected timeout classification, got %v", timeout)
	}

	network := classifyRequestError(errors.New("connection refused"), http.MethodGet, "https://api.pingone.com/v1/x")
	if core.IsTimeout(network) {
		t.Fatalf("connection refused must not classify as timeout")
	}
	var rich *goerrors.Error
	if !goerrors.As(network, &rich) {
		t.Fatalf("expected rich error")
	}
	if rich.TextCode != core.TextCodeNetwork {
		t.Fatalf("text code = %q, want %q", rich.TextCode, core.TextCodeNetwork)
	}
}

func TestClient_NoContentYieldsNilBody(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	body, err := env.client.request(context.Background(), http.MethodDelete, "environments/env-1/x", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != nil {
		t.Fatalf("expected nil body for 204, got %q", body)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []core.APICallRecord
}

func (s *recordingSink) RecordCall(_ context.Context, rec core.APICallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) RecordConnection(context.Context, core.ConnectionRecord) error {
	return nil
}

func TestClient_FeedsActivitySink(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	sink := &recordingSink{}
	WithActivitySink(sink)(env.client)
	WithClock(fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))(env.client)

	if _, err := env.client.TestConnection(context.Background()); err != nil {
		t.Fatalf("test connection: %v", err)
	}

	// The token grant is reported alongside the API call itself.
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) != 2 {
		t.Fatalf("records = %d, want 2", len(sink.records))
	}
	grant := sink.records[0]
	if grant.Method != http.MethodPost || !strings.HasSuffix(grant.URL, "/as/token") {
		t.Fatalf("unexpected grant record %+v", grant)
	}
	rec := sink.records[1]
	if rec.Method != http.MethodGet || rec.StatusCode != http.StatusOK {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !strings.HasSuffix(rec.URL, "/environments/env-1") {
		t.Fatalf("record url = %q", rec.URL)
	}
}

func TestClient_SinkFailureDoesNotAbortCall(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	WithActivitySink(failingSink{})(env.client)

	if _, err := env.client.TestConnection(context.Background()); err != nil {
		t.Fatalf("sink failure must not abort the call: %v", err)
	}
}

type failingSink struct{}

func (failingSink) RecordCall(context.Context, core.APICallRecord) error {
	return errors.New("db locked")
}

func (failingSink) RecordConnection(context.Context, core.ConnectionRecord) error {
	return errors.New("db locked")
}

func TestClient_NotFoundIsNotSchemaNotFound(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"message": "attribute not found"})
	}))

	_, err := env.client.request(context.Background(), http.MethodDelete, "environments/env-1/schemas/s-1/attributes/stale-id", nil)
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	// A stale resource ID must not classify as the missing-User-schema
	// condition.
	if core.IsSchemaNotFound(err) {
		t.Fatalf("generic 404 must not classify as schema-not-found: %v", err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error")
	}
	if rich.Code != http.StatusNotFound || rich.TextCode != core.TextCodeAPIFailed {
		t.Fatalf("code=%d textCode=%q, want 404/%q", rich.Code, rich.TextCode, core.TextCodeAPIFailed)
	}
}

func TestElapsedMillisRoundsToTwoDecimals(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want float64
	}{
		{420 * time.Microsecond, 0.42},
		{1234567 * time.Nanosecond, 1.23},
		{80 * time.Millisecond, 80},
		{2*time.Second + 345*time.Millisecond + 678*time.Microsecond, 2345.68},
	}
	for _, tc := range cases {
		if got := elapsedMillis(tc.d); got != tc.want {
			t.Fatalf("elapsedMillis(%v) = %v, want %v", tc.d, got, tc.want)
		}
	}
}

func TestClient_TestConnectionReturnsEnvironmentName(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "env-1", "name": "Engineering Sandbox"})
	}))

	name, err := env.client.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("test connection: %v", err)
	}
	if name != "Engineering Sandbox" {
		t.Fatalf("environment name = %q, want %q", name, "Engineering Sandbox")
	}
}
