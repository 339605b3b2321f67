package pingone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mattpollicove/p1person/core"
)

func testCredential() core.Credential {
	return core.Credential{
		EnvironmentID: "env-1",
		ClientID:      "client-1",
		ClientSecret:  "secret-1",
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTokenServer(t *testing.T, grants *atomic.Int64, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/env-1/as/token" {
			t.Errorf("unexpected token path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-1" || pass != "secret-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		grants.Add(1)
		payload := map[string]any{
			"access_token": "header.payload.signature",
			"token_type":   "Bearer",
		}
		if expiresIn > 0 {
			payload["expires_in"] = expiresIn
		}
		json.NewEncoder(w).Encode(payload)
	}))
}

func TestTokenSource_CachesWithinMargin(t *testing.T) {
	var grants atomic.Int64
	server := newTokenServer(t, &grants, 3600)
	defer server.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	source, err := NewTokenSource(TokenSourceConfig{
		Credential:  testCredential(),
		AuthBaseURL: server.URL,
		Now:         func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	first, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	if first.Value != "header.payload.signature" {
		t.Fatalf("token value = %q", first.Value)
	}
	if want := base.Add(time.Hour); !first.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", first.ExpiresAt, want)
	}

	// Still comfortably outside the 5 minute margin: cached token reused.
	current = base.Add(30 * time.Minute)
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("cached token: %v", err)
	}
	if grants.Load() != 1 {
		t.Fatalf("grants = %d, want 1", grants.Load())
	}

	// Inside the margin: a fresh grant is required.
	current = base.Add(56 * time.Minute)
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if grants.Load() != 2 {
		t.Fatalf("grants = %d, want 2", grants.Load())
	}
}

func TestTokenSource_DefaultsLifetimeWhenOmitted(t *testing.T) {
	var grants atomic.Int64
	server := newTokenServer(t, &grants, 0)
	defer server.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	source, err := NewTokenSource(TokenSourceConfig{
		Credential:  testCredential(),
		AuthBaseURL: server.URL,
		Now:         fixedClock(base),
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if want := base.Add(3600 * time.Second); !token.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", token.ExpiresAt, want)
	}
}

func TestTokenSource_RejectedGrantIsAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_client",
			"error_description": "Invalid client secret",
		})
	}))
	defer server.Close()

	source, err := NewTokenSource(TokenSourceConfig{
		Credential:  testCredential(),
		AuthBaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	_, err = source.Token(context.Background())
	if err == nil {
		t.Fatalf("expected grant rejection")
	}
	if !core.IsAuthFailure(err) {
		t.Fatalf("expected auth classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid client secret") {
		t.Fatalf("error should carry the grant rejection detail: %v", err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error")
	}
	if rich.Metadata["detail"] != "Invalid client secret" {
		t.Fatalf("expected detail in metadata, got %v", rich.Metadata)
	}
}

func TestGrantErrorDetailFallsBackThroughFields(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"error":"invalid_client","error_description":"Invalid client secret"}`, "Invalid client secret"},
		{`{"error":"invalid_client"}`, "invalid_client"},
		{`upstream proxy error`, "upstream proxy error"},
		{``, ""},
	}
	for _, tc := range cases {
		if got := grantErrorDetail([]byte(tc.body)); got != tc.want {
			t.Fatalf("grantErrorDetail(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestTokenSource_ReportsGrantToSink(t *testing.T) {
	var grants atomic.Int64
	server := newTokenServer(t, &grants, 3600)
	defer server.Close()

	sink := &recordingSink{}
	source, err := NewTokenSource(TokenSourceConfig{
		Credential:  testCredential(),
		AuthBaseURL: server.URL,
		Sink:        sink,
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Method != http.MethodPost || rec.StatusCode != http.StatusOK {
		t.Fatalf("unexpected grant record %+v", rec)
	}
	if !strings.HasSuffix(rec.URL, "/env-1/as/token") {
		t.Fatalf("grant record url = %q", rec.URL)
	}
}

func TestTokenSource_ReportsFailedGrantToSink(t *testing.T) {
	sink := &recordingSink{}
	source, err := NewTokenSource(TokenSourceConfig{
		Credential: testCredential(),
		HTTPClient: failingDoer{err: errors.New("connection refused")},
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	if _, err := source.Token(context.Background()); err == nil {
		t.Fatalf("expected transport failure")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.records) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.StatusCode != 0 {
		t.Fatalf("status = %d, want 0 for a transport failure", rec.StatusCode)
	}
	if rec.Err == "" {
		t.Fatalf("expected error detail on the grant record")
	}
}

func TestTokenSource_InvalidateForcesGrant(t *testing.T) {
	var grants atomic.Int64
	server := newTokenServer(t, &grants, 3600)
	defer server.Close()

	source, err := NewTokenSource(TokenSourceConfig{
		Credential:  testCredential(),
		AuthBaseURL: server.URL,
		Now:         fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("first token: %v", err)
	}
	source.Invalidate()
	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("second token: %v", err)
	}
	if grants.Load() != 2 {
		t.Fatalf("grants = %d, want 2", grants.Load())
	}
}

func TestTokenSource_RequiresCompleteCredential(t *testing.T) {
	_, err := NewTokenSource(TokenSourceConfig{
		Credential: core.Credential{EnvironmentID: "env-1"},
	})
	if err == nil {
		t.Fatalf("expected validation failure")
	}
}
