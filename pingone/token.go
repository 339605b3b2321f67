package pingone

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	"github.com/mattpollicove/p1person/core"
)

const (
	defaultAuthBaseURL   = "https://auth.pingone.com"
	defaultExpiryMargin  = 5 * time.Minute
	defaultTokenLifetime = 3600 // seconds, when the grant omits expires_in
	tokenPreviewLength   = 20
)

// TokenSourceConfig configures a client-credentials token source for one
// worker application.
type TokenSourceConfig struct {
	Credential  core.Credential
	AuthBaseURL string
	// ExpiryMargin is subtracted from the token lifetime: a cached token is
	// reused only while now < expiresAt - margin.
	ExpiryMargin time.Duration
	HTTPClient   core.HTTPDoer
	Logger       core.Logger
	// Sink receives an API-call record for every grant attempt, success or
	// failure, alongside the records the Client emits for API calls.
	Sink core.ActivitySink
	Now  func() time.Time
}

// TokenSource caches one access token per client and performs the
// client-credentials grant when the cache is empty or inside the expiry
// margin. Safe for concurrent use.
type TokenSource struct {
	config TokenSourceConfig

	mu     sync.Mutex
	cached core.AccessToken
}

func NewTokenSource(cfg TokenSourceConfig) (*TokenSource, error) {
	if err := cfg.Credential.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AuthBaseURL) == "" {
		cfg.AuthBaseURL = defaultAuthBaseURL
	}
	if cfg.ExpiryMargin <= 0 {
		cfg.ExpiryMargin = defaultExpiryMargin
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = glog.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	cfg.AuthBaseURL = strings.TrimRight(strings.TrimSpace(cfg.AuthBaseURL), "/")
	return &TokenSource{config: cfg}, nil
}

type tokenGrantResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid access token, reusing the cached one while it is
// outside the expiry margin.
func (s *TokenSource) Token(ctx context.Context) (core.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.Now().UTC()
	if s.cached.Value != "" && s.cached.ExpiresAt.After(now.Add(s.config.ExpiryMargin)) {
		return s.cached, nil
	}

	token, err := s.grant(ctx, now)
	if err != nil {
		return core.AccessToken{}, err
	}
	s.cached = token
	return token, nil
}

// Invalidate drops the cached token so the next Token call performs a fresh
// grant. Used after a 401 on an API call.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = core.AccessToken{}
}

func (s *TokenSource) grant(ctx context.Context, now time.Time) (core.AccessToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	tokenURL := fmt.Sprintf("%s/%s/as/token", s.config.AuthBaseURL, s.config.Credential.EnvironmentID)

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.AccessToken{}, core.WrapError(err, goerrors.CategoryInternal, "pingone: build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.Credential.ClientID, s.config.Credential.ClientSecret)

	startedAt := s.config.Now().UTC()
	res, err := s.config.HTTPClient.Do(req)
	elapsed := elapsedMillis(s.config.Now().UTC().Sub(startedAt))
	if err != nil {
		classified := classifyRequestError(err, http.MethodPost, tokenURL)
		s.record(ctx, tokenURL, 0, elapsed, startedAt, classified)
		return core.AccessToken{}, classified
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
	if err != nil {
		wrapped := core.WrapError(err, goerrors.CategoryExternal, "pingone: read token response")
		s.record(ctx, tokenURL, res.StatusCode, elapsed, startedAt, wrapped)
		return core.AccessToken{}, wrapped
	}

	if res.StatusCode != http.StatusOK {
		message := fmt.Sprintf("pingone: token grant rejected with status %d", res.StatusCode)
		metadata := map[string]any{
			"client_id": s.config.Credential.ClientID,
			"token_url": tokenURL,
		}
		if detail := grantErrorDetail(body); detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
			metadata["detail"] = detail
		}
		rejected := core.NewError(message, goerrors.CategoryAuth).
			WithCode(res.StatusCode).WithMetadata(metadata)
		s.record(ctx, tokenURL, res.StatusCode, elapsed, startedAt, rejected)
		return core.AccessToken{}, rejected
	}
	s.record(ctx, tokenURL, res.StatusCode, elapsed, startedAt, nil)

	var parsed tokenGrantResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return core.AccessToken{}, core.WrapError(err, goerrors.CategoryExternal, "pingone: decode token response")
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return core.AccessToken{}, core.NewError("pingone: token grant returned no access_token", goerrors.CategoryAuth)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultTokenLifetime
	}
	token := core.AccessToken{
		Value:     parsed.AccessToken,
		ExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
	}

	s.config.Logger.Debug("acquired access token",
		"token_preview", tokenPreview(token.Value),
		"expires_in_s", expiresIn,
	)
	if strings.Count(token.Value, ".") != 2 {
		s.config.Logger.Warn("access token does not look like a JWT",
			"dot_count", strings.Count(token.Value, "."),
		)
	}
	return token, nil
}

func (s *TokenSource) record(ctx context.Context, tokenURL string, status int, elapsedMS float64, startedAt time.Time, callErr error) {
	if s.config.Sink == nil {
		return
	}
	rec := core.APICallRecord{
		Method:     http.MethodPost,
		URL:        tokenURL,
		StatusCode: status,
		ElapsedMS:  elapsedMS,
		StartedAt:  startedAt,
	}
	if callErr != nil {
		rec.Err = callErr.Error()
	}
	if err := s.config.Sink.RecordCall(ctx, rec); err != nil {
		s.config.Logger.Warn("activity sink rejected call record", "error", err)
	}
}

func (s *TokenSource) setSink(sink core.ActivitySink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Sink = sink
}

// grantErrorDetail extracts the OAuth error fields from a rejected grant
// body, falling back to the raw body text.
func grantErrorDetail(body []byte) string {
	var payload struct {
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if detail := strings.TrimSpace(payload.ErrorDescription); detail != "" {
			return detail
		}
		if detail := strings.TrimSpace(payload.ErrorCode); detail != "" {
			return detail
		}
	}
	return strings.TrimSpace(string(body))
}

func tokenPreview(token string) string {
	if len(token) <= tokenPreviewLength {
		return token
	}
	return token[:tokenPreviewLength] + "..."
}
