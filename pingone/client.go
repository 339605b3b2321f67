package pingone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	"github.com/mattpollicove/p1person/core"
)

const (
	defaultRequestTimeout          = 30 * time.Second
	maxResponseBodyBytes     int64 = 10 << 20 // 10 MiB
	requiredRoleNames              = "Environment Admin, Identity Data Admin"
)

// Client is the authenticated transport to the PingOne management API. It
// injects bearer tokens from its TokenSource, classifies failures, and feeds
// every exchange to the optional activity sink.
type Client struct {
	httpClient core.HTTPDoer
	tokens     *TokenSource
	baseURL    string
	envID      string
	clientID   string
	logger     core.Logger
	sink       core.ActivitySink
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(doer core.HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithActivitySink(sink core.ActivitySink) Option {
	return func(c *Client) {
		c.sink = sink
		if c.tokens != nil {
			c.tokens.setSink(sink)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBaseURL overrides the region-derived API root, for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func New(cfg core.Config, tokens *TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, core.NewError("pingone: token source is required", goerrors.CategoryInternal)
	}
	envID := strings.TrimSpace(cfg.EnvironmentID)
	if envID == "" {
		return nil, core.NewError("pingone: environment id is required", goerrors.CategoryValidation)
	}
	client := &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		baseURL:    core.NormalizeRegion(cfg.Region).BaseURL(),
		envID:      envID,
		clientID:   strings.TrimSpace(cfg.ClientID),
		logger:     glog.Nop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client, nil
}

// EnvironmentID returns the environment this client is bound to.
func (c *Client) EnvironmentID() string {
	return c.envID
}

// request performs one authenticated API call. A nil body sends no payload;
// a 204 response yields a nil byte slice. On a 401 the cached token is
// invalidated and the call retried once with a fresh grant.
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	out, status, err := c.do(ctx, method, path, body)
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		c.logger.Debug("retrying request after token invalidation", "method", method, "path", path)
		out, _, err = c.do(ctx, method, path, body)
	}
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, core.WrapError(err, goerrors.CategoryInternal, "pingone: encode request body")
		}
		payload = bytes.NewReader(encoded)
	}

	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, fullURL, payload)
	if err != nil {
		return nil, 0, core.WrapError(err, goerrors.CategoryBadInput, "pingone: build request")
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	startedAt := c.now()
	res, err := c.httpClient.Do(req)
	elapsed := elapsedMillis(c.now().Sub(startedAt))
	if err != nil {
		classified := classifyRequestError(err, method, fullURL)
		c.record(ctx, method, fullURL, 0, elapsed, startedAt, classified)
		return nil, 0, classified
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
	if err != nil {
		wrapped := core.WrapError(err, goerrors.CategoryExternal, "pingone: read response body")
		c.record(ctx, method, fullURL, res.StatusCode, elapsed, startedAt, wrapped)
		return nil, res.StatusCode, wrapped
	}

	c.logger.Debug("api call completed",
		"method", method,
		"url", fullURL,
		"status", res.StatusCode,
		"elapsed_ms", elapsed,
	)

	if res.StatusCode >= 400 {
		classified := c.classifyStatus(res.StatusCode, method, fullURL, data)
		c.record(ctx, method, fullURL, res.StatusCode, elapsed, startedAt, classified)
		return nil, res.StatusCode, classified
	}

	c.record(ctx, method, fullURL, res.StatusCode, elapsed, startedAt, nil)
	if res.StatusCode == http.StatusNoContent {
		return nil, res.StatusCode, nil
	}
	return data, res.StatusCode, nil
}

func (c *Client) classifyStatus(status int, method, fullURL string, body []byte) error {
	metadata := map[string]any{
		"method": method,
		"url":    fullURL,
	}
	if detail := apiErrorDetail(body); detail != "" {
		metadata["detail"] = detail
	}

	switch status {
	case http.StatusUnauthorized:
		return core.NewError("pingone: request rejected, token invalid or expired", goerrors.CategoryAuth).
			WithCode(status).WithMetadata(metadata)
	case http.StatusForbidden:
		metadata["client_id"] = c.clientID
		metadata["required_roles"] = requiredRoleNames
		return core.NewError(
			fmt.Sprintf("pingone: access denied; grant the %s roles to worker app %s", requiredRoleNames, c.clientID),
			goerrors.CategoryAuthz,
		).WithCode(status).WithMetadata(metadata)
	case http.StatusNotFound:
		// A transport-level 404 is a stale or wrong resource ID, not the
		// missing-User-schema condition, so it carries the generic API code.
		return core.NewError("pingone: resource not found", goerrors.CategoryNotFound).
			WithCode(status).WithTextCode(core.TextCodeAPIFailed).WithMetadata(metadata)
	case http.StatusTooManyRequests:
		return core.NewError("pingone: rate limited", goerrors.CategoryRateLimit).
			WithCode(status).WithTextCode(core.TextCodeAPIFailed).WithMetadata(metadata)
	default:
		return core.NewError(
			fmt.Sprintf("pingone: api returned status %d", status),
			goerrors.CategoryExternal,
		).WithCode(status).WithMetadata(metadata)
	}
}

func (c *Client) record(ctx context.Context, method, fullURL string, status int, elapsedMS float64, startedAt time.Time, callErr error) {
	if c.sink == nil {
		return
	}
	rec := core.APICallRecord{
		Method:     method,
		URL:        fullURL,
		StatusCode: status,
		ElapsedMS:  elapsedMS,
		StartedAt:  startedAt,
	}
	if callErr != nil {
		rec.Err = callErr.Error()
	}
	if err := c.sink.RecordCall(ctx, rec); err != nil {
		c.logger.Warn("activity sink rejected call record", "error", err)
	}
}

// elapsedMillis converts a wall-clock duration to milliseconds rounded to
// two decimal places.
func elapsedMillis(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000*100) / 100
}

// TestConnection validates the credential end to end: a token grant followed
// by a read of the configured environment. It returns the environment name
// when the read succeeds.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	body, err := c.request(ctx, http.MethodGet, fmt.Sprintf("environments/%s", c.envID), nil)
	if err != nil {
		return "", err
	}
	var env struct {
		Name string `json:"name"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return "", core.WrapError(err, goerrors.CategoryExternal, "pingone: decode environment response")
		}
	}
	return env.Name, nil
}

func classifyRequestError(err error, method, fullURL string) error {
	metadata := map[string]any{"method": method, "url": fullURL}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.WrapError(err, goerrors.CategoryOperation, "pingone: request timed out").
			WithTextCode(core.TextCodeTimeout).WithMetadata(metadata)
	}
	return core.WrapError(err, goerrors.CategoryOperation, "pingone: request failed").
		WithMetadata(metadata)
}

// apiErrorDetail pulls the human-readable message out of a PingOne error
// body, tolerating anything that is not the documented shape.
func apiErrorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
		Details []struct {
			Message string `json:"message"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if len(parsed.Details) > 0 {
		return parsed.Details[0].Message
	}
	return ""
}
