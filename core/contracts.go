package core

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logging contract every package accepts. It is
// the go-logger interface so callers can inject any provider.
type Logger = glog.Logger

// HTTPDoer abstracts *http.Client for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SecretProvider encrypts and decrypts credential secrets at rest.
type SecretProvider interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	// IsEncrypted reports whether the value carries this provider's
	// envelope and can be handed to Decrypt.
	IsEncrypted(value string) bool
}

// APICallRecord captures one completed HTTP exchange for the audit trail.
// ElapsedMS is wall-clock milliseconds rounded to two decimal places, so
// sub-millisecond calls keep a non-zero duration.
type APICallRecord struct {
	Method     string
	URL        string
	StatusCode int
	ElapsedMS  float64
	Err        string
	StartedAt  time.Time
}

// ConnectionRecord captures one verified connection for the audit trail.
type ConnectionRecord struct {
	FriendlyName string
	Environment  string
	StartedAt    time.Time
}

// ActivitySink persists API call and connection records. Implementations
// must tolerate being called after failures; a sink error never aborts the
// caller.
type ActivitySink interface {
	RecordCall(ctx context.Context, rec APICallRecord) error
	RecordConnection(ctx context.Context, rec ConnectionRecord) error
}
