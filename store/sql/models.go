package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:connections,alias:cn"`

	ID           string    `bun:"id,pk"`
	FriendlyName string    `bun:"friendly_name,notnull"`
	Environment  string    `bun:"environment"`
	StartedAt    time.Time `bun:"started_at,nullzero,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type apiCallRecord struct {
	bun.BaseModel `bun:"table:api_calls,alias:ac"`

	ID         string    `bun:"id,pk"`
	Method     string    `bun:"method,notnull"`
	URL        string    `bun:"url,notnull"`
	StatusCode int       `bun:"status_code,notnull"`
	ElapsedMS  float64   `bun:"elapsed_ms,notnull"`
	Error      string    `bun:"error"`
	StartedAt  time.Time `bun:"started_at,nullzero,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
