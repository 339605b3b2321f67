package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/mattpollicove/p1person/core"
)

// ActivityStore persists the API call and connection audit trail in sqlite.
// It backs the client's activity sink and the call-history listing.
type ActivityStore struct {
	db    *bun.DB
	repo  repository.Repository[*apiCallRecord]
	conns repository.Repository[*connectionRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*apiCallRecord](db, apiCallHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid api-call repository wiring: %w", err)
		}
	}
	conns := repository.NewRepository[*connectionRecord](db, connectionHandlers())
	if validator, ok := conns.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid connection repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo, conns: conns}, nil
}

// Init creates the backing tables when they do not exist yet.
func (s *ActivityStore) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	for _, model := range []any{(*apiCallRecord)(nil), (*connectionRecord)(nil)} {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *ActivityStore) RecordCall(ctx context.Context, rec core.APICallRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	startedAt := rec.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	record := &apiCallRecord{
		ID:         uuid.NewString(),
		Method:     strings.TrimSpace(rec.Method),
		URL:        strings.TrimSpace(rec.URL),
		StatusCode: rec.StatusCode,
		ElapsedMS:  rec.ElapsedMS,
		Error:      strings.TrimSpace(rec.Err),
		StartedAt:  startedAt,
	}
	if record.Method == "" {
		record.Method = "GET"
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) RecordConnection(ctx context.Context, rec core.ConnectionRecord) error {
	if s == nil || s.conns == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	startedAt := rec.StartedAt.UTC()
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	record := &connectionRecord{
		ID:           uuid.NewString(),
		FriendlyName: strings.TrimSpace(rec.FriendlyName),
		Environment:  strings.TrimSpace(rec.Environment),
		StartedAt:    startedAt,
	}
	_, err := s.conns.Create(ctx, record)
	return err
}

// ListConnections returns recorded connections, newest first.
func (s *ActivityStore) ListConnections(ctx context.Context, limit int) ([]core.ConnectionRecord, error) {
	if s == nil || s.conns == nil {
		return nil, fmt.Errorf("sqlstore: activity store is not configured")
	}
	if limit <= 0 {
		limit = 25
	}
	records, _, err := s.conns.List(ctx,
		repository.OrderBy("started_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	items := make([]core.ConnectionRecord, 0, len(records))
	for _, record := range records {
		items = append(items, core.ConnectionRecord{
			FriendlyName: record.FriendlyName,
			Environment:  record.Environment,
			StartedAt:    record.StartedAt,
		})
	}
	return items, nil
}

// CallFilter narrows a call-history listing. Zero values match everything.
type CallFilter struct {
	Method     string
	FailedOnly bool
	Page       int
	PerPage    int
}

// CallPage is one page of recorded API calls, newest first.
type CallPage struct {
	Items   []core.APICallRecord
	Page    int
	PerPage int
	Total   int
}

func (s *ActivityStore) ListCalls(ctx context.Context, filter CallFilter) (CallPage, error) {
	if s == nil || s.repo == nil {
		return CallPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("started_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if method := strings.ToUpper(strings.TrimSpace(filter.Method)); method != "" {
		selectors = append(selectors, repository.SelectBy("method", "=", method))
	}
	if filter.FailedOnly {
		selectors = append(selectors, repository.SelectBy("error", "!=", ""))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return CallPage{}, err
	}
	items := make([]core.APICallRecord, 0, len(records))
	for _, record := range records {
		items = append(items, core.APICallRecord{
			Method:     record.Method,
			URL:        record.URL,
			StatusCode: record.StatusCode,
			ElapsedMS:  record.ElapsedMS,
			Err:        record.Error,
			StartedAt:  record.StartedAt,
		})
	}
	return CallPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}, nil
}

var _ core.ActivitySink = (*ActivityStore)(nil)
