package reconcile

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"

	"github.com/mattpollicove/p1person/core"
)

// AttributeAPI is the slice of the schema API the reconciler drives.
// FindAttribute returns (nil, nil) when the attribute is known absent.
type AttributeAPI interface {
	FindAttribute(ctx context.Context, name string) (*core.RemoteAttribute, error)
	CreateAttribute(ctx context.Context, name, description string) (*core.RemoteAttribute, error)
	DeleteAttribute(ctx context.Context, id string) error
	UpdateAttribute(ctx context.Context, id string, update core.AttributeUpdate) error
}

// Reconciler converges the remote User schema toward an attribute spec.
// Every operation is idempotent: re-running against an already-converged
// schema performs no mutating calls. One attribute failing never stops the
// rest of the run.
type Reconciler struct {
	api    AttributeAPI
	logger core.Logger
	dryRun bool
	now    func() time.Time
}

type Option func(*Reconciler)

func WithLogger(logger core.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDryRun previews mutations: the reconciler walks the same decision
// path but records dry_run_* outcomes instead of calling the API.
func WithDryRun(enabled bool) Option {
	return func(r *Reconciler) {
		r.dryRun = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func New(api AttributeAPI, opts ...Option) (*Reconciler, error) {
	if api == nil {
		return nil, core.NewError("reconcile: attribute api is required", goerrors.CategoryInternal)
	}
	r := &Reconciler{
		api:    api,
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r, nil
}

// Apply ensures every attribute in the spec exists on the schema. Existing
// attributes are left untouched regardless of their current description.
func (r *Reconciler) Apply(ctx context.Context, spec core.AttributeSpec) (*core.RunSummary, error) {
	return r.run(ctx, spec, r.applyOne)
}

// Remove deletes every attribute in the spec from the schema. Attributes
// that are already absent are recorded, not treated as failures.
func (r *Reconciler) Remove(ctx context.Context, spec core.AttributeSpec) (*core.RunSummary, error) {
	return r.run(ctx, spec, r.removeOne)
}

// Clear disables every attribute in the spec, which clears its stored
// values without removing the schema definition.
func (r *Reconciler) Clear(ctx context.Context, spec core.AttributeSpec) (*core.RunSummary, error) {
	return r.run(ctx, spec, r.clearOne)
}

func (r *Reconciler) run(ctx context.Context, spec core.AttributeSpec, step func(context.Context, string, string) core.ItemOutcome) (*core.RunSummary, error) {
	if len(spec) == 0 {
		return nil, core.NewError("reconcile: attribute spec is empty", goerrors.CategoryBadInput)
	}
	startedAt := r.now()
	summary := &core.RunSummary{}
	for _, name := range spec.Names() {
		if err := ctx.Err(); err != nil {
			return summary, core.WrapError(err, goerrors.CategoryOperation, "reconcile: run canceled")
		}
		outcome := step(ctx, name, spec[name])
		summary.Record(outcome)
		r.logger.Info("attribute reconciled",
			"attribute", outcome.Name,
			"outcome", string(outcome.Tag),
			"detail", outcome.Detail,
		)
	}
	r.logger.Info("run complete",
		"attributes", summary.Total(),
		"errors", summary.Count(core.OutcomeError),
		"elapsed_ms", r.now().Sub(startedAt).Milliseconds(),
	)
	return summary, nil
}

func (r *Reconciler) applyOne(ctx context.Context, name, description string) core.ItemOutcome {
	existing, err := r.api.FindAttribute(ctx, name)
	if err != nil {
		return errorOutcome(name, err)
	}
	if existing != nil {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeSkippedExists, Detail: existing.ID}
	}
	if r.dryRun {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeDryRunCreate}
	}
	created, err := r.api.CreateAttribute(ctx, name, description)
	if err != nil {
		return errorOutcome(name, err)
	}
	return core.ItemOutcome{Name: name, Tag: core.OutcomeCreated, Detail: created.ID}
}

func (r *Reconciler) removeOne(ctx context.Context, name, _ string) core.ItemOutcome {
	existing, err := r.api.FindAttribute(ctx, name)
	if err != nil {
		return errorOutcome(name, err)
	}
	if existing == nil {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeNotFound}
	}
	if r.dryRun {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeDryRunRemove, Detail: existing.ID}
	}
	if err := r.api.DeleteAttribute(ctx, existing.ID); err != nil {
		return errorOutcome(name, err)
	}
	return core.ItemOutcome{Name: name, Tag: core.OutcomeRemoved, Detail: existing.ID}
}

func (r *Reconciler) clearOne(ctx context.Context, name, _ string) core.ItemOutcome {
	existing, err := r.api.FindAttribute(ctx, name)
	if err != nil {
		return errorOutcome(name, err)
	}
	if existing == nil {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeNotFound}
	}
	if !existing.Enabled {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeAlreadyDisabled, Detail: existing.ID}
	}
	if r.dryRun {
		return core.ItemOutcome{Name: name, Tag: core.OutcomeDryRunClear, Detail: existing.ID}
	}
	disabled := false
	if err := r.api.UpdateAttribute(ctx, existing.ID, core.AttributeUpdate{Enabled: &disabled}); err != nil {
		return errorOutcome(name, err)
	}
	return core.ItemOutcome{Name: name, Tag: core.OutcomeCleared, Detail: existing.ID}
}

func errorOutcome(name string, err error) core.ItemOutcome {
	return core.ItemOutcome{Name: name, Tag: core.OutcomeError, Detail: err.Error()}
}
