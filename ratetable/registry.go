package ratetable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/payroll-engine/generic"
)

// Registry is the write and lookup front of the rate table store.
type Registry struct {
	store Store
	audit generic.AuditLog
	log   *zap.Logger
	now   func() time.Time
	newID generic.IDGenerator
	group singleflight.Group
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option         { return func(r *Registry) { r.log = l } }
func WithAudit(a generic.AuditLog) Option     { return func(r *Registry) { r.audit = a } }
func WithClock(now func() time.Time) Option   { return func(r *Registry) { r.now = now } }
func WithIDs(gen generic.IDGenerator) Option  { return func(r *Registry) { r.newID = gen } }

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		audit: generic.NopAudit{},
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates rt, assigns identity and stores it. The store rejects any
// window overlap atomically with the insert.
func (r *Registry) Create(ctx context.Context, rt RateTable, actor generic.Actor) (RateTable, error) {
	if err := rt.Validate(); err != nil {
		return RateTable{}, err
	}
	now := r.now().UTC()
	rt.ID = r.newID()
	rt.CreatedBy = actor
	rt.CreatedAt = now
	rt.UpdatedAt = now
	if rt.Source == "" {
		rt.Source = SourceManual
	}

	if err := r.store.InsertRateTable(ctx, rt); err != nil {
		r.log.Warn("rate table rejected",
			zap.String("version", rt.Version),
			zap.Stringer("window", rt.ValidityWindow()),
			zap.Error(err))
		return RateTable{}, err
	}

	r.log.Info("rate table created",
		zap.String("id", rt.ID),
		zap.String("version", rt.Version),
		zap.Stringer("window", rt.ValidityWindow()),
		zap.String("source", string(rt.Source)))
	r.record(ctx, actor, generic.AuditRateTableCreated, rt)
	return rt, nil
}

// Update replaces the rates and window of an existing table. The overlap scan
// excludes the table itself. Tables pinned by a salary record are immutable;
// the store enforces that inside the write.
func (r *Registry) Update(ctx context.Context, id string, rt RateTable, actor generic.Actor) (RateTable, error) {
	if err := rt.Validate(); err != nil {
		return RateTable{}, err
	}
	existing, err := r.Get(ctx, id)
	if err != nil {
		return RateTable{}, err
	}

	rt.ID = existing.ID
	rt.CreatedBy = existing.CreatedBy
	rt.CreatedAt = existing.CreatedAt
	rt.UpdatedAt = r.now().UTC()
	if rt.Source == "" {
		rt.Source = existing.Source
	}

	if err := r.store.UpdateRateTable(ctx, rt); err != nil {
		r.log.Warn("rate table update rejected", zap.String("id", rt.ID), zap.String("version", existing.Version), zap.Error(err))
		return RateTable{}, err
	}
	r.log.Info("rate table updated", zap.String("id", rt.ID), zap.String("version", rt.Version))
	r.record(ctx, actor, generic.AuditRateTableUpdated, rt)
	return rt, nil
}

// Delete removes a table that no salary record has pinned.
// The store refuses a pinned one.
func (r *Registry) Delete(ctx context.Context, id string, actor generic.Actor) error {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteRateTable(ctx, id); err != nil {
		return fmt.Errorf("delete rate table %s: %w", id, err)
	}
	r.log.Info("rate table deleted", zap.String("id", id), zap.String("version", existing.Version))
	r.record(ctx, actor, generic.AuditRateTableDeleted, existing)
	return nil
}

// Get returns a table or a NotFoundError.
func (r *Registry) Get(ctx context.Context, id string) (RateTable, error) {
	rt, err := r.store.GetRateTable(ctx, id)
	if err != nil {
		return RateTable{}, fmt.Errorf("load rate table %s: %w", id, err)
	}
	if rt == nil {
		return RateTable{}, &generic.NotFoundError{Kind: "rate table", ID: id}
	}
	return *rt, nil
}

// List returns all tables, oldest effective date first.
func (r *Registry) List(ctx context.Context) ([]RateTable, error) {
	return r.store.ListRateTables(ctx)
}

// EffectiveAsOf returns the table in force on date, or nil when none covers
// it. Concurrent lookups for the same date share one store read.
func (r *Registry) EffectiveAsOf(ctx context.Context, date generic.TimePoint) (*RateTable, error) {
	v, err, _ := r.group.Do(date.String(), func() (any, error) {
		tables, err := r.store.ListRateTables(ctx)
		if err != nil {
			return nil, err
		}
		rt, ok := generic.Resolve(tables, date)
		if !ok {
			return (*RateTable)(nil), nil
		}
		return &rt, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve rate table as of %s: %w", date, err)
	}
	rt := v.(*RateTable)
	if rt == nil {
		return nil, nil
	}
	cp := *rt
	return &cp, nil
}

func (r *Registry) record(ctx context.Context, actor generic.Actor, action generic.AuditAction, rt RateTable) {
	entry := generic.AuditEntry{
		ID:        r.newID(),
		Timestamp: r.now().UTC(),
		ActorID:   actor,
		Action:    action,
		Subject:   "rate_table",
		SubjectID: rt.ID,
		Payload: map[string]any{
			"version":             rt.Version,
			"window":              rt.ValidityWindow().String(),
			"laborInsuranceRate":  rt.LaborInsuranceRate.String(),
			"healthInsuranceRate": rt.HealthInsuranceRate.String(),
			"source":              string(rt.Source),
		},
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		r.log.Error("audit append failed", zap.String("action", string(action)), zap.Error(err))
	}
}
