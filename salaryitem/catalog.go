package salaryitem

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// Catalog manages versioned pay item definitions.
type Catalog struct {
	store Store
	audit generic.AuditLog
	log   *zap.Logger
	now   func() time.Time
	newID generic.IDGenerator
}

type Option func(*Catalog)

func WithLogger(l *zap.Logger) Option        { return func(c *Catalog) { c.log = l } }
func WithAudit(a generic.AuditLog) Option    { return func(c *Catalog) { c.audit = a } }
func WithClock(now func() time.Time) Option  { return func(c *Catalog) { c.now = now } }
func WithIDs(gen generic.IDGenerator) Option { return func(c *Catalog) { c.newID = gen } }

func NewCatalog(store Store, opts ...Option) *Catalog {
	c := &Catalog{
		store: store,
		audit: generic.NopAudit{},
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create stores a new definition version.
func (c *Catalog) Create(ctx context.Context, d Definition, actor generic.Actor) (Definition, error) {
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	now := c.now().UTC()
	d.ID = c.newID()
	d.CreatedBy = actor
	d.CreatedAt = now
	d.UpdatedAt = now

	if err := c.store.InsertDefinition(ctx, d); err != nil {
		return Definition{}, err
	}
	c.log.Info("salary item definition created",
		zap.String("code", d.ItemCode),
		zap.Stringer("effective", d.EffectiveDate),
		zap.String("method", string(d.Method)))
	c.record(ctx, actor, generic.AuditSalaryItemCreated, d)
	return d, nil
}

// Update changes the descriptive fields, method and expiry of a version.
// ItemCode and EffectiveDate are identity; a new effective date is a new
// version and goes through Create.
func (c *Catalog) Update(ctx context.Context, id string, d Definition, actor generic.Actor) (Definition, error) {
	existing, err := c.Get(ctx, id)
	if err != nil {
		return Definition{}, err
	}
	if d.ItemCode != existing.ItemCode || !d.EffectiveDate.Equal(existing.EffectiveDate) {
		return Definition{}, generic.Invalid("itemCode", "code and effective date identify a version; create a new version instead")
	}
	if err := d.Validate(); err != nil {
		return Definition{}, err
	}
	d.ID = existing.ID
	d.CreatedBy = existing.CreatedBy
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = c.now().UTC()

	if err := c.store.UpdateDefinition(ctx, d); err != nil {
		return Definition{}, fmt.Errorf("update salary item %s: %w", id, err)
	}
	c.record(ctx, actor, generic.AuditSalaryItemUpdated, d)
	return d, nil
}

// Deactivate takes a version out of resolution without deleting it.
func (c *Catalog) Deactivate(ctx context.Context, id string, actor generic.Actor) (Definition, error) {
	d, err := c.Get(ctx, id)
	if err != nil {
		return Definition{}, err
	}
	if !d.IsActive {
		return d, nil
	}
	d.IsActive = false
	d.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateDefinition(ctx, d); err != nil {
		return Definition{}, fmt.Errorf("deactivate salary item %s: %w", id, err)
	}
	c.log.Info("salary item definition deactivated", zap.String("code", d.ItemCode), zap.String("id", id))
	c.record(ctx, actor, generic.AuditSalaryItemDeactivate, d)
	return d, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (Definition, error) {
	d, err := c.store.GetDefinition(ctx, id)
	if err != nil {
		return Definition{}, fmt.Errorf("load salary item %s: %w", id, err)
	}
	if d == nil {
		return Definition{}, &generic.NotFoundError{Kind: "salary item definition", ID: id}
	}
	return *d, nil
}

// Resolve returns the version of code in force at asOf, or nil.
func (c *Catalog) Resolve(ctx context.Context, code string, asOf generic.TimePoint) (*Definition, error) {
	versions, err := c.store.ListDefinitions(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", code, err)
	}
	d, ok := generic.Resolve(inForce(versions, asOf), asOf)
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// ListActive returns, per item code, the version in force at asOf.
func (c *Catalog) ListActive(ctx context.Context, asOf generic.TimePoint) ([]Definition, error) {
	all, err := c.store.ListDefinitions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list salary items: %w", err)
	}
	byCode := make(map[string][]Definition)
	var codes []string
	for _, d := range inForce(all, asOf) {
		if _, seen := byCode[d.ItemCode]; !seen {
			codes = append(codes, d.ItemCode)
		}
		byCode[d.ItemCode] = append(byCode[d.ItemCode], d)
	}
	sort.Strings(codes)

	out := make([]Definition, 0, len(codes))
	for _, code := range codes {
		if d, ok := generic.Resolve(byCode[code], asOf); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListByType filters ListActive by item type.
func (c *Catalog) ListByType(ctx context.Context, t ItemType, asOf generic.TimePoint) ([]Definition, error) {
	active, err := c.ListActive(ctx, asOf)
	if err != nil {
		return nil, err
	}
	out := active[:0]
	for _, d := range active {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out, nil
}

// History returns every version of code, newest effective date first.
func (c *Catalog) History(ctx context.Context, code string) ([]Definition, error) {
	versions, err := c.store.ListDefinitions(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", code, err)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].EffectiveDate.After(versions[j].EffectiveDate)
	})
	return versions, nil
}

func inForce(defs []Definition, at generic.TimePoint) []Definition {
	var out []Definition
	for _, d := range defs {
		if d.InForce(at) {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) record(ctx context.Context, actor generic.Actor, action generic.AuditAction, d Definition) {
	entry := generic.AuditEntry{
		ID:        c.newID(),
		Timestamp: c.now().UTC(),
		ActorID:   actor,
		Action:    action,
		Subject:   "salary_item",
		SubjectID: d.ID,
		Payload: map[string]any{
			"itemCode":      d.ItemCode,
			"effectiveDate": d.EffectiveDate.String(),
			"method":        string(d.Method),
			"isActive":      d.IsActive,
		},
	}
	if err := c.audit.Append(ctx, entry); err != nil {
		c.log.Error("audit append failed", zap.String("action", string(action)), zap.Error(err))
	}
}
