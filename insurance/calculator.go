package insurance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/ratetable"
)

// Employee shares of the statutory premium. Fixed by law, not per table.
var (
	LaborEmployeeShare  = decimal.RequireFromString("0.2")
	HealthEmployeeShare = decimal.RequireFromString("0.3")
)

// Statutory fallback rates, used only when explicitly enabled.
var (
	DefaultLaborRate  = decimal.RequireFromString("0.105")
	DefaultHealthRate = decimal.RequireFromString("0.0517")
)

// DefaultVersion is pinned on records priced with the statutory fallback.
const DefaultVersion = "statutory-default"

// RateSource resolves the rate table in force on a date.
type RateSource interface {
	EffectiveAsOf(ctx context.Context, date generic.TimePoint) (*ratetable.RateTable, error)
}

// Contribution is one priced insurance premium.
type Contribution struct {
	Amount        decimal.Decimal
	InsurableBase decimal.Decimal
	Rate          decimal.Decimal
	Share         decimal.Decimal
	Version       string
	UsedDefault   bool
}

// Rates is the resolved pair of rates used for one pay period. Table is the
// snapshot the rates came from, nil for the statutory fallback.
type Rates struct {
	Labor       decimal.Decimal
	Health      decimal.Decimal
	Version     string
	UsedDefault bool
	Table       *ratetable.RateTable
}

type Calculator struct {
	rates        RateSource
	allowDefault bool
	log          *zap.Logger
}

type Option func(*Calculator)

func WithLogger(l *zap.Logger) Option { return func(c *Calculator) { c.log = l } }

// WithStatutoryDefault lets a missing rate table fall back to the statutory
// rates. Every such contribution is flagged UsedDefault.
func WithStatutoryDefault(enabled bool) Option {
	return func(c *Calculator) { c.allowDefault = enabled }
}

func NewCalculator(rates RateSource, opts ...Option) *Calculator {
	c := &Calculator{rates: rates, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve picks the rates in force for period. With no table and no fallback
// it returns a ConfigurationGapError.
func (c *Calculator) Resolve(ctx context.Context, period generic.PayPeriod) (Rates, error) {
	asOf := period.AsOf()
	rt, err := c.rates.EffectiveAsOf(ctx, asOf)
	if err != nil {
		return Rates{}, err
	}
	if rt != nil {
		return Rates{Labor: rt.LaborInsuranceRate, Health: rt.HealthInsuranceRate, Version: rt.Version, Table: rt}, nil
	}
	if !c.allowDefault {
		c.log.Error("no rate table in force", zap.Stringer("as_of", asOf))
		return Rates{}, &generic.ConfigurationGapError{What: "rate table", AsOf: asOf}
	}
	c.log.Warn("no rate table in force, using statutory default rates",
		zap.Stringer("as_of", asOf),
		zap.String("labor_rate", DefaultLaborRate.String()),
		zap.String("health_rate", DefaultHealthRate.String()))
	return Rates{Labor: DefaultLaborRate, Health: DefaultHealthRate, Version: DefaultVersion, UsedDefault: true}, nil
}

// Price computes both contributions from already-resolved rates.
func Price(salary decimal.Decimal, rates Rates) (labor, health Contribution, err error) {
	labor, err = price(LaborTable, salary, rates.Labor, LaborEmployeeShare, rates)
	if err != nil {
		return Contribution{}, Contribution{}, err
	}
	health, err = price(HealthTable, salary, rates.Health, HealthEmployeeShare, rates)
	if err != nil {
		return Contribution{}, Contribution{}, err
	}
	return labor, health, nil
}

func price(t Table, salary, rate, share decimal.Decimal, rates Rates) (Contribution, error) {
	base, err := t.InsurableBase(salary)
	if err != nil {
		return Contribution{}, err
	}
	return Contribution{
		Amount:        generic.RoundWhole(base.Mul(rate).Mul(share)),
		InsurableBase: base,
		Rate:          rate,
		Share:         share,
		Version:       rates.Version,
		UsedDefault:   rates.UsedDefault,
	}, nil
}

// LaborInsurance prices the employee's labor premium for salary in period.
func (c *Calculator) LaborInsurance(ctx context.Context, salary decimal.Decimal, period generic.PayPeriod) (Contribution, error) {
	labor, _, err := c.Both(ctx, salary, period)
	return labor, err
}

// HealthInsurance prices the employee's health premium for salary in period.
func (c *Calculator) HealthInsurance(ctx context.Context, salary decimal.Decimal, period generic.PayPeriod) (Contribution, error) {
	_, health, err := c.Both(ctx, salary, period)
	return health, err
}

// Both resolves the rate table once and prices both premiums against it.
func (c *Calculator) Both(ctx context.Context, salary decimal.Decimal, period generic.PayPeriod) (labor, health Contribution, err error) {
	rates, err := c.Resolve(ctx, period)
	if err != nil {
		return Contribution{}, Contribution{}, fmt.Errorf("insurance for %s: %w", period, err)
	}
	return Price(salary, rates)
}
