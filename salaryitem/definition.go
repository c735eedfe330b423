/*
Package salaryitem holds the catalog of named pay components.

PURPOSE:
  A Definition describes a bonus, allowance or deduction: its code, whether
  it adds to or deducts from pay, how its amount is computed and when it is
  in force. Definitions are versioned by inserting a new row with a new
  effective date; history is never rewritten.

IDENTITY:
  ItemCode + EffectiveDate is unique.

CALCULATION METHODS:
  Fixed(amount > 0)          amount
  Hourly(rate > 0)           rate x quantity (hours)
  Percentage(0 < rate <= 1)  rate x base salary
  Exactly the field of the chosen method is set; the others stay nil.

SEE ALSO:
  - catalog.go: Catalog operations
  - payroll/pipeline.go: resolves definitions as of the pay period
*/
package salaryitem

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
)

// ItemType says whether an item adds to or deducts from pay.
type ItemType string

const (
	TypeAddition  ItemType = "Addition"
	TypeDeduction ItemType = "Deduction"
)

func (t ItemType) Valid() bool { return t == TypeAddition || t == TypeDeduction }

type Method string

const (
	MethodFixed      Method = "Fixed"
	MethodHourly     Method = "Hourly"
	MethodPercentage Method = "Percentage"
)

// Calculation is the tagged method with its single parameter.
type Calculation struct {
	Method         Method           `json:"calculationMethod"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	HourlyRate     *decimal.Decimal `json:"hourlyRate,omitempty"`
	PercentageRate *decimal.Decimal `json:"percentageRate,omitempty"`
}

func Fixed(amount decimal.Decimal) Calculation {
	return Calculation{Method: MethodFixed, Amount: &amount}
}

func Hourly(rate decimal.Decimal) Calculation {
	return Calculation{Method: MethodHourly, HourlyRate: &rate}
}

func Percentage(rate decimal.Decimal) Calculation {
	return Calculation{Method: MethodPercentage, PercentageRate: &rate}
}

// Validate enforces the method-specific field rules.
func (c Calculation) Validate() error {
	set := map[string]bool{
		"amount":         c.Amount != nil,
		"hourlyRate":     c.HourlyRate != nil,
		"percentageRate": c.PercentageRate != nil,
	}
	var want string
	switch c.Method {
	case MethodFixed:
		want = "amount"
		if c.Amount == nil || !c.Amount.IsPositive() {
			return generic.Invalid("amount", "fixed items need an amount greater than zero")
		}
	case MethodHourly:
		want = "hourlyRate"
		if c.HourlyRate == nil || !c.HourlyRate.IsPositive() {
			return generic.Invalid("hourlyRate", "hourly items need a rate greater than zero")
		}
	case MethodPercentage:
		want = "percentageRate"
		if c.PercentageRate == nil || !c.PercentageRate.IsPositive() || c.PercentageRate.GreaterThan(generic.One) {
			return generic.Invalid("percentageRate", "percentage items need a rate in (0, 1]")
		}
	default:
		return generic.Invalid("calculationMethod", "unsupported method %q", c.Method)
	}
	for field, isSet := range set {
		if isSet && field != want {
			return generic.Invalid(field, "must be empty for %s items", c.Method)
		}
	}
	return nil
}

// Compute prices the item. quantity is hours for Hourly items; base is the
// base salary for Percentage items.
func (c Calculation) Compute(quantity, base decimal.Decimal) decimal.Decimal {
	switch c.Method {
	case MethodFixed:
		return generic.RoundCurrency(*c.Amount)
	case MethodHourly:
		return generic.RoundCurrency(c.HourlyRate.Mul(quantity))
	case MethodPercentage:
		return generic.RoundCurrency(c.PercentageRate.Mul(base))
	}
	return decimal.Zero
}

// Definition is one version of a pay item.
type Definition struct {
	ID            string             `json:"id"`
	ItemCode      string             `json:"itemCode"`
	ItemName      string             `json:"itemName"`
	Type          ItemType           `json:"type"`
	Calculation                      // flattened into the JSON object
	IsActive      bool               `json:"isActive"`
	EffectiveDate generic.TimePoint  `json:"effectiveDate"`
	ExpiryDate    *generic.TimePoint `json:"expiryDate,omitempty"`
	Description   string             `json:"description,omitempty"`
	CreatedBy     generic.Actor      `json:"createdBy,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func (d Definition) ValidityWindow() generic.Window {
	return generic.NewWindow(d.EffectiveDate, d.ExpiryDate)
}

// InForce reports whether the definition is active and its window contains at.
func (d Definition) InForce(at generic.TimePoint) bool {
	return d.IsActive && d.ValidityWindow().Contains(at)
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.ItemCode) == "" {
		return generic.Invalid("itemCode", "is required")
	}
	if strings.TrimSpace(d.ItemName) == "" {
		return generic.Invalid("itemName", "is required")
	}
	if !d.Type.Valid() {
		return generic.Invalid("type", "must be Addition or Deduction, got %q", d.Type)
	}
	if err := d.Calculation.Validate(); err != nil {
		return err
	}
	return d.ValidityWindow().Validate()
}

// Store persists definitions. InsertDefinition returns a ConflictError when
// ItemCode + EffectiveDate already exists.
type Store interface {
	InsertDefinition(ctx context.Context, d Definition) error
	UpdateDefinition(ctx context.Context, d Definition) error
	GetDefinition(ctx context.Context, id string) (*Definition, error)
	// ListDefinitions returns every version of code, or all definitions when
	// code is empty, ordered by code then effective date ascending.
	ListDefinitions(ctx context.Context, code string) ([]Definition, error)
}
