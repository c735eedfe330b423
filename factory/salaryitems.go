package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/salaryitem"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ItemFileJSON is the top level of a salary item seed file:
//
//	{
//	  "items": [
//	    {"item_code": "MEAL", "item_name": "Meal allowance", "type": "addition",
//	     "method": "fixed", "amount": 2400, "effective_date": "2024-01-01"},
//	    {"item_code": "ONCALL", "item_name": "On-call", "type": "addition",
//	     "method": "hourly", "rate": 150, "effective_date": "2024-01-01"}
//	  ]
//	}
type ItemFileJSON struct {
	Items []ItemJSON `json:"items"`
}

// ItemJSON is one definition version. Rate is the hourly rate for hourly
// items and the fraction of base salary for percentage items.
type ItemJSON struct {
	ItemCode      string           `json:"item_code"`
	ItemName      string           `json:"item_name"`
	Type          string           `json:"type"`   // addition, deduction
	Method        string           `json:"method"` // fixed, hourly, percentage
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
	EffectiveDate string           `json:"effective_date"`
	ExpiryDate    string           `json:"expiry_date,omitempty"`
	Inactive      bool             `json:"inactive,omitempty"`
	Description   string           `json:"description,omitempty"`
}

// =============================================================================
// ITEM FACTORY
// =============================================================================

// ItemFactory converts JSON item definitions to salaryitem.Definition.
type ItemFactory struct{}

func NewItemFactory() *ItemFactory {
	return &ItemFactory{}
}

// ParseItems parses a seed file. Every definition is validated; the first
// invalid one aborts the parse.
func (f *ItemFactory) ParseItems(data []byte) ([]salaryitem.Definition, error) {
	var file ItemFileJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse salary items JSON: %w", err)
	}
	out := make([]salaryitem.Definition, 0, len(file.Items))
	for i, ij := range file.Items {
		d, err := f.FromJSON(ij)
		if err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i, ij.ItemCode, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// FromJSON converts one entry.
func (f *ItemFactory) FromJSON(ij ItemJSON) (salaryitem.Definition, error) {
	typ, err := parseItemType(ij.Type)
	if err != nil {
		return salaryitem.Definition{}, err
	}
	calc, err := parseCalculation(ij)
	if err != nil {
		return salaryitem.Definition{}, err
	}
	effective, err := generic.ParseDate(ij.EffectiveDate)
	if err != nil {
		return salaryitem.Definition{}, generic.Invalid("effective_date", "%q is not a date", ij.EffectiveDate)
	}

	d := salaryitem.Definition{
		ItemCode:      strings.ToUpper(strings.TrimSpace(ij.ItemCode)),
		ItemName:      ij.ItemName,
		Type:          typ,
		Calculation:   calc,
		IsActive:      !ij.Inactive,
		EffectiveDate: effective,
		Description:   ij.Description,
	}
	if ij.ExpiryDate != "" {
		expiry, err := generic.ParseDate(ij.ExpiryDate)
		if err != nil {
			return salaryitem.Definition{}, generic.Invalid("expiry_date", "%q is not a date", ij.ExpiryDate)
		}
		d.ExpiryDate = &expiry
	}
	if err := d.Validate(); err != nil {
		return salaryitem.Definition{}, err
	}
	return d, nil
}

// ToJSON converts a definition to its seed file form.
func (f *ItemFactory) ToJSON(d salaryitem.Definition) ItemJSON {
	ij := ItemJSON{
		ItemCode:      d.ItemCode,
		ItemName:      d.ItemName,
		Type:          strings.ToLower(string(d.Type)),
		Method:        strings.ToLower(string(d.Method)),
		EffectiveDate: d.EffectiveDate.String(),
		Inactive:      !d.IsActive,
		Description:   d.Description,
	}
	switch d.Method {
	case salaryitem.MethodFixed:
		ij.Amount = d.Amount
	case salaryitem.MethodHourly:
		ij.Rate = d.HourlyRate
	case salaryitem.MethodPercentage:
		ij.Rate = d.PercentageRate
	}
	if d.ExpiryDate != nil {
		ij.ExpiryDate = d.ExpiryDate.String()
	}
	return ij
}

// Seed creates every definition in the catalog. Versions that already exist
// are skipped, so seeding the same file twice is harmless. It returns the
// number of versions created.
func (f *ItemFactory) Seed(ctx context.Context, catalog *salaryitem.Catalog, defs []salaryitem.Definition, actor generic.Actor) (int, error) {
	created := 0
	for _, d := range defs {
		_, err := catalog.Create(ctx, d, actor)
		if errors.Is(err, generic.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s from %s: %w", d.ItemCode, d.EffectiveDate, err)
		}
		created++
	}
	return created, nil
}

// SeedFile parses path and seeds the catalog with it.
func (f *ItemFactory) SeedFile(ctx context.Context, catalog *salaryitem.Catalog, path string, actor generic.Actor) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read salary items: %w", err)
	}
	defs, err := f.ParseItems(data)
	if err != nil {
		return 0, err
	}
	return f.Seed(ctx, catalog, defs, actor)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseItemType(s string) (salaryitem.ItemType, error) {
	switch strings.ToLower(s) {
	case "addition":
		return salaryitem.TypeAddition, nil
	case "deduction":
		return salaryitem.TypeDeduction, nil
	default:
		return "", generic.Invalid("type", "unknown item type %q", s)
	}
}

func parseCalculation(ij ItemJSON) (salaryitem.Calculation, error) {
	switch strings.ToLower(ij.Method) {
	case "fixed":
		if ij.Amount == nil || ij.Rate != nil {
			return salaryitem.Calculation{}, generic.Invalid("amount", "fixed items take an amount and no rate")
		}
		return salaryitem.Fixed(*ij.Amount), nil
	case "hourly":
		if ij.Rate == nil || ij.Amount != nil {
			return salaryitem.Calculation{}, generic.Invalid("rate", "hourly items take a rate and no amount")
		}
		return salaryitem.Hourly(*ij.Rate), nil
	case "percentage":
		if ij.Rate == nil || ij.Amount != nil {
			return salaryitem.Calculation{}, generic.Invalid("rate", "percentage items take a rate and no amount")
		}
		return salaryitem.Percentage(*ij.Rate), nil
	default:
		return salaryitem.Calculation{}, generic.Invalid("method", "unknown calculation method %q", ij.Method)
	}
}
