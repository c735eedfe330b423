package generic

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DecimalParameter reads a numeric setting, falling back to def when the key
// is unset. A value that is set but not numeric is an error, not a fallback.
func DecimalParameter(ctx context.Context, store ParameterStore, key string, asOf TimePoint, def decimal.Decimal) (decimal.Decimal, bool, error) {
	if store == nil {
		return def, true, nil
	}
	raw, ok, err := store.Parameter(ctx, key, asOf)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("read parameter %s: %w", key, err)
	}
	if !ok {
		return def, true, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, Invalid(key, "parameter value %q is not a number", raw)
	}
	return v, false, nil
}
