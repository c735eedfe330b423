package vault_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/vault"
)

func newVault(t *testing.T) *vault.AESGCM {
	t.Helper()
	v, err := vault.New([]byte("test-secret-0123456789"))
	require.NoError(t, err)
	return v
}

func TestRoundTrip_TwoDecimalAmounts(t *testing.T) {
	v := newVault(t)
	scope := vault.Scope("emp-1", "2024-03", "gross")

	for _, s := range []string{"0", "0.01", "30000", "30000.00", "45123.45", "-12.30", "99999999999.99"} {
		t.Run(s, func(t *testing.T) {
			amount := decimal.RequireFromString(s)

			sealed, err := v.Seal(scope, amount)
			require.NoError(t, err)
			assert.NotContains(t, string(sealed), amount.StringFixed(2))

			opened, err := v.Open(scope, sealed)
			require.NoError(t, err)
			assert.True(t, opened.Equal(amount), "got %s want %s", opened, amount)
		})
	}
}

func TestSeal_IsDeterministic(t *testing.T) {
	v := newVault(t)
	a, err := v.Seal("emp-1|2024-03|net", decimal.RequireFromString("27123.50"))
	require.NoError(t, err)
	b, err := v.Seal("emp-1|2024-03|net", decimal.RequireFromString("27123.5"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestOpen_RejectsWrongScope(t *testing.T) {
	v := newVault(t)
	sealed, err := v.Seal(vault.Scope("emp-1", "2024-03", "gross"), decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = v.Open(vault.Scope("emp-1", "2024-03", "net"), sealed)
	assert.ErrorIs(t, err, vault.ErrOpen)
}

func TestOpen_RejectsTampering(t *testing.T) {
	v := newVault(t)
	scope := vault.Scope("emp-1", "2024-03", "gross")
	sealed, err := v.Seal(scope, decimal.NewFromInt(100))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = v.Open(scope, sealed)
	assert.ErrorIs(t, err, vault.ErrOpen)

	_, err = v.Open(scope, []byte{1, 2, 3})
	assert.ErrorIs(t, err, vault.ErrMalformed)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := vault.New([]byte("short"))
	assert.Error(t, err)
}
