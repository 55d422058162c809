package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-relay/src/models"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("SimpleFormula", func(t *testing.T) {
		res := Validate("USD_alis * 0.995 - 5", "USD")
		require.True(t, res.IsValid, "errors: %v", res.Errors)
		require.Len(t, res.Variables, 1)
		assert.Equal(t, "USD", res.Variables[0].Symbol)
		assert.Equal(t, SideBuying, res.Variables[0].Side)
	})

	t.Run("LegacySideTokens", func(t *testing.T) {
		res := Validate("XAU/TRY_satis + GBP_buying", "")
		require.True(t, res.IsValid, "errors: %v", res.Errors)
		require.Len(t, res.Variables, 2)
		assert.Equal(t, SideSelling, res.Variables[0].Side)
		assert.Equal(t, SideBuying, res.Variables[1].Side)
	})

	t.Run("Empty", func(t *testing.T) {
		res := Validate("   ", "")
		assert.False(t, res.IsValid)
	})

	t.Run("NoVariables", func(t *testing.T) {
		res := Validate("2 + 2", "")
		assert.False(t, res.IsValid)
	})

	t.Run("UnsafeToken", func(t *testing.T) {
		res := Validate("eval(USD_alis)", "")
		require.False(t, res.IsValid)
		assert.Contains(t, res.Errors[0], "unsafe token")
	})

	t.Run("UnbalancedParens", func(t *testing.T) {
		res := Validate("(USD_alis * 2", "")
		assert.False(t, res.IsValid)
	})

	t.Run("OperatorRun", func(t *testing.T) {
		res := Validate("USD_alis */ 2", "")
		assert.False(t, res.IsValid)
	})

	t.Run("TrailingUnaryMinusAllowed", func(t *testing.T) {
		res := Validate("USD_alis * -2", "")
		assert.True(t, res.IsValid, "errors: %v", res.Errors)
	})

	t.Run("CaretRunCollapses", func(t *testing.T) {
		res := Validate("USD_alis ^^ 2", "")
		assert.True(t, res.IsValid, "errors: %v", res.Errors)
	})

	t.Run("UnknownSide", func(t *testing.T) {
		res := Validate("USD_close * 2", "")
		assert.False(t, res.IsValid)
	})

	t.Run("BaseSymbolWarning", func(t *testing.T) {
		res := Validate("EUR_alis * 2", "USD")
		require.True(t, res.IsValid)
		assert.NotEmpty(t, res.Warnings)
	})
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	table := VariableTable{}
	table.Set("USD/TRY", SymbolPrices{Buying: 34.20, Selling: 34.45, Last: 34.30})
	table.Set("EUR/TRY", SymbolPrices{Buying: 36.10, Selling: 36.40, Last: 36.25})

	none := models.MRounding{Method: "none", DecimalPlaces: 2}

	t.Run("RoundsToDecimalPlaces", func(t *testing.T) {
		// 34.20 * 0.995 - 5 = 29.029, clamped to 2 places
		ev, err := Evaluate("USD_alis * 0.995 - 5", table, none)
		require.NoError(t, err)
		assert.InDelta(t, 29.029, ev.Value, 1e-9)
		assert.InDelta(t, 29.03, ev.RoundedValue, 1e-9)
	})

	t.Run("BareCodeResolvesPair", func(t *testing.T) {
		ev, err := Evaluate("USD_satis", table, none)
		require.NoError(t, err)
		assert.InDelta(t, 34.45, ev.Value, 1e-9)
	})

	t.Run("FullPairForm", func(t *testing.T) {
		ev, err := Evaluate("EUR/TRY_last + 1", table, none)
		require.NoError(t, err)
		assert.InDelta(t, 37.25, ev.Value, 1e-9)
	})

	t.Run("Precedence", func(t *testing.T) {
		ev, err := Evaluate("USD_alis + 2 * 3", table, none)
		require.NoError(t, err)
		assert.InDelta(t, 40.20, ev.Value, 1e-9)
	})

	t.Run("RightAssociativeExponent", func(t *testing.T) {
		tbl := VariableTable{}
		tbl.Set("X", SymbolPrices{Buying: 2})
		ev, err := Evaluate("X_alis ^ 3 ^ 2", tbl, none)
		require.NoError(t, err)
		assert.InDelta(t, 512, ev.Value, 1e-9)
	})

	t.Run("UnaryMinus", func(t *testing.T) {
		ev, err := Evaluate("-USD_alis + 40", table, none)
		require.NoError(t, err)
		assert.InDelta(t, 5.80, ev.Value, 1e-9)
	})

	t.Run("UnresolvedVariableFails", func(t *testing.T) {
		_, err := Evaluate("JPY_alis * 2", table, none)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unresolved variable")
	})

	t.Run("NonFiniteFails", func(t *testing.T) {
		zero := VariableTable{}
		zero.Set("X", SymbolPrices{Buying: 0})
		_, err := Evaluate("1 / X_alis", zero, none)
		require.Error(t, err)
	})

	t.Run("UsedVariablesReported", func(t *testing.T) {
		ev, err := Evaluate("USD_alis + EUR_satis", table, none)
		require.NoError(t, err)
		assert.InDelta(t, 34.20, ev.UsedVariables["USD_alis"], 1e-9)
		assert.InDelta(t, 36.40, ev.UsedVariables["EUR_satis"], 1e-9)
	})
}

func TestRoundValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		value  float64
		policy models.MRounding
		want   float64
	}{
		{"NearestToFive", 1234.567, models.MRounding{Method: "nearest", Precision: 5, DecimalPlaces: 2}, 1235.00},
		{"DownToTen", 1234.567, models.MRounding{Method: "down", Precision: 10, DecimalPlaces: 0}, 1230},
		{"UpToQuarter", 10.10, models.MRounding{Method: "up", Precision: 0.25, DecimalPlaces: 2}, 10.25},
		{"NoneOnlyClamps", 29.029, models.MRounding{Method: "none", DecimalPlaces: 2}, 29.03},
		{"ZeroPrecisionSkipsStep", 29.029, models.MRounding{Method: "nearest", Precision: 0, DecimalPlaces: 2}, 29.03},
		{"NegativePlacesClampToInt", 12.7, models.MRounding{Method: "none", DecimalPlaces: -1}, 13},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, RoundValue(tc.value, tc.policy), 1e-9)
		})
	}
}
