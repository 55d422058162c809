package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	t.Run("DotLocale", func(t *testing.T) {
		cases := map[string]float64{
			"34.25":     34.25,
			"1,234.56":  1234.56,
			"  42  ":    42,
			"0":         0,
			"2900.5":    2900.5,
			"13,500":    13500,
		}
		for raw, want := range cases {
			v, err := ParsePrice(raw, false)
			require.NoErrorf(t, err, "input %q", raw)
			assert.InDeltaf(t, want, v, 1e-9, "input %q", raw)
		}
	})

	t.Run("CommaLocale", func(t *testing.T) {
		cases := map[string]float64{
			"34,25":     34.25,
			"1.234,56":  1234.56,
			"2.900":     2900,
			"0,0015":    0.0015,
		}
		for raw, want := range cases {
			v, err := ParsePrice(raw, true)
			require.NoErrorf(t, err, "input %q", raw)
			assert.InDeltaf(t, want, v, 1e-9, "input %q", raw)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		for _, raw := range []string{"", "   ", "abc", "-5", "12a.3", "NaN", "Inf"} {
			_, err := ParsePrice(raw, false)
			assert.Errorf(t, err, "input %q should fail", raw)
		}
	})
}
