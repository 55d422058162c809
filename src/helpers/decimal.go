package helpers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------

// ParsePrice parses a raw price string from a provider. decimalComma selects
// the locale: when true "1.234,56" style input is expected, otherwise
// "1,234.56". Rejects non-finite and negative results.
func ParsePrice(raw string, decimalComma bool) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	if decimalComma {
		// "." is a thousands separator, "," is the decimal point
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable price %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite price %q", raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative price %q", raw)
	}
	return v, nil
}
