package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a best-effort numeric value decoded from the feed.
// Valid is false when the source was missing, unparseable or not finite;
// such values are treated as unknown, never as zero.
type Number struct {
	Value float64
	Valid bool
}

// NumberOf wraps v, rejecting NaN and infinities.
func NumberOf(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{Value: v, Valid: true}
}

// ParseNumber parses a decimal string such as "0.42" or "1e-3".
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}
	}
	return NumberOf(d.InexactFloat64())
}

// Or returns n when valid, otherwise fallback.
func (n Number) Or(fallback Number) Number {
	if n.Valid {
		return n
	}
	return fallback
}

// Format renders the value with prec decimals, or placeholder when unknown.
func (n Number) Format(prec int, placeholder string) string {
	if !n.Valid {
		return placeholder
	}
	return strconv.FormatFloat(n.Value, 'f', prec, 64)
}

// UnmarshalJSON accepts JSON numbers and numeric strings. Anything else
// (objects, booleans, garbage strings) decodes to an invalid Number without
// failing the surrounding message.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = Number{}
			return nil
		}
		*n = ParseNumber(s)
		return nil
	}
	*n = ParseNumber(string(b))
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}
