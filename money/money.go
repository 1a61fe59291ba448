/*
Package money provides exact fixed-point currency arithmetic.

PURPOSE:
  Every rupee amount in the system flows through this package. Internally a
  Money is a decimal scaled to two fractional digits (minor units), so sums
  of installments and share splits come out exact - no floating-point drift.

KEY OPERATIONS:
  - Add/Sub:       Exact addition and subtraction
  - Percent:       Multiply by a percentage, rounded half-up to minor units
  - Split:         Divide into n whole-unit parts that sum back exactly;
                   the leftover goes to the FIRST part
  - Allocate:      Divide by weights that sum back exactly; leftover goes to
                   the largest weight

ROUNDING POLICY:
  Round half-up, two decimal places, everywhere. This is fixed for the whole
  system; callers must not re-round.

FAILURE MODE:
  Parse rejects negative or malformed inputs with a *ParseError. Arithmetic
  on well-formed Money values cannot fail.

SEE ALSO:
  - chit/fund.go: Uses Split for the monthly installment schedule
  - chit/group.go: Uses Allocate for share-percentage distribution
*/
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// scale is the number of minor-unit digits (paise).
const scale = 2

var hundred = decimal.NewFromInt(100)

// Money is an exact currency amount. The zero value is zero rupees.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Parse converts a decimal string ("5000", "33.50") into Money.
// Negative and malformed inputs are rejected.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, &ParseError{Input: s, Reason: "not a decimal number"}
	}
	if d.IsNegative() {
		return Money{}, &ParseError{Input: s, Reason: "negative amount"}
	}
	return Money{d: d.Round(scale)}, nil
}

// MustParse is Parse for trusted literals; it panics on bad input.
// Intended for tests and constants only.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromInt converts whole rupees into Money.
func FromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// FromDecimal wraps an existing decimal, rounding to minor units.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d.Round(scale)}
}

// ParseError reports a rejected input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid amount %q: %s", e.Input, e.Reason)
}

// =============================================================================
// ARITHMETIC
// =============================================================================

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// MulInt multiplies by a whole count (months, members). Exact.
func (m Money) MulInt(n int64) Money { return Money{d: m.d.Mul(decimal.NewFromInt(n))} }

func (m Money) IsZero() bool        { return m.d.IsZero() }
func (m Money) IsNegative() bool    { return m.d.IsNegative() }
func (m Money) IsPositive() bool    { return m.d.IsPositive() }
func (m Money) Equal(o Money) bool  { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool    { return m.d.LessThan(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }

// Percent returns pct% of m, rounded half-up to minor units.
// Percent(1000, 12.5) = 125.00.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(hundred).Round(scale)}
}

// Split divides m into n parts that sum back to m exactly.
// The base part is m/n rounded DOWN to a whole currency unit; the remainder
// (always less than n whole units) is added to the first part.
// Split(100000, 3) = [33334, 33333, 33333].
func (m Money) Split(n int) []Money {
	if n <= 0 {
		return nil
	}
	base := Money{d: m.d.Div(decimal.NewFromInt(int64(n))).RoundDown(0)}
	parts := make([]Money, n)
	total := Zero
	for i := range parts {
		parts[i] = base
		total = total.Add(base)
	}
	parts[0] = parts[0].Add(m.Sub(total))
	return parts
}

// Allocate divides m by weights (percentages or any proportional weights)
// so the parts sum back to m exactly. Each part is m*w/Σw rounded half-up;
// the accumulated rounding remainder lands on the part with the largest
// weight (first such part wins ties - callers order inputs for a
// deterministic tie-break).
func (m Money) Allocate(weights []decimal.Decimal) []Money {
	if len(weights) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	parts := make([]Money, len(weights))
	total := Zero
	largest := 0
	for i, w := range weights {
		parts[i] = Money{d: m.d.Mul(w).Div(sum).Round(scale)}
		total = total.Add(parts[i])
		if w.GreaterThan(weights[largest]) {
			largest = i
		}
	}
	parts[largest] = parts[largest].Add(m.Sub(total))
	return parts
}

// =============================================================================
// CONVERSION
// =============================================================================

// String renders the amount with exactly two decimal places.
func (m Money) String() string { return m.d.StringFixed(scale) }

// Decimal exposes the underlying decimal for storage layers.
func (m Money) Decimal() decimal.Decimal { return m.d }

// MarshalJSON renders Money as a JSON string to preserve exactness.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal forms.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return &ParseError{Input: s, Reason: "not a decimal number"}
	}
	m.d = d.Round(scale)
	return nil
}
