package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhi/chit-engine/money"
)

func TestParse_RejectsBadInput(t *testing.T) {
	_, err := money.Parse("-100")
	require.Error(t, err, "negative amounts must be rejected")

	_, err = money.Parse("abc")
	require.Error(t, err)

	_, err = money.Parse("")
	require.Error(t, err)
}

func TestParse_RoundsToMinorUnits(t *testing.T) {
	m, err := money.Parse("10.005")
	require.NoError(t, err)
	assert.Equal(t, "10.01", m.String(), "round half-up to two places")
}

func TestSplit_EvenPool(t *testing.T) {
	// GIVEN: pool 100000 over 20 months
	// THEN: every installment is 5000, no remainder
	parts := money.FromInt(100000).Split(20)
	require.Len(t, parts, 20)
	for _, p := range parts {
		assert.Equal(t, "5000.00", p.String())
	}
}

func TestSplit_RemainderToFirstPart(t *testing.T) {
	// GIVEN: pool 100000 over 3 months
	// THEN: 33334, 33333, 33333 - summing exactly to 100000
	parts := money.FromInt(100000).Split(3)
	require.Len(t, parts, 3)
	assert.Equal(t, "33334.00", parts[0].String())
	assert.Equal(t, "33333.00", parts[1].String())
	assert.Equal(t, "33333.00", parts[2].String())

	total := money.Zero
	for _, p := range parts {
		total = total.Add(p)
	}
	assert.True(t, total.Equal(money.FromInt(100000)))
}

func TestSplit_SumsExactlyForAwkwardDivisors(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 11, 12, 13, 24, 36} {
		parts := money.MustParse("99999.99").Split(n)
		total := money.Zero
		for _, p := range parts {
			total = total.Add(p)
		}
		assert.True(t, total.Equal(money.MustParse("99999.99")), "n=%d", n)
	}
}

func TestSplit_BaseIsWholeUnits(t *testing.T) {
	// GIVEN: a fractional pool of 100.10 over 3 parts
	// THEN: the base part is a whole 33; the first part absorbs 34.10
	parts := money.MustParse("100.10").Split(3)
	require.Len(t, parts, 3)
	assert.Equal(t, "34.10", parts[0].String())
	assert.Equal(t, "33.00", parts[1].String())
	assert.Equal(t, "33.00", parts[2].String())
}

func TestMulInt_Exact(t *testing.T) {
	assert.Equal(t, "99999.00", money.MustParse("33333").MulInt(3).String())
	assert.Equal(t, "0.00", money.MustParse("5000").MulInt(0).String())
}

func TestAllocate_SumsExactly(t *testing.T) {
	// GIVEN: 1001 split 50/30/20
	// THEN: remainder lands on the 50% holder
	weights := []decimal.Decimal{
		decimal.NewFromInt(50),
		decimal.NewFromInt(30),
		decimal.NewFromInt(20),
	}
	parts := money.FromInt(1001).Allocate(weights)
	require.Len(t, parts, 3)

	total := money.Zero
	for _, p := range parts {
		total = total.Add(p)
	}
	assert.True(t, total.Equal(money.FromInt(1001)))
	assert.Equal(t, "500.50", parts[0].String())
	assert.Equal(t, "300.30", parts[1].String())
	assert.Equal(t, "200.20", parts[2].String())
}

func TestAllocate_ThirdsSumExactly(t *testing.T) {
	third := decimal.NewFromFloat(33.3333)
	weights := []decimal.Decimal{third, third, third}
	parts := money.FromInt(100).Allocate(weights)

	total := money.Zero
	for _, p := range parts {
		total = total.Add(p)
	}
	assert.True(t, total.Equal(money.FromInt(100)))
}

func TestPercent_RoundsHalfUp(t *testing.T) {
	m := money.FromInt(1000).Percent(decimal.NewFromFloat(12.5))
	assert.Equal(t, "125.00", m.String())

	// 0.125% of 100 = 0.125 -> 0.13 half-up
	m = money.FromInt(100).Percent(decimal.NewFromFloat(0.125))
	assert.Equal(t, "0.13", m.String())
}

func TestJSONRoundTrip(t *testing.T) {
	m := money.MustParse("5000.50")
	b, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"5000.50"`, string(b))

	var out money.Money
	require.NoError(t, out.UnmarshalJSON(b))
	assert.True(t, m.Equal(out))
}
