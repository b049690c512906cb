package twap

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestAvgTick(t *testing.T) {
	cases := []struct {
		name       string
		end, start int64
		window     int64
		want       int64
	}{
		{"flat", 100, 100, 60, 0},
		{"positive exact", 600, 0, 300, 2},
		{"positive truncates", 5, 0, 2, 2},
		{"negative exact", -600, 0, 300, -2},
		// Negative delta with a remainder rounds toward negative infinity,
		// one tick lower than plain truncation.
		{"negative floors", -5, 0, 2, -3},
		{"negative floors small", 0, 4, 3, -2},
	}
	for _, tc := range cases {
		got, err := AvgTick(tc.end, tc.start, tc.window)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}

	_, err := AvgTick(1, 0, 0)
	require.ErrorIs(t, err, ErrInvalidWindow)
	_, err = AvgTick(1, 0, -10)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestTickToPrice(t *testing.T) {
	zero, err := TickToPrice(0)
	require.NoError(t, err)
	require.Equal(t, "1.000000000000000000", zero.String())

	one, err := TickToPrice(1)
	require.NoError(t, err)
	require.Equal(t, "1.000100000000000000", one.String())

	two, err := TickToPrice(2)
	require.NoError(t, err)
	require.Equal(t, "1.000200010000000000", two.String())

	ten, err := TickToPrice(10)
	require.NoError(t, err)
	// 1.0001^10 = 1.00100045012002100252..., allowing for rounding in the
	// last couple of representable places.
	want := sdkmath.LegacyMustNewDecFromStr("1.001000450120021002")
	diff := ten.Sub(want).Abs()
	require.True(t, diff.LTE(sdkmath.LegacyNewDecWithPrec(1, 15)), "got %s", ten)
}

func TestTickToPriceNegativeIsReciprocal(t *testing.T) {
	pos, err := TickToPrice(1)
	require.NoError(t, err)
	neg, err := TickToPrice(-1)
	require.NoError(t, err)

	require.True(t, neg.LT(sdkmath.LegacyOneDec()))
	// pos * neg == 1 up to the last representable decimal place.
	product := pos.Mul(neg)
	diff := product.Sub(sdkmath.LegacyOneDec()).Abs()
	require.True(t, diff.LTE(sdkmath.LegacyNewDecWithPrec(1, 17)), "product %s", product)
}

func TestTickToPriceRange(t *testing.T) {
	_, err := TickToPrice(MaxTick + 1)
	require.ErrorIs(t, err, ErrTickOutOfRange)
	_, err = TickToPrice(-(MaxTick + 1))
	require.ErrorIs(t, err, ErrTickOutOfRange)
}
