package safe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64FromUint64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       uint64
		expected    int64
		expectError bool
	}{
		{name: "zero", input: 0, expected: 0},
		{name: "small amount", input: 100, expected: 100},
		{name: "max representable", input: math.MaxInt64, expected: math.MaxInt64},
		{name: "one past max", input: math.MaxInt64 + 1, expectError: true},
		{name: "max uint64", input: math.MaxUint64, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Int64FromUint64(tt.input)

			if tt.expectError {
				require.ErrorIs(t, err, ErrOverflow)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAddInt64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		a, b        int64
		expected    int64
		expectError bool
	}{
		{name: "simple addition", a: 60, b: 40, expected: 100},
		{name: "negative delta", a: 100, b: -40, expected: 60},
		{name: "result below zero is still valid arithmetic", a: 10, b: -25, expected: -15},
		{name: "max plus zero", a: math.MaxInt64, b: 0, expected: math.MaxInt64},
		{name: "positive overflow", a: math.MaxInt64, b: 1, expectError: true},
		{name: "negative overflow", a: math.MinInt64, b: -1, expectError: true},
		{name: "min plus max", a: math.MinInt64, b: math.MaxInt64, expected: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := AddInt64(tt.a, tt.b)

			if tt.expectError {
				require.ErrorIs(t, err, ErrOverflow)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNegateInt64(t *testing.T) {
	t.Parallel()

	got, err := NegateInt64(40)
	require.NoError(t, err)
	assert.Equal(t, int64(-40), got)

	got, err = NegateInt64(-40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), got)

	_, err = NegateInt64(math.MinInt64)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestUnitsToDecimal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10.5", UnitsToDecimal(1050, 2).String())
	assert.Equal(t, "1050", UnitsToDecimal(1050, 0).String())
	assert.Equal(t, "-0.4", UnitsToDecimal(-40, 2).String())
	assert.Equal(t, "18446744073709551615", UnitsFromUint64ToDecimal(math.MaxUint64, 0).String())
	assert.Equal(t, "184467440737.09551615", UnitsFromUint64ToDecimal(math.MaxUint64, 8).String())
}
