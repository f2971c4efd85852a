package amount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payments/internal/apperr"
)

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"5000", 500000},
		{"5000.00", 500000},
		{"5000.5", 500050},
		{"5000,55", 500055},
		{"12.345", 1234},
		{"0.01", 1},
		{" 15.10 ", 1510},
		{"007.70", 770},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ToMinorUnits(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMinorUnits_Rejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "1e3", "1.2.3", "-5", "+5", "12a", ".5", "5.", "1 000", "NaN", "92233720368547758.08"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := ToMinorUnits(in)
			require.Error(t, err)

			var ve *apperr.ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Equal(t, "amount", ve.Field)
		})
	}
}

func TestToDecimalString(t *testing.T) {
	assert.Equal(t, "0.00", ToDecimalString(0))
	assert.Equal(t, "0.07", ToDecimalString(7))
	assert.Equal(t, "5000.00", ToDecimalString(500000))
	assert.Equal(t, "60.50", ToDecimalString(6050))
	assert.Equal(t, "-1.05", ToDecimalString(-105))
	assert.Equal(t, "-92233720368547758.08", ToDecimalString(math.MinInt64))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for n := int64(0); n <= 100_000; n++ {
		got, err := ToMinorUnits(ToDecimalString(n))
		require.NoError(t, err)
		if got != n {
			t.Fatalf("round trip of %d gave %d", n, got)
		}
	}

	for _, n := range []int64{999_999_999, 123_456_789_012, math.MaxInt64} {
		got, err := ToMinorUnits(ToDecimalString(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}
