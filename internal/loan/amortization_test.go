package loan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoflow/coop-core/internal/domain"
)

func TestMinimumPayment(t *testing.T) {
	tests := []struct {
		name      string
		principal int64
		rate      decimal.Decimal
		months    int
		want      int64
		wantErr   error
	}{
		{
			name:      "standard annuity",
			principal: 100_000,
			rate:      decimal.NewFromInt(12),
			months:    12,
			want:      8885,
		},
		{
			name:      "zero rate is straight-line",
			principal: 120_000,
			rate:      decimal.Zero,
			months:    12,
			want:      10_000,
		},
		{
			name:      "zero rate rounds up",
			principal: 100,
			rate:      decimal.Zero,
			months:    3,
			want:      34,
		},
		{
			name:      "zero principal",
			principal: 0,
			rate:      decimal.NewFromInt(10),
			months:    12,
			wantErr:   domain.ErrInvalidAmount,
		},
		{
			name:      "zero months",
			principal: 100_000,
			rate:      decimal.NewFromInt(10),
			months:    0,
			wantErr:   domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MinimumPayment(tt.principal, tt.rate, tt.months)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedule(t *testing.T) {
	t.Run("reducing balance", func(t *testing.T) {
		entries, err := Schedule(10_000, decimal.NewFromInt(12), 5000)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, int64(100), entries[0].Interest)
		assert.Equal(t, int64(4900), entries[0].Principal)
		assert.Equal(t, int64(5100), entries[0].Balance)

		assert.Equal(t, int64(51), entries[1].Interest)
		assert.Equal(t, int64(4949), entries[1].Principal)
		assert.Equal(t, int64(151), entries[1].Balance)

		// Final month: payment exceeds what is left, principal is clamped.
		assert.Equal(t, int64(151), entries[2].Principal)
		assert.Equal(t, int64(0), entries[2].Balance)
	})

	t.Run("zero rate", func(t *testing.T) {
		entries, err := Schedule(1200, decimal.Zero, 500)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, int64(0), entries[0].Interest)
		assert.Equal(t, int64(200), entries[2].Principal)
		assert.Equal(t, int64(0), entries[2].Balance)
	})

	t.Run("payment covers only interest", func(t *testing.T) {
		_, err := Schedule(100_000, decimal.NewFromInt(12), 1000)
		require.ErrorIs(t, err, domain.ErrPaymentTooSmall)
	})

	t.Run("payment barely above interest never terminates", func(t *testing.T) {
		_, err := Schedule(1_000_000, decimal.NewFromInt(12), 10_001)
		require.ErrorIs(t, err, domain.ErrPaymentTooSmall)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		_, err := Schedule(0, decimal.NewFromInt(12), 1000)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
		_, err = Schedule(1000, decimal.NewFromInt(12), 0)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestTotalRepayable(t *testing.T) {
	assert.Equal(t, int64(110_000), TotalRepayable(100_000, decimal.NewFromInt(10), 12))
	assert.Equal(t, int64(105_000), TotalRepayable(100_000, decimal.NewFromInt(10), 6))
	assert.Equal(t, int64(100_000), TotalRepayable(100_000, decimal.Zero, 12))
}

func TestExtensionCharge(t *testing.T) {
	assert.Equal(t, int64(1000), ExtensionCharge(60_000, decimal.NewFromInt(10), 2))
	assert.Equal(t, int64(0), ExtensionCharge(60_000, decimal.Zero, 2))
}

func TestSplitRepayment(t *testing.T) {
	principal, interest := SplitRepayment(11_000, 100_000, 110_000)
	assert.Equal(t, int64(10_000), principal)
	assert.Equal(t, int64(1000), interest)

	principal, interest = SplitRepayment(1000, 100_000, 110_000)
	assert.Equal(t, int64(909), principal)
	assert.Equal(t, int64(91), interest)

	// Portions always sum to the payment.
	assert.Equal(t, int64(1000), principal+interest)

	// Degenerate total falls back to all-principal.
	principal, interest = SplitRepayment(500, 100_000, 0)
	assert.Equal(t, int64(500), principal)
	assert.Equal(t, int64(0), interest)
}
