package escrow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSplitFeeSumsExactly(t *testing.T) {
	amounts := []string{
		"0", "1", "2", "3", "7", "19", "21", "97", "101", "997", "7919",
		"1000000007", "999999999999999989",
		"300000000000000000000",
		"123456789012345678901234567",
	}
	for _, a := range amounts {
		amount := decimal.RequireFromString(a)
		split := SplitFee(amount)

		require.True(t, split.Total().Equal(amount), "amount %s split %+v", a, split)
		require.False(t, split.Creator.IsNegative())
		require.False(t, split.Platform.IsNegative())
		require.False(t, split.PoolA.IsNegative())
		require.False(t, split.PoolB.IsNegative())
	}
}

func TestSplitFeeProportions(t *testing.T) {
	split := SplitFee(decimal.NewFromInt(1000))
	require.True(t, split.Creator.Equal(decimal.NewFromInt(800)))
	require.True(t, split.Platform.Equal(decimal.NewFromInt(100)))
	require.True(t, split.PoolA.Equal(decimal.NewFromInt(50)))
	require.True(t, split.PoolB.Equal(decimal.NewFromInt(50)))

	// 97 is prime and not a multiple of 20; pool B absorbs the rounding.
	split = SplitFee(decimal.NewFromInt(97))
	require.True(t, split.Creator.Equal(decimal.NewFromInt(77)))
	require.True(t, split.Platform.Equal(decimal.NewFromInt(9)))
	require.True(t, split.PoolA.Equal(decimal.NewFromInt(4)))
	require.True(t, split.PoolB.Equal(decimal.NewFromInt(7)))
}

func TestGoalCeiling(t *testing.T) {
	require.True(t, GoalCeiling(0).Equal(USD(10_000)))
	require.True(t, GoalCeiling(1).Equal(USD(50_000)))
	require.True(t, GoalCeiling(2).Equal(USD(100_000)))
	require.True(t, GoalCeiling(3).Equal(USD(500_000)))
	require.True(t, GoalCeiling(42).Equal(USD(500_000)))
}
