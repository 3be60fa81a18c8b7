package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BpsDenominator = 10000

	MinFundingDuration = 7 * 24 * time.Hour
	MaxFundingDuration = 90 * 24 * time.Hour
	MilestoneHorizon   = 365 * 24 * time.Hour

	MinMilestones = 3
	MaxMilestones = 10

	DepositBps       = 1000
	PlatformBonusBps = 1000

	VotingPeriod = 7 * 24 * time.Hour
	VoteLock     = 24 * time.Hour
	QuorumBps    = 5000

	DisputeWindow     = 7 * 24 * time.Hour
	ArbitrationPeriod = 7 * 24 * time.Hour

	RefundWindow = 365 * 24 * time.Hour
	RefundFeeBps = 300

	CreatorShareBps  = 8000
	PlatformShareBps = 1000
	PoolAShareBps    = 500
)

// ValueDecimals is the fixed-point scale of USD values and asset amounts.
const ValueDecimals = 18

// USD returns n whole dollars in 18-decimal fixed point.
func USD(n int64) decimal.Decimal {
	return decimal.New(n, ValueDecimals)
}

var (
	MinGoal         = USD(1000)
	MinContribution = USD(10)
)

// goalCeilings caps the goal by the creator's count of successful
// campaigns; the last tier applies from there on.
var goalCeilings = []decimal.Decimal{
	USD(10_000),
	USD(50_000),
	USD(100_000),
	USD(500_000),
}

// GoalCeiling returns the largest goal a creator with successful completed
// campaigns may ask for.
func GoalCeiling(successful int) decimal.Decimal {
	if successful < 0 {
		successful = 0
	}
	if successful >= len(goalCeilings) {
		return goalCeilings[len(goalCeilings)-1]
	}
	return goalCeilings[successful]
}

// mulBps returns floor(v * bps / 10000).
func mulBps(v decimal.Decimal, bps int64) decimal.Decimal {
	return mulDiv(v, decimal.NewFromInt(bps), decimal.NewFromInt(BpsDenominator))
}

// mulDiv returns floor(a * b / c) for non-negative operands. The product is
// exact, so no precision is lost before the single division.
func mulDiv(a, b, c decimal.Decimal) decimal.Decimal {
	if c.IsZero() {
		return decimal.Zero
	}
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}
