package escrow

import "github.com/shopspring/decimal"

// FeeSplit is the four-way allocation of one release. The parts always sum
// to the released amount.
type FeeSplit struct {
	Creator  decimal.Decimal `json:"creator"`
	Platform decimal.Decimal `json:"platform"`
	PoolA    decimal.Decimal `json:"pool_a"`
	PoolB    decimal.Decimal `json:"pool_b"`
}

// SplitFee allocates 80% to the creator, 10% to the platform and 5% to pool
// A, rounding each down. Pool B takes the remainder.
func SplitFee(amount decimal.Decimal) FeeSplit {
	creator := mulBps(amount, CreatorShareBps)
	platform := mulBps(amount, PlatformShareBps)
	poolA := mulBps(amount, PoolAShareBps)
	return FeeSplit{
		Creator:  creator,
		Platform: platform,
		PoolA:    poolA,
		PoolB:    amount.Sub(creator).Sub(platform).Sub(poolA),
	}
}

func (f FeeSplit) Total() decimal.Decimal {
	return f.Creator.Add(f.Platform).Add(f.PoolA).Add(f.PoolB)
}
