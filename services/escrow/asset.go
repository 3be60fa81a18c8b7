package escrow

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentAsset is the closed set of assets a campaign can accept.
type PaymentAsset string

const (
	// AssetStable is the USD reference asset, converted 1:1.
	AssetStable PaymentAsset = "USDC"
	// AssetNative is priced through the oracle.
	AssetNative PaymentAsset = "ETH"
	// AssetPlatform is priced through the oracle and earns a contribution
	// bonus.
	AssetPlatform PaymentAsset = "CFT"
)

type assetPolicy struct {
	priced   bool
	bonusBps int64
}

var assetPolicies = map[PaymentAsset]assetPolicy{
	AssetStable:   {priced: false},
	AssetNative:   {priced: true},
	AssetPlatform: {priced: true, bonusBps: PlatformBonusBps},
}

func (a PaymentAsset) Valid() bool {
	_, ok := assetPolicies[a]
	return ok
}

func (a PaymentAsset) Priced() bool {
	return assetPolicies[a].priced
}

func (a PaymentAsset) String() string {
	return string(a)
}

// ToUSD values amount of a in 18-decimal USD.
func (a PaymentAsset) ToUSD(ctx context.Context, prices PriceService, amount decimal.Decimal) (decimal.Decimal, error) {
	if !a.Priced() {
		return amount, nil
	}
	return prices.ConvertToUSD(ctx, a.String(), amount)
}

// FromUSD converts an 18-decimal USD value into units of a.
func (a PaymentAsset) FromUSD(ctx context.Context, prices PriceService, usd decimal.Decimal) (decimal.Decimal, error) {
	if !a.Priced() {
		return usd, nil
	}
	return prices.ConvertFromUSD(ctx, a.String(), usd)
}

// ContributionValue is the USD credit for contributing amount of a,
// bonus included.
func (a PaymentAsset) ContributionValue(ctx context.Context, prices PriceService, amount decimal.Decimal) (decimal.Decimal, error) {
	usd, err := a.ToUSD(ctx, prices, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if bonus := assetPolicies[a].bonusBps; bonus > 0 {
		usd = usd.Add(mulBps(usd, bonus))
	}
	return usd, nil
}
