package escrow

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceService converts priced assets to and from 18-decimal USD. It must
// fail rather than return a stale or missing price.
type PriceService interface {
	ConvertToUSD(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error)
	ConvertFromUSD(ctx context.Context, asset string, usd decimal.Decimal) (decimal.Decimal, error)
}

// AssetLedger moves balances. Implementations join the transaction carried
// by ctx; any error aborts the calling operation.
type AssetLedger interface {
	Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) error
	TransferFrom(ctx context.Context, spender, from, to, asset string, amount decimal.Decimal) error
}

// ContentStore resolves content hashes.
type ContentStore interface {
	Enabled() bool
	Exists(ctx context.Context, hash string) (bool, error)
}
