package oracle

import (
	"context"
	"time"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/config"
	"crowdfund-escrow/pkg/repository"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PriceScale is 10^8, the fixed-point scale of prices.
var PriceScale = decimal.New(1, 8)

// Service is the price oracle. Reads fail closed: an unset price or one
// older than the configured maximum age is an error, never a fallback.
type Service struct {
	clock       clockwork.Clock
	authz       *access.Authorizer
	maxPriceAge time.Duration

	feeds repository.Repository[PriceFeed]
	cache *feedCache
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Clock  clockwork.Clock
	Authz  *access.Authorizer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		clock:       p.Clock,
		authz:       p.Authz,
		maxPriceAge: p.Config.Oracle.MaxPriceAge,
		feeds:       repository.ProvideStore[PriceFeed](p.DB),
		cache:       newFeedCache(p.Config.Oracle.CacheTTL),
	}
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// SetPrice records price (8 decimals) for asset. Owner only.
func (s *Service) SetPrice(ctx context.Context, caller, asset string, price decimal.Decimal) (*PriceFeed, error) {
	ok, err := s.authz.Allowed(caller, access.ObjectOracle, access.ActionWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPriceSetter
	}
	if asset == "" || !price.IsPositive() || !price.IsInteger() {
		return nil, ErrInvalidPrice
	}

	feed := &PriceFeed{
		Asset:     asset,
		Price:     price,
		UpdatedBy: caller,
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.feeds.Save(ctx, feed); err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to save price", zap.String("asset", asset), zap.Error(err))
		return nil, err
	}
	s.cache.invalidate(asset)

	zap.L().With(logFields(ctx)...).Info("price updated",
		zap.String("asset", asset),
		zap.String("price", price.String()),
	)
	return feed, nil
}

// GetPrice returns the current 8-decimal USD price of asset.
func (s *Service) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	feed, err := s.feed(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if s.clock.Since(feed.UpdatedAt) > s.maxPriceAge {
		return decimal.Zero, ErrPriceStale
	}
	return feed.Price, nil
}

// ConvertToUSD values amount (18-decimal asset units) in 18-decimal USD,
// rounding down.
func (s *Service) ConvertToUSD(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	price, err := s.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	q, _ := amount.Mul(price).QuoRem(PriceScale, 0)
	return q, nil
}

// ConvertFromUSD is the inverse of ConvertToUSD, rounding down.
func (s *Service) ConvertFromUSD(ctx context.Context, asset string, usd decimal.Decimal) (decimal.Decimal, error) {
	if usd.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	price, err := s.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	q, _ := usd.Mul(PriceScale).QuoRem(price, 0)
	return q, nil
}

func (s *Service) feed(ctx context.Context, asset string) (PriceFeed, error) {
	now := s.clock.Now()
	if f, ok := s.cache.get(asset, now); ok {
		return f, nil
	}

	v, err, _ := s.cache.group.Do(asset, func() (any, error) {
		f, err := s.feeds.FindOne(ctx, &PriceFeed{Asset: asset})
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, ErrPriceUnset
		}
		s.cache.set(*f, now)
		return *f, nil
	})
	if err != nil {
		return PriceFeed{}, err
	}
	return v.(PriceFeed), nil
}
