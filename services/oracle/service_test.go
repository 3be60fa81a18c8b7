package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/config"
	"crowdfund-escrow/pkg/middleware"
	"crowdfund-escrow/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *clockwork.FakeClock) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Oracle.MaxPriceAge = time.Hour
	cfg.Oracle.CacheTTL = time.Minute

	authz, err := access.New()
	require.NoError(t, err)
	require.NoError(t, authz.Grant("owner", access.RoleOwner))

	clock := testutil.NewClock()
	svc := NewService(ServiceParams{
		DB:     testutil.NewTestDB(t, &PriceFeed{}),
		Config: cfg,
		Clock:  clock,
		Authz:  authz,
	})
	return svc, clock
}

// 1 ETH = 2500 USD.
var ethPrice = decimal.New(2500, 8)

func TestConvertRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetPrice(ctx, "owner", "ETH", ethPrice)
	require.NoError(t, err)

	oneEth := decimal.New(1, 18)
	usd, err := svc.ConvertToUSD(ctx, "ETH", oneEth)
	require.NoError(t, err)
	require.True(t, usd.Equal(decimal.New(2500, 18)))

	back, err := svc.ConvertFromUSD(ctx, "ETH", usd)
	require.NoError(t, err)
	require.True(t, back.Equal(oneEth))

	// 1 wei is worth 2500e-8 USD-wei, which rounds down to zero.
	dust, err := svc.ConvertToUSD(ctx, "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)
	require.True(t, dust.IsZero())
}

func TestGetPriceFailsClosed(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetPrice(ctx, "ETH")
	require.ErrorIs(t, err, ErrPriceUnset)

	_, err = svc.SetPrice(ctx, "owner", "ETH", ethPrice)
	require.NoError(t, err)

	price, err := svc.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	require.True(t, price.Equal(ethPrice))

	clock.Advance(time.Hour + time.Second)
	_, err = svc.ConvertToUSD(ctx, "ETH", decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrPriceStale)

	_, err = svc.SetPrice(ctx, "owner", "ETH", ethPrice.Mul(decimal.NewFromInt(2)))
	require.NoError(t, err)
	price, err = svc.GetPrice(ctx, "ETH")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.New(5000, 8)))
}

func TestSetPriceValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetPrice(ctx, "mallory", "ETH", ethPrice)
	require.ErrorIs(t, err, ErrNotPriceSetter)

	_, err = svc.SetPrice(ctx, "owner", "ETH", decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.SetPrice(ctx, "owner", "ETH", decimal.RequireFromString("1.5"))
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t)
	mux := runtime.NewServeMux()
	require.NoError(t, NewHandler(svc).Register(mux))

	req := httptest.NewRequest(http.MethodPut, "/v1/oracle/prices/ETH", strings.NewReader(`{"price":"250000000000"}`))
	req.Header.Set(middleware.CallerHeader, "owner")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oracle/prices/ETH", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"asset":"ETH","price":"250000000000"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/oracle/prices/BTC", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
