package escrow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeRefund(t *testing.T) {
	tests := []struct {
		name                                 string
		contribution, raised, remaining, dep decimal.Decimal
		refundable, fee, net, depositShare   decimal.Decimal
	}{
		{
			name:         "full holdings",
			contribution: USD(1000), raised: USD(1000), remaining: USD(1000), dep: USD(500),
			refundable: USD(1000), fee: USD(30), net: USD(970), depositShare: USD(500),
		},
		{
			name:         "pro rata after release",
			contribution: USD(250), raised: USD(1000), remaining: USD(700), dep: USD(100),
			refundable: USD(175), fee: decimal.RequireFromString("5.25").Shift(ValueDecimals), net: decimal.RequireFromString("169.75").Shift(ValueDecimals), depositShare: USD(25),
		},
		{
			name:         "forfeited deposit",
			contribution: USD(200), raised: USD(1000), remaining: USD(1000), dep: decimal.Zero,
			refundable: USD(200), fee: USD(6), net: USD(194), depositShare: decimal.Zero,
		},
		{
			name:         "nothing raised",
			contribution: USD(200), raised: decimal.Zero, remaining: USD(1000), dep: USD(100),
			refundable: decimal.Zero, fee: decimal.Zero, net: decimal.Zero, depositShare: decimal.Zero,
		},
		{
			name:         "floors indivisible amounts",
			contribution: decimal.NewFromInt(1), raised: decimal.NewFromInt(3), remaining: decimal.NewFromInt(100), dep: decimal.NewFromInt(10),
			refundable: decimal.NewFromInt(33), fee: decimal.Zero, net: decimal.NewFromInt(33), depositShare: decimal.NewFromInt(3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ComputeRefund(tt.contribution, tt.raised, tt.remaining, tt.dep)
			requireDecimal(t, tt.refundable, q.Refundable, "refundable")
			requireDecimal(t, tt.fee, q.Fee, "fee")
			requireDecimal(t, tt.net, q.Net, "net")
			requireDecimal(t, tt.depositShare, q.DepositShare, "deposit share")
			requireDecimal(t, tt.net.Add(tt.depositShare), q.Total(), "total")
		})
	}
}

func TestRefundSharesAcrossBackers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 250)
	e.contribute(t, c, "bob", 750)
	_, err := e.svc.CancelCampaign(ctx, "creator", c.ID)
	require.NoError(t, err)

	preview, err := e.svc.PreviewRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	requireDecimal(t, USD(750), preview.Refundable)
	requireDecimal(t, decimal.Zero, preview.DepositShare)

	a, err := e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
	requireDecimal(t, decimal.RequireFromString("242.5").Shift(ValueDecimals), a.Paid)

	b, err := e.svc.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	requireDecimal(t, decimal.RequireFromString("727.5").Shift(ValueDecimals), b.Paid)

	requireDecimal(t, USD(0), e.balance(t, "escrow", AssetStable))
	requireDecimal(t, USD(130), e.balance(t, "treasury", AssetStable))

	view := e.reload(t, c)
	requireDecimal(t, USD(1000), view.RefundedAssetAmount)

	contrib, err := e.svc.GetContribution(ctx, c.ID, "alice")
	require.NoError(t, err)
	require.True(t, contrib.Refunded)
	require.NotNil(t, contrib.RefundedAt)
}

func TestRefundWindowCloses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 100)

	_, err := e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.ErrorIs(t, err, ErrCampaignNotRefundable)

	_, err = e.svc.CancelCampaign(ctx, "creator", c.ID)
	require.NoError(t, err)

	e.clock.Advance(RefundWindow)
	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.ErrorIs(t, err, ErrRefundWindowClosed)
}
