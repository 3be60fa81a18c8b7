package escrow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// rejected builds a 5000 USD campaign with a single 1000 USD backer whose
// vote rejects the first milestone.
func rejected(t *testing.T, e *env) *Campaign {
	t.Helper()
	c := e.create(t, "creator", 5000)
	e.contribute(t, c, "alice", 1000)
	e.toVesting(t, c)
	e.submit(t, c)
	e.clock.Advance(VoteLock)
	require.Equal(t, MilestoneStatusRejected, e.vote(t, c, "alice", false).Status)
	require.Equal(t, CampaignStatusFailed, e.reload(t, c).Status)
	return c
}

func TestValidReleaseBps(t *testing.T) {
	require.True(t, validReleaseBps(false, 0))
	require.False(t, validReleaseBps(false, 5000))
	require.True(t, validReleaseBps(true, 5000))
	require.True(t, validReleaseBps(true, 10000))
	require.False(t, validReleaseBps(true, 0))
	require.False(t, validReleaseBps(true, 7500))
}

func TestRejectionWithoutDispute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := rejected(t, e)

	_, err := e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.ErrorIs(t, err, ErrRefundsNotOpen)

	e.clock.Advance(DisputeWindow)
	receipt, err := e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
	requireDecimal(t, USD(1470), receipt.Paid)
	requireDecimal(t, USD(1470), e.balance(t, "alice", AssetStable))
	requireDecimal(t, USD(30), e.balance(t, "treasury", AssetStable))
	requireDecimal(t, USD(0), e.balance(t, "escrow", AssetStable))

	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.ErrorIs(t, err, ErrAlreadyRefunded)
	_, err = e.svc.ClaimRefund(ctx, "bob", c.ID)
	require.ErrorIs(t, err, ErrNotBacker)

	e.fund(t, "creator", AssetStable, USD(1000))
	_, err = e.svc.CreateCampaign(ctx, "creator", e.campaignRequest(1000))
	require.ErrorIs(t, err, ErrTooManyFailedCampaigns)
}

func TestDisputeHalfRelease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := rejected(t, e)

	_, err := e.svc.InitiateDispute(ctx, "alice", c.ID, hashOf("evidence"))
	require.ErrorIs(t, err, ErrNotCreator)

	e.clock.Advance(day)
	d, err := e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.NoError(t, err)
	require.Equal(t, DisputeStatusPending, d.Status)
	require.Equal(t, 0, d.MilestoneIdx)

	_, err = e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.ErrorIs(t, err, ErrDisputePending)

	e.clock.Advance(DisputeWindow - day + hour)
	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.ErrorIs(t, err, ErrRefundsNotOpen)

	_, err = e.svc.ResolveDispute(ctx, "alice", c.ID, true, 5000)
	require.ErrorIs(t, err, ErrNotArbitrator)
	_, err = e.svc.ResolveDispute(ctx, "arbiter", c.ID, true, 2500)
	require.ErrorIs(t, err, ErrInvalidReleasePercentage)

	creatorBefore := e.balance(t, "creator", AssetStable)
	d, err = e.svc.ResolveDispute(ctx, "arbiter", c.ID, true, 5000)
	require.NoError(t, err)
	require.Equal(t, DisputeStatusResolvedForCreator, d.Status)
	requireDecimal(t, USD(150), d.ReleasedValue)
	require.Equal(t, "arbiter", d.ResolvedBy)

	requireDecimal(t, USD(120), e.balance(t, "creator", AssetStable).Sub(creatorBefore))
	requireDecimal(t, decimal.New(75, 17), e.balance(t, "pool-a", AssetStable))
	requireDecimal(t, decimal.New(75, 17), e.balance(t, "pool-b", AssetStable))

	view := e.reload(t, c)
	require.Equal(t, CampaignStatusFailed, view.Status)
	requireDecimal(t, USD(150), view.ReleasedValue)

	_, err = e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("again"))
	require.ErrorIs(t, err, ErrDisputeWindowClosed)

	receipt, err := e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
	requireDecimal(t, USD(850), receipt.Refundable)
	requireDecimal(t, decimal.RequireFromString("1324.5").Shift(ValueDecimals), receipt.Paid)
	requireDecimal(t, decimal.RequireFromString("40.5").Shift(ValueDecimals), e.balance(t, "treasury", AssetStable))
	requireDecimal(t, USD(0), e.balance(t, "escrow", AssetStable))

	got, err := e.svc.GetDispute(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
}

func TestDisputeSecondAttemptRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := rejected(t, e)

	_, err := e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.NoError(t, err)
	_, err = e.svc.ResolveDispute(ctx, "arbiter", c.ID, false, 0)
	require.NoError(t, err)

	_, err = e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("more evidence"))
	require.ErrorIs(t, err, ErrDisputeExists)

	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
}

func TestDisputeFullRelease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := rejected(t, e)

	rep, err := e.svc.GetReputation(ctx, "creator")
	require.NoError(t, err)
	require.Equal(t, 1, rep.Failed)

	_, err = e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.NoError(t, err)
	d, err := e.svc.ResolveDispute(ctx, "arbiter", c.ID, true, 10000)
	require.NoError(t, err)
	requireDecimal(t, USD(300), d.ReleasedValue)

	view := e.reload(t, c)
	require.Equal(t, CampaignStatusVesting, view.Status)
	require.Equal(t, 1, view.CurrentMilestone)
	require.Nil(t, view.FailedAt)
	require.Equal(t, MilestoneStatusApproved, view.Milestones[0].Status)

	rep, err = e.svc.GetReputation(ctx, "creator")
	require.NoError(t, err)
	require.Equal(t, 0, rep.Failed)

	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.ErrorIs(t, err, ErrCampaignNotRefundable)
}

func TestDisputeWindowClosed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := rejected(t, e)

	e.clock.Advance(DisputeWindow)
	_, err := e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.ErrorIs(t, err, ErrDisputeWindowClosed)

	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
}

func TestDisputeDeadlinePassed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := rejected(t, e)

	_, err := e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.NoError(t, err)

	e.clock.Advance(ArbitrationPeriod)
	_, err = e.svc.ResolveDispute(ctx, "arbiter", c.ID, true, BpsDenominator)
	require.ErrorIs(t, err, ErrDisputeDeadlinePassed)

	_, err = e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
	require.Equal(t, CampaignStatusFailed, e.reload(t, c).Status)
}
