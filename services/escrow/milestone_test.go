package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateVotes(t *testing.T) {
	raised := USD(1000)
	tests := []struct {
		name         string
		votesFor     int64
		votesAgainst int64
		windowClosed bool
		want         voteOutcome
	}{
		{"below quorum", 400, 0, false, voteUndecided},
		{"quorum for", 500, 0, false, voteApproved},
		{"quorum against", 100, 400, false, voteRejected},
		{"tie rejects", 400, 400, false, voteRejected},
		{"no quorum after window", 400, 0, true, voteRejected},
		{"no votes after window", 0, 0, true, voteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, evaluateVotes(raised, USD(tt.votesFor), USD(tt.votesAgainst), tt.windowClosed))
		})
	}
}

func TestQuorumBoundary(t *testing.T) {
	e := newEnv(t)
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 400)
	e.contribute(t, c, "bob", 600)
	e.toVesting(t, c)
	e.submit(t, c)

	m := e.vote(t, c, "alice", true)
	require.Equal(t, MilestoneStatusSubmitted, m.Status)
	requireDecimal(t, USD(400), m.VotesFor)

	m = e.vote(t, c, "bob", true)
	require.Equal(t, MilestoneStatusApproved, m.Status)
	requireDecimal(t, USD(300), m.ReleasedValue)

	view := e.reload(t, c)
	require.Equal(t, 1, view.CurrentMilestone)
	require.Equal(t, CampaignStatusVesting, view.Status)
	requireDecimal(t, USD(300), view.ReleasedValue)
	requireDecimal(t, USD(240), e.balance(t, "creator", AssetStable).Sub(USD(900)))
}

func TestTieRejects(t *testing.T) {
	e := newEnv(t)
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 400)
	e.contribute(t, c, "bob", 400)
	e.contribute(t, c, "carol", 200)
	e.toVesting(t, c)
	e.submit(t, c)

	require.Equal(t, MilestoneStatusSubmitted, e.vote(t, c, "alice", true).Status)
	require.Equal(t, MilestoneStatusRejected, e.vote(t, c, "bob", false).Status)

	view := e.reload(t, c)
	require.Equal(t, CampaignStatusFailed, view.Status)
	require.NotNil(t, view.FailedAt)
	requireDecimal(t, USD(0), view.ReleasedValue)
}

func TestVotingWithoutQuorumRejectsAfterWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 100)
	e.contribute(t, c, "bob", 900)
	e.toVesting(t, c)
	e.submit(t, c)
	e.vote(t, c, "alice", true)

	_, err := e.svc.FinalizeMilestoneVoting(ctx, c.ID)
	require.ErrorIs(t, err, ErrVotingNotClosed)

	e.clock.Advance(VotingPeriod)
	_, err = e.svc.VoteOnMilestone(ctx, "bob", c.ID, true)
	require.ErrorIs(t, err, ErrVotingClosed)

	m, err := e.svc.FinalizeMilestoneVoting(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, MilestoneStatusRejected, m.Status)

	require.Equal(t, CampaignStatusFailed, e.reload(t, c).Status)
	rep, err := e.svc.GetReputation(ctx, "creator")
	require.NoError(t, err)
	require.Equal(t, 1, rep.Failed)
	require.False(t, rep.CanCreate)
}

func TestVoteLock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "creator", AssetStable, USD(1000))
	req := e.campaignRequest(1000)
	req.FundingDuration = MinFundingDuration
	c, err := e.svc.CreateCampaign(ctx, "creator", req)
	require.NoError(t, err)

	e.contribute(t, c, "alice", 1000)
	e.clock.Advance(MinFundingDuration - 1*hour)
	e.contribute(t, c, "bob", 100)
	e.toVesting(t, c)
	e.submit(t, c)

	_, err = e.svc.VoteOnMilestone(ctx, "bob", c.ID, true)
	require.ErrorIs(t, err, ErrVoteLocked)

	e.clock.Advance(22 * hour)
	_, err = e.svc.VoteOnMilestone(ctx, "bob", c.ID, true)
	require.ErrorIs(t, err, ErrVoteLocked)

	e.clock.Advance(1 * hour)
	m := e.vote(t, c, "bob", true)
	require.Equal(t, MilestoneStatusSubmitted, m.Status)

	_, err = e.svc.VoteOnMilestone(ctx, "bob", c.ID, false)
	require.ErrorIs(t, err, ErrAlreadyVoted)

	_, err = e.svc.VoteOnMilestone(ctx, "mallory", c.ID, true)
	require.ErrorIs(t, err, ErrNotBacker)

	require.Equal(t, MilestoneStatusApproved, e.vote(t, c, "alice", true).Status)
}

func TestSubmitMilestoneProof(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 1000)

	_, err := e.svc.SubmitMilestoneProof(ctx, "creator", c.ID, hashOf("proof"))
	require.ErrorIs(t, err, ErrCampaignNotVesting)

	e.toVesting(t, c)
	_, err = e.svc.SubmitMilestoneProof(ctx, "alice", c.ID, hashOf("proof"))
	require.ErrorIs(t, err, ErrNotCreator)
	_, err = e.svc.SubmitMilestoneProof(ctx, "creator", c.ID, "00")
	require.ErrorIs(t, err, ErrInvalidProof)

	m, err := e.svc.SubmitMilestoneProof(ctx, "creator", c.ID, hashOf("proof"))
	require.NoError(t, err)
	require.Equal(t, MilestoneStatusSubmitted, m.Status)
	require.True(t, e.clock.Now().Add(VotingPeriod).Equal(*m.VotingEndsAt))

	_, err = e.svc.SubmitMilestoneProof(ctx, "creator", c.ID, hashOf("proof"))
	require.ErrorIs(t, err, ErrMilestoneNotPending)
}

func TestExpireMilestone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t, "creator", 1000)
	e.contribute(t, c, "alice", 1000)
	e.toVesting(t, c)

	_, err := e.svc.ExpireMilestone(ctx, c.ID)
	require.ErrorIs(t, err, ErrMilestoneNotOverdue)

	e.clock.Advance(30 * day)
	_, err = e.svc.SubmitMilestoneProof(ctx, "creator", c.ID, hashOf("late"))
	require.ErrorIs(t, err, ErrMilestoneOverdue)

	m, err := e.svc.ExpireMilestone(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, MilestoneStatusExpired, m.Status)
	require.Equal(t, CampaignStatusFailed, e.reload(t, c).Status)

	_, err = e.svc.InitiateDispute(ctx, "creator", c.ID, hashOf("evidence"))
	require.ErrorIs(t, err, ErrMilestoneNotRejected)

	receipt, err := e.svc.ClaimRefund(ctx, "alice", c.ID)
	require.NoError(t, err)
	requireDecimal(t, USD(970), receipt.Net)
	requireDecimal(t, USD(100), receipt.DepositShare)
	requireDecimal(t, USD(1070), e.balance(t, "alice", AssetStable))
}
