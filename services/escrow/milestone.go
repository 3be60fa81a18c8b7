package escrow

import (
	"context"
	"strings"
	"time"

	"crowdfund-escrow/pkg/db/option"

	"github.com/shopspring/decimal"
)

type voteOutcome int

const (
	voteUndecided voteOutcome = iota
	voteApproved
	voteRejected
)

// evaluateVotes applies the resolution rule. Once the cast weight reaches
// half of raised the majority decides and a tie rejects. Without quorum the
// milestone stays open until the window closes, then it is rejected.
func evaluateVotes(raised, votesFor, votesAgainst decimal.Decimal, windowClosed bool) voteOutcome {
	quorum := mulBps(raised, QuorumBps)
	if votesFor.Add(votesAgainst).GreaterThanOrEqual(quorum) {
		if votesFor.GreaterThan(votesAgainst) {
			return voteApproved
		}
		return voteRejected
	}
	if windowClosed {
		return voteRejected
	}
	return voteUndecided
}

// milestoneAmount is the USD value a milestone releases. The final
// milestone takes whatever has not been released yet.
func milestoneAmount(c *Campaign, m *Milestone) decimal.Decimal {
	if c.isFinalMilestone(m.Idx) {
		return c.RaisedValue.Sub(c.ReleasedValue)
	}
	return mulBps(c.RaisedValue, m.ReleaseBps)
}

// vestingMilestone loads c and its current milestone for update and checks
// the campaign is vesting.
func (s *Service) vestingMilestone(ctx context.Context, campaignID string) (*Campaign, *Milestone, error) {
	c, err := s.campaign(ctx, campaignID, true)
	if err != nil {
		return nil, nil, err
	}
	if c.Status != CampaignStatusVesting {
		return nil, nil, ErrCampaignNotVesting
	}
	m, err := s.currentMilestone(ctx, c, true)
	if err != nil {
		return nil, nil, err
	}
	return c, m, nil
}

func (s *Service) saveProgress(ctx context.Context, c *Campaign, m *Milestone, now time.Time) error {
	c.UpdatedAt = now
	if err := s.milestones.Save(ctx, m); err != nil {
		return err
	}
	return s.campaigns.Save(ctx, c)
}

func (s *Service) milestoneEvent(ctx context.Context, c *Campaign, m *Milestone, eventType string) error {
	return s.emit(ctx, c.ID, eventType, milestonePayload{
		MilestoneIdx: m.Idx,
		Status:       m.Status,
		ProofHash:    m.ProofHash,
		VotesFor:     m.VotesFor,
		VotesAgainst: m.VotesAgainst,
	})
}

// SubmitMilestoneProof opens the voting window on the current milestone.
func (s *Service) SubmitMilestoneProof(ctx context.Context, caller, campaignID, proofHash string) (*Milestone, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !validHash(proofHash) {
		return nil, ErrInvalidProof
	}

	var out *Milestone
	err := s.exec(ctx, "submit_milestone_proof", func(ctx context.Context, now time.Time) error {
		c, m, err := s.vestingMilestone(ctx, campaignID)
		if err != nil {
			return err
		}
		if c.Creator != caller {
			return ErrNotCreator
		}
		if m.Status != MilestoneStatusPending {
			return ErrMilestoneNotPending
		}
		if !now.Before(m.DueDate) {
			return ErrMilestoneOverdue
		}
		if err := s.checkContent(ctx, proofHash); err != nil {
			return err
		}

		ends := now.Add(VotingPeriod)
		m.Status = MilestoneStatusSubmitted
		m.ProofHash = strings.ToLower(proofHash)
		m.SubmittedAt = &now
		m.VotingEndsAt = &ends
		if err := s.saveProgress(ctx, c, m, now); err != nil {
			return err
		}

		out = m
		return s.milestoneEvent(ctx, c, m, EventMilestoneSubmitted)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VoteOnMilestone records a backer's weighted vote on the current milestone
// and resolves it at once when the vote is decisive.
func (s *Service) VoteOnMilestone(ctx context.Context, caller, campaignID string, approve bool) (*Milestone, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var out *Milestone
	err := s.exec(ctx, "vote_on_milestone", func(ctx context.Context, now time.Time) error {
		c, m, err := s.vestingMilestone(ctx, campaignID)
		if err != nil {
			return err
		}
		if m.Status != MilestoneStatusSubmitted {
			return ErrMilestoneNotSubmitted
		}
		if m.VotingEndsAt == nil || !now.Before(*m.VotingEndsAt) {
			return ErrVotingClosed
		}

		contrib, err := s.contribution(ctx, c.ID, caller, false)
		if err != nil {
			return err
		}
		if contrib == nil || !contrib.Value.IsPositive() {
			return ErrNotBacker
		}
		if now.Before(contrib.ContributedAt.Add(VoteLock)) {
			return ErrVoteLocked
		}

		prior, err := s.votes.FindOne(ctx, &Vote{CampaignID: c.ID, Voter: caller},
			option.ApplyOperator(option.Condition{Field: "milestone_idx", Operator: option.EQ, Value: m.Idx}))
		if err != nil {
			return err
		}
		if prior != nil {
			return ErrAlreadyVoted
		}

		vote := &Vote{
			ID:           s.node.Generate().String(),
			CampaignID:   c.ID,
			MilestoneIdx: m.Idx,
			Voter:        caller,
			Approve:      approve,
			Weight:       contrib.Value,
			CastAt:       now,
		}
		if err := s.votes.Create(ctx, vote); err != nil {
			return err
		}

		if approve {
			m.VotesFor = m.VotesFor.Add(vote.Weight)
		} else {
			m.VotesAgainst = m.VotesAgainst.Add(vote.Weight)
		}
		if err := s.emit(ctx, c.ID, EventVoteCast, votePayload{
			MilestoneIdx: m.Idx,
			Voter:        caller,
			Approve:      approve,
			Weight:       vote.Weight,
		}); err != nil {
			return err
		}

		if err := s.resolveMilestone(ctx, c, m, now, false); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FinalizeMilestoneVoting resolves a milestone whose voting window has
// closed. Anyone may call it.
func (s *Service) FinalizeMilestoneVoting(ctx context.Context, campaignID string) (*Milestone, error) {
	var out *Milestone
	err := s.exec(ctx, "finalize_milestone_voting", func(ctx context.Context, now time.Time) error {
		c, m, err := s.vestingMilestone(ctx, campaignID)
		if err != nil {
			return err
		}
		if m.Status != MilestoneStatusSubmitted {
			return ErrMilestoneNotSubmitted
		}
		if m.VotingEndsAt == nil || now.Before(*m.VotingEndsAt) {
			return ErrVotingNotClosed
		}
		if err := s.resolveMilestone(ctx, c, m, now, true); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireMilestone fails the campaign when the current milestone passed its
// due date unresolved. Anyone may call it.
func (s *Service) ExpireMilestone(ctx context.Context, campaignID string) (*Milestone, error) {
	var out *Milestone
	err := s.exec(ctx, "expire_milestone", func(ctx context.Context, now time.Time) error {
		c, m, err := s.vestingMilestone(ctx, campaignID)
		if err != nil {
			return err
		}
		if m.Status != MilestoneStatusPending && m.Status != MilestoneStatusSubmitted {
			return ErrMilestoneResolved
		}
		if now.Before(m.DueDate) {
			return ErrMilestoneNotOverdue
		}

		m.Status = MilestoneStatusExpired
		m.ResolvedAt = &now
		if err := s.milestoneEvent(ctx, c, m, EventMilestoneExpired); err != nil {
			return err
		}
		if err := s.failCampaign(ctx, c, now); err != nil {
			return err
		}
		if err := s.saveProgress(ctx, c, m, now); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveMilestone applies the vote outcome to m and persists both rows.
func (s *Service) resolveMilestone(ctx context.Context, c *Campaign, m *Milestone, now time.Time, windowClosed bool) error {
	switch evaluateVotes(c.RaisedValue, m.VotesFor, m.VotesAgainst, windowClosed) {
	case voteApproved:
		if err := s.approveMilestone(ctx, c, m, now); err != nil {
			return err
		}
	case voteRejected:
		m.Status = MilestoneStatusRejected
		m.ResolvedAt = &now
		if err := s.milestoneEvent(ctx, c, m, EventMilestoneRejected); err != nil {
			return err
		}
		if err := s.failCampaign(ctx, c, now); err != nil {
			return err
		}
	}
	return s.saveProgress(ctx, c, m, now)
}

// approveMilestone releases the milestone's share and advances c. The
// caller persists c and m.
func (s *Service) approveMilestone(ctx context.Context, c *Campaign, m *Milestone, now time.Time) error {
	amount := milestoneAmount(c, m)
	final := c.isFinalMilestone(m.Idx)

	if _, err := s.release(ctx, c, m.Idx, amount, final); err != nil {
		return err
	}
	m.Status = MilestoneStatusApproved
	m.ResolvedAt = &now
	m.ReleasedValue = m.ReleasedValue.Add(amount)
	c.ReleasedValue = c.ReleasedValue.Add(amount)
	if err := s.milestoneEvent(ctx, c, m, EventMilestoneApproved); err != nil {
		return err
	}

	c.CurrentMilestone++
	if final {
		return s.completeCampaign(ctx, c, now)
	}
	return nil
}
