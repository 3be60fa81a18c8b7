package escrow

import (
	"context"
	"strings"
	"time"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/db/option"
	"crowdfund-escrow/pkg/sequence"

	"github.com/shopspring/decimal"
)

func validReleaseBps(inFavorOfCreator bool, bps int64) bool {
	if !inFavorOfCreator {
		return bps == 0
	}
	return bps == BpsDenominator/2 || bps == BpsDenominator
}

func (s *Service) pendingDispute(ctx context.Context, campaignID string, lock bool) (*Dispute, error) {
	return s.disputes.FindOne(ctx, &Dispute{CampaignID: campaignID, Status: DisputeStatusPending}, lockOpts(lock)...)
}

func (s *Service) disputeFor(ctx context.Context, campaignID string, idx int) (*Dispute, error) {
	return s.disputes.FindOne(ctx, &Dispute{CampaignID: campaignID},
		option.ApplyOperator(option.Condition{Field: "milestone_idx", Operator: option.EQ, Value: idx}))
}

func (s *Service) disputeEvent(ctx context.Context, d *Dispute, actor string) error {
	eventType := EventDisputeResolved
	if d.Status == DisputeStatusPending {
		eventType = EventDisputeOpened
	}
	return s.emit(ctx, d.CampaignID, eventType, disputePayload{
		DisputeID:    d.ID,
		MilestoneIdx: d.MilestoneIdx,
		Status:       d.Status,
		ReleaseBps:   d.ReleaseBps,
		Released:     d.ReleasedValue,
		Actor:        actor,
	})
}

// InitiateDispute lets the creator contest the rejection that failed the
// campaign. It must be opened within 7 days of the failure.
func (s *Service) InitiateDispute(ctx context.Context, caller, campaignID, evidenceHash string) (*Dispute, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !validHash(evidenceHash) {
		return nil, ErrInvalidEvidence
	}

	var out *Dispute
	err := s.exec(ctx, "initiate_dispute", func(ctx context.Context, now time.Time) error {
		c, err := s.campaign(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if c.Creator != caller {
			return ErrNotCreator
		}
		if c.Status != CampaignStatusFailed {
			return ErrCampaignNotFailed
		}
		m, err := s.currentMilestone(ctx, c, false)
		if err != nil {
			return err
		}
		if m.Status != MilestoneStatusRejected {
			return ErrMilestoneNotRejected
		}
		if c.FailedAt == nil || !now.Before(c.FailedAt.Add(DisputeWindow)) {
			return ErrDisputeWindowClosed
		}

		pending, err := s.pendingDispute(ctx, c.ID, false)
		if err != nil {
			return err
		}
		if pending != nil {
			return ErrDisputePending
		}
		prior, err := s.disputeFor(ctx, c.ID, m.Idx)
		if err != nil {
			return err
		}
		if prior != nil {
			return ErrDisputeExists
		}
		if err := s.checkContent(ctx, evidenceHash); err != nil {
			return err
		}

		d := &Dispute{
			ID:            s.node.Generate().String(),
			Code:          s.nextCode(ctx, sequence.Generator.NextDisputeCode),
			CampaignID:    c.ID,
			MilestoneIdx:  m.Idx,
			EvidenceHash:  strings.ToLower(evidenceHash),
			Status:        DisputeStatusPending,
			ReleasedValue: decimal.Zero,
			OpenedAt:      now,
			Deadline:      now.Add(ArbitrationPeriod),
		}
		if err := s.disputes.Create(ctx, d); err != nil {
			return err
		}

		out = d
		return s.disputeEvent(ctx, d, caller)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveDispute settles the pending dispute of a campaign. A full release
// reinstates the milestone and the campaign; a half release pays out half of
// the milestone amount and leaves the campaign failed.
func (s *Service) ResolveDispute(ctx context.Context, caller, campaignID string, inFavorOfCreator bool, releaseBps int64) (*Dispute, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !validReleaseBps(inFavorOfCreator, releaseBps) {
		return nil, ErrInvalidReleasePercentage
	}

	var out *Dispute
	err := s.exec(ctx, "resolve_dispute", func(ctx context.Context, now time.Time) error {
		ok, err := s.authz.Allowed(caller, access.ObjectDispute, access.ActionResolve)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotArbitrator
		}

		c, err := s.campaign(ctx, campaignID, true)
		if err != nil {
			return err
		}
		d, err := s.pendingDispute(ctx, c.ID, true)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrDisputeNotPending
		}
		if !now.Before(d.Deadline) {
			return ErrDisputeDeadlinePassed
		}
		m, err := s.milestone(ctx, c.ID, d.MilestoneIdx, true)
		if err != nil {
			return err
		}

		d.Status = DisputeStatusResolvedForBackers
		if inFavorOfCreator {
			d.Status = DisputeStatusResolvedForCreator
			released, err := s.settleForCreator(ctx, c, m, releaseBps, now)
			if err != nil {
				return err
			}
			d.ReleasedValue = released
		}
		d.ReleaseBps = releaseBps
		d.ResolvedAt = &now
		d.ResolvedBy = caller

		if err := s.disputes.Save(ctx, d); err != nil {
			return err
		}
		if err := s.saveProgress(ctx, c, m, now); err != nil {
			return err
		}

		out = d
		return s.disputeEvent(ctx, d, caller)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settleForCreator pays out releaseBps of the disputed milestone's amount
// and returns the USD value released.
func (s *Service) settleForCreator(ctx context.Context, c *Campaign, m *Milestone, releaseBps int64, now time.Time) (decimal.Decimal, error) {
	full := milestoneAmount(c, m)

	if releaseBps == BpsDenominator {
		c.Status = CampaignStatusVesting
		c.FailedAt = nil
		if err := s.bumpReputation(ctx, c.Creator, now, 0, -1); err != nil {
			return decimal.Zero, err
		}
		if err := s.approveMilestone(ctx, c, m, now); err != nil {
			return decimal.Zero, err
		}
		return full, nil
	}

	partial := mulBps(full, releaseBps)
	if _, err := s.release(ctx, c, m.Idx, partial, false); err != nil {
		return decimal.Zero, err
	}
	m.ReleasedValue = m.ReleasedValue.Add(partial)
	c.ReleasedValue = c.ReleasedValue.Add(partial)
	return partial, nil
}
