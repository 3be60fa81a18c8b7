package escrow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RefundQuote is one backer's refund. All amounts are in the campaign
// asset's units.
type RefundQuote struct {
	Refundable   decimal.Decimal `json:"refundable"`
	Fee          decimal.Decimal `json:"fee"`
	Net          decimal.Decimal `json:"net"`
	DepositShare decimal.Decimal `json:"deposit_share"`
}

// Total is what the backer receives.
func (q RefundQuote) Total() decimal.Decimal {
	return q.Net.Add(q.DepositShare)
}

// ComputeRefund apportions remaining and deposit by contribution/raised.
// The 3% fee applies to the remaining-funds share only. Each product is
// formed before the single floored division.
func ComputeRefund(contribution, raised, remaining, deposit decimal.Decimal) RefundQuote {
	if !raised.IsPositive() || !contribution.IsPositive() {
		return RefundQuote{Refundable: decimal.Zero, Fee: decimal.Zero, Net: decimal.Zero, DepositShare: decimal.Zero}
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	refundable := mulDiv(contribution, remaining, raised)
	fee := mulBps(refundable, RefundFeeBps)
	return RefundQuote{
		Refundable:   refundable,
		Fee:          fee,
		Net:          refundable.Sub(fee),
		DepositShare: mulDiv(contribution, deposit, raised),
	}
}

// quoteFor prices a backer's refund against the campaign's holdings. The
// deposit share is zero once the deposit was forfeited or returned.
func quoteFor(c *Campaign, contrib *Contribution) RefundQuote {
	deposit := c.DepositAssetAmount
	if c.DepositForfeited || c.DepositRefunded {
		deposit = decimal.Zero
	}
	return ComputeRefund(contrib.Value, c.RaisedValue, c.RemainingAssetAmount(), deposit)
}

// refundsOpen checks the claim window. After a rejection, claims wait until
// the creator can no longer dispute or the dispute is settled.
func (s *Service) refundsOpen(ctx context.Context, c *Campaign, now time.Time) error {
	if c.Status != CampaignStatusFailed && c.Status != CampaignStatusCancelled {
		return ErrCampaignNotRefundable
	}
	if c.FailedAt == nil {
		return ErrCampaignNotRefundable
	}
	if !now.Before(c.FailedAt.Add(RefundWindow)) {
		return ErrRefundWindowClosed
	}
	if c.Status != CampaignStatusFailed || c.CurrentMilestone >= c.MilestoneCount || c.RaisedValue.IsZero() {
		return nil
	}

	m, err := s.milestone(ctx, c.ID, c.CurrentMilestone, false)
	if err != nil {
		return err
	}
	if m.Status != MilestoneStatusRejected {
		return nil
	}

	d, err := s.disputeFor(ctx, c.ID, m.Idx)
	if err != nil {
		return err
	}
	switch {
	case d == nil && now.Before(c.FailedAt.Add(DisputeWindow)):
		return ErrRefundsNotOpen
	case d != nil && d.Status == DisputeStatusPending && now.Before(d.Deadline):
		return ErrRefundsNotOpen
	}
	return nil
}

type RefundReceipt struct {
	CampaignID string       `json:"campaign_id"`
	Backer     string       `json:"backer"`
	Asset      PaymentAsset `json:"asset"`
	RefundQuote
	Paid       decimal.Decimal `json:"paid"`
	RefundedAt time.Time       `json:"refunded_at"`
}

// ClaimRefund pays a backer their share of a failed or cancelled campaign.
// The refunded flag is written before any transfer.
func (s *Service) ClaimRefund(ctx context.Context, caller, campaignID string) (*RefundReceipt, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var out *RefundReceipt
	err := s.exec(ctx, "claim_refund", func(ctx context.Context, now time.Time) error {
		c, err := s.campaign(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if err := s.refundsOpen(ctx, c, now); err != nil {
			return err
		}

		contrib, err := s.contribution(ctx, c.ID, caller, true)
		if err != nil {
			return err
		}
		if contrib == nil || !contrib.Value.IsPositive() {
			return ErrNotBacker
		}
		if contrib.Refunded {
			return ErrAlreadyRefunded
		}

		st, err := s.loadSettings(ctx, false)
		if err != nil {
			return err
		}

		quote := quoteFor(c, contrib)
		contrib.Refunded = true
		contrib.RefundedAt = &now
		if err := s.contributions.Save(ctx, contrib); err != nil {
			return err
		}
		c.RefundedAssetAmount = c.RefundedAssetAmount.Add(quote.Refundable).Add(quote.DepositShare)
		c.UpdatedAt = now
		if err := s.campaigns.Save(ctx, c); err != nil {
			return err
		}

		if err := s.pay(ctx, caller, c.Asset, quote.Total()); err != nil {
			return err
		}
		if err := s.pay(ctx, st.Treasury, c.Asset, quote.Fee); err != nil {
			return err
		}

		out = &RefundReceipt{
			CampaignID:  c.ID,
			Backer:      caller,
			Asset:       c.Asset,
			RefundQuote: quote,
			Paid:        quote.Total(),
			RefundedAt:  now,
		}
		return s.emit(ctx, c.ID, EventRefundClaimed, refundPayload{
			Backer:       caller,
			Refundable:   quote.Refundable,
			Fee:          quote.Fee,
			DepositShare: quote.DepositShare,
			Paid:         quote.Total(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PreviewRefund quotes a backer's refund without checking the claim window.
func (s *Service) PreviewRefund(ctx context.Context, backer, campaignID string) (*RefundQuote, error) {
	c, err := s.campaign(ctx, campaignID, false)
	if err != nil {
		return nil, err
	}
	contrib, err := s.contribution(ctx, c.ID, backer, false)
	if err != nil {
		return nil, err
	}
	if contrib == nil {
		return nil, ErrContributionNotFound
	}
	quote := quoteFor(c, contrib)
	if contrib.Refunded {
		quote = ComputeRefund(decimal.Zero, c.RaisedValue, decimal.Zero, decimal.Zero)
	}
	return &quote, nil
}
