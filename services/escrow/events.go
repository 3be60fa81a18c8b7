package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crowdfund-escrow/pkg/task"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	EventCampaignCreated      = "campaign.created"
	EventContributionReceived = "campaign.contribution_received"
	EventFundingFinalized     = "campaign.funding_finalized"
	EventCampaignCancelled    = "campaign.cancelled"
	EventCampaignCompleted    = "campaign.completed"
	EventCampaignFailed       = "campaign.failed"
	EventMilestoneSubmitted   = "milestone.submitted"
	EventVoteCast             = "milestone.vote_cast"
	EventMilestoneApproved    = "milestone.approved"
	EventMilestoneRejected    = "milestone.rejected"
	EventMilestoneExpired     = "milestone.expired"
	EventFundsReleased        = "funds.released"
	EventDisputeOpened        = "dispute.opened"
	EventDisputeResolved      = "dispute.resolved"
	EventRefundClaimed        = "refund.claimed"
	EventOwnershipProposed    = "settings.ownership_proposed"
	EventOwnershipTransferred = "settings.ownership_transferred"
	EventTreasuryUpdated      = "settings.treasury_updated"
	EventRewardPoolsUpdated   = "settings.reward_pools_updated"
	EventArbitratorAdded      = "settings.arbitrator_added"
	EventArbitratorRemoved    = "settings.arbitrator_removed"
)

type campaignCreatedPayload struct {
	Creator         string          `json:"creator"`
	Goal            decimal.Decimal `json:"goal"`
	Asset           PaymentAsset    `json:"asset"`
	FundingDeadline time.Time       `json:"funding_deadline"`
	Deposit         decimal.Decimal `json:"deposit"`
	Milestones      int             `json:"milestones"`
}

type contributionPayload struct {
	Backer      string          `json:"backer"`
	Value       decimal.Decimal `json:"value"`
	AssetAmount decimal.Decimal `json:"asset_amount"`
	RaisedValue decimal.Decimal `json:"raised_value"`
}

type statusPayload struct {
	Status      CampaignStatus  `json:"status"`
	RaisedValue decimal.Decimal `json:"raised_value"`
}

type milestonePayload struct {
	MilestoneIdx int             `json:"milestone_index"`
	Status       MilestoneStatus `json:"status"`
	ProofHash    string          `json:"proof_hash,omitempty"`
	VotesFor     decimal.Decimal `json:"votes_for"`
	VotesAgainst decimal.Decimal `json:"votes_against"`
}

type votePayload struct {
	MilestoneIdx int             `json:"milestone_index"`
	Voter        string          `json:"voter"`
	Approve      bool            `json:"approve"`
	Weight       decimal.Decimal `json:"weight"`
}

type fundsReleasedPayload struct {
	MilestoneIdx int             `json:"milestone_index"`
	Value        decimal.Decimal `json:"value"`
	Asset        PaymentAsset    `json:"asset"`
	AssetAmount  decimal.Decimal `json:"asset_amount"`
	Split        FeeSplit        `json:"split"`
}

type disputePayload struct {
	DisputeID    string          `json:"dispute_id"`
	MilestoneIdx int             `json:"milestone_index"`
	Status       DisputeStatus   `json:"status"`
	ReleaseBps   int64           `json:"release_bps"`
	Released     decimal.Decimal `json:"released_value"`
	Actor        string          `json:"actor"`
}

type refundPayload struct {
	Backer       string          `json:"backer"`
	Refundable   decimal.Decimal `json:"refundable"`
	Fee          decimal.Decimal `json:"fee"`
	DepositShare decimal.Decimal `json:"deposit_share"`
	Paid         decimal.Decimal `json:"paid_asset_amount"`
}

type settingsPayload struct {
	Actor   string `json:"actor"`
	Subject string `json:"subject,omitempty"`
	Second  string `json:"second,omitempty"`
}

// emit writes an outbox row in the current operation's transaction. Rows
// are handed to the relay only after commit.
func (s *Service) emit(ctx context.Context, campaignID, eventType string, payload any) error {
	cs := currentCall(ctx)
	if cs == nil {
		return fmt.Errorf("emit %s outside of an operation", eventType)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ev := &OutboxEvent{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		Type:       eventType,
		Payload:    datatypes.JSON(b),
		OccurredAt: cs.now,
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return err
	}
	cs.events = append(cs.events, ev)
	return nil
}

// publish enqueues a relay task per committed event. A failed enqueue is
// logged only; the sweep picks the row up later.
func (s *Service) publish(ctx context.Context, events []*OutboxEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		t, err := NewRelayTask(ev.ID)
		if err != nil {
			zap.L().With(logFields(ctx)...).Error("failed to build relay task", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		if _, err := s.publisher.Enqueue(ctx, t, asynq.Queue(task.QueueDefault), asynq.MaxRetry(10)); err != nil {
			zap.L().With(logFields(ctx)...).Warn("failed to enqueue relay task", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
}
