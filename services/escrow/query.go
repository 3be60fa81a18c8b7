package escrow

import (
	"context"
	"time"

	"crowdfund-escrow/pkg/db/option"
	"crowdfund-escrow/pkg/db/pagination"
	"crowdfund-escrow/pkg/errutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var milestoneOrder = option.WithSortBy(option.QuerySortBy{
	SortBy: "idx",
	Allow:  map[string]bool{"idx": true},
})

type CampaignView struct {
	*Campaign
	Milestones []*Milestone `json:"milestones"`
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*CampaignView, error) {
	c, err := s.campaign(ctx, id, false)
	if err != nil {
		return nil, err
	}
	ms, err := s.milestones.Find(ctx, &Milestone{CampaignID: c.ID}, milestoneOrder)
	if err != nil {
		return nil, err
	}
	return &CampaignView{Campaign: c, Milestones: ms}, nil
}

func (s *Service) ListMilestones(ctx context.Context, campaignID string) ([]*Milestone, error) {
	c, err := s.campaign(ctx, campaignID, false)
	if err != nil {
		return nil, err
	}
	return s.milestones.Find(ctx, &Milestone{CampaignID: c.ID}, milestoneOrder)
}

func (s *Service) GetContribution(ctx context.Context, campaignID, backer string) (*Contribution, error) {
	if campaignID == "" || backer == "" {
		return nil, ErrContributionNotFound
	}
	contrib, err := s.contribution(ctx, campaignID, backer, false)
	if err != nil {
		return nil, err
	}
	if contrib == nil {
		return nil, ErrContributionNotFound
	}
	return contrib, nil
}

// GetDispute returns the most recent dispute of a campaign.
func (s *Service) GetDispute(ctx context.Context, campaignID string) (*Dispute, error) {
	if campaignID == "" {
		return nil, ErrDisputeNotFound
	}
	ds, err := s.disputes.Find(ctx, &Dispute{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "milestone_idx", OrderBy: "desc", Allow: map[string]bool{"milestone_idx": true}}),
		option.WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, ErrDisputeNotFound
	}
	return ds[0], nil
}

type ReputationView struct {
	Creator     string          `json:"creator"`
	Successful  int             `json:"successful"`
	Failed      int             `json:"failed"`
	GoalCeiling decimal.Decimal `json:"goal_ceiling"`
	CanCreate   bool            `json:"can_create"`
}

func (s *Service) GetReputation(ctx context.Context, creator string) (*ReputationView, error) {
	if creator == "" {
		return nil, ErrInvalidAddress
	}
	rep, err := s.reputations.FindOne(ctx, &CreatorReputation{Creator: creator})
	if err != nil {
		return nil, err
	}
	if rep == nil {
		rep = &CreatorReputation{Creator: creator}
	}
	return &ReputationView{
		Creator:     rep.Creator,
		Successful:  rep.Successful,
		Failed:      rep.Failed,
		GoalCeiling: GoalCeiling(rep.Successful),
		CanCreate:   rep.Failed <= rep.Successful,
	}, nil
}

// after pages past cursor in (occurred_at, id) order.
func after(cursor *pagination.Cursor) option.QueryOption {
	return func(tx *gorm.DB) *gorm.DB {
		if cursor == nil {
			return tx
		}
		return tx.Where("occurred_at > ? OR (occurred_at = ? AND id > ?)", cursor.OccurredAt, cursor.OccurredAt, cursor.ID)
	}
}

func eventOrder(tx *gorm.DB) *gorm.DB {
	return tx.Order("occurred_at ASC").Order("id ASC")
}

// ListEvents pages through a campaign's outbox in commit order.
func (s *Service) ListEvents(ctx context.Context, campaignID string, page pagination.Pagination) ([]*OutboxEvent, pagination.PageInfo, error) {
	if campaignID == "" {
		return nil, pagination.PageInfo{}, ErrCampaignNotFound
	}
	page = page.Normalize()

	var cursor *pagination.Cursor
	if page.Cursor != "" {
		c, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, pagination.PageInfo{}, errutil.BadRequest("invalid cursor", err)
		}
		cursor = c
	}

	rows, err := s.events.Find(ctx, &OutboxEvent{CampaignID: campaignID}, after(cursor), eventOrder, option.WithLimit(page.Limit+1))
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Trim(rows, page.Limit, func(ev *OutboxEvent) pagination.Cursor {
		return pagination.Cursor{OccurredAt: ev.OccurredAt, ID: ev.ID}
	})
}

func unpublished(tx *gorm.DB) *gorm.DB {
	return tx.Where("published_at IS NULL")
}

// PendingEvents returns unpublished events that occurred before cutoff,
// oldest first.
func (s *Service) PendingEvents(ctx context.Context, cutoff time.Time, limit int) ([]*OutboxEvent, error) {
	return s.events.Find(ctx, &OutboxEvent{},
		unpublished,
		option.ApplyOperator(option.Condition{Field: "occurred_at", Operator: option.LTE, Value: cutoff}),
		eventOrder,
		option.WithLimit(limit),
	)
}
