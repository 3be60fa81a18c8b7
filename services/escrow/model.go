package escrow

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type CampaignStatus string

const (
	CampaignStatusFunding   CampaignStatus = "FUNDING"
	CampaignStatusVesting   CampaignStatus = "VESTING"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusFailed    CampaignStatus = "FAILED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
)

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "PENDING"
	MilestoneStatusSubmitted MilestoneStatus = "SUBMITTED"
	MilestoneStatusApproved  MilestoneStatus = "APPROVED"
	MilestoneStatusRejected  MilestoneStatus = "REJECTED"
	MilestoneStatusExpired   MilestoneStatus = "EXPIRED"
)

type DisputeStatus string

const (
	DisputeStatusNone               DisputeStatus = "NONE"
	DisputeStatusPending            DisputeStatus = "PENDING"
	DisputeStatusResolvedForCreator DisputeStatus = "RESOLVED_FOR_CREATOR"
	DisputeStatusResolvedForBackers DisputeStatus = "RESOLVED_FOR_BACKERS"
)

// Campaign is one milestone-gated fundraise. Values are 18-decimal USD,
// *AssetAmount fields are in units of Asset.
type Campaign struct {
	ID                  string          `gorm:"column:id;primaryKey" json:"id"`
	Code                string          `gorm:"column:code" json:"code,omitempty"`
	Creator             string          `gorm:"column:creator;index;not null" json:"creator"`
	MetadataHash        string          `gorm:"column:metadata_hash;type:varchar(64)" json:"metadata_hash"`
	Asset               PaymentAsset    `gorm:"column:asset;type:varchar(16)" json:"asset"`
	GoalValue           decimal.Decimal `gorm:"column:goal_value;type:text" json:"goal_value"`
	RaisedValue         decimal.Decimal `gorm:"column:raised_value;type:text" json:"raised_value"`
	ReleasedValue       decimal.Decimal `gorm:"column:released_value;type:text" json:"released_value"`
	RaisedAssetAmount   decimal.Decimal `gorm:"column:raised_asset_amount;type:text" json:"raised_asset_amount"`
	PaidAssetAmount     decimal.Decimal `gorm:"column:paid_asset_amount;type:text" json:"paid_asset_amount"`
	RefundedAssetAmount decimal.Decimal `gorm:"column:refunded_asset_amount;type:text" json:"refunded_asset_amount"`
	DepositValue        decimal.Decimal `gorm:"column:deposit_value;type:text" json:"deposit_value"`
	DepositAssetAmount  decimal.Decimal `gorm:"column:deposit_asset_amount;type:text" json:"deposit_asset_amount"`
	FundingDeadline     time.Time       `gorm:"column:funding_deadline" json:"funding_deadline"`
	CurrentMilestone    int             `gorm:"column:current_milestone" json:"current_milestone"`
	MilestoneCount      int             `gorm:"column:milestone_count" json:"milestone_count"`
	Status              CampaignStatus  `gorm:"column:status;type:varchar(16);index" json:"status"`
	DepositRefunded     bool            `gorm:"column:deposit_refunded" json:"deposit_refunded"`
	DepositForfeited    bool            `gorm:"column:deposit_forfeited" json:"deposit_forfeited"`
	FailedAt            *time.Time      `gorm:"column:failed_at" json:"failed_at,omitempty"`
	BackerCount         int             `gorm:"column:backer_count" json:"backer_count"`
	CreatedAt           time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Campaign) TableName() string { return "escrow_campaigns" }

// RemainingAssetAmount is what milestone releases have left of the raised
// funds, excluding the creator deposit. Refunds are apportioned from it and
// do not reduce it.
func (c *Campaign) RemainingAssetAmount() decimal.Decimal {
	return c.RaisedAssetAmount.Sub(c.PaidAssetAmount)
}

func (c *Campaign) isFinalMilestone(idx int) bool {
	return idx == c.MilestoneCount-1
}

type Milestone struct {
	ID              string          `gorm:"column:id;primaryKey" json:"id"`
	CampaignID      string          `gorm:"column:campaign_id;uniqueIndex:idx_milestone_campaign_idx;not null" json:"campaign_id"`
	Idx             int             `gorm:"column:idx;uniqueIndex:idx_milestone_campaign_idx" json:"index"`
	DescriptionHash string          `gorm:"column:description_hash;type:varchar(64)" json:"description_hash"`
	DeliverableHash string          `gorm:"column:deliverable_hash;type:varchar(64)" json:"deliverable_hash,omitempty"`
	ProofHash       string          `gorm:"column:proof_hash;type:varchar(64)" json:"proof_hash,omitempty"`
	DueDate         time.Time       `gorm:"column:due_date" json:"due_date"`
	ReleaseBps      int64           `gorm:"column:release_bps" json:"release_bps"`
	Status          MilestoneStatus `gorm:"column:status;type:varchar(16)" json:"status"`
	SubmittedAt     *time.Time      `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	VotingEndsAt    *time.Time      `gorm:"column:voting_ends_at" json:"voting_ends_at,omitempty"`
	VotesFor        decimal.Decimal `gorm:"column:votes_for;type:text" json:"votes_for"`
	VotesAgainst    decimal.Decimal `gorm:"column:votes_against;type:text" json:"votes_against"`
	ReleasedValue   decimal.Decimal `gorm:"column:released_value;type:text" json:"released_value"`
	ResolvedAt      *time.Time      `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (Milestone) TableName() string { return "escrow_milestones" }

// Contribution is the cumulative stake of one backer in one campaign. Value
// doubles as vote weight.
type Contribution struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	CampaignID    string          `gorm:"column:campaign_id;uniqueIndex:idx_contribution_campaign_backer;not null" json:"campaign_id"`
	Backer        string          `gorm:"column:backer;uniqueIndex:idx_contribution_campaign_backer;not null" json:"backer"`
	Value         decimal.Decimal `gorm:"column:value;type:text" json:"value"`
	AssetAmount   decimal.Decimal `gorm:"column:asset_amount;type:text" json:"asset_amount"`
	Asset         PaymentAsset    `gorm:"column:asset;type:varchar(16)" json:"asset"`
	ContributedAt time.Time       `gorm:"column:contributed_at" json:"contributed_at"`
	Refunded      bool            `gorm:"column:refunded" json:"refunded"`
	RefundedAt    *time.Time      `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Contribution) TableName() string { return "escrow_contributions" }

type Vote struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	CampaignID   string          `gorm:"column:campaign_id;uniqueIndex:idx_vote_campaign_milestone_voter;not null" json:"campaign_id"`
	MilestoneIdx int             `gorm:"column:milestone_idx;uniqueIndex:idx_vote_campaign_milestone_voter" json:"milestone_index"`
	Voter        string          `gorm:"column:voter;uniqueIndex:idx_vote_campaign_milestone_voter;not null" json:"voter"`
	Approve      bool            `gorm:"column:approve" json:"approve"`
	Weight       decimal.Decimal `gorm:"column:weight;type:text" json:"weight"`
	CastAt       time.Time       `gorm:"column:cast_at" json:"cast_at"`
}

func (Vote) TableName() string { return "escrow_votes" }

type Dispute struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	Code          string          `gorm:"column:code" json:"code,omitempty"`
	CampaignID    string          `gorm:"column:campaign_id;uniqueIndex:idx_dispute_campaign_milestone;not null" json:"campaign_id"`
	MilestoneIdx  int             `gorm:"column:milestone_idx;uniqueIndex:idx_dispute_campaign_milestone" json:"milestone_index"`
	EvidenceHash  string          `gorm:"column:evidence_hash;type:varchar(64)" json:"evidence_hash"`
	Status        DisputeStatus   `gorm:"column:status;type:varchar(32)" json:"status"`
	ReleaseBps    int64           `gorm:"column:release_bps" json:"release_bps"`
	ReleasedValue decimal.Decimal `gorm:"column:released_value;type:text" json:"released_value"`
	OpenedAt      time.Time       `gorm:"column:opened_at" json:"opened_at"`
	Deadline      time.Time       `gorm:"column:deadline" json:"deadline"`
	ResolvedAt    *time.Time      `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy    string          `gorm:"column:resolved_by" json:"resolved_by,omitempty"`
}

func (Dispute) TableName() string { return "escrow_disputes" }

type CreatorReputation struct {
	Creator    string    `gorm:"column:creator;primaryKey" json:"creator"`
	Successful int       `gorm:"column:successful" json:"successful"`
	Failed     int       `gorm:"column:failed" json:"failed"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CreatorReputation) TableName() string { return "escrow_creator_reputations" }

const settingsRowID = "escrow"

// Settings holds the admin roles and payout addresses. There is exactly one
// row.
type Settings struct {
	ID           string    `gorm:"column:id;primaryKey" json:"-"`
	Owner        string    `gorm:"column:owner" json:"owner"`
	PendingOwner string    `gorm:"column:pending_owner" json:"pending_owner,omitempty"`
	Treasury     string    `gorm:"column:treasury" json:"treasury"`
	RewardPoolA  string    `gorm:"column:reward_pool_a" json:"reward_pool_a,omitempty"`
	RewardPoolB  string    `gorm:"column:reward_pool_b" json:"reward_pool_b,omitempty"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Settings) TableName() string { return "escrow_settings" }

// poolA and poolB fall back to the treasury when unset.
func (s *Settings) poolA() string {
	if s.RewardPoolA == "" {
		return s.Treasury
	}
	return s.RewardPoolA
}

func (s *Settings) poolB() string {
	if s.RewardPoolB == "" {
		return s.Treasury
	}
	return s.RewardPoolB
}

type Arbitrator struct {
	Account   string    `gorm:"column:account;primaryKey" json:"account"`
	AddedBy   string    `gorm:"column:added_by" json:"added_by"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Arbitrator) TableName() string { return "escrow_arbitrators" }

// OutboxEvent records one state transition for off-system observers. Rows
// are written in the same transaction as the transition.
type OutboxEvent struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	CampaignID  string         `gorm:"column:campaign_id;index" json:"campaign_id,omitempty"`
	Type        string         `gorm:"column:type;index" json:"type"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	OccurredAt  time.Time      `gorm:"column:occurred_at;index" json:"occurred_at"`
	PublishedAt *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
}

func (OutboxEvent) TableName() string { return "escrow_outbox_events" }

func Models() []any {
	return []any{
		&Campaign{},
		&Milestone{},
		&Contribution{},
		&Vote{},
		&Dispute{},
		&CreatorReputation{},
		&Settings{},
		&Arbitrator{},
		&OutboxEvent{},
	}
}
