package escrow

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/config"
	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/db/option"
	"crowdfund-escrow/pkg/errutil"
	"crowdfund-escrow/pkg/repository"
	"crowdfund-escrow/pkg/sequence"
	"crowdfund-escrow/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the escrow engine. Mutating operations are serialized by a
// process-wide guard, run in one database transaction each and read the
// clock once.
type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clockwork.Clock

	prices    PriceService
	assets    AssetLedger
	content   ContentStore
	authz     *access.Authorizer
	seq       sequence.Generator
	publisher task.Enqueuer

	escrowAccount string
	guard         sync.Mutex

	campaigns     repository.Repository[Campaign]
	milestones    repository.Repository[Milestone]
	contributions repository.Repository[Contribution]
	votes         repository.Repository[Vote]
	disputes      repository.Repository[Dispute]
	reputations   repository.Repository[CreatorReputation]
	settings      repository.Repository[Settings]
	arbitrators   repository.Repository[Arbitrator]
	events        repository.Repository[OutboxEvent]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clockwork.Clock
	Config *config.Config
	Authz  *access.Authorizer
	Prices PriceService
	Assets AssetLedger

	Content   ContentStore       `optional:"true"`
	Sequence  sequence.Generator `optional:"true"`
	Publisher task.Enqueuer      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,

		prices:    p.Prices,
		assets:    p.Assets,
		content:   p.Content,
		authz:     p.Authz,
		seq:       p.Sequence,
		publisher: p.Publisher,

		escrowAccount: p.Config.Escrow.EscrowAccount,

		campaigns:     repository.ProvideStore[Campaign](p.DB),
		milestones:    repository.ProvideStore[Milestone](p.DB),
		contributions: repository.ProvideStore[Contribution](p.DB),
		votes:         repository.ProvideStore[Vote](p.DB),
		disputes:      repository.ProvideStore[Dispute](p.DB),
		reputations:   repository.ProvideStore[CreatorReputation](p.DB),
		settings:      repository.ProvideStore[Settings](p.DB),
		arbitrators:   repository.ProvideStore[Arbitrator](p.DB),
		events:        repository.ProvideStore[OutboxEvent](p.DB),
	}
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

type callState struct {
	op          string
	now         time.Time
	events      []*OutboxEvent
	afterCommit []func()
}

type callKey struct{}

func currentCall(ctx context.Context) *callState {
	cs, _ := ctx.Value(callKey{}).(*callState)
	return cs
}

// exec runs fn as one atomic operation. A call arriving with a context that
// is already inside an operation fails with ErrReentrantCall.
func (s *Service) exec(ctx context.Context, op string, fn func(ctx context.Context, now time.Time) error) error {
	if currentCall(ctx) != nil {
		operationsTotal.WithLabelValues(op, "reentrant").Inc()
		return ErrReentrantCall
	}

	s.guard.Lock()
	defer s.guard.Unlock()

	cs := &callState{op: op, now: s.clock.Now().UTC()}
	ctx = context.WithValue(ctx, callKey{}, cs)

	err := db.Transaction(ctx, s.db, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx, cs.now)
	})
	operationDuration.WithLabelValues(op).Observe(s.clock.Since(cs.now).Seconds())

	if err != nil {
		operationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		log := zap.L().With(logFields(ctx)...).With(zap.String("op", op), zap.Error(err))
		if errutil.HTTPStatusOf(err) >= 500 {
			log.Error("escrow operation failed")
		} else {
			log.Info("escrow operation rejected")
		}
		return err
	}

	operationsTotal.WithLabelValues(op, "ok").Inc()
	for _, f := range cs.afterCommit {
		f()
	}
	s.publish(ctx, cs.events)
	return nil
}

func requireCaller(caller string) error {
	if strings.TrimSpace(caller) == "" {
		return ErrMissingCaller
	}
	return nil
}

// validHash accepts 32 bytes of lowercase or uppercase hex that are not all
// zero.
func validHash(h string) bool {
	if len(h) != 64 {
		return false
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return false
	}
	for _, x := range b {
		if x != 0 {
			return true
		}
	}
	return false
}

func (s *Service) checkContent(ctx context.Context, hash string) error {
	if s.content == nil || !s.content.Enabled() {
		return nil
	}
	ok, err := s.content.Exists(ctx, hash)
	if err != nil {
		return errutil.ServiceUnavailable("content store unavailable", err)
	}
	if !ok {
		return ErrContentNotFound
	}
	return nil
}

func lockOpts(lock bool) []option.QueryOption {
	if lock {
		return []option.QueryOption{option.WithLockingUpdate()}
	}
	return nil
}

func (s *Service) campaign(ctx context.Context, id string, lock bool) (*Campaign, error) {
	if id == "" {
		return nil, ErrCampaignNotFound
	}
	c, err := s.campaigns.FindOne(ctx, &Campaign{ID: id}, lockOpts(lock)...)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

func (s *Service) milestone(ctx context.Context, campaignID string, idx int, lock bool) (*Milestone, error) {
	opts := append(lockOpts(lock), option.ApplyOperator(option.Condition{Field: "idx", Operator: option.EQ, Value: idx}))
	m, err := s.milestones.FindOne(ctx, &Milestone{CampaignID: campaignID}, opts...)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errutil.Internal("milestone missing", nil,
			errutil.WithDetails(errutil.Detail{Field: campaignID, Message: "no milestone at current index"}))
	}
	return m, nil
}

// currentMilestone returns the milestone at the campaign's index. A
// completed campaign has none.
func (s *Service) currentMilestone(ctx context.Context, c *Campaign, lock bool) (*Milestone, error) {
	if c.CurrentMilestone >= c.MilestoneCount {
		return nil, ErrMilestoneResolved
	}
	return s.milestone(ctx, c.ID, c.CurrentMilestone, lock)
}

func (s *Service) contribution(ctx context.Context, campaignID, backer string, lock bool) (*Contribution, error) {
	return s.contributions.FindOne(ctx, &Contribution{CampaignID: campaignID, Backer: backer}, lockOpts(lock)...)
}

func (s *Service) reputation(ctx context.Context, creator string) (*CreatorReputation, error) {
	rep, err := s.reputations.FindOne(ctx, &CreatorReputation{Creator: creator}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if rep == nil {
		rep = &CreatorReputation{Creator: creator}
	}
	return rep, nil
}

func (s *Service) bumpReputation(ctx context.Context, creator string, now time.Time, successful, failed int) error {
	rep, err := s.reputation(ctx, creator)
	if err != nil {
		return err
	}
	rep.Successful += successful
	rep.Failed += failed
	if rep.Failed < 0 {
		rep.Failed = 0
	}
	rep.UpdatedAt = now
	return s.reputations.Save(ctx, rep)
}

func (s *Service) loadSettings(ctx context.Context, lock bool) (*Settings, error) {
	st, err := s.settings.FindOne(ctx, &Settings{ID: settingsRowID}, lockOpts(lock)...)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errutil.Internal("escrow settings are not initialised", nil)
	}
	return st, nil
}

// pay moves amount of asset out of escrow. Zero amounts are skipped.
func (s *Service) pay(ctx context.Context, to string, asset PaymentAsset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	return s.assets.Transfer(ctx, s.escrowAccount, to, asset.String(), amount)
}

// pull moves amount of asset from an account into escrow using the
// allowance granted to the escrow account.
func (s *Service) pull(ctx context.Context, from string, asset PaymentAsset, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	return s.assets.TransferFrom(ctx, s.escrowAccount, from, s.escrowAccount, asset.String(), amount)
}

// nativeAmount converts a USD value to campaign asset units, never more
// than the escrow still holds for the campaign.
func (s *Service) nativeAmount(ctx context.Context, c *Campaign, usd decimal.Decimal) (decimal.Decimal, error) {
	native, err := c.Asset.FromUSD(ctx, s.prices, usd)
	if err != nil {
		return decimal.Zero, err
	}
	if remaining := c.RemainingAssetAmount(); native.GreaterThan(remaining) {
		native = remaining
	}
	return native, nil
}

// release pays out usd of the campaign's funds through the fee split. When
// drain is set the whole remaining holding is released, which leaves no
// dust behind on the last milestone.
func (s *Service) release(ctx context.Context, c *Campaign, milestoneIdx int, usd decimal.Decimal, drain bool) (FeeSplit, error) {
	native, err := s.nativeAmount(ctx, c, usd)
	if err != nil {
		return FeeSplit{}, err
	}
	if drain {
		native = c.RemainingAssetAmount()
	}

	st, err := s.loadSettings(ctx, false)
	if err != nil {
		return FeeSplit{}, err
	}

	split := SplitFee(native)
	c.PaidAssetAmount = c.PaidAssetAmount.Add(native)

	payouts := []struct {
		to     string
		amount decimal.Decimal
	}{
		{c.Creator, split.Creator},
		{st.Treasury, split.Platform},
		{st.poolA(), split.PoolA},
		{st.poolB(), split.PoolB},
	}
	for _, p := range payouts {
		if err := s.pay(ctx, p.to, c.Asset, p.amount); err != nil {
			return FeeSplit{}, err
		}
	}

	return split, s.emit(ctx, c.ID, EventFundsReleased, fundsReleasedPayload{
		MilestoneIdx: milestoneIdx,
		Value:        usd,
		Asset:        c.Asset,
		AssetAmount:  native,
		Split:        split,
	})
}

func (s *Service) nextCode(ctx context.Context, gen func(sequence.Generator, context.Context) (string, error)) string {
	if s.seq == nil {
		return ""
	}
	code, err := gen(s.seq, ctx)
	if err != nil {
		zap.L().With(logFields(ctx)...).Warn("failed to allocate display code", zap.Error(err))
		return ""
	}
	return code
}

type MilestoneSpec struct {
	DescriptionHash string    `json:"description_hash"`
	DeliverableHash string    `json:"deliverable_hash,omitempty"`
	DueDate         time.Time `json:"due_date"`
	ReleaseBps      int64     `json:"release_bps"`
}

type CreateCampaignRequest struct {
	MetadataHash    string
	Goal            decimal.Decimal
	FundingDuration time.Duration
	Milestones      []MilestoneSpec
	Asset           PaymentAsset
}

func validateCampaign(req CreateCampaignRequest, deadline time.Time) error {
	if !validHash(req.MetadataHash) {
		return ErrInvalidMetadata
	}
	if !req.Asset.Valid() {
		return ErrUnsupportedAsset
	}
	if req.Goal.LessThan(MinGoal) || !req.Goal.IsInteger() {
		return ErrInvalidGoal
	}
	if req.FundingDuration < MinFundingDuration || req.FundingDuration > MaxFundingDuration {
		return ErrInvalidDuration
	}
	if n := len(req.Milestones); n < MinMilestones || n > MaxMilestones {
		return ErrInvalidMilestoneCount
	}

	var total int64
	prev := deadline
	for _, m := range req.Milestones {
		if !validHash(m.DescriptionHash) {
			return ErrInvalidMetadata
		}
		if m.DeliverableHash != "" && !validHash(m.DeliverableHash) {
			return ErrInvalidMetadata
		}
		if m.ReleaseBps <= 0 || m.ReleaseBps > BpsDenominator {
			return ErrInvalidPercentage
		}
		total += m.ReleaseBps
		if !m.DueDate.After(prev) {
			return ErrMilestonesNotChronological
		}
		prev = m.DueDate
	}
	if total != BpsDenominator {
		return ErrPercentageMustSum100
	}
	if prev.After(deadline.Add(MilestoneHorizon)) {
		return ErrMilestoneTooLate
	}
	return nil
}

// CreateCampaign opens a campaign in FUNDING and pulls the creator deposit
// (10% of the goal) into escrow.
func (s *Service) CreateCampaign(ctx context.Context, caller string, req CreateCampaignRequest) (*Campaign, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var out *Campaign
	err := s.exec(ctx, "create_campaign", func(ctx context.Context, now time.Time) error {
		deadline := now.Add(req.FundingDuration)
		if err := validateCampaign(req, deadline); err != nil {
			return err
		}
		if err := s.checkContent(ctx, req.MetadataHash); err != nil {
			return err
		}

		rep, err := s.reputation(ctx, caller)
		if err != nil {
			return err
		}
		if rep.Failed > rep.Successful {
			return ErrTooManyFailedCampaigns
		}
		if req.Goal.GreaterThan(GoalCeiling(rep.Successful)) {
			return ErrGoalExceedsLimit
		}

		depositValue := mulBps(req.Goal, DepositBps)
		depositAsset, err := req.Asset.FromUSD(ctx, s.prices, depositValue)
		if err != nil {
			return err
		}

		c := &Campaign{
			ID:                  s.node.Generate().String(),
			Code:                s.nextCode(ctx, sequence.Generator.NextCampaignCode),
			Creator:             caller,
			MetadataHash:        strings.ToLower(req.MetadataHash),
			Asset:               req.Asset,
			GoalValue:           req.Goal,
			RaisedValue:         decimal.Zero,
			ReleasedValue:       decimal.Zero,
			RaisedAssetAmount:   decimal.Zero,
			PaidAssetAmount:     decimal.Zero,
			RefundedAssetAmount: decimal.Zero,
			DepositValue:        depositValue,
			DepositAssetAmount:  depositAsset,
			FundingDeadline:     deadline,
			MilestoneCount:      len(req.Milestones),
			Status:              CampaignStatusFunding,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.campaigns.Create(ctx, c); err != nil {
			return err
		}

		milestones := make([]*Milestone, 0, len(req.Milestones))
		for i, spec := range req.Milestones {
			milestones = append(milestones, &Milestone{
				ID:              s.node.Generate().String(),
				CampaignID:      c.ID,
				Idx:             i,
				DescriptionHash: strings.ToLower(spec.DescriptionHash),
				DeliverableHash: strings.ToLower(spec.DeliverableHash),
				DueDate:         spec.DueDate.UTC(),
				ReleaseBps:      spec.ReleaseBps,
				Status:          MilestoneStatusPending,
				VotesFor:        decimal.Zero,
				VotesAgainst:    decimal.Zero,
				ReleasedValue:   decimal.Zero,
			})
		}
		if err := s.milestones.BatchCreate(ctx, milestones); err != nil {
			return err
		}

		if err := s.pull(ctx, caller, c.Asset, depositAsset); err != nil {
			return err
		}

		out = c
		return s.emit(ctx, c.ID, EventCampaignCreated, campaignCreatedPayload{
			Creator:         caller,
			Goal:            c.GoalValue,
			Asset:           c.Asset,
			FundingDeadline: deadline,
			Deposit:         depositAsset,
			Milestones:      len(milestones),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Contribute records a contribution of assetAmount and pulls it into
// escrow. State is written before the transfer runs.
func (s *Service) Contribute(ctx context.Context, caller, campaignID string, assetAmount decimal.Decimal) (*Contribution, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !assetAmount.IsPositive() || !assetAmount.IsInteger() {
		return nil, ErrInvalidAmount
	}

	var out *Contribution
	err := s.exec(ctx, "contribute", func(ctx context.Context, now time.Time) error {
		c, err := s.campaign(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if c.Status != CampaignStatusFunding {
			return ErrCampaignNotFunding
		}
		if !now.Before(c.FundingDeadline) {
			return ErrFundingEnded
		}
		if caller == c.Creator {
			return ErrCreatorCannotContribute
		}

		value, err := c.Asset.ContributionValue(ctx, s.prices, assetAmount)
		if err != nil {
			return err
		}
		if value.LessThan(MinContribution) {
			return ErrContributionTooSmall
		}

		contrib, err := s.contribution(ctx, c.ID, caller, true)
		if err != nil {
			return err
		}
		if contrib == nil {
			contrib = &Contribution{
				ID:          s.node.Generate().String(),
				CampaignID:  c.ID,
				Backer:      caller,
				Value:       decimal.Zero,
				AssetAmount: decimal.Zero,
				Asset:       c.Asset,
				CreatedAt:   now,
			}
			c.BackerCount++
		}
		contrib.Value = contrib.Value.Add(value)
		contrib.AssetAmount = contrib.AssetAmount.Add(assetAmount)
		contrib.ContributedAt = now

		c.RaisedValue = c.RaisedValue.Add(value)
		c.RaisedAssetAmount = c.RaisedAssetAmount.Add(assetAmount)
		c.UpdatedAt = now

		if err := s.contributions.Save(ctx, contrib); err != nil {
			return err
		}
		if err := s.campaigns.Save(ctx, c); err != nil {
			return err
		}
		if err := s.pull(ctx, caller, c.Asset, assetAmount); err != nil {
			return err
		}

		out = contrib
		return s.emit(ctx, c.ID, EventContributionReceived, contributionPayload{
			Backer:      caller,
			Value:       value,
			AssetAmount: assetAmount,
			RaisedValue: c.RaisedValue,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FinalizeFunding closes funding once the deadline has passed. A campaign
// that raised nothing fails and its deposit goes back to the creator.
func (s *Service) FinalizeFunding(ctx context.Context, campaignID string) (*Campaign, error) {
	var out *Campaign
	err := s.exec(ctx, "finalize_funding", func(ctx context.Context, now time.Time) error {
		c, err := s.campaign(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if c.Status != CampaignStatusFunding {
			return ErrCampaignNotFunding
		}
		if now.Before(c.FundingDeadline) {
			return ErrFundingNotEnded
		}

		if c.RaisedValue.IsPositive() {
			c.Status = CampaignStatusVesting
		} else {
			c.Status = CampaignStatusFailed
			c.FailedAt = &now
			c.DepositRefunded = true
			if err := s.pay(ctx, c.Creator, c.Asset, c.DepositAssetAmount); err != nil {
				return err
			}
		}
		c.UpdatedAt = now
		if err := s.campaigns.Save(ctx, c); err != nil {
			return err
		}

		out = c
		return s.emit(ctx, c.ID, EventFundingFinalized, statusPayload{Status: c.Status, RaisedValue: c.RaisedValue})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelCampaign lets the creator abandon a campaign still in funding. The
// deposit is forfeited to the treasury and refunds open at once.
func (s *Service) CancelCampaign(ctx context.Context, caller, campaignID string) (*Campaign, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var out *Campaign
	err := s.exec(ctx, "cancel_campaign", func(ctx context.Context, now time.Time) error {
		c, err := s.campaign(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if c.Creator != caller {
			return ErrNotCreator
		}
		if c.Status != CampaignStatusFunding {
			return ErrCampaignNotFunding
		}

		st, err := s.loadSettings(ctx, false)
		if err != nil {
			return err
		}

		c.Status = CampaignStatusCancelled
		c.FailedAt = &now
		c.DepositForfeited = true
		c.UpdatedAt = now
		if err := s.campaigns.Save(ctx, c); err != nil {
			return err
		}
		if err := s.pay(ctx, st.Treasury, c.Asset, c.DepositAssetAmount); err != nil {
			return err
		}

		out = c
		return s.emit(ctx, c.ID, EventCampaignCancelled, statusPayload{Status: c.Status, RaisedValue: c.RaisedValue})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// completeCampaign closes a campaign whose last milestone was approved.
func (s *Service) completeCampaign(ctx context.Context, c *Campaign, now time.Time) error {
	c.Status = CampaignStatusCompleted
	c.DepositRefunded = true
	c.UpdatedAt = now
	if err := s.pay(ctx, c.Creator, c.Asset, c.DepositAssetAmount); err != nil {
		return err
	}
	if err := s.bumpReputation(ctx, c.Creator, now, 1, 0); err != nil {
		return err
	}
	return s.emit(ctx, c.ID, EventCampaignCompleted, statusPayload{Status: c.Status, RaisedValue: c.RaisedValue})
}

// failCampaign marks c failed after a rejected or expired milestone.
func (s *Service) failCampaign(ctx context.Context, c *Campaign, now time.Time) error {
	c.Status = CampaignStatusFailed
	c.FailedAt = &now
	c.UpdatedAt = now
	if err := s.bumpReputation(ctx, c.Creator, now, 0, 1); err != nil {
		return err
	}
	return s.emit(ctx, c.ID, EventCampaignFailed, statusPayload{Status: c.Status, RaisedValue: c.RaisedValue})
}
