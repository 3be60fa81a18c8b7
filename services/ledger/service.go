package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/db/option"
	"crowdfund-escrow/pkg/errutil"
	"crowdfund-escrow/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_transfers_total",
	Help: "Balance movements committed by the asset ledger.",
}, []string{"kind", "asset"})

// Service is a double-entry asset ledger. Every mutation joins the
// transaction carried by ctx, so callers can make transfers part of their
// own atomic unit of work.
type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clockwork.Clock
	authz *access.Authorizer

	ledger    repository.Repository[LedgerEntry]
	balance   repository.Repository[Balance]
	allowance repository.Repository[Allowance]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clockwork.Clock
	Authz *access.Authorizer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,
		authz: p.Authz,

		ledger:    repository.ProvideStore[LedgerEntry](p.DB),
		balance:   repository.ProvideStore[Balance](p.DB),
		allowance: repository.ProvideStore[Allowance](p.DB),
	}
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Mint credits an account from outside the ledger. Only the owner role may
// mint.
func (s *Service) Mint(ctx context.Context, caller, account, asset string, amount decimal.Decimal, reference string) (*LedgerEntry, error) {
	ok, err := s.authz.Allowed(caller, access.ObjectLedger, access.ActionMint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAllowed
	}
	return s.Deposit(ctx, account, asset, amount, reference)
}

// Deposit credits account with amount. It has no counterparty.
func (s *Service) Deposit(ctx context.Context, account, asset string, amount decimal.Decimal, reference string) (*LedgerEntry, error) {
	if account == "" || asset == "" {
		return nil, ErrInvalidAccount
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var entry *LedgerEntry
	err := db.Transaction(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		now := s.clock.Now()
		txID, err := GenerateTransactionID(now)
		if err != nil {
			return err
		}
		entry, err = s.post(ctx, postParams{
			account:   account,
			asset:     asset,
			entryType: EntryTypeCredit,
			amount:    amount,
			txID:      txID,
			reference: reference,
			now:       now,
		})
		return err
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("deposit failed", zap.String("account", account), zap.Error(err))
		return nil, err
	}

	transfersTotal.WithLabelValues("deposit", asset).Inc()
	return entry, nil
}

// Approve sets the allowance of spender over owner's asset to amount.
func (s *Service) Approve(ctx context.Context, owner, spender, asset string, amount decimal.Decimal) error {
	if owner == "" || spender == "" || asset == "" {
		return ErrInvalidAccount
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	return db.Transaction(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		now := s.clock.Now()
		current, err := s.allowance.FindOne(ctx, &Allowance{Owner: owner, Spender: spender, Asset: asset}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if current == nil {
			return s.allowance.Create(ctx, &Allowance{
				ID:        s.node.Generate().String(),
				Owner:     owner,
				Spender:   spender,
				Asset:     asset,
				Amount:    amount,
				UpdatedAt: now,
			})
		}
		current.Amount = amount
		current.UpdatedAt = now
		return s.allowance.Save(ctx, current)
	})
}

func (s *Service) Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal) error {
	return s.transfer(ctx, "", from, to, asset, amount)
}

// TransferFrom moves amount from one account to another on behalf of
// spender, consuming spender's allowance.
func (s *Service) TransferFrom(ctx context.Context, spender, from, to, asset string, amount decimal.Decimal) error {
	if spender == "" {
		return ErrInvalidAccount
	}
	return s.transfer(ctx, spender, from, to, asset, amount)
}

func (s *Service) transfer(ctx context.Context, spender, from, to, asset string, amount decimal.Decimal) error {
	if from == "" || to == "" || asset == "" {
		return ErrInvalidAccount
	}
	if from == to {
		return ErrSelfTransfer
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	err := db.Transaction(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		now := s.clock.Now()

		if spender != "" {
			if err := s.spendAllowance(ctx, from, spender, asset, amount, now); err != nil {
				return err
			}
		}

		txID, err := GenerateTransactionID(now)
		if err != nil {
			return err
		}

		if _, err := s.post(ctx, postParams{
			account: from, asset: asset, entryType: EntryTypeDebit, amount: amount,
			counterparty: to, txID: txID, spender: spender, now: now,
		}); err != nil {
			return err
		}

		_, err = s.post(ctx, postParams{
			account: to, asset: asset, entryType: EntryTypeCredit, amount: amount,
			counterparty: from, txID: txID, spender: spender, now: now,
		})
		return err
	})
	if err != nil {
		zap.L().With(logFields(ctx)...).Warn("transfer failed",
			zap.String("from", from),
			zap.String("to", to),
			zap.String("asset", asset),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return err
	}

	kind := "transfer"
	if spender != "" {
		kind = "transfer_from"
	}
	transfersTotal.WithLabelValues(kind, asset).Inc()
	return nil
}

func (s *Service) spendAllowance(ctx context.Context, owner, spender, asset string, amount decimal.Decimal, now time.Time) error {
	current, err := s.allowance.FindOne(ctx, &Allowance{Owner: owner, Spender: spender, Asset: asset}, option.WithLockingUpdate())
	if err != nil {
		return err
	}
	if current == nil || current.Amount.LessThan(amount) {
		return ErrInsufficientAllowance
	}
	current.Amount = current.Amount.Sub(amount)
	current.UpdatedAt = now
	return s.allowance.Save(ctx, current)
}

type postParams struct {
	account      string
	asset        string
	entryType    string
	amount       decimal.Decimal
	counterparty string
	txID         string
	reference    string
	spender      string
	now          time.Time
}

// post appends one entry to account's chain and moves its balance. Must run
// inside a transaction.
func (s *Service) post(ctx context.Context, p postParams) (*LedgerEntry, error) {
	bal, err := s.balance.FindOne(ctx, &Balance{Account: p.account, Asset: p.asset}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	current := decimal.Zero
	if bal != nil {
		current = bal.Amount
	}

	next := current.Add(p.amount)
	if p.entryType == EntryTypeDebit {
		if current.LessThan(p.amount) {
			return nil, ErrInsufficientBalance.With(shortfall(p.account, current, p.amount))
		}
		next = current.Sub(p.amount)
	}

	last, err := s.lastEntry(ctx, p.account)
	if err != nil {
		return nil, err
	}
	prevHash, seq := GenesisHash, int64(1)
	if last != nil {
		prevHash, seq = last.Hash, last.Seq+1
	}

	var meta datatypes.JSON
	if p.spender != "" {
		b, err := json.Marshal(map[string]string{"spender": p.spender})
		if err != nil {
			return nil, err
		}
		meta = datatypes.JSON(b)
	}

	entry := NewLedgerEntry(LedgerParams{
		LedgerID:      s.node.Generate().String(),
		Account:       p.account,
		Seq:           seq,
		Asset:         p.asset,
		Type:          p.entryType,
		Amount:        p.amount,
		BalanceAfter:  next,
		Counterparty:  p.counterparty,
		TransactionID: p.txID,
		ReferenceID:   p.reference,
		PreviousHash:  prevHash,
		CreatedAt:     p.now,
		Metadata:      meta,
	})
	if err := s.ledger.Create(ctx, entry); err != nil {
		return nil, err
	}

	if bal == nil {
		return entry, s.balance.Create(ctx, &Balance{
			ID:        s.node.Generate().String(),
			Account:   p.account,
			Asset:     p.asset,
			Amount:    next,
			CreatedAt: p.now,
			UpdatedAt: p.now,
		})
	}

	bal.Amount = next
	bal.UpdatedAt = p.now
	return entry, s.balance.Save(ctx, bal)
}

func (s *Service) lastEntry(ctx context.Context, account string) (*LedgerEntry, error) {
	return s.ledger.FindOne(ctx, &LedgerEntry{Account: account},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "desc",
			Allow:   map[string]bool{"seq": true},
		}),
		option.WithLockingUpdate(),
	)
}

func (s *Service) GetBalance(ctx context.Context, account, asset string) (decimal.Decimal, error) {
	bal, err := s.balance.FindOne(ctx, &Balance{Account: account, Asset: asset})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query balance", zap.Error(err))
		return decimal.Zero, err
	}
	if bal == nil {
		return decimal.Zero, nil
	}
	return bal.Amount, nil
}

func (s *Service) GetAllowance(ctx context.Context, owner, spender, asset string) (decimal.Decimal, error) {
	a, err := s.allowance.FindOne(ctx, &Allowance{Owner: owner, Spender: spender, Asset: asset})
	if err != nil {
		return decimal.Zero, err
	}
	if a == nil {
		return decimal.Zero, nil
	}
	return a.Amount, nil
}

// ListEntries returns the chain of account in order, optionally narrowed to
// one asset.
func (s *Service) ListEntries(ctx context.Context, account, asset string) ([]*LedgerEntry, error) {
	entries, err := s.ledger.Find(ctx, &LedgerEntry{Account: account, Asset: asset},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "asc",
			Allow:   map[string]bool{"seq": true},
		}),
	)
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query list entries", zap.Error(err))
		return nil, err
	}
	return entries, nil
}

// VerifyChain recomputes every hash of account's chain and checks the links.
func (s *Service) VerifyChain(ctx context.Context, account string) (bool, error) {
	entries, err := s.ListEntries(ctx, account, "")
	if err != nil {
		return false, err
	}

	lastHash := GenesisHash
	for i, entry := range entries {
		if entry.Seq != int64(i+1) || entry.PreviousHash != lastHash || entry.Hash != entry.GenerateHash() {
			zap.L().With(logFields(ctx)...).Warn("ledger chain broken",
				zap.String("account", account),
				zap.Int64("seq", entry.Seq),
			)
			return false, nil
		}
		lastHash = entry.Hash
	}
	return true, nil
}

func shortfall(account string, have, need decimal.Decimal) errutil.Option {
	return errutil.WithDetails(errutil.Detail{
		Field:   account,
		Message: fmt.Sprintf("have %s, need %s", have, need),
	})
}
