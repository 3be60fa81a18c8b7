package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/db"
	"crowdfund-escrow/pkg/db/option"
	"crowdfund-escrow/pkg/middleware"
	"crowdfund-escrow/pkg/repository"
	"crowdfund-escrow/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	repository.Repository[T]
	findOneFn func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	gdb := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	authz, err := access.New()
	require.NoError(t, err)
	require.NoError(t, authz.Grant("owner", access.RoleOwner))

	return NewService(ServiceParams{DB: gdb, Node: node, Clock: testutil.NewClock(), Authz: authz}), gdb
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireBalance(t *testing.T, svc *Service, account, asset string, want int64) {
	t.Helper()
	got, err := svc.GetBalance(context.Background(), account, asset)
	require.NoError(t, err)
	require.True(t, got.Equal(d(want)), "balance of %s: got %s want %d", account, got, want)
}

func TestDepositAndTransfer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDC", d(100), "seed")
	require.NoError(t, err)

	require.NoError(t, svc.Transfer(ctx, "alice", "bob", "USDC", d(40)))
	requireBalance(t, svc, "alice", "USDC", 60)
	requireBalance(t, svc, "bob", "USDC", 40)

	entries, err := svc.ListEntries(ctx, "alice", "USDC")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, EntryTypeCredit, entries[0].Type)
	require.Equal(t, EntryTypeDebit, entries[1].Type)
	require.Equal(t, "bob", entries[1].Counterparty)
	require.True(t, entries[1].BalanceAfter.Equal(d(60)))

	valid, err := svc.VerifyChain(ctx, "alice")
	require.NoError(t, err)
	require.True(t, valid)
}

func TestTransferRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDC", d(10), "")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Transfer(ctx, "alice", "bob", "USDC", d(11)), ErrInsufficientBalance)
	require.ErrorIs(t, svc.Transfer(ctx, "alice", "bob", "USDC", d(0)), ErrInvalidAmount)
	require.ErrorIs(t, svc.Transfer(ctx, "alice", "alice", "USDC", d(1)), ErrSelfTransfer)
	require.ErrorIs(t, svc.Transfer(ctx, "", "bob", "USDC", d(1)), ErrInvalidAccount)

	requireBalance(t, svc, "alice", "USDC", 10)
	requireBalance(t, svc, "bob", "USDC", 0)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDC", d(100), "")
	require.NoError(t, err)

	err = svc.TransferFrom(ctx, "escrow", "alice", "escrow", "USDC", d(10))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, svc.Approve(ctx, "alice", "escrow", "USDC", d(30)))
	require.NoError(t, svc.TransferFrom(ctx, "escrow", "alice", "escrow", "USDC", d(25)))

	left, err := svc.GetAllowance(ctx, "alice", "escrow", "USDC")
	require.NoError(t, err)
	require.True(t, left.Equal(d(5)))

	require.ErrorIs(t, svc.TransferFrom(ctx, "escrow", "alice", "escrow", "USDC", d(6)), ErrInsufficientAllowance)
	requireBalance(t, svc, "escrow", "USDC", 25)
}

func TestTransferJoinsCallerTransaction(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDC", d(50), "")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.Transaction(ctx, gdb, func(ctx context.Context, _ *gorm.DB) error {
		if err := svc.Transfer(ctx, "alice", "bob", "USDC", d(20)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	requireBalance(t, svc, "alice", "USDC", 50)
	requireBalance(t, svc, "bob", "USDC", 0)

	valid, err := svc.VerifyChain(ctx, "alice")
	require.NoError(t, err)
	require.True(t, valid)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "alice", "USDC", d(10), "")
	require.NoError(t, err)
	require.NoError(t, svc.Transfer(ctx, "alice", "bob", "USDC", d(3)))

	require.NoError(t, gdb.Model(&LedgerEntry{}).
		Where("account = ? AND seq = ?", "alice", 1).
		Update("amount", "1000").Error)

	valid, err := svc.VerifyChain(ctx, "alice")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestMintRequiresOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Mint(ctx, "mallory", "mallory", "USDC", d(1), "")
	require.ErrorIs(t, err, ErrNotAllowed)

	_, err = svc.Mint(ctx, "owner", "alice", "USDC", d(7), "faucet")
	require.NoError(t, err)
	requireBalance(t, svc, "alice", "USDC", 7)
}

func TestGetBalanceRepositoryError(t *testing.T) {
	dbErr := errors.New("db down")
	svc := &Service{
		balance: &repoMock[Balance]{
			findOneFn: func(ctx context.Context, _ *Balance, _ ...option.QueryOption) (*Balance, error) {
				return nil, dbErr
			},
		},
	}

	_, err := svc.GetBalance(context.Background(), "alice", "USDC")
	require.ErrorIs(t, err, dbErr)
}

func TestHandlerTransfer(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Deposit(context.Background(), "alice", "USDC", d(10), "")
	require.NoError(t, err)

	mux := runtime.NewServeMux()
	require.NoError(t, NewHandler(svc).Register(mux))

	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/transfers", strings.NewReader(`{"to":"bob","asset":"USDC","amount":"4"}`))
	req.Header.Set(middleware.CallerHeader, "alice")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/ledger/transfers", strings.NewReader(`{"to":"bob","asset":"USDC","amount":"400"}`))
	req.Header.Set(middleware.CallerHeader, "alice")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Contains(t, rec.Body.String(), "INSUFFICIENT_BALANCE")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ledger/accounts/bob/balances/USDC", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"account":"bob","asset":"USDC","amount":"4"}`, rec.Body.String())
}
