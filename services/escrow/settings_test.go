package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"crowdfund-escrow/pkg/access"
)

func TestEnsureSettingsSeedsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SetTreasury(ctx, "owner", "vault")
	require.NoError(t, err)
	require.NoError(t, e.svc.EnsureSettings(ctx, e.cfg))

	view, err := e.svc.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "owner", view.Owner)
	require.Equal(t, "vault", view.Treasury)
	require.Equal(t, []string{"arbiter"}, view.Arbitrators)
}

func TestOwnershipTransfer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.AcceptOwnership(ctx, "carol")
	require.ErrorIs(t, err, ErrPendingOwnerNotSet)

	_, err = e.svc.ProposeOwner(ctx, "mallory", "mallory")
	require.ErrorIs(t, err, ErrNotOwner)

	st, err := e.svc.ProposeOwner(ctx, "owner", "carol")
	require.NoError(t, err)
	require.Equal(t, "carol", st.PendingOwner)

	_, err = e.svc.AcceptOwnership(ctx, "mallory")
	require.ErrorIs(t, err, ErrNotPendingOwner)

	st, err = e.svc.AcceptOwnership(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, "carol", st.Owner)
	require.Empty(t, st.PendingOwner)

	ok, err := e.authz.HasRole("carol", access.RoleOwner)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.authz.HasRole("owner", access.RoleOwner)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.svc.SetTreasury(ctx, "owner", "vault")
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = e.svc.SetTreasury(ctx, "carol", "vault")
	require.NoError(t, err)
}

func TestSettingsAddresses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SetTreasury(ctx, "owner", "escrow")
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = e.svc.SetTreasury(ctx, "owner", "")
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = e.svc.SetRewardPools(ctx, "owner", "escrow", "")
	require.ErrorIs(t, err, ErrInvalidAddress)

	st, err := e.svc.SetRewardPools(ctx, "owner", "", "")
	require.NoError(t, err)
	require.Equal(t, "treasury", st.poolA())
	require.Equal(t, "treasury", st.poolB())
}

func TestArbitratorMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, e.svc.AddArbitrator(ctx, "arbiter", "dave"), ErrNotOwner)
	require.NoError(t, e.svc.AddArbitrator(ctx, "owner", "dave"))

	ok, err := e.authz.Allowed("dave", access.ObjectDispute, access.ActionResolve)
	require.NoError(t, err)
	require.True(t, ok)

	view, err := e.svc.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"arbiter", "dave"}, view.Arbitrators)

	require.NoError(t, e.svc.RemoveArbitrator(ctx, "owner", "arbiter"))
	ok, err = e.authz.Allowed("arbiter", access.ObjectDispute, access.ActionResolve)
	require.NoError(t, err)
	require.False(t, ok)

	view, err = e.svc.GetSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"dave"}, view.Arbitrators)
}
