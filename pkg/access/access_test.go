package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorizer(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	require.NoError(t, a.Grant("alice", RoleOwner))
	require.NoError(t, a.Grant("arb", RoleArbitrator))

	ok, err := a.Allowed("alice", ObjectSettings, ActionWrite)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Allowed("alice", ObjectDispute, ActionResolve)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = a.Allowed("arb", ObjectDispute, ActionResolve)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Allowed("", ObjectDispute, ActionResolve)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, a.Revoke("arb", RoleArbitrator))
	ok, err = a.Allowed("arb", ObjectDispute, ActionResolve)
	require.NoError(t, err)
	require.False(t, ok)

	members, err := a.Members(RoleOwner)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, members)
}
