package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCan(t *testing.T) {
	t.Parallel()

	t.Run("root manages everyone but cannot remove root", func(t *testing.T) {
		require.True(t, Can(RoleRoot, ActionCreateUser, RoleAdmin))
		require.True(t, Can(RoleRoot, ActionUpdateUser, RoleRoot))
		require.True(t, Can(RoleRoot, ActionDeleteUser, RoleAdmin))
		require.True(t, Can(RoleRoot, ActionHardDeleteUser, RoleUser))
		require.True(t, Can(RoleRoot, ActionUnlockAccount, RoleAdmin))

		require.False(t, Can(RoleRoot, ActionDeleteUser, RoleRoot))
		require.False(t, Can(RoleRoot, ActionHardDeleteUser, RoleRoot))
	})

	t.Run("admin manages non-root accounts", func(t *testing.T) {
		require.True(t, Can(RoleAdmin, ActionCreateUser, RoleUser))
		require.True(t, Can(RoleAdmin, ActionCreateUser, RoleAdmin))
		require.True(t, Can(RoleAdmin, ActionDeleteUser, RoleUser))
		require.True(t, Can(RoleAdmin, ActionUnlockAccount, RoleUser))
		require.True(t, Can(RoleAdmin, ActionListUsers, ""))
		require.True(t, Can(RoleAdmin, ActionQueryActivity, ""))
		require.True(t, Can(RoleAdmin, ActionPruneActivity, ""))

		require.False(t, Can(RoleAdmin, ActionCreateUser, RoleRoot))
		require.False(t, Can(RoleAdmin, ActionUpdateUser, RoleRoot))
		require.False(t, Can(RoleAdmin, ActionDeleteUser, RoleRoot))
		require.False(t, Can(RoleAdmin, ActionUnlockAccount, RoleRoot))
		require.False(t, Can(RoleAdmin, ActionHardDeleteUser, RoleUser))
	})

	t.Run("regular users hold no administrative rights", func(t *testing.T) {
		for _, action := range []Action{
			ActionCreateUser, ActionUpdateUser, ActionDeleteUser,
			ActionHardDeleteUser, ActionListUsers, ActionUnlockAccount,
			ActionQueryActivity, ActionPruneActivity,
		} {
			require.False(t, Can(RoleUser, action, RoleUser), "action %s", action)
		}
	})
}

func TestRole(t *testing.T) {
	t.Parallel()

	require.True(t, RoleRoot.Valid())
	require.True(t, RoleAdmin.Valid())
	require.True(t, RoleUser.Valid())
	require.False(t, Role("superuser").Valid())
	require.False(t, Role("").Valid())

	require.True(t, RoleRoot.Privileged())
	require.True(t, RoleAdmin.Privileged())
	require.False(t, RoleUser.Privileged())
}
