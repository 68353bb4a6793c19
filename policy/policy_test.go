package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/justachat/jachat-services/types"
)

func ctxWithRole(role types.Role) *types.CommandContext {
	return &types.CommandContext{Role: role}
}

func TestCanModerateGlobally(t *testing.T) {
	assert.True(t, CanModerateGlobally(ctxWithRole(types.RoleOwner)))
	assert.True(t, CanModerateGlobally(ctxWithRole(types.RoleAdmin)))
	assert.True(t, CanModerateGlobally(ctxWithRole(types.RoleModerator)))
	assert.False(t, CanModerateGlobally(ctxWithRole(types.RoleUser)))
}

func TestCanModerateRoom(t *testing.T) {
	assert.True(t, CanModerateRoom(&types.CommandContext{Role: types.RoleUser, IsRoomOwner: true}))
	assert.True(t, CanModerateRoom(&types.CommandContext{Role: types.RoleUser, IsRoomAdmin: true}))
	assert.True(t, CanModerateRoom(ctxWithRole(types.RoleAdmin)))
	assert.True(t, CanModerateRoom(ctxWithRole(types.RoleOwner)))
	// global moderators hold no room privileges
	assert.False(t, CanModerateRoom(ctxWithRole(types.RoleModerator)))
	assert.False(t, CanModerateRoom(ctxWithRole(types.RoleUser)))
}

func TestCanManageKlines(t *testing.T) {
	assert.True(t, CanManageKlines(ctxWithRole(types.RoleOwner)))
	assert.True(t, CanManageKlines(ctxWithRole(types.RoleAdmin)))
	assert.False(t, CanManageKlines(ctxWithRole(types.RoleModerator)))
	assert.False(t, CanManageKlines(ctxWithRole(types.RoleUser)))
}

func TestCanTarget(t *testing.T) {
	for _, role := range []types.Role{types.RoleOwner, types.RoleAdmin, types.RoleModerator, types.RoleUser} {
		assert.False(t, CanTarget(ctxWithRole(role), types.RoleOwner), "owner must be untouchable for %s", role)
	}
	assert.True(t, CanTarget(ctxWithRole(types.RoleOwner), types.RoleAdmin))
	assert.False(t, CanTarget(ctxWithRole(types.RoleAdmin), types.RoleAdmin))
	assert.False(t, CanTarget(ctxWithRole(types.RoleModerator), types.RoleAdmin))
	assert.True(t, CanTarget(ctxWithRole(types.RoleModerator), types.RoleUser))
	assert.True(t, CanTarget(ctxWithRole(types.RoleModerator), types.RoleModerator))
}

func TestCanChangeRoleOwnerImmutable(t *testing.T) {
	owner := ctxWithRole(types.RoleOwner)
	assert.False(t, CanChangeRole(owner, types.RoleOwner, types.RoleUser))
	assert.False(t, CanChangeRole(owner, types.RoleUser, types.RoleOwner))
}

func TestCanChangeRoleModeratorCannotTouchAdmins(t *testing.T) {
	mod := ctxWithRole(types.RoleModerator)
	assert.False(t, CanChangeRole(mod, types.RoleAdmin, types.RoleUser))
	assert.False(t, CanChangeRole(mod, types.RoleAdmin, types.RoleModerator))
	assert.False(t, CanChangeRole(mod, types.RoleOwner, types.RoleUser))
	// but may promote and demote plain users and moderators
	assert.True(t, CanChangeRole(mod, types.RoleUser, types.RoleModerator))
	assert.True(t, CanChangeRole(mod, types.RoleModerator, types.RoleUser))
}

func TestCanChangeRolePromoteAdmin(t *testing.T) {
	assert.True(t, CanChangeRole(ctxWithRole(types.RoleOwner), types.RoleUser, types.RoleAdmin))
	assert.True(t, CanChangeRole(ctxWithRole(types.RoleAdmin), types.RoleUser, types.RoleAdmin))
	assert.False(t, CanChangeRole(ctxWithRole(types.RoleModerator), types.RoleUser, types.RoleAdmin))
	assert.False(t, CanChangeRole(ctxWithRole(types.RoleUser), types.RoleUser, types.RoleAdmin))
}

func TestCanChangeRoleDemoteAdminOwnerOnly(t *testing.T) {
	assert.True(t, CanChangeRole(ctxWithRole(types.RoleOwner), types.RoleAdmin, types.RoleModerator))
	assert.False(t, CanChangeRole(ctxWithRole(types.RoleAdmin), types.RoleAdmin, types.RoleModerator))
	assert.False(t, CanChangeRole(ctxWithRole(types.RoleModerator), types.RoleAdmin, types.RoleModerator))
}
