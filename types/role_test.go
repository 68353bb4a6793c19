package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleOwner, ParseRole("owner"))
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleModerator, ParseRole("moderator"))
	assert.Equal(t, RoleUser, ParseRole("user"))

	// anything unrecognized degrades to a plain user
	assert.Equal(t, RoleUser, ParseRole(""))
	assert.Equal(t, RoleUser, ParseRole("superuser"))
}

func TestRoleRank(t *testing.T) {
	assert.Greater(t, RoleOwner.Rank(), RoleAdmin.Rank())
	assert.Greater(t, RoleAdmin.Rank(), RoleModerator.Rank())
	assert.Greater(t, RoleModerator.Rank(), RoleUser.Rank())
	assert.Equal(t, RoleUser.Rank(), Role("superuser").Rank())
}
