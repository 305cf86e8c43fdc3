package gatesbot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func testMember(userID string, roleIDs ...string) *discordgo.Member {
	return &discordgo.Member{
		User:  &discordgo.User{ID: userID},
		Roles: roleIDs,
	}
}

func TestMemberHasRole(t *testing.T) {
	guildRoles := map[string]string{
		"role-1": "dm",
		"role-2": "Admin",
		"role-3": "Moderator",
	}

	assert.True(t, memberHasRole(testMember("u", "role-1"), guildRoles, RoleDM))
	assert.True(t, memberHasRole(testMember("u", "role-2"), guildRoles, RoleAdmin))
	assert.False(t, memberHasRole(testMember("u", "role-3"), guildRoles, RoleDM))
	assert.False(t, memberHasRole(testMember("u"), guildRoles, RoleDM))
}

func TestRequireRole(t *testing.T) {
	guildRoles := map[string]string{"role-1": "DM"}

	assert.NoError(
		t,
		requireRole(testMember("u", "role-1"), guildRoles, RoleDM, ""),
	)
	assert.ErrorIs(
		t,
		requireRole(testMember("u"), guildRoles, RoleDM, ""),
		ErrPermissionDenied,
	)
	assert.ErrorIs(
		t,
		requireRole(nil, guildRoles, RoleDM, "owner-1"),
		ErrPermissionDenied,
	)
}

func TestRequireRoleOwnerBypass(t *testing.T) {
	assert.NoError(
		t,
		requireRole(testMember("owner-1"), map[string]string{}, RoleAdmin, "owner-1"),
	)
	assert.ErrorIs(
		t,
		requireRole(testMember("user-1"), map[string]string{}, RoleAdmin, "owner-1"),
		ErrPermissionDenied,
	)
}

func TestGuildRoleNames(t *testing.T) {
	names := guildRoleNames(
		[]*discordgo.Role{
			{ID: "role-1", Name: "DM"},
			{ID: "role-2", Name: "Admin"},
		},
	)
	assert.Equal(t, map[string]string{"role-1": "DM", "role-2": "Admin"}, names)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "Player", RolePlayer.String())
	assert.Equal(t, "DM", RoleDM.String())
	assert.Equal(t, "Assistant", RoleAssistant.String())
	assert.Equal(t, "Admin", RoleAdmin.String())
}
