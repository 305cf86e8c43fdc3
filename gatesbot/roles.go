package gatesbot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Role is a capability level, matched case-insensitively against the
// guild's Discord role names.
type Role int

const (
	RolePlayer Role = iota
	RoleDM
	RoleAssistant
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "Player"
	case RoleDM:
		return "DM"
	case RoleAssistant:
		return "Assistant"
	case RoleAdmin:
		return "Admin"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// memberHasRole reports whether the member carries a guild role whose
// name matches, ignoring case. guildRoles maps role IDs to names.
func memberHasRole(
	member *discordgo.Member,
	guildRoles map[string]string,
	role Role,
) bool {
	want := strings.ToLower(role.String())
	for _, roleID := range member.Roles {
		if strings.ToLower(guildRoles[roleID]) == want {
			return true
		}
	}
	return false
}

// requireRole returns ErrPermissionDenied unless the member has the
// role, or is the configured owner.
func requireRole(
	member *discordgo.Member,
	guildRoles map[string]string,
	role Role,
	ownerID string,
) error {
	if member == nil {
		return fmt.Errorf("%w: %s role required", ErrPermissionDenied, role)
	}
	if ownerID != "" && member.User != nil && member.User.ID == ownerID {
		return nil
	}
	if memberHasRole(member, guildRoles, role) {
		return nil
	}
	return fmt.Errorf("%w: %s role required", ErrPermissionDenied, role)
}

// guildRoleNames builds the role ID to name map requireRole expects.
func guildRoleNames(roles []*discordgo.Role) map[string]string {
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	return names
}
