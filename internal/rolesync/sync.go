// Package rolesync applies the roles a verified identity entitles a member to.
package rolesync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/identity"
	"github.com/flor3z/torn-bot/internal/torn"
)

// Result is the outcome of synchronizing one member
type Result struct {
	OK bool

	// Summary is a bullet list of granted roles, or the failure message
	Summary string

	// Nickname is the member's display name after the sync
	Nickname string
	Granted  []string
	Removed  []string
	Err      error
}

// Synchronizer applies role sets to guild members
type Synchronizer struct {
	session discord.Session
}

// New creates a Synchronizer
func New(session discord.Session) *Synchronizer {
	return &Synchronizer{session: session}
}

// SyncMember renames the member after their identity and grants the verified,
// faction and position roles. Errors never escape: they come back as a
// failed Result with any credential masked.
func (s *Synchronizer) SyncMember(ctx context.Context, guildID string, member *discordgo.Member, id *identity.Identity, verifiedRoleID string, cfg *guild.Config) Result {
	res, err := s.sync(ctx, guildID, member, id, verifiedRoleID, cfg)
	if err != nil {
		msg := torn.HideKey(err.Error())
		slog.Error("Failed to sync member roles", "guild", guildID, "member", member.User.ID, "error", msg)
		return Result{
			OK:       false,
			Summary:  fmt.Sprintf("Error while doing the verification: %s", msg),
			Nickname: res.Nickname,
			Granted:  res.Granted,
			Removed:  res.Removed,
			Err:      err,
		}
	}
	return res
}

func (s *Synchronizer) sync(ctx context.Context, guildID string, member *discordgo.Member, id *identity.Identity, verifiedRoleID string, cfg *guild.Config) (Result, error) {
	res := Result{Nickname: discord.DisplayName(member)}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	roles, err := s.session.Roles(guildID)
	if err != nil {
		return res, fmt.Errorf("failed to list roles: %w", err)
	}

	verified := discord.RoleByRef(roles, verifiedRoleID)
	if verified == nil {
		return res, fmt.Errorf("verified role %s not found", verifiedRoleID)
	}

	userID := member.User.ID
	held := make(map[string]bool, len(member.Roles))
	for _, roleID := range member.Roles {
		held[roleID] = true
	}

	// Renaming fails on members ranked above the bot; that is not fatal
	nickname := id.Nickname()
	if err := s.session.SetNickname(guildID, userID, nickname); err != nil {
		slog.Debug("Could not change nickname", "guild", guildID, "member", userID, "error", err)
	} else {
		res.Nickname = nickname
	}

	grant := func(role *discordgo.Role) error {
		if !held[role.ID] {
			if err := s.session.AddRole(guildID, userID, role.ID); err != nil {
				return mutationError(fmt.Sprintf("add role %s", role.Name), err)
			}
			held[role.ID] = true
		}
		res.Granted = append(res.Granted, role.Name)
		return nil
	}

	if err := grant(verified); err != nil {
		return res, err
	}

	var verify *guild.VerifyModule
	if cfg != nil {
		verify = cfg.Verify
	}

	factionKey := id.FactionKey()
	refs, _ := verify.FactionRoles(factionKey)
	factionRoles := make(map[string]bool, len(refs))
	for _, ref := range refs {
		role := discord.RoleByRef(roles, ref)
		if role == nil || factionRoles[role.ID] {
			continue
		}
		if err := grant(role); err != nil {
			return res, err
		}
		factionRoles[role.ID] = true
	}

	if verify.TracksPositions(factionKey) && id.FactionPosition != "" {
		if err := s.syncPosition(guildID, userID, id, roles, held, factionRoles, &res, grant); err != nil {
			return res, err
		}
	}

	res.OK = true
	res.Summary = bulletList(res.Granted)
	return res, nil
}

// syncPosition keeps exactly one "<position> of <faction>" role on the member.
// Roles in keep were granted as faction roles and are left alone.
func (s *Synchronizer) syncPosition(guildID, userID string, id *identity.Identity, roles []*discordgo.Role, held, keep map[string]bool, res *Result, grant func(*discordgo.Role) error) error {
	name := id.PositionRole()

	target := discord.RoleByName(roles, name)
	if target == nil {
		created, err := s.session.CreateRole(guildID, name, false)
		if err != nil {
			return mutationError(fmt.Sprintf("create role %s", name), err)
		}
		target = created
		slog.Info("Created position role", "guild", guildID, "role", name)
	}

	for _, role := range roles {
		if !held[role.ID] || keep[role.ID] || role.ID == target.ID || !IsPositionRole(role.Name, id.FactionName) {
			continue
		}
		if err := s.session.RemoveRole(guildID, userID, role.ID); err != nil {
			return mutationError(fmt.Sprintf("remove role %s", role.Name), err)
		}
		delete(held, role.ID)
		res.Removed = append(res.Removed, role.Name)
	}

	return grant(target)
}

// IsPositionRole reports whether a role name has the form "<position> of <faction>"
func IsPositionRole(roleName, factionName string) bool {
	suffix := " of " + factionName
	return strings.HasSuffix(roleName, suffix) && len(roleName) > len(suffix)
}

func mutationError(action string, err error) error {
	if discord.IsPermissionError(err) {
		return &identity.Error{
			Kind:    identity.KindPermissionDenied,
			Message: fmt.Sprintf("missing permission to %s", action),
			Err:     err,
		}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func bulletList(names []string) string {
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- @")
		sb.WriteString(name)
	}
	return sb.String()
}
