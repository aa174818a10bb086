// Package verify drives identity resolution and role synchronization for
// single members, whole guilds, and faction rosters.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/identity"
	"github.com/flor3z/torn-bot/internal/rolesync"
	"github.com/flor3z/torn-bot/internal/torn"
)

var (
	// ErrModuleInactive is returned when the guild has no active verify module
	ErrModuleInactive = errors.New("verify module not activated")

	// ErrNoVerifiedRole is returned when no verified role can be found
	ErrNoVerifiedRole = errors.New("no verified role given")
)

// ConfigSource loads guild configurations
type ConfigSource interface {
	GetGuildConfig(ctx context.Context, guildID string) (*guild.Config, error)
}

// Resolver resolves account references
type Resolver interface {
	Resolve(ctx context.Context, ref identity.Ref, keys *identity.Keyring) (*identity.Identity, error)
}

// Syncer applies roles to a member
type Syncer interface {
	SyncMember(ctx context.Context, guildID string, member *discordgo.Member, id *identity.Identity, verifiedRoleID string, cfg *guild.Config) rolesync.Result
}

// FactionFetcher fetches faction rosters
type FactionFetcher interface {
	Faction(ctx context.Context, factionID string, key string) (*torn.FactionBasic, error)
}

// Reporter receives errors that should reach guild administrators
type Reporter interface {
	Report(ctx context.Context, guildID, message string, fields ...any)
}

// Origin says who asked for a verification
type Origin interface {
	caller() *discordgo.Member
}

// CommandOrigin is a verification requested by a command
type CommandOrigin struct {
	ChannelID string
	Author    *discordgo.Member
}

func (o CommandOrigin) caller() *discordgo.Member { return o.Author }

// MemberOrigin is a verification triggered by the member itself, on join or in a sweep
type MemberOrigin struct {
	Member *discordgo.Member
}

func (o MemberOrigin) caller() *discordgo.Member { return o.Member }

// Outcome is the result of verifying one member
type Outcome struct {
	OK      bool
	Message string

	// Member is the verified member when it was found in the guild
	Member   *discordgo.Member
	Identity *identity.Identity
	Err      error
}

// Deps are the collaborators of a Service
type Deps struct {
	Session  discord.Session
	Configs  ConfigSource
	Resolver Resolver
	Syncer   Syncer
	Factions FactionFetcher
	Relay    Reporter

	// Timeout bounds each roster lookup
	Timeout time.Duration
}

// Service verifies guild members
type Service struct {
	session  discord.Session
	configs  ConfigSource
	resolver Resolver
	syncer   Syncer
	factions FactionFetcher
	relay    Reporter
	timeout  time.Duration
}

// New creates a Service
func New(d Deps) *Service {
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	return &Service{
		session:  d.Session,
		configs:  d.Configs,
		resolver: d.Resolver,
		syncer:   d.Syncer,
		factions: d.Factions,
		relay:    d.Relay,
		timeout:  d.Timeout,
	}
}

// run is the per-guild state shared by the members of one verification
type run struct {
	guildID  string
	guild    *discordgo.Guild
	cfg      *guild.Config
	keys     *identity.Keyring
	roles    []*discordgo.Role
	verified *discordgo.Role
}

func (s *Service) prepare(ctx context.Context, guildID string) (*run, error) {
	cfg, err := s.configs.GetGuildConfig(ctx, guildID)
	if errors.Is(err, guild.ErrNotConfigured) {
		return nil, ErrModuleInactive
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.Active(guild.ModuleVerify) {
		return nil, ErrModuleInactive
	}

	keys := identity.NewKeyring(cfg.Keys)
	if keys.Len() == 0 {
		return nil, identity.ErrNoCredential
	}

	roles, err := s.session.Roles(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	verified := verifiedRole(roles, cfg.Verify)
	if verified == nil {
		return nil, ErrNoVerifiedRole
	}

	g, err := s.session.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild: %w", err)
	}

	return &run{guildID: guildID, guild: g, cfg: cfg, keys: keys, roles: roles, verified: verified}, nil
}

// verifiedRole picks the first configured verified role that exists, then
// falls back to the role the reconciler creates
func verifiedRole(roles []*discordgo.Role, v *guild.VerifyModule) *discordgo.Role {
	if v != nil {
		for _, ref := range v.RolesVerified {
			if r := discord.RoleByRef(roles, ref); r != nil {
				return r
			}
		}
	}
	return discord.RoleByName(roles, guild.VerifiedRoleName)
}

// VerifyMember verifies one member. An empty arg verifies the caller; a
// number is tried as a game ID then, if it names a guild member, as a chat ID;
// a mention verifies the mentioned member.
func (s *Service) VerifyMember(ctx context.Context, guildID string, origin Origin, arg string) Outcome {
	caller := origin.caller()
	if caller == nil || caller.User == nil {
		return Outcome{Message: "Could not tell who is asking for the verification"}
	}

	r, err := s.prepare(ctx, guildID)
	if err != nil {
		return setupOutcome(err)
	}

	callerID := caller.User.ID
	if _, ok := origin.(MemberOrigin); ok {
		return s.verify(ctx, r, identity.ChatAccount(callerID, callerID))
	}

	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return s.verify(ctx, r, identity.Self(callerID))

	case isDigits(arg):
		out := s.verify(ctx, r, identity.ExternalAccount(callerID, arg))
		if !out.OK {
			if _, err := s.session.Member(guildID, arg); err == nil {
				out = s.verify(ctx, r, identity.ChatAccount(callerID, arg))
			}
		}
		return out

	default:
		if chatID, ok := discord.TrimMention(arg); ok {
			return s.verify(ctx, r, identity.ChatAccount(callerID, chatID))
		}
		return Outcome{Message: "Use `/verify target:tornId` or `/verify target:@Kivou [2000607]`"}
	}
}

// verify resolves ref and applies the roles to the member it points to
func (s *Service) verify(ctx context.Context, r *run, ref identity.Ref) Outcome {
	id, err := s.resolver.Resolve(ctx, ref, r.keys)
	if err != nil {
		s.reportUnexpected(ctx, r.guildID, err)
		return Outcome{Message: errorMessage(err), Err: err}
	}

	member, err := s.session.Member(r.guildID, id.DiscordID)
	if errors.Is(err, discord.ErrNotFound) {
		return Outcome{
			Identity: id,
			Message: fmt.Sprintf("You are trying to verify %s but they didn't join this server... "+
				"Maybe they are using a different discord account on the official Torn discord server.", id.Nickname()),
		}
	}
	if err != nil {
		return Outcome{Identity: id, Message: errorMessage(err), Err: err}
	}

	res := s.syncer.SyncMember(ctx, r.guildID, member, id, r.verified.ID, r.cfg)
	if !res.OK {
		if errors.Is(res.Err, identity.ErrPermissionDenied) {
			s.relay.Report(ctx, r.guildID, res.Summary, "member", discord.Tag(member))
		}
		return Outcome{Member: member, Identity: id, Message: res.Summary, Err: res.Err}
	}

	slog.Info("Member verified", "guild", r.guildID, "member", member.User.ID, "torn_id", id.TornID)

	var msg string
	if member.User.ID == ref.Caller {
		msg = fmt.Sprintf("%s, you have been verified and are now known as **%s**.\nYou have been given the %s:\n%s",
			discord.Mention(member.User.ID), res.Nickname, plural("role", len(res.Granted)), res.Summary)
	} else {
		msg = fmt.Sprintf("%s has been verified and is now known as **%s**.\nThey have been given the %s:\n%s",
			discord.Mention(member.User.ID), res.Nickname, plural("role", len(res.Granted)), res.Summary)
	}
	return Outcome{OK: true, Member: member, Identity: id, Message: msg}
}

// reportUnexpected relays failures administrators need to act on
func (s *Service) reportUnexpected(ctx context.Context, guildID string, err error) {
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		s.relay.Report(ctx, guildID, fmt.Sprintf("Verification error: %s", err))
		return
	}

	var apiErr *torn.APIError
	if idErr.Kind == identity.KindExternalAPI && errors.As(err, &apiErr) && apiErr.KeyRejected() {
		s.relay.Report(ctx, guildID, fmt.Sprintf("Master key error code %d: %s", apiErr.Code, apiErr.Message))
	}
}

func setupOutcome(err error) Outcome {
	switch {
	case errors.Is(err, ErrModuleInactive):
		return Outcome{Message: "Verify module not activated", Err: err}
	case errors.Is(err, identity.ErrNoCredential):
		return Outcome{Message: "No master key given", Err: err}
	case errors.Is(err, ErrNoVerifiedRole):
		return Outcome{Message: "No verified role given", Err: err}
	default:
		return Outcome{Message: errorMessage(err), Err: err}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func plural(word string, n int) string {
	if n > 1 {
		return word + "s"
	}
	return word
}
