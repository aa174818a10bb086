package verify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/identity"
	"github.com/flor3z/torn-bot/internal/torn"
)

// tornIDPattern finds the "[2000607]" suffix verified nicknames carry
var tornIDPattern = regexp.MustCompile(`\[(\d{1,7})\]`)

// VerifyAll verifies the members of a guild and reports into channelID.
// Without force only members lacking the verified role are verified and every
// outcome is reported; with force everyone is verified and only failures are
// reported.
func (s *Service) VerifyAll(ctx context.Context, guildID, channelID string, force bool) error {
	r, err := s.prepare(ctx, guildID)
	if err != nil {
		s.send(channelID, errorEmbed("Error on server members verification", setupOutcome(err).Message))
		return err
	}

	s.send(channelID, titleEmbed(fmt.Sprintf("Verifying all members of %s", r.guild.Name),
		field("Force", force),
		field("Verified role", "@"+r.verified.Name),
	))

	members, err := s.session.Members(guildID)
	if err != nil {
		s.send(channelID, errorEmbed("Error on server members verification", err.Error()))
		return fmt.Errorf("failed to list members: %w", err)
	}

	for i, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if discord.IsBot(m) {
			continue
		}
		if !force && discord.HasRole(m, r.verified.ID) {
			continue
		}

		out := s.verify(ctx, r, identity.ChatAccount(m.User.ID, m.User.ID))
		if force && out.OK {
			continue
		}
		s.send(channelID, memberEmbed(m, out.Message, out.OK, i, len(members)))
	}

	s.send(channelID, titleEmbed("Done verifying"))
	return nil
}

// CheckFactions compares the holders of each configured faction role with the
// faction roster. Holders missing from the roster are reported; with force
// their faction roles are removed and they are verified again.
func (s *Service) CheckFactions(ctx context.Context, guildID, channelID string, force bool) error {
	r, err := s.prepare(ctx, guildID)
	if err != nil {
		s.send(channelID, errorEmbed("Error checking factions", setupOutcome(err).Message))
		return err
	}

	members, err := s.session.Members(guildID)
	if err != nil {
		s.send(channelID, errorEmbed("Error checking factions", err.Error()))
		return fmt.Errorf("failed to list members: %w", err)
	}

	// how many factions reference each role
	usage := make(map[string]int)
	factionRoles := make(map[string][]*discordgo.Role)
	for fid, refs := range r.cfg.Verify.Factions {
		seen := make(map[string]bool)
		for _, ref := range refs {
			role := discord.RoleByRef(r.roles, ref)
			if role == nil || seen[role.ID] {
				continue
			}
			seen[role.ID] = true
			usage[role.ID]++
			factionRoles[fid] = append(factionRoles[fid], role)
		}
	}

	for _, fid := range slices.Sorted(maps.Keys(r.cfg.Verify.Factions)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.checkFaction(ctx, r, channelID, fid, factionRoles[fid], usage, members, force)
	}

	s.send(channelID, titleEmbed("Done checking"))
	return nil
}

func (s *Service) checkFaction(ctx context.Context, r *run, channelID, fid string, roles []*discordgo.Role, usage map[string]int, members []*discordgo.Member, force bool) {
	name := fmt.Sprintf("faction %s", fid)
	if n := r.cfg.Verify.FactionNames[fid]; n != "" {
		name = html.UnescapeString(n)
	}

	var unique *discordgo.Role
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, "@"+html.UnescapeString(role.Name))
		if unique == nil && usage[role.ID] == 1 {
			unique = role
		}
	}
	rolesList := strings.Join(names, ", ")

	if unique == nil {
		s.send(channelID, errorEmbed(fmt.Sprintf("Error checking faction %s", name),
			fmt.Sprintf("None of the following roles are unique: %s", rolesList)))
		return
	}

	roster, err := s.roster(ctx, fid, r.keys)
	if err != nil {
		msg := errorMessage(err)
		s.send(channelID, errorEmbed(fmt.Sprintf("Error checking faction %s", name), msg))
		s.relay.Report(ctx, r.guildID, fmt.Sprintf("Faction %s roster error: %s", fid, msg))
		return
	}
	if roster.Name != "" {
		name = html.UnescapeString(roster.Name)
	}

	s.send(channelID, titleEmbed(fmt.Sprintf("Checking faction %s", name),
		field("Force", force),
		field("Roles", rolesList),
		field("Unique role", "@"+html.UnescapeString(unique.Name)),
	))

	var holders []*discordgo.Member
	for _, m := range members {
		if discord.HasRole(m, unique.ID) && !discord.IsBot(m) {
			holders = append(holders, m)
		}
	}

	for i, m := range holders {
		matches := tornIDPattern.FindAllStringSubmatch(discord.DisplayName(m), -1)
		if len(matches) != 1 {
			s.send(channelID, memberEmbed(m, "Could not find torn ID within their display name (not checking them)", false, i, len(holders)))
			continue
		}

		if roster.HasMember(matches[0][1]) {
			continue
		}

		if !force {
			s.send(channelID, memberEmbed(m, fmt.Sprintf("is not part of %s anymore.", name), false, i, len(holders)))
			continue
		}

		if err := s.stripRoles(r.guildID, m, roles); err != nil {
			s.send(channelID, memberEmbed(m, errorMessage(err), false, i, len(holders)))
			continue
		}
		s.send(channelID, memberEmbed(m, fmt.Sprintf("is not part of %s anymore: %s %s has been removed",
			name, plural("role", len(roles)), rolesList), false, i, len(holders)))

		out := s.verify(ctx, r, identity.ChatAccount(m.User.ID, m.User.ID))
		s.send(channelID, memberEmbed(m, out.Message, out.OK, i, len(holders)))
	}
}

// roster fetches a faction roster, moving to the next key when one is rejected
func (s *Service) roster(ctx context.Context, factionID string, keys *identity.Keyring) (*torn.FactionBasic, error) {
	var lastErr error
	for _, key := range keys.Order() {
		lctx, cancel := context.WithTimeout(ctx, s.timeout)
		roster, err := s.factions.Faction(lctx, factionID, key.Key)
		cancel()
		if err == nil {
			return roster, nil
		}

		lastErr = err
		var apiErr *torn.APIError
		if !errors.As(err, &apiErr) || !apiErr.KeyRejected() {
			break
		}
		slog.Warn("Master key rejected", "owner", key.TornID, "code", apiErr.Code)
	}

	if lastErr == nil {
		return nil, identity.ErrNoCredential
	}

	e := &identity.Error{Kind: identity.KindExternalAPI, Message: torn.HideKey(lastErr.Error()), Err: lastErr}
	var apiErr *torn.APIError
	if errors.As(lastErr, &apiErr) {
		e.Code = apiErr.Code
		e.Message = apiErr.Message
	}
	return nil, e
}

func (s *Service) stripRoles(guildID string, m *discordgo.Member, roles []*discordgo.Role) error {
	for _, role := range roles {
		if !discord.HasRole(m, role.ID) {
			continue
		}
		if err := s.session.RemoveRole(guildID, m.User.ID, role.ID); err != nil {
			if discord.IsPermissionError(err) {
				return &identity.Error{Kind: identity.KindPermissionDenied, Message: fmt.Sprintf("remove role %s", role.Name), Err: err}
			}
			return fmt.Errorf("failed to remove role %s: %w", role.Name, err)
		}
	}
	return nil
}

func (s *Service) send(channelID string, embed *discordgo.MessageEmbed) {
	if channelID == "" {
		return
	}
	if err := s.session.SendEmbed(channelID, embed); err != nil {
		slog.Warn("Failed to send report", "channel", channelID, "error", err)
	}
}
