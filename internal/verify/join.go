package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/identity"
)

// OnMemberJoin verifies a member that just joined, posts the result to the
// first welcome channel found, and sends instructions by direct message when
// the guild requires verification and it failed.
func (s *Service) OnMemberJoin(ctx context.Context, guildID string, member *discordgo.Member) (Outcome, bool) {
	if member == nil || member.User == nil || discord.IsBot(member) {
		return Outcome{}, false
	}

	r, err := s.prepare(ctx, guildID)
	if err != nil {
		slog.Debug("Skipping verification on join", "guild", guildID, "member", member.User.ID, "reason", err)
		return Outcome{}, false
	}

	out := s.verify(ctx, r, identity.ChatAccount(member.User.ID, member.User.ID))

	if channelID := s.welcomeChannel(guildID, r.cfg.Verify.WelcomeChannels); channelID != "" {
		title := "Verification failed"
		if out.OK {
			title = "Verification succeeded"
		}
		s.send(channelID, &discordgo.MessageEmbed{
			Color:  color(out.OK),
			Author: &discordgo.MessageEmbedAuthor{Name: discord.DisplayName(member), IconURL: member.AvatarURL("")},
			Fields: []*discordgo.MessageEmbedField{{Name: title, Value: out.Message}},
		})
	}

	if !out.OK && r.cfg.Verify.ForceVerify {
		if err := s.session.SendDirect(member.User.ID, welcomeEmbed(r.guild.Name, r.verified.Name)); err != nil {
			slog.Warn("Failed to send verification instructions", "guild", guildID, "member", member.User.ID, "error", err)
		}
	}

	return out, true
}

func (s *Service) welcomeChannel(guildID string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	channels, err := s.session.Channels(guildID)
	if err != nil {
		slog.Warn("Failed to list channels", "guild", guildID, "error", err)
		return ""
	}
	for _, name := range names {
		if c := discord.ChannelByName(channels, guild.ChannelName(name)); c != nil {
			return c.ID
		}
	}
	return ""
}

func welcomeEmbed(guildName, verifiedRole string) *discordgo.MessageEmbed {
	msg := []string{
		"This server requires that you **verify your account** in order to identify who you are in Torn.",
		"There are two ways to do it:",
		fmt.Sprintf("1 - You can go to [the official discord server](https://torn.com/discord) and get verified, then come back in the %s server and type `/verify` in a channel.", guildName),
		"2 - You can also directly use the verification link from your Torn preferences if you don't want to join the official discord.",
		fmt.Sprintf("Either way, this process changes your nickname to your Torn name, gives you the %s role and roles corresponding to your faction (depending on the server configuration). If you change your name or faction you can type `/verify` again whenever you want.", verifiedRole),
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Welcome to the %s's discord server", guildName),
		Description: strings.Join(msg, "\n\n"),
		Color:       ColorBlue,
	}
}
