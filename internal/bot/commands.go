package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/verify"
)

const (
	commandVerify        = "verify"
	commandVerifyAll     = "verifyall"
	commandCheckFactions = "checkfactions"
)

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        commandVerify,
			Description: "Verify yourself or another member against their Torn account",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "target",
					Description: "Torn ID or member mention (e.g., 2000607 or @Kivou)",
					Required:    false,
				},
			},
		},
		{
			Name:        commandVerifyAll,
			Description: "Verify every member of the server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "force",
					Description: "Verify members that already have the verified role too",
					Required:    false,
				},
			},
		},
		{
			Name:        commandCheckFactions,
			Description: "Check that faction role holders are still in their faction",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "force",
					Description: "Remove the faction roles of members who left and verify them again",
					Required:    false,
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// commandAllowed decides whether a command may run in a channel. verify runs
// in the verify channels and the admin channel; the bulk commands only in the
// admin channel.
func commandAllowed(cfg *guild.Config, command, channelName string) (bool, string) {
	if !cfg.Active(guild.ModuleVerify) {
		return false, "Verify module not activated"
	}

	admin := cfg.AdminChannel()
	if channelName == admin {
		return true, ""
	}

	if command == commandVerify {
		if cfg.ChannelAllowed(guild.ModuleVerify, channelName) {
			return true, ""
		}
		names := cfg.ChannelNames(guild.ModuleVerify)
		if len(names) == 0 {
			return false, fmt.Sprintf("Use this command in #%s", admin)
		}
		return false, fmt.Sprintf("Use this command in #%s", names[0])
	}

	return false, fmt.Sprintf("Use this command in #%s", admin)
}

// guard checks that a command can run where it was issued and answers when it cannot
func (b *Bot) guard(s *discordgo.Session, i *discordgo.InteractionCreate, command string) bool {
	if i.GuildID == "" || i.Member == nil {
		respondEphemeral(s, i, "This command only works in a server")
		return false
	}

	cfg, err := b.repo.GetGuildConfig(b.ctx, i.GuildID)
	if err != nil {
		slog.Debug("Command in unconfigured guild", "guild", i.GuildID, "error", err)
		respondEphemeral(s, i, "Verify module not activated")
		return false
	}

	ok, msg := commandAllowed(cfg, command, b.channelName(s, i.ChannelID))
	if !ok {
		respondEphemeral(s, i, msg)
	}
	return ok
}

// handleVerify handles the /verify command
func (b *Bot) handleVerify(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.guard(s, i, commandVerify) {
		return
	}

	target := ""
	if opt := option(i, "target"); opt != nil {
		target = opt.StringValue()
	}

	// Respond immediately to avoid timeout
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	author := i.Member
	author.GuildID = i.GuildID

	ctx, cancel := context.WithTimeout(b.ctx, 3*b.config.APITimeout)
	defer cancel()

	out := b.verifier.VerifyMember(ctx, i.GuildID, verify.CommandOrigin{ChannelID: i.ChannelID, Author: author}, target)
	b.editEmbed(s, i, verify.OutcomeEmbed(author, out))
}

// handleVerifyAll handles the /verifyall command
func (b *Bot) handleVerifyAll(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.guard(s, i, commandVerifyAll) {
		return
	}

	force := boolOption(i, "force")
	respondWithMessage(s, i, fmt.Sprintf("Verifying all members (force: %t)", force))

	go func() {
		if err := b.verifier.VerifyAll(b.ctx, i.GuildID, i.ChannelID, force); err != nil {
			slog.Error("Verify all failed", "guild", i.GuildID, "error", err)
		}
	}()
}

// handleCheckFactions handles the /checkfactions command
func (b *Bot) handleCheckFactions(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.guard(s, i, commandCheckFactions) {
		return
	}

	force := boolOption(i, "force")
	respondWithMessage(s, i, fmt.Sprintf("Checking factions (force: %t)", force))

	go func() {
		if err := b.verifier.CheckFactions(b.ctx, i.GuildID, i.ChannelID, force); err != nil {
			slog.Error("Check factions failed", "guild", i.GuildID, "error", err)
		}
	}()
}

// Helper functions

func (b *Bot) channelName(s *discordgo.Session, channelID string) string {
	if c, err := s.State.Channel(channelID); err == nil {
		return c.Name
	}
	if c, err := s.Channel(channelID); err == nil {
		return c.Name
	}
	return ""
}

func option(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

func boolOption(i *discordgo.InteractionCreate, name string) bool {
	if opt := option(i, name); opt != nil {
		return opt.BoolValue()
	}
	return false
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) editEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &embeds,
	}); err != nil {
		slog.Error("Failed to edit response", "command", commandVerify, "error", err)
	}
}
