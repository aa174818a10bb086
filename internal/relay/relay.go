// Package relay delivers operational errors to the people who can act on them.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/torn"
)

// ConfigSource loads guild configurations
type ConfigSource interface {
	GetGuildConfig(ctx context.Context, guildID string) (*guild.Config, error)
}

// Relay posts error reports to a guild's log channel, its admin channel, or
// the operator channel, whichever is reachable first
type Relay struct {
	session  discord.Session
	configs  ConfigSource
	operator string
}

// New creates a Relay. operatorChannelID may be empty.
func New(session discord.Session, configs ConfigSource, operatorChannelID string) *Relay {
	return &Relay{session: session, configs: configs, operator: operatorChannelID}
}

// Report delivers message. It never fails: undeliverable reports are logged.
// fields are key/value pairs rendered into the report.
func (r *Relay) Report(ctx context.Context, guildID, message string, fields ...any) {
	message = torn.HideKey(message)
	embed := &discordgo.MessageEmbed{
		Title:       "Torn bot error",
		Description: message,
		Color:       0xe74c3c,
		Fields:      embedFields(fields),
	}

	for _, channelID := range r.targets(ctx, guildID) {
		if err := r.session.SendEmbed(channelID, embed); err != nil {
			slog.Debug("Failed to relay report", "guild", guildID, "channel", channelID, "error", err)
			continue
		}
		return
	}

	slog.Warn("Report could not be delivered", append([]any{"guild", guildID, "message", message}, fields...)...)
}

// targets lists candidate channel IDs in delivery order
func (r *Relay) targets(ctx context.Context, guildID string) []string {
	var ids []string

	if guildID != "" && r.configs != nil {
		cfg, err := r.configs.GetGuildConfig(ctx, guildID)
		if err == nil && cfg != nil {
			if cfg.Admin != nil && cfg.Admin.LogChannel != "" {
				ids = append(ids, cfg.Admin.LogChannel)
			}
			if channels, err := r.session.Channels(guildID); err == nil {
				if c := discord.ChannelByName(channels, cfg.AdminChannel()); c != nil {
					ids = append(ids, c.ID)
				}
			}
		}
	}

	if r.operator != "" {
		ids = append(ids, r.operator)
	}
	return ids
}

func embedFields(kv []any) []*discordgo.MessageEmbedField {
	var fields []*discordgo.MessageEmbedField
	for i := 0; i+1 < len(kv); i += 2 {
		value := torn.HideKey(fmt.Sprint(kv[i+1]))
		if strings.TrimSpace(value) == "" {
			continue
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprint(kv[i]),
			Value:  value,
			Inline: true,
		})
	}
	return fields
}
