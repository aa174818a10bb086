// Package discord is the boundary to the chat platform. Everything the engine
// needs from a guild goes through Session so it can run against a fake.
package discord

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Session lists the platform primitives the engine relies on
type Session interface {
	// BotUser returns the bot's own account
	BotUser() *discordgo.User

	GuildIDs() ([]string, error)
	Guild(guildID string) (*discordgo.Guild, error)
	Roles(guildID string) ([]*discordgo.Role, error)
	Channels(guildID string) ([]*discordgo.Channel, error)
	Members(guildID string) ([]*discordgo.Member, error)
	Member(guildID, userID string) (*discordgo.Member, error)

	CreateRole(guildID, name string, mentionable bool) (*discordgo.Role, error)
	CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)

	SetNickname(guildID, userID, nickname string) error
	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error

	SendMessage(channelID, content string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) error
	SendDirect(userID string, embed *discordgo.MessageEmbed) error
}

// ErrNotFound is returned when a guild, member or channel does not exist
var ErrNotFound = errors.New("not found")

// IsPermissionError reports whether the platform refused a request for lack of permission
func IsPermissionError(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeMissingPermissions {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden
}

// RoleByName finds a role by exact name
func RoleByName(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, r := range roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// RoleByRef finds a role by ID, then by name
func RoleByRef(roles []*discordgo.Role, ref string) *discordgo.Role {
	for _, r := range roles {
		if r.ID == ref {
			return r
		}
	}
	return RoleByName(roles, ref)
}

// ChannelByName finds a channel or category by exact name
func ChannelByName(channels []*discordgo.Channel, name string) *discordgo.Channel {
	for _, c := range channels {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChannelByID finds a channel by ID
func ChannelByID(channels []*discordgo.Channel, id string) *discordgo.Channel {
	for _, c := range channels {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// DisplayName returns the member's nickname, falling back to the account name
func DisplayName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// HasRole reports whether the member holds a role
func HasRole(m *discordgo.Member, roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// IsBot reports whether the member is a bot account
func IsBot(m *discordgo.Member) bool {
	return m != nil && m.User != nil && m.User.Bot
}

// Mention renders a user mention
func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// Tag renders a member the way it is shown in reports
func Tag(m *discordgo.Member) string {
	if m == nil || m.User == nil {
		return "unknown member"
	}
	if m.User.Discriminator != "" && m.User.Discriminator != "0" {
		return m.User.Username + "#" + m.User.Discriminator
	}
	return m.User.Username
}

// TrimMention extracts the user ID from a <@id> or <@!id> mention
func TrimMention(s string) (string, bool) {
	if !strings.HasPrefix(s, "<@") || !strings.HasSuffix(s, ">") {
		return "", false
	}
	id := strings.TrimPrefix(strings.TrimSuffix(s[2:], ">"), "!")
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}
