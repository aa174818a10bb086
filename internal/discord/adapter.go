package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// memberPageSize is the largest page the members endpoint returns
const memberPageSize = 1000

type gatewaySession struct {
	s *discordgo.Session
}

// Wrap adapts a discordgo session to Session
func Wrap(s *discordgo.Session) Session {
	return &gatewaySession{s: s}
}

func (g *gatewaySession) BotUser() *discordgo.User {
	if g.s.State == nil {
		return nil
	}
	return g.s.State.User
}

func (g *gatewaySession) GuildIDs() ([]string, error) {
	if g.s.State == nil {
		return nil, fmt.Errorf("session state is not available")
	}

	g.s.State.RLock()
	defer g.s.State.RUnlock()

	ids := make([]string, 0, len(g.s.State.Guilds))
	for _, guild := range g.s.State.Guilds {
		ids = append(ids, guild.ID)
	}
	return ids, nil
}

func (g *gatewaySession) Guild(guildID string) (*discordgo.Guild, error) {
	if g.s.State != nil {
		if guild, err := g.s.State.Guild(guildID); err == nil {
			return guild, nil
		}
	}
	return g.s.Guild(guildID)
}

func (g *gatewaySession) Roles(guildID string) ([]*discordgo.Role, error) {
	return g.s.GuildRoles(guildID)
}

func (g *gatewaySession) Channels(guildID string) ([]*discordgo.Channel, error) {
	return g.s.GuildChannels(guildID)
}

func (g *gatewaySession) Members(guildID string) ([]*discordgo.Member, error) {
	var (
		members []*discordgo.Member
		after   string
	)

	for {
		page, err := g.s.GuildMembers(guildID, after, memberPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		members = append(members, page...)

		if len(page) < memberPageSize {
			return members, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (g *gatewaySession) Member(guildID, userID string) (*discordgo.Member, error) {
	m, err := g.s.GuildMember(guildID, userID)
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	return m, err
}

func (g *gatewaySession) CreateRole(guildID, name string, mentionable bool) (*discordgo.Role, error) {
	return g.s.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Mentionable: &mentionable,
	})
}

func (g *gatewaySession) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return g.s.GuildChannelCreateComplex(guildID, data)
}

func (g *gatewaySession) SetNickname(guildID, userID, nickname string) error {
	return g.s.GuildMemberNickname(guildID, userID, nickname)
}

func (g *gatewaySession) AddRole(guildID, userID, roleID string) error {
	return g.s.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (g *gatewaySession) RemoveRole(guildID, userID, roleID string) error {
	return g.s.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (g *gatewaySession) SendMessage(channelID, content string) error {
	_, err := g.s.ChannelMessageSend(channelID, content)
	return err
}

func (g *gatewaySession) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	_, err := g.s.ChannelMessageSendEmbed(channelID, embed)
	return err
}

func (g *gatewaySession) SendDirect(userID string, embed *discordgo.MessageEmbed) error {
	ch, err := g.s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open direct channel: %w", err)
	}
	return g.SendEmbed(ch.ID, embed)
}
