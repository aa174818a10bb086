// Package discordtest provides an in-memory discord.Session for tests.
package discordtest

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/flor3z/torn-bot/internal/discord"
)

// Operations that can be refused with Forbid
const (
	OpNickname      = "nickname"
	OpAddRole       = "add_role"
	OpRemoveRole    = "remove_role"
	OpCreateRole    = "create_role"
	OpCreateChannel = "create_channel"
	OpMembers       = "members"
	OpDirect        = "direct"
)

// Message is a message recorded by the fake
type Message struct {
	ChannelID string
	Content   string
	Embed     *discordgo.MessageEmbed
}

type guildState struct {
	guild    *discordgo.Guild
	roles    []*discordgo.Role
	channels []*discordgo.Channel
	members  []*discordgo.Member
}

// Fake is an in-memory Session
type Fake struct {
	mu sync.Mutex

	bot       *discordgo.User
	guilds    map[string]*guildState
	order     []string
	nextID    int
	forbidden map[string]bool
	failSend  map[string]bool

	messages  []Message
	direct    []Message
	mutations int
}

var _ discord.Session = (*Fake)(nil)

// New creates a fake whose bot account is named botName
func New(botName string) *Fake {
	return &Fake{
		bot:       &discordgo.User{ID: "900000000000000001", Username: botName, Bot: true},
		guilds:    make(map[string]*guildState),
		forbidden: make(map[string]bool),
		failSend:  make(map[string]bool),
		nextID:    1000,
	}
}

// Forbidden builds the error the platform returns for a missing permission
func Forbidden() error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"},
		ResponseBody: []byte(`{"message": "Missing Permissions", "code": 50013}`),
		Message:      &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions, Message: "Missing Permissions"},
	}
}

func (f *Fake) id() string {
	f.nextID++
	return fmt.Sprintf("%d", f.nextID)
}

func (f *Fake) guild(guildID string) (*guildState, error) {
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", guildID, discord.ErrNotFound)
	}
	return g, nil
}

func (f *Fake) member(g *guildState, userID string) (*discordgo.Member, error) {
	if g == nil {
		return nil, discord.ErrNotFound
	}
	for _, m := range g.members {
		if m.User.ID == userID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("member %s: %w", userID, discord.ErrNotFound)
}

// Setup helpers

// AddGuild registers a guild with its @everyone role
func (f *Fake) AddGuild(guildID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.guilds[guildID] = &guildState{
		guild: &discordgo.Guild{ID: guildID, Name: name, OwnerID: "1"},
		roles: []*discordgo.Role{{ID: guildID, Name: "@everyone"}},
	}
	f.order = append(f.order, guildID)
}

// SeedRole adds a role and returns its ID
func (f *Fake) SeedRole(guildID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.guilds[guildID]
	r := &discordgo.Role{ID: f.id(), Name: name}
	g.roles = append(g.roles, r)
	return r.ID
}

// SeedChannel adds a text channel and returns its ID
func (f *Fake) SeedChannel(guildID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.guilds[guildID]
	c := &discordgo.Channel{ID: f.id(), GuildID: guildID, Name: name, Type: discordgo.ChannelTypeGuildText}
	g.channels = append(g.channels, c)
	return c.ID
}

// SeedMember adds a member holding the given roles
func (f *Fake) SeedMember(guildID, userID, username string, roleIDs ...string) *discordgo.Member {
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.guilds[guildID]
	m := &discordgo.Member{
		GuildID: guildID,
		User:    &discordgo.User{ID: userID, Username: username},
		Roles:   slices.Clone(roleIDs),
	}
	g.members = append(g.members, m)
	return copyMember(m)
}

// SeedBot adds a bot member
func (f *Fake) SeedBot(guildID, userID, username string) {
	f.SeedMember(guildID, userID, username)

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, err := f.member(f.guilds[guildID], userID); err == nil {
		m.User.Bot = true
	}
}

// SetNick sets a member's nickname without counting a mutation
func (f *Fake) SetNick(guildID, userID, nick string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, err := f.member(f.guilds[guildID], userID); err == nil {
		m.Nick = nick
	}
}

// Forbid makes an operation fail with a permission error
func (f *Fake) Forbid(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forbidden[op] = true
}

// FailSend makes every send to a channel fail with a permission error
func (f *Fake) FailSend(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSend[channelID] = true
}

// Inspection helpers

// Messages returns the messages sent to a channel
func (f *Fake) Messages(channelID string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Message
	for _, m := range f.messages {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

// DirectMessages returns the direct messages sent to a user
func (f *Fake) DirectMessages(userID string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Message
	for _, m := range f.direct {
		if m.ChannelID == userID {
			out = append(out, m)
		}
	}
	return out
}

// Mutations counts role and channel changes applied so far
func (f *Fake) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// RoleID returns the ID of a named role, "" when absent
func (f *Fake) RoleID(guildID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r := discord.RoleByName(f.guilds[guildID].roles, name); r != nil {
		return r.ID
	}
	return ""
}

// ChannelID returns the ID of a named channel, "" when absent
func (f *Fake) ChannelID(guildID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c := discord.ChannelByName(f.guilds[guildID].channels, name); c != nil {
		return c.ID
	}
	return ""
}

// Channel returns a copy of a named channel
func (f *Fake) Channel(guildID, name string) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c := discord.ChannelByName(f.guilds[guildID].channels, name); c != nil {
		cp := *c
		return &cp
	}
	return nil
}

// MemberRoleNames returns the names of the roles a member holds
func (f *Fake) MemberRoleNames(guildID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.guilds[guildID]
	m, err := f.member(g, userID)
	if err != nil {
		return nil
	}

	var names []string
	for _, id := range m.Roles {
		for _, r := range g.roles {
			if r.ID == id {
				names = append(names, r.Name)
			}
		}
	}
	slices.Sort(names)
	return names
}

// Nick returns a member's nickname
func (f *Fake) Nick(guildID, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.member(f.guilds[guildID], userID)
	if err != nil {
		return ""
	}
	return m.Nick
}

// Session implementation

func (f *Fake) BotUser() *discordgo.User {
	return f.bot
}

func (f *Fake) GuildIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order), nil
}

func (f *Fake) Guild(guildID string) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	cp := *g.guild
	return &cp, nil
}

func (f *Fake) Roles(guildID string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}

	out := make([]*discordgo.Role, len(g.roles))
	for i, r := range g.roles {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

func (f *Fake) Channels(guildID string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}

	out := make([]*discordgo.Channel, len(g.channels))
	for i, c := range g.channels {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

func copyMember(m *discordgo.Member) *discordgo.Member {
	cp := *m
	user := *m.User
	cp.User = &user
	cp.Roles = slices.Clone(m.Roles)
	return &cp
}

func (f *Fake) Members(guildID string) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpMembers] {
		return nil, Forbidden()
	}

	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}

	out := make([]*discordgo.Member, len(g.members))
	for i, m := range g.members {
		out[i] = copyMember(m)
	}
	return out, nil
}

func (f *Fake) Member(guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	m, err := f.member(g, userID)
	if err != nil {
		return nil, err
	}
	return copyMember(m), nil
}

func (f *Fake) CreateRole(guildID, name string, mentionable bool) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpCreateRole] {
		return nil, Forbidden()
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}

	r := &discordgo.Role{ID: f.id(), Name: name, Mentionable: mentionable}
	g.roles = append(g.roles, r)
	f.mutations++

	cp := *r
	return &cp, nil
}

func (f *Fake) CreateChannel(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpCreateChannel] {
		return nil, Forbidden()
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}

	// the platform stores text channel names lower case and hyphenated
	name := data.Name
	if data.Type == discordgo.ChannelTypeGuildText {
		name = strings.ToLower(strings.Join(strings.Fields(name), "-"))
	}

	c := &discordgo.Channel{
		ID:                   f.id(),
		GuildID:              guildID,
		Name:                 name,
		Type:                 data.Type,
		Topic:                data.Topic,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	g.channels = append(g.channels, c)
	f.mutations++

	cp := *c
	return &cp, nil
}

func (f *Fake) SetNickname(guildID, userID, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpNickname] {
		return Forbidden()
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	m, err := f.member(g, userID)
	if err != nil {
		return err
	}
	m.Nick = nickname
	return nil
}

func (f *Fake) AddRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpAddRole] {
		return Forbidden()
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	m, err := f.member(g, userID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(g.roles, func(r *discordgo.Role) bool { return r.ID == roleID }) {
		return fmt.Errorf("role %s: %w", roleID, discord.ErrNotFound)
	}
	if !slices.Contains(m.Roles, roleID) {
		m.Roles = append(m.Roles, roleID)
		f.mutations++
	}
	return nil
}

func (f *Fake) RemoveRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpRemoveRole] {
		return Forbidden()
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	m, err := f.member(g, userID)
	if err != nil {
		return err
	}
	if i := slices.Index(m.Roles, roleID); i >= 0 {
		m.Roles = slices.Delete(m.Roles, i, i+1)
		f.mutations++
	}
	return nil
}

func (f *Fake) SendMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend[channelID] {
		return Forbidden()
	}
	f.messages = append(f.messages, Message{ChannelID: channelID, Content: content})
	return nil
}

func (f *Fake) SendEmbed(channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend[channelID] {
		return Forbidden()
	}
	f.messages = append(f.messages, Message{ChannelID: channelID, Embed: embed})
	return nil
}

func (f *Fake) SendDirect(userID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[OpDirect] {
		return Forbidden()
	}
	f.direct = append(f.direct, Message{ChannelID: userID, Embed: embed})
	return nil
}
