package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/torn-bot/internal/discord/discordtest"
	"github.com/flor3z/torn-bot/internal/guild"
)

const guildID = "500"

type configs map[string]*guild.Config

func (c configs) GetGuildConfig(_ context.Context, id string) (*guild.Config, error) {
	if cfg, ok := c[id]; ok {
		return cfg, nil
	}
	return nil, guild.ErrNotConfigured
}

func TestReport_LogChannelFirst(t *testing.T) {
	fake := discordtest.New("torn-bot")
	fake.AddGuild(guildID, "Test guild")
	admin := fake.SeedChannel(guildID, guild.AdminChannelName)
	logs := fake.SeedChannel(guildID, "logs")

	cfg := &guild.Config{Admin: &guild.AdminModule{LogChannel: logs}}
	New(fake, configs{guildID: cfg}, "op").Report(context.Background(), guildID, "boom", "member", "kivou")

	require.Len(t, fake.Messages(logs), 1)
	assert.Empty(t, fake.Messages(admin))
	assert.Empty(t, fake.Messages("op"))

	embed := fake.Messages(logs)[0].Embed
	assert.Equal(t, "boom", embed.Description)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "member", embed.Fields[0].Name)
}

func TestReport_FallsBackToAdminChannel(t *testing.T) {
	fake := discordtest.New("torn-bot")
	fake.AddGuild(guildID, "Test guild")
	admin := fake.SeedChannel(guildID, guild.AdminChannelName)
	fake.FailSend("999")

	cfg := &guild.Config{Admin: &guild.AdminModule{LogChannel: "999"}}
	New(fake, configs{guildID: cfg}, "op").Report(context.Background(), guildID, "boom")

	assert.Len(t, fake.Messages(admin), 1)
	assert.Empty(t, fake.Messages("op"))
}

func TestReport_OperatorChannelForUnconfiguredGuild(t *testing.T) {
	fake := discordtest.New("torn-bot")
	fake.AddGuild(guildID, "Test guild")

	New(fake, configs{}, "op").Report(context.Background(), guildID, "boom")
	assert.Len(t, fake.Messages("op"), 1)
}

func TestReport_NoReachableChannel(t *testing.T) {
	fake := discordtest.New("torn-bot")
	fake.AddGuild(guildID, "Test guild")

	assert.NotPanics(t, func() {
		New(fake, configs{}, "").Report(context.Background(), guildID, "boom")
	})
}

func TestReport_MasksKeys(t *testing.T) {
	fake := discordtest.New("torn-bot")

	New(fake, nil, "op").Report(context.Background(), "", "bad key AbCdEfGh12345678", "key", "AbCdEfGh12345678")

	msgs := fake.Messages("op")
	require.Len(t, msgs, 1)
	assert.NotContains(t, msgs[0].Embed.Description, "AbCdEfGh12345678")
	assert.NotContains(t, msgs[0].Embed.Fields[0].Value, "AbCdEfGh12345678")
}
