package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flor3z/torn-bot/internal/guild"
)

func TestCommandAllowed(t *testing.T) {
	cfg := &guild.Config{
		Verify: &guild.VerifyModule{ChannelModule: guild.ChannelModule{Active: true}},
	}

	tests := []struct {
		name    string
		command string
		channel string
		allowed bool
		message string
	}{
		{"verify in verify channel", commandVerify, "verify", true, ""},
		{"verify in admin channel", commandVerify, guild.AdminChannelName, true, ""},
		{"verify elsewhere", commandVerify, "general", false, "Use this command in #verify"},
		{"verifyall in admin channel", commandVerifyAll, guild.AdminChannelName, true, ""},
		{"verifyall in verify channel", commandVerifyAll, "verify", false, "Use this command in #torn-bot-admin"},
		{"checkfactions elsewhere", commandCheckFactions, "general", false, "Use this command in #torn-bot-admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, msg := commandAllowed(cfg, tt.command, tt.channel)
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.message, msg)
		})
	}
}

func TestCommandAllowed_Wildcard(t *testing.T) {
	cfg := &guild.Config{
		Verify: &guild.VerifyModule{ChannelModule: guild.ChannelModule{Active: true, Channels: []string{"*"}}},
	}

	allowed, _ := commandAllowed(cfg, commandVerify, "anything")
	assert.True(t, allowed)

	allowed, _ = commandAllowed(cfg, commandVerifyAll, "anything")
	assert.False(t, allowed)
}

func TestCommandAllowed_InactiveModule(t *testing.T) {
	cfg := &guild.Config{
		Verify: &guild.VerifyModule{ChannelModule: guild.ChannelModule{Active: false}},
	}

	allowed, msg := commandAllowed(cfg, commandVerify, guild.AdminChannelName)
	assert.False(t, allowed)
	assert.Equal(t, "Verify module not activated", msg)
}

func TestCommandAllowed_CustomAdminChannel(t *testing.T) {
	cfg := &guild.Config{
		Admin:  &guild.AdminModule{ChannelModule: guild.ChannelModule{Active: true, Channels: []string{"staff"}}},
		Verify: &guild.VerifyModule{ChannelModule: guild.ChannelModule{Active: true, Channels: []string{"*"}}},
	}

	allowed, _ := commandAllowed(cfg, commandCheckFactions, "staff")
	assert.True(t, allowed)

	allowed, msg := commandAllowed(cfg, commandCheckFactions, guild.AdminChannelName)
	assert.False(t, allowed)
	assert.Equal(t, "Use this command in #staff", msg)
}
