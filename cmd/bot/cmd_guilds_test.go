package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/storage"
)

func TestPrintStatus(t *testing.T) {
	guilds := []*storage.GuildRecord{
		{
			GuildID:   "1",
			GuildName: "Alpha",
			Config: &guild.Config{
				Admin:  &guild.AdminModule{ChannelModule: guild.ChannelModule{Active: true}},
				Verify: &guild.VerifyModule{ChannelModule: guild.ChannelModule{Active: true}},
			},
		},
		{GuildID: "2", GuildName: "Beta", Config: &guild.Config{}},
	}
	runs := map[string][]*storage.ScheduleState{
		"1": {{GuildID: "1", Cadence: "daily_verify", LastRun: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}},
	}

	var out bytes.Buffer
	printStatus(&out, guilds, runs)

	text := out.String()
	assert.Contains(t, text, "admin,verify")
	assert.Contains(t, text, "daily_verify")
	assert.Contains(t, text, "2026-10-18T12:00:00Z")
	assert.Contains(t, text, "Beta")
}

func TestPrintStatus_Empty(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, nil, nil)
	assert.Equal(t, "No guilds configured\n", out.String())
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "bot.db"))
	t.Setenv("BOT_ID", "bot-1")

	file := filepath.Join(dir, "guilds.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
guilds:
  - id: "100"
    name: Alpha
    config:
      verify:
        active: true
`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"import", file})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Imported 1 guild(s)")

	out.Reset()
	rootCmd.SetArgs([]string{"status"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Alpha")
	assert.Contains(t, out.String(), "verify")
}
