package storage

import (
	"time"

	"github.com/flor3z/torn-bot/internal/guild"
)

// GuildRecord is a stored guild configuration
type GuildRecord struct {
	GuildID   string
	BotID     string // bot instance serving the guild
	GuildName string
	Config    *guild.Config
	UpdatedAt time.Time
}

// ScheduleState is the last time a scheduled sweep ran for a guild
type ScheduleState struct {
	GuildID string
	Cadence string
	LastRun time.Time
	RunID   string
}
