// Package scheduler runs the periodic verification sweeps of every guild.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
)

// Cadence is one periodic sweep
type Cadence struct {
	Name     string
	Interval time.Duration

	// Check selects CheckFactions instead of VerifyAll
	Check   bool
	Enabled func(v *guild.VerifyModule) bool
}

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Cadences are run in this order on every tick
var Cadences = []Cadence{
	{Name: "daily_verify", Interval: day, Enabled: func(v *guild.VerifyModule) bool { return v.DailyVerify }},
	{Name: "weekly_verify", Interval: week, Enabled: func(v *guild.VerifyModule) bool { return v.WeeklyVerify }},
	{Name: "daily_check", Interval: day, Check: true, Enabled: func(v *guild.VerifyModule) bool { return v.DailyCheck }},
	{Name: "weekly_check", Interval: week, Check: true, Enabled: func(v *guild.VerifyModule) bool { return v.WeeklyCheck }},
}

// StateStore persists when each cadence last ran
type StateStore interface {
	LastRun(ctx context.Context, guildID, cadence string) (time.Time, bool, error)
	MarkRun(ctx context.Context, guildID, cadence string, at time.Time, runID string) error
}

// ConfigSource loads guild configurations
type ConfigSource interface {
	GetGuildConfig(ctx context.Context, guildID string) (*guild.Config, error)
}

// Sweeper runs the sweeps
type Sweeper interface {
	VerifyAll(ctx context.Context, guildID, channelID string, force bool) error
	CheckFactions(ctx context.Context, guildID, channelID string, force bool) error
}

// Reporter receives errors that should reach guild administrators
type Reporter interface {
	Report(ctx context.Context, guildID, message string, fields ...any)
}

// Scheduler ticks periodically and starts every sweep that is due
type Scheduler struct {
	session  discord.Session
	configs  ConfigSource
	state    StateStore
	sweeper  Sweeper
	relay    Reporter
	interval time.Duration
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Scheduler ticking every interval
func New(session discord.Session, configs ConfigSource, state StateStore, sweeper Sweeper, relay Reporter, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		session:  session,
		configs:  configs,
		state:    state,
		sweeper:  sweeper,
		relay:    relay,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs the scheduling loop in the background until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler", "interval", s.interval)

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial tick
	s.Tick(ctx, s.now())

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped (context cancelled)")
			return
		case <-s.stopChan:
			slog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Stop signals the scheduler to stop and waits for the running tick to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Tick runs every sweep due at now, one guild after the other
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	guildIDs, err := s.session.GuildIDs()
	if err != nil {
		slog.Error("Failed to list guilds", "error", err)
		return
	}

	slog.Debug("Scheduler tick", "guilds", len(guildIDs))

	for _, guildID := range guildIDs {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
			s.tickGuild(ctx, guildID, now)
		}
	}
}

func (s *Scheduler) tickGuild(ctx context.Context, guildID string, now time.Time) {
	cfg, err := s.configs.GetGuildConfig(ctx, guildID)
	if errors.Is(err, guild.ErrNotConfigured) {
		return
	}
	if err != nil {
		slog.Error("Failed to load guild configuration", "guild", guildID, "error", err)
		return
	}
	if !cfg.Active(guild.ModuleVerify) {
		return
	}

	for _, c := range Cadences {
		if !c.Enabled(cfg.Verify) {
			continue
		}
		if err := s.runCadence(ctx, guildID, cfg, c, now); err != nil {
			slog.Error("Scheduled sweep failed", "guild", guildID, "cadence", c.Name, "error", err)
			s.relay.Report(ctx, guildID, fmt.Sprintf("%s error: %s", c.Name, err), "cadence", c.Name)
		}
	}
}

// runCadence starts a sweep when its interval has elapsed. The run is
// recorded before the sweep starts so a crash never causes a second run.
func (s *Scheduler) runCadence(ctx context.Context, guildID string, cfg *guild.Config, c Cadence, now time.Time) error {
	last, ok, err := s.state.LastRun(ctx, guildID, c.Name)
	if err != nil {
		return fmt.Errorf("failed to read schedule state: %w", err)
	}
	if ok && now.Sub(last) < c.Interval {
		slog.Debug("Sweep not due", "guild", guildID, "cadence", c.Name, "last_run", last)
		return nil
	}

	runID := uuid.NewString()
	if err := s.state.MarkRun(ctx, guildID, c.Name, now, runID); err != nil {
		return fmt.Errorf("failed to write schedule state: %w", err)
	}

	channelID, err := s.adminChannel(guildID, cfg)
	if err != nil {
		return err
	}

	slog.Info("Running scheduled sweep", "guild", guildID, "cadence", c.Name, "run", runID)

	if c.Check {
		return s.sweeper.CheckFactions(ctx, guildID, channelID, true)
	}
	return s.sweeper.VerifyAll(ctx, guildID, channelID, true)
}

func (s *Scheduler) adminChannel(guildID string, cfg *guild.Config) (string, error) {
	channels, err := s.session.Channels(guildID)
	if err != nil {
		return "", fmt.Errorf("failed to list channels: %w", err)
	}
	c := discord.ChannelByName(channels, cfg.AdminChannel())
	if c == nil {
		return "", fmt.Errorf("admin channel %s not found", cfg.AdminChannel())
	}
	return c.ID, nil
}
