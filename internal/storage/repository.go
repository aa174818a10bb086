package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flor3z/torn-bot/internal/guild"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; reconciliation and sweeps run concurrently
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS guild_configs (
			guild_id VARCHAR(20) PRIMARY KEY,
			bot_id VARCHAR(20) NOT NULL DEFAULT '',
			guild_name VARCHAR(100) NOT NULL DEFAULT '',
			config TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_state (
			guild_id VARCHAR(20) NOT NULL,
			cadence VARCHAR(20) NOT NULL,
			last_run INTEGER NOT NULL,
			run_id VARCHAR(36) NOT NULL DEFAULT '',
			PRIMARY KEY (guild_id, cadence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_guild_configs_bot ON guild_configs(bot_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Guild configuration operations

// GetGuildConfig returns the configuration of a guild, or guild.ErrNotConfigured
func (r *Repository) GetGuildConfig(ctx context.Context, guildID string) (*guild.Config, error) {
	rec, err := r.GetGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return rec.Config, nil
}

// GetGuild returns the stored record of a guild
func (r *Repository) GetGuild(ctx context.Context, guildID string) (*GuildRecord, error) {
	rec := &GuildRecord{}
	var raw string
	var updated int64

	err := r.db.QueryRowContext(ctx,
		`SELECT guild_id, bot_id, guild_name, config, updated_at FROM guild_configs WHERE guild_id = ?`,
		guildID,
	).Scan(&rec.GuildID, &rec.BotID, &rec.GuildName, &raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("guild %s: %w", guildID, guild.ErrNotConfigured)
	}
	if err != nil {
		return nil, err
	}

	if rec.Config, err = decodeConfig(raw); err != nil {
		return nil, fmt.Errorf("guild %s: %w", guildID, err)
	}
	rec.UpdatedAt = time.Unix(updated, 0)
	return rec, nil
}

// SetGuildConfig creates or replaces a guild configuration
func (r *Repository) SetGuildConfig(ctx context.Context, botID, guildID, guildName string, cfg *guild.Config) error {
	return upsertGuild(ctx, r.db, &GuildRecord{GuildID: guildID, BotID: botID, GuildName: guildName, Config: cfg})
}

// ListGuilds returns every stored guild configuration
func (r *Repository) ListGuilds(ctx context.Context) ([]*GuildRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guild_id, bot_id, guild_name, config, updated_at FROM guild_configs ORDER BY guild_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*GuildRecord
	for rows.Next() {
		rec := &GuildRecord{}
		var raw string
		var updated int64
		if err := rows.Scan(&rec.GuildID, &rec.BotID, &rec.GuildName, &raw, &updated); err != nil {
			return nil, err
		}
		if rec.Config, err = decodeConfig(raw); err != nil {
			return nil, fmt.Errorf("guild %s: %w", rec.GuildID, err)
		}
		rec.UpdatedAt = time.Unix(updated, 0)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ImportEntries stores the entries of a guild file in one transaction
func (r *Repository) ImportEntries(ctx context.Context, botID string, entries []guild.Entry) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, e := range entries {
		cfg := e.Config
		rec := &GuildRecord{GuildID: e.ID, BotID: botID, GuildName: e.Name, Config: &cfg}
		if err := upsertGuild(ctx, tx, rec); err != nil {
			return 0, fmt.Errorf("guild %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertGuild(ctx context.Context, db execer, rec *GuildRecord) error {
	if err := rec.Config.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO guild_configs (guild_id, bot_id, guild_name, config, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			bot_id = excluded.bot_id,
			guild_name = excluded.guild_name,
			config = excluded.config,
			updated_at = excluded.updated_at`,
		rec.GuildID, rec.BotID, rec.GuildName, string(raw), time.Now().Unix(),
	)
	return err
}

func decodeConfig(raw string) (*guild.Config, error) {
	cfg := &guild.Config{}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// Schedule state operations

// LastRun returns when a cadence last ran for a guild. ok is false when it never ran.
func (r *Repository) LastRun(ctx context.Context, guildID, cadence string) (time.Time, bool, error) {
	var last int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_run FROM schedule_state WHERE guild_id = ? AND cadence = ?`,
		guildID, cadence,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(last, 0), true, nil
}

// MarkRun records that a cadence started for a guild
func (r *Repository) MarkRun(ctx context.Context, guildID, cadence string, at time.Time, runID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schedule_state (guild_id, cadence, last_run, run_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(guild_id, cadence) DO UPDATE SET last_run = excluded.last_run, run_id = excluded.run_id`,
		guildID, cadence, at.Unix(), runID,
	)
	return err
}

// Runs returns the schedule state of a guild
func (r *Repository) Runs(ctx context.Context, guildID string) ([]*ScheduleState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guild_id, cadence, last_run, run_id FROM schedule_state WHERE guild_id = ? ORDER BY cadence`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScheduleState
	for rows.Next() {
		run := &ScheduleState{}
		var last int64
		if err := rows.Scan(&run.GuildID, &run.Cadence, &last, &run.RunID); err != nil {
			return nil, err
		}
		run.LastRun = time.Unix(last, 0)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
