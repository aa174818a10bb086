package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/torn-bot/internal/config"
	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/identity"
	"github.com/flor3z/torn-bot/internal/reconcile"
	"github.com/flor3z/torn-bot/internal/relay"
	"github.com/flor3z/torn-bot/internal/rolesync"
	"github.com/flor3z/torn-bot/internal/scheduler"
	"github.com/flor3z/torn-bot/internal/storage"
	"github.com/flor3z/torn-bot/internal/torn"
	"github.com/flor3z/torn-bot/internal/verify"
)

// Bot represents the Discord bot instance
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	platform   discord.Session
	repo       *storage.Repository
	relay      *relay.Relay
	reconciler *reconcile.Reconciler
	verifier   *verify.Service
	scheduler  *scheduler.Scheduler
	commands   []*discordgo.ApplicationCommand

	// ctx is the lifetime of the bot, handed to event handlers
	ctx    context.Context
	cancel context.CancelFunc

	// startup holds the guilds announced by Ready, so their GuildCreate is not taken for a join
	startup sync.Map
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildMessages

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if cfg.GuildsFile != "" {
		entries, err := guild.LoadFile(cfg.GuildsFile)
		if err != nil {
			repo.Close()
			return nil, err
		}
		n, err := repo.ImportEntries(context.Background(), cfg.BotID, entries)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to import guild file: %w", err)
		}
		slog.Info("Imported guild configurations", "file", cfg.GuildsFile, "guilds", n)
	}

	platform := discord.Wrap(session)
	tornClient := torn.NewClient(cfg.TornAPIURL, cfg.APITimeout)
	rel := relay.New(platform, repo, cfg.OperatorChannelID)

	verifier := verify.New(verify.Deps{
		Session:  platform,
		Configs:  repo,
		Resolver: identity.NewResolver(tornClient, cfg.APITimeout),
		Syncer:   rolesync.New(platform),
		Factions: tornClient,
		Relay:    rel,
		Timeout:  cfg.APITimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bot{
		config:     cfg,
		session:    session,
		platform:   platform,
		repo:       repo,
		relay:      rel,
		reconciler: reconcile.New(platform, rel),
		verifier:   verifier,
		scheduler:  scheduler.New(platform, repo, repo, verifier, rel, cfg.SchedulerTick),
		ctx:        ctx,
		cancel:     cancel,
	}

	// Register event handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Start the verification scheduler
	b.scheduler.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	b.cancel()

	// Stop the scheduler
	if b.scheduler != nil {
		b.scheduler.Stop()
	}

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleReady)
	b.session.AddHandler(b.handleGuildCreate)
	b.session.AddHandler(b.handleMemberAdd)
}

// handleReady reconciles every guild the bot is in
func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("Bot is ready", "guilds", len(r.Guilds))

	guildIDs := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		b.startup.Store(g.ID, true)
		guildIDs = append(guildIDs, g.ID)
	}

	go func() {
		reports := b.reconciler.ReconcileAll(b.ctx, guildIDs, b.repo, b.config.ReconcileConcurrency, b.reportSink)
		for _, report := range reports {
			if report.Unmanaged {
				b.unmanaged(report.GuildID)
			}
		}
	}()
}

// handleGuildCreate reconciles a guild the bot just joined
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if _, ok := b.startup.LoadAndDelete(g.ID); ok {
		return
	}

	slog.Info("Joined guild", "guild", g.ID, "name", g.Name)

	go func() {
		cfg, err := b.repo.GetGuildConfig(b.ctx, g.ID)
		if err != nil && !errors.Is(err, guild.ErrNotConfigured) {
			slog.Error("Failed to load guild configuration", "guild", g.ID, "error", err)
			b.relay.Report(b.ctx, g.ID, fmt.Sprintf("Failed to load configuration: %s", err))
			return
		}
		if report := b.reconciler.Reconcile(b.ctx, g.ID, cfg, b.reportSink); report.Unmanaged {
			b.unmanaged(g.ID)
		}
	}()
}

// handleMemberAdd verifies members as they join
func (b *Bot) handleMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil {
		return
	}
	slog.Info("Member joined", "guild", m.GuildID, "member", m.User.ID)

	go b.verifier.OnMemberJoin(b.ctx, m.GuildID, m.Member)
}

// unmanaged tells the operator about a guild without configuration
func (b *Bot) unmanaged(guildID string) {
	name := guildID
	if g, err := b.platform.Guild(guildID); err == nil {
		name = fmt.Sprintf("%s [%s]", g.Name, g.ID)
	}
	b.relay.Report(b.ctx, "", fmt.Sprintf("Guild %s is not configured for this bot", name))
}

// reportSink logs reconciliation reports and posts the non-empty ones to the operator channel
func (b *Bot) reportSink(report reconcile.Report) {
	slog.Debug("Reconciliation report", "guild", report.GuildID, "created", report.Created, "report", report.String())

	if b.config.OperatorChannelID == "" || (report.Created == 0 && report.Err == nil) {
		return
	}

	msg := "```md\n" + strings.TrimSpace(torn.HideKey(report.String())) + "```"
	if err := b.platform.SendMessage(b.config.OperatorChannelID, msg); err != nil {
		slog.Warn("Failed to send reconciliation report", "guild", report.GuildID, "error", err)
	}
}

// handleInteraction processes slash command interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case commandVerify:
		b.handleVerify(s, i)
	case commandVerifyAll:
		b.handleVerifyAll(s, i)
	case commandCheckFactions:
		b.handleCheckFactions(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}
