// Package reconcile creates the channels and roles a guild configuration asks for.
//
// A pass is additive: resources are matched by name and only missing ones are
// created. Existing channels and roles are never modified, so administrators
// can rename topics or change permissions without the bot undoing it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/flor3z/torn-bot/internal/discord"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/torn"
)

// Reporter receives errors that should reach guild administrators
type Reporter interface {
	Report(ctx context.Context, guildID, message string, fields ...any)
}

// ConfigSource loads guild configurations
type ConfigSource interface {
	GetGuildConfig(ctx context.Context, guildID string) (*guild.Config, error)
}

// Sink receives the finished report of a pass
type Sink func(Report)

// Report describes what one pass did
type Report struct {
	GuildID string
	Lines   []string

	// Created counts channels and roles created by the pass
	Created int

	// Unmanaged is set when the guild has no configuration
	Unmanaged bool
	Err       error
}

func (r Report) String() string {
	return strings.Join(r.Lines, "\n")
}

// Reconciler runs reconciliation passes
type Reconciler struct {
	session discord.Session
	relay   Reporter
}

// New creates a Reconciler
func New(session discord.Session, relay Reporter) *Reconciler {
	return &Reconciler{session: session, relay: relay}
}

// Reconcile ensures every resource required by cfg exists in the guild.
// It never returns an error: failures end the pass and become a report line.
func (r *Reconciler) Reconcile(ctx context.Context, guildID string, cfg *guild.Config, sink Sink) Report {
	report := Report{GuildID: guildID}
	defer func() {
		if sink != nil {
			sink(report)
		}
	}()

	name := guildID
	if g, err := r.session.Guild(guildID); err == nil {
		name = fmt.Sprintf("%s [%s]", g.Name, g.ID)
	}
	report.Lines = append(report.Lines, name)

	if cfg == nil {
		report.Unmanaged = true
		report.Lines = append(report.Lines, "\tNo configuration found")
		return report
	}

	if !cfg.Manages() {
		report.Lines = append(report.Lines, "Skip managing")
		return report
	}

	p, err := r.newPass(guildID, cfg, &report)
	if err == nil {
		err = p.run(ctx)
	}
	if err != nil {
		msg := torn.HideKey(err.Error())
		slog.Error("Reconciliation failed", "guild", guildID, "error", msg)
		r.relay.Report(ctx, guildID, fmt.Sprintf("Reload server error: %s", msg), "guild", name)

		report.Err = err
		report.Lines = append(report.Lines, fmt.Sprintf("\tERROR: %s", msg))
	}

	return report
}

// ReconcileAll runs a pass for every guild, at most concurrency at a time.
// One guild failing never stops the others.
func (r *Reconciler) ReconcileAll(ctx context.Context, guildIDs []string, configs ConfigSource, concurrency int, sink Sink) []Report {
	reports := make([]Report, len(guildIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, guildID := range guildIDs {
		g.Go(func() error {
			cfg, err := configs.GetGuildConfig(ctx, guildID)
			if err != nil && !errors.Is(err, guild.ErrNotConfigured) {
				slog.Error("Failed to load guild configuration", "guild", guildID, "error", err)
				reports[i] = Report{
					GuildID: guildID,
					Lines:   []string{guildID, fmt.Sprintf("\tERROR: %s", err)},
					Err:     err,
				}
				return nil
			}

			reports[i] = r.Reconcile(ctx, guildID, cfg, sink)
			return nil
		})
	}

	_ = g.Wait()
	return reports
}

// pass holds the guild state while a reconciliation runs
type pass struct {
	session  discord.Session
	guildID  string
	cfg      *guild.Config
	report   *Report
	roles    []*discordgo.Role
	channels []*discordgo.Channel
	category *discordgo.Channel
	botRole  *discordgo.Role
}

func (r *Reconciler) newPass(guildID string, cfg *guild.Config, report *Report) (*pass, error) {
	roles, err := r.session.Roles(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	channels, err := r.session.Channels(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	p := &pass{
		session:  r.session,
		guildID:  guildID,
		cfg:      cfg,
		report:   report,
		roles:    roles,
		channels: channels,
	}
	if bot := r.session.BotUser(); bot != nil {
		p.botRole = discord.RoleByName(roles, bot.Username)
	}
	return p, nil
}

func (p *pass) run(ctx context.Context) error {
	if err := p.ensureCategory(); err != nil {
		return err
	}

	for _, module := range guild.ModuleOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.module(module); err != nil {
			return fmt.Errorf("%s: %w", module, err)
		}
	}
	return nil
}

func (p *pass) module(name string) error {
	// the admin channel exists whenever the bot manages the guild
	if name != guild.ModuleAdmin && !p.cfg.Active(name) {
		return nil
	}

	switch name {
	case guild.ModuleAdmin:
		return p.admin()
	case guild.ModuleVerify:
		return p.verify()
	case guild.ModuleChain:
		return p.channels(name, "Chain channel for the torn bot", "Type `/chain` here to start getting notifications and `/stopchain` to stop them.")
	case guild.ModuleCrimes:
		return p.channels(name, "Crimes channel for the torn bot", "Type `/oc` here to start/stop getting notifications when ocs are ready.")
	case guild.ModuleRackets:
		return p.rackets()
	case guild.ModuleLoot:
		return p.loot()
	case guild.ModuleRevive:
		return p.revive()
	case guild.ModuleAPI:
		return p.channels(name, "API channel for the torn bot", "Use the API module commands here")
	case guild.ModuleStocks:
		return p.stocks()
	}
	return nil
}

func (p *pass) admin() error {
	_, err := p.ensureChannel(p.cfg.AdminChannel(), "Administration channel for the torn bot",
		"This is the admin channel for `/verifyall` and `/checkfactions`", true)
	return err
}

func (p *pass) verify() error {
	v := p.cfg.Verify

	verified := p.findRole(v.RolesVerified)
	if verified == nil {
		var err error
		if verified, err = p.ensureRole(guild.VerifiedRoleName, false); err != nil {
			return err
		}
	}

	for _, fid := range slices.Sorted(maps.Keys(v.FactionNames)) {
		name := html.UnescapeString(v.FactionNames[fid])
		if v.ShowFactionID {
			name = fmt.Sprintf("%s [%s]", name, fid)
		}
		if _, err := p.ensureRole(name, false); err != nil {
			return err
		}
	}

	if v.Common != "" {
		if _, err := p.ensureRole(v.Common, false); err != nil {
			return err
		}
	}

	intro := fmt.Sprintf("If you haven't been assigned the <@&%s> role, type `/verify` here or `/verify target:tornId` to verify another member", verified.ID)
	return p.channels(guild.ModuleVerify, "Verification channel for the torn bot", intro)
}

func (p *pass) rackets() error {
	if err := p.channels(guild.ModuleRackets, "Rackets channel for the torn bot", ""); err != nil {
		return err
	}
	for _, name := range p.cfg.Rackets.Roles {
		if name == "" {
			continue
		}
		if _, err := p.ensureRole(name, true); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) loot() error {
	looter, err := p.ensureRole("Looter", true)
	if err != nil {
		return err
	}

	for _, name := range p.cfg.ChannelNames(guild.ModuleLoot) {
		intro := fmt.Sprintf("<@&%s> will receive notifications here", looter.ID)
		if _, err := p.ensureChannel(name, "Loot channel for the torn bot", intro, true, looter); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) revive() error {
	reviver, err := p.ensureRole("Reviver", true)
	if err != nil {
		return err
	}

	for _, name := range p.cfg.ChannelNames(guild.ModuleRevive) {
		intro := fmt.Sprintf("<@&%s> will receive notifications here", reviver.ID)
		if _, err := p.ensureChannel(name, "Revive channel for the torn bot", intro, true, reviver); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) stocks() error {
	s := p.cfg.Stocks

	for _, stock := range s.Stocks {
		if stock == "" {
			continue
		}
		role, err := p.ensureRole(stock, false)
		if err != nil {
			return err
		}
		intro := fmt.Sprintf("Type `/%s` to see the %s BB status among the members", stock, stock)
		if _, err := p.ensureChannel(guild.ChannelName(stock), fmt.Sprintf("%s stock channel for the torn bot", stock), intro, true, role); err != nil {
			return err
		}
	}

	if !s.Alerts {
		return nil
	}

	trader, err := p.ensureRole("Trader", true)
	if err != nil {
		return err
	}
	for _, name := range p.cfg.ChannelNames(guild.ModuleStocks) {
		intro := fmt.Sprintf("<@&%s> will be notified here", trader.ID)
		if _, err := p.ensureChannel(name, "Alerts stock channel for the torn bot", intro, true, trader); err != nil {
			return err
		}
	}
	return nil
}

// channels ensures the public channels of a module
func (p *pass) channels(module, topic, intro string) error {
	for _, name := range p.cfg.ChannelNames(module) {
		if _, err := p.ensureChannel(name, topic, intro, false); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) ensureCategory() error {
	for _, c := range p.channels {
		if c.Name == guild.CategoryName && c.Type == discordgo.ChannelTypeGuildCategory {
			p.category = c
			return nil
		}
	}

	created, err := p.session.CreateChannel(p.guildID, discordgo.GuildChannelCreateData{
		Name: guild.CategoryName,
		Type: discordgo.ChannelTypeGuildCategory,
	})
	if err != nil {
		return fmt.Errorf("failed to create category %s: %w", guild.CategoryName, err)
	}

	p.category = created
	p.channels = append(p.channels, created)
	p.created(fmt.Sprintf("Create category %s", guild.CategoryName))
	return nil
}

// ensureChannel creates a text channel when none carries the name. A private
// channel is hidden from @everyone and shown to the given roles and the bot.
func (p *pass) ensureChannel(name, topic, intro string, private bool, readers ...*discordgo.Role) (*discordgo.Channel, error) {
	if c := discord.ChannelByName(p.channels, name); c != nil {
		return c, nil
	}

	data := discordgo.GuildChannelCreateData{
		Name:  name,
		Type:  discordgo.ChannelTypeGuildText,
		Topic: topic,
	}
	if p.category != nil {
		data.ParentID = p.category.ID
	}
	if private {
		data.PermissionOverwrites = p.privateOverwrites(readers...)
	}

	created, err := p.session.CreateChannel(p.guildID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel %s: %w", name, err)
	}
	p.channels = append(p.channels, created)
	p.created(fmt.Sprintf("\tCreate channel %s", name))

	if intro != "" {
		if err := p.session.SendMessage(created.ID, intro); err != nil {
			slog.Warn("Failed to post channel introduction", "guild", p.guildID, "channel", name, "error", err)
		}
	}
	return created, nil
}

func (p *pass) privateOverwrites(readers ...*discordgo.Role) []*discordgo.PermissionOverwrite {
	overwrites := []*discordgo.PermissionOverwrite{{
		// the @everyone role shares the guild's ID
		ID:   p.guildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionViewChannel,
	}}

	if p.botRole != nil {
		readers = append(readers, p.botRole)
	}
	for _, role := range readers {
		if role == nil {
			continue
		}
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    role.ID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel,
		})
	}
	return overwrites
}

func (p *pass) ensureRole(name string, mentionable bool) (*discordgo.Role, error) {
	if r := discord.RoleByName(p.roles, name); r != nil {
		return r, nil
	}

	created, err := p.session.CreateRole(p.guildID, name, mentionable)
	if err != nil {
		return nil, fmt.Errorf("failed to create role %s: %w", name, err)
	}
	p.roles = append(p.roles, created)
	p.created(fmt.Sprintf("\tCreate role %s", name))
	return created, nil
}

// findRole resolves the first configured reference that exists
func (p *pass) findRole(refs []string) *discordgo.Role {
	for _, ref := range refs {
		if r := discord.RoleByRef(p.roles, ref); r != nil {
			return r
		}
	}
	return nil
}

func (p *pass) created(line string) {
	p.report.Created++
	p.report.Lines = append(p.report.Lines, line)
}
