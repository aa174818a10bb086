package guild

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotConfigured is returned for guilds without a configuration record
var ErrNotConfigured = errors.New("guild is not configured")

// Module names as they appear in a guild configuration record
const (
	ModuleAdmin   = "admin"
	ModuleVerify  = "verify"
	ModuleChain   = "chain"
	ModuleCrimes  = "crimes"
	ModuleRackets = "rackets"
	ModuleLoot    = "loot"
	ModuleRevive  = "revive"
	ModuleAPI     = "api"
	ModuleStocks  = "stocks"
)

// ModuleOrder is the order in which guild resources are reconciled
var ModuleOrder = []string{
	ModuleAdmin,
	ModuleVerify,
	ModuleChain,
	ModuleCrimes,
	ModuleRackets,
	ModuleLoot,
	ModuleRevive,
	ModuleAPI,
	ModuleStocks,
}

const (
	// CategoryName groups every channel the bot manages
	CategoryName = "torn-bot"

	// AdminChannelName is the default administration channel
	AdminChannelName = "torn-bot-admin"

	// VerifiedRoleName is the role created for the verify module
	VerifiedRoleName = "Verified"

	// wildcard in a channel list allows every channel and is never created
	wildcard = "*"
)

var defaultChannels = map[string]string{
	ModuleAdmin:   AdminChannelName,
	ModuleVerify:  "verify",
	ModuleChain:   "chain",
	ModuleCrimes:  "oc",
	ModuleRackets: "rackets",
	ModuleLoot:    "loot",
	ModuleRevive:  "revive",
	ModuleAPI:     "api",
	ModuleStocks:  "stocks",
}

// Config is the per-guild configuration record
type Config struct {
	Admin   *AdminModule   `json:"admin,omitempty" yaml:"admin,omitempty"`
	Verify  *VerifyModule  `json:"verify,omitempty" yaml:"verify,omitempty"`
	Chain   *ChannelModule `json:"chain,omitempty" yaml:"chain,omitempty"`
	Crimes  *ChannelModule `json:"crimes,omitempty" yaml:"crimes,omitempty"`
	Rackets *RacketsModule `json:"rackets,omitempty" yaml:"rackets,omitempty"`
	Loot    *ChannelModule `json:"loot,omitempty" yaml:"loot,omitempty"`
	Revive  *ChannelModule `json:"revive,omitempty" yaml:"revive,omitempty"`
	API     *ChannelModule `json:"api,omitempty" yaml:"api,omitempty"`
	Stocks  *StocksModule  `json:"stocks,omitempty" yaml:"stocks,omitempty"`

	// Keys are the master keys used for external lookups on behalf of the guild
	Keys []MasterKey `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// MasterKey is an API credential together with the account that owns it
type MasterKey struct {
	TornID int64  `json:"torn_id" yaml:"torn_id"`
	Key    string `json:"key" yaml:"key"`
}

// ChannelModule is a module whose only settings are its channels
type ChannelModule struct {
	Active   bool     `json:"active" yaml:"active"`
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// AdminModule controls resource management and error reporting
type AdminModule struct {
	ChannelModule `yaml:",inline"`

	// Manage allows the bot to create channels and roles
	Manage bool `json:"manage" yaml:"manage"`

	// LogChannel is the channel ID errors are reported to first
	LogChannel string `json:"log_channel,omitempty" yaml:"log_channel,omitempty"`
}

// VerifyModule holds identity verification settings
type VerifyModule struct {
	ChannelModule `yaml:",inline"`

	// RolesVerified references the verified role (ID or name)
	RolesVerified []string `json:"roles_verified,omitempty" yaml:"roles_verified,omitempty"`

	// Factions maps an external faction ID to role references
	Factions map[string][]string `json:"factions,omitempty" yaml:"factions,omitempty"`

	// Positions marks factions whose position roles are tracked
	Positions map[string]bool `json:"positions,omitempty" yaml:"positions,omitempty"`

	// FactionNames maps a faction ID to the role name created for it
	FactionNames  map[string]string `json:"faction_names,omitempty" yaml:"faction_names,omitempty"`
	ShowFactionID bool              `json:"show_faction_id,omitempty" yaml:"show_faction_id,omitempty"`
	Common        string            `json:"common,omitempty" yaml:"common,omitempty"`

	WelcomeChannels []string `json:"welcome_channels,omitempty" yaml:"welcome_channels,omitempty"`
	ForceVerify     bool     `json:"force_verify,omitempty" yaml:"force_verify,omitempty"`

	// Scheduled sweeps
	DailyVerify  bool `json:"daily_verify,omitempty" yaml:"daily_verify,omitempty"`
	WeeklyVerify bool `json:"weekly_verify,omitempty" yaml:"weekly_verify,omitempty"`
	DailyCheck   bool `json:"daily_check,omitempty" yaml:"daily_check,omitempty"`
	WeeklyCheck  bool `json:"weekly_check,omitempty" yaml:"weekly_check,omitempty"`
}

// RacketsModule adds mentionable roles to its channels
type RacketsModule struct {
	ChannelModule `yaml:",inline"`
	Roles         []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// StocksModule configures one private channel per stock plus an alerts channel
type StocksModule struct {
	ChannelModule `yaml:",inline"`
	Alerts        bool     `json:"alerts,omitempty" yaml:"alerts,omitempty"`
	Stocks        []string `json:"stocks,omitempty" yaml:"stocks,omitempty"`
}

// channelModule returns the channel settings of a module, nil when absent
func (c *Config) channelModule(name string) *ChannelModule {
	if c == nil {
		return nil
	}

	switch name {
	case ModuleAdmin:
		if c.Admin != nil {
			return &c.Admin.ChannelModule
		}
	case ModuleVerify:
		if c.Verify != nil {
			return &c.Verify.ChannelModule
		}
	case ModuleChain:
		return c.Chain
	case ModuleCrimes:
		return c.Crimes
	case ModuleRackets:
		if c.Rackets != nil {
			return &c.Rackets.ChannelModule
		}
	case ModuleLoot:
		return c.Loot
	case ModuleRevive:
		return c.Revive
	case ModuleAPI:
		return c.API
	case ModuleStocks:
		if c.Stocks != nil {
			return &c.Stocks.ChannelModule
		}
	}
	return nil
}

// Active reports whether a module is present and switched on
func (c *Config) Active(module string) bool {
	m := c.channelModule(module)
	return m != nil && m.Active
}

// Manages reports whether the bot may create resources in the guild
func (c *Config) Manages() bool {
	return c != nil && c.Admin != nil && c.Admin.Manage
}

// ChannelNames returns the channels a module needs, without wildcards.
// A module with no channel list falls back to its default channel.
func (c *Config) ChannelNames(module string) []string {
	m := c.channelModule(module)
	if m == nil {
		return nil
	}

	if m.Channels == nil {
		if name, ok := defaultChannels[module]; ok {
			return []string{name}
		}
		return nil
	}

	names := make([]string, 0, len(m.Channels))
	for _, name := range m.Channels {
		if name = ChannelName(name); name != wildcard && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ChannelName returns a name the way the platform stores text channel names:
// lower case with runs of whitespace turned into a single hyphen
func ChannelName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// ChannelAllowed reports whether a module accepts commands in the named channel
func (c *Config) ChannelAllowed(module, channelName string) bool {
	m := c.channelModule(module)
	if m == nil || !m.Active {
		return false
	}
	if slices.Contains(m.Channels, wildcard) {
		return true
	}
	return slices.Contains(c.ChannelNames(module), channelName)
}

// AdminChannel returns the name of the guild's administration channel
func (c *Config) AdminChannel() string {
	if names := c.ChannelNames(ModuleAdmin); len(names) > 0 {
		return names[0]
	}
	return AdminChannelName
}

// Validate checks the record for values that can never work
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration is empty")
	}

	for i, k := range c.Keys {
		if k.Key == "" {
			return fmt.Errorf("key %d: empty key", i)
		}
		if k.TornID < 1 {
			return fmt.Errorf("key %d: invalid owner id %d", i, k.TornID)
		}
	}

	return nil
}

// FactionRoles returns the role references configured for a faction
func (v *VerifyModule) FactionRoles(factionID string) ([]string, bool) {
	if v == nil {
		return nil, false
	}
	refs, ok := v.Factions[factionID]
	return refs, ok
}

// TracksPositions reports whether position roles are kept for a faction.
// Both the faction and its positions entry must be configured.
func (v *VerifyModule) TracksPositions(factionID string) bool {
	if _, ok := v.FactionRoles(factionID); !ok {
		return false
	}
	return v.Positions[factionID]
}
