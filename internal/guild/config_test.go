package guild

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNames_Defaults(t *testing.T) {
	cfg := &Config{
		Verify: &VerifyModule{ChannelModule: ChannelModule{Active: true}},
		Crimes: &ChannelModule{Active: true},
	}

	assert.Equal(t, []string{"verify"}, cfg.ChannelNames(ModuleVerify))
	assert.Equal(t, []string{"oc"}, cfg.ChannelNames(ModuleCrimes))
	assert.Nil(t, cfg.ChannelNames(ModuleChain))
}

func TestChannelNames_SkipsWildcard(t *testing.T) {
	cfg := &Config{
		Verify: &VerifyModule{ChannelModule: ChannelModule{Active: true, Channels: []string{"*", "verify-here", ""}}},
	}

	assert.Equal(t, []string{"verify-here"}, cfg.ChannelNames(ModuleVerify))
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "verify", ChannelName("Verify"))
	assert.Equal(t, "stock-alerts", ChannelName("  Stock   alerts "))
	assert.Equal(t, "torn-bot-admin", ChannelName("torn-bot-admin"))
	assert.Equal(t, "*", ChannelName("*"))
}

func TestChannelNames_Normalised(t *testing.T) {
	cfg := &Config{
		Verify: &VerifyModule{ChannelModule: ChannelModule{Active: true, Channels: []string{"Verify Here", " "}}},
		Admin:  &AdminModule{ChannelModule: ChannelModule{Channels: []string{"Staff Room"}}},
	}

	assert.Equal(t, []string{"verify-here"}, cfg.ChannelNames(ModuleVerify))
	assert.True(t, cfg.ChannelAllowed(ModuleVerify, "verify-here"))
	assert.Equal(t, "staff-room", cfg.AdminChannel())
}

func TestChannelAllowed(t *testing.T) {
	cfg := &Config{
		Verify: &VerifyModule{ChannelModule: ChannelModule{Active: true, Channels: []string{"verify-here"}}},
		Chain:  &ChannelModule{Active: false},
		Loot:   &ChannelModule{Active: true, Channels: []string{"*"}},
	}

	assert.True(t, cfg.ChannelAllowed(ModuleVerify, "verify-here"))
	assert.False(t, cfg.ChannelAllowed(ModuleVerify, "general"))
	assert.False(t, cfg.ChannelAllowed(ModuleChain, "chain"))
	assert.True(t, cfg.ChannelAllowed(ModuleLoot, "anything"))
	assert.False(t, cfg.ChannelAllowed(ModuleRevive, "revive"))
}

func TestAdminChannel(t *testing.T) {
	var empty *Config
	assert.Equal(t, AdminChannelName, empty.AdminChannel())

	cfg := &Config{Admin: &AdminModule{ChannelModule: ChannelModule{Channels: []string{"staff", "other"}}}}
	assert.Equal(t, "staff", cfg.AdminChannel())
}

func TestActiveAndManages(t *testing.T) {
	var empty *Config
	assert.False(t, empty.Active(ModuleVerify))
	assert.False(t, empty.Manages())

	cfg := &Config{
		Admin:   &AdminModule{ChannelModule: ChannelModule{Active: true}, Manage: true},
		Stocks:  &StocksModule{ChannelModule: ChannelModule{Active: true}},
		Rackets: &RacketsModule{},
	}
	assert.True(t, cfg.Manages())
	assert.True(t, cfg.Active(ModuleStocks))
	assert.False(t, cfg.Active(ModuleRackets))
	assert.False(t, cfg.Active("unknown"))
}

func TestValidate(t *testing.T) {
	var empty *Config
	assert.Error(t, empty.Validate())

	assert.NoError(t, (&Config{Keys: []MasterKey{{TornID: 1, Key: "abc"}}}).Validate())
	assert.ErrorContains(t, (&Config{Keys: []MasterKey{{TornID: 1}}}).Validate(), "empty key")
	assert.ErrorContains(t, (&Config{Keys: []MasterKey{{Key: "abc"}}}).Validate(), "invalid owner id 0")
}

func TestFactionRoles(t *testing.T) {
	v := &VerifyModule{
		Factions:  map[string][]string{"33": {"Faction 33"}},
		Positions: map[string]bool{"33": true, "44": true},
	}

	refs, ok := v.FactionRoles("33")
	assert.True(t, ok)
	assert.Equal(t, []string{"Faction 33"}, refs)

	_, ok = v.FactionRoles("44")
	assert.False(t, ok)

	assert.True(t, v.TracksPositions("33"))
	assert.False(t, v.TracksPositions("44"))

	var none *VerifyModule
	_, ok = none.FactionRoles("33")
	assert.False(t, ok)
}
