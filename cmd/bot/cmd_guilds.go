package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flor3z/torn-bot/internal/config"
	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/storage"
)

// importCmd loads guild configurations from a YAML file
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import guild configurations from a YAML file",
	Long: `Reads a guild configuration file and stores every entry, replacing the
existing configuration of guilds already present. The file is validated as a
whole before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// statusCmd prints stored guilds and their last scheduled runs
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored guilds and scheduled sweep times",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func openRepository() (*storage.Repository, *config.Config, error) {
	cfg, err := config.LoadStorage()
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg.LogLevel)

	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return repo, cfg, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	entries, err := guild.LoadFile(args[0])
	if err != nil {
		return err
	}

	repo, cfg, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := repo.ImportEntries(cmd.Context(), cfg.BotID, entries)
	if err != nil {
		return fmt.Errorf("failed to import guilds: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d guild(s) from %s\n", n, args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	repo, _, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	guilds, err := repo.ListGuilds(cmd.Context())
	if err != nil {
		return err
	}

	runs := make(map[string][]*storage.ScheduleState, len(guilds))
	for _, g := range guilds {
		states, err := repo.Runs(cmd.Context(), g.GuildID)
		if err != nil {
			return err
		}
		runs[g.GuildID] = states
	}

	printStatus(cmd.OutOrStdout(), guilds, runs)
	return nil
}

func printStatus(out io.Writer, guilds []*storage.GuildRecord, runs map[string][]*storage.ScheduleState) {
	if len(guilds) == 0 {
		fmt.Fprintln(out, "No guilds configured")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GUILD\tNAME\tMODULES\tCADENCE\tLAST RUN")
	for _, g := range guilds {
		modules := activeModules(g.Config)
		states := runs[g.GuildID]
		if len(states) == 0 {
			fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\n", g.GuildID, g.GuildName, modules)
			continue
		}
		for _, s := range states {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", g.GuildID, g.GuildName, modules, s.Cadence, s.LastRun.UTC().Format(time.RFC3339))
		}
	}
	w.Flush()
}

func activeModules(cfg *guild.Config) string {
	var names string
	for _, m := range guild.ModuleOrder {
		if !cfg.Active(m) {
			continue
		}
		if names != "" {
			names += ","
		}
		names += m
	}
	if names == "" {
		return "-"
	}
	return names
}
