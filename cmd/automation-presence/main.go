package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/automation-presence/db"
	"github.com/thatsimonsguy/automation-presence/internal/config"
	"github.com/thatsimonsguy/automation-presence/internal/service"
	"github.com/thatsimonsguy/automation-presence/internal/store"
	"github.com/thatsimonsguy/automation-presence/internal/version"
	"github.com/thatsimonsguy/automation-presence/system/startup"
)

var (
	configPath string
	overrides  config.Overrides

	historyLimit int
	unitOptions  startup.ServiceOptions
)

var rootCmd = &cobra.Command{
	Use:   "automation-presence",
	Short: "Aggregate presence triggers into zone and household presence.",
	Long: `Runs the presence service: triggers roll up into zones, zones roll up into a
single master presence value that switches off only after a debounce delay.
State is persisted across restarts and exposed over REST and MQTT.`,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return service.Run(ctx, service.Options{
			ConfigPath: configPath,
			Overrides:  overrides,
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted presence state.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath, overrides)
		if err != nil {
			return err
		}

		st, err := store.New(cfg.StateFile).Load()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent master presence transitions.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath, overrides)
		if err != nil {
			return err
		}
		if cfg.HistoryDB == "" {
			return fmt.Errorf("history_db is not configured")
		}
		return db.PrintHistoryCLI(cmd.OutOrStdout(), cfg.HistoryDB, historyLimit)
	},
}

var installServiceCmd = &cobra.Command{
	Use:   "install-service",
	Short: "Write a systemd unit that runs the presence service.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		unitOptions.ConfigFile = configPath
		if err := startup.InstallService(unitOptions); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nrun: systemctl daemon-reload && systemctl enable --now automation-presence\n", unitOptions.UnitPath)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to configuration file")
	flags.StringVarP(&overrides.StateFile, "state-file", "s", "", "path to persist presence state")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&overrides.Debug, "debug", false, "enable debug logging")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of transitions to print (0 for all)")

	installServiceCmd.Flags().StringVar(&unitOptions.UnitPath, "unit-path", startup.DefaultUnitPath, "systemd unit file to write")
	installServiceCmd.Flags().StringVar(&unitOptions.User, "user", "", "user to run the service as")
	installServiceCmd.Flags().StringVar(&unitOptions.WorkDir, "workdir", "", "working directory for the service")
	installServiceCmd.Flags().StringSliceVar(&unitOptions.After, "after", nil, "extra units to start after")

	rootCmd.AddCommand(stateCmd, historyCmd, installServiceCmd)
	version.AttachCobraVersionCommand(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
