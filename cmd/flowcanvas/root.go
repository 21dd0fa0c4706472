package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	cfg    Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "flowcanvas",
		Short:        "Convert flowchart text into positioned canvas elements",
		Long:         `FlowCanvas parses flowchart text, lays the graph out in levels and emits canvas shapes and connectors. It serves them over HTTP and MCP and keeps a synced canvas store.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "settings file (.json or .toml; default ~/.flowcanvas/settings.*)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading FLOWCANVAS_* variables")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newMCPCmd(a))
	root.AddCommand(newConvertCmd(a))
	root.AddCommand(newInstallCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// setup loads .env, then the layered config, then builds the logger. Logs go
// to stderr so stdout stays free for command output and the MCP transport.
func (a *app) setup(cmd *cobra.Command) error {
	if err := loadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, a.verbose)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
