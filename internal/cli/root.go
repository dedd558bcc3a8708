// Package cli wires the tenantshift commands: the migration run itself,
// the standalone credential merge, and version info.
package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/samhotchkiss/tenantshift/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tenantshift",
	Short: "Move tenants, users, and permissions between identity platform accounts",
	Long: `tenantshift copies an account's tenants, permission model, and user role
assignments into another account on the same identity platform, and merges
exported credential CSVs into an import file. Runs are idempotent: entities
that already exist at the destination are skipped, so an interrupted
migration can simply be run again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var (
	flagConfigPath string
	flagLogLevel   string
	flagEnv        string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to YAML config file (overrides TENANTSHIFT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "", "Environment name (overrides APP_ENV)")
}

// loadConfig resolves configuration and applies the global flag overrides
// on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagEnv != "" {
		cfg.Environment = strings.ToLower(strings.TrimSpace(flagEnv))
	}
	return cfg, nil
}
