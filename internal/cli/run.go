package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/samhotchkiss/tenantshift/internal/logging"
	"github.com/samhotchkiss/tenantshift/internal/migrate"
	"github.com/samhotchkiss/tenantshift/internal/platform"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the migration from the source account into the destination",
	Long: `Runs the migration stages in order: tenants, credential CSV merge,
permission categories, permissions, then user role assignments. Both
accounts must be configured through the environment or a config file.`,
	RunE: runMigration,
}

var (
	runUserDetails     string
	runPasswords       string
	runCredentialsOut  string
	runSkipCredentials bool
	runDryRun          bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runUserDetails, "user-details", "", "CSV export of user details")
	runCmd.Flags().StringVar(&runPasswords, "passwords", "", "CSV export of password hashes")
	runCmd.Flags().StringVar(&runCredentialsOut, "credentials-out", "migration_data.csv", "Where to write the merged credentials CSV")
	runCmd.Flags().BoolVar(&runSkipCredentials, "skip-credentials", false, "Skip the credential merge stage")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Walk every stage and report what would change without writing")
}

func runMigration(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	source, err := platform.NewSession("source", cfg.Source.BaseURL, platform.Credentials{
		ClientID: cfg.Source.ClientID,
		Secret:   cfg.Source.Secret,
	})
	if err != nil {
		return err
	}
	destination, err := platform.NewSession("destination", cfg.Destination.BaseURL, platform.Credentials{
		ClientID: cfg.Destination.ClientID,
		Secret:   cfg.Destination.Secret,
	})
	if err != nil {
		return err
	}

	policy := platform.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.RateLimit.MaxAttempts
	policy.MaxElapsed = cfg.RateLimit.MaxElapsed
	client := platform.NewClient(
		platform.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		platform.WithRetryPolicy(policy),
		platform.WithLogger(logger),
	)

	runner := migrate.NewRunner(client, source, destination)
	runner.Logger = logger
	runner.Out = cmd.OutOrStdout()
	runner.DryRun = runDryRun

	_, err = runner.Run(cmd.Context(), migrate.RunInput{
		UserDetailsPath:    runUserDetails,
		PasswordHashesPath: runPasswords,
		CredentialsOutPath: runCredentialsOut,
		SkipCredentials:    runSkipCredentials,
	})
	return err
}
