package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/samhotchkiss/tenantshift/internal/credentials"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Merge credential CSV exports without touching either account",
	Long: `Joins a user-details export with a password-hash export on userId,
keeping the newest hash per user, and writes the import CSV. Pure file
work: no account configuration is needed and nothing is sent anywhere.`,
	RunE: runCredentialMerge,
}

var (
	credUserDetails string
	credPasswords   string
	credOut         string
)

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.Flags().StringVar(&credUserDetails, "user-details", "", "CSV export of user details")
	credentialsCmd.Flags().StringVar(&credPasswords, "passwords", "", "CSV export of password hashes")
	credentialsCmd.Flags().StringVar(&credOut, "out", "migration_data.csv", "Where to write the merged CSV")
	_ = credentialsCmd.MarkFlagRequired("user-details")
	_ = credentialsCmd.MarkFlagRequired("passwords")
}

func runCredentialMerge(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	userData, err := os.ReadFile(credUserDetails)
	if err != nil {
		return fmt.Errorf("read user details: %w", err)
	}
	hashData, err := os.ReadFile(credPasswords)
	if err != nil {
		return fmt.Errorf("read password hashes: %w", err)
	}

	users, err := credentials.ParseTable(bytes.NewReader(userData))
	if err != nil {
		return fmt.Errorf("parse %s: %w", credUserDetails, err)
	}
	hashes, err := credentials.ParseTable(bytes.NewReader(hashData))
	if err != nil {
		return fmt.Errorf("parse %s: %w", credPasswords, err)
	}

	merged, err := credentials.Merge(users, hashes)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := credentials.WriteCSV(&buf, merged); err != nil {
		return err
	}
	if err := os.WriteFile(credOut, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", credOut, err)
	}

	fmt.Fprintf(out, "🔑 Merged %d rows into %s (%d with hash, %d without)\n",
		len(merged.Rows), credOut, merged.Matched, merged.Unmatched)
	printWarnings(out, credUserDetails, users.Warnings)
	printWarnings(out, credPasswords, hashes.Warnings)
	printWarnings(out, "", merged.Warnings)
	return nil
}

func printWarnings(out io.Writer, file string, warnings []credentials.Warning) {
	for _, warning := range warnings {
		switch {
		case file != "" && warning.Row > 0:
			fmt.Fprintf(out, "   ⚠️  %s row %d: %s\n", file, warning.Row, warning.Message)
		case warning.Row > 0:
			fmt.Fprintf(out, "   ⚠️  row %d: %s\n", warning.Row, warning.Message)
		default:
			fmt.Fprintf(out, "   ⚠️  %s\n", warning.Message)
		}
	}
}
