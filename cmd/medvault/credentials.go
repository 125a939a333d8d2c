package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"cred"},
	Short:   "Manage translation-provider credentials",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store a provider credential read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := app.Credentials.SaveCredential(cmd.Context(), args[0], value); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "credential for %s stored", highlightText.Sprint(args[0]))
		return nil
	},
}

var credentialGetCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Print a provider credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, found, err := app.Credentials.GetCredential(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			printWarning(cmd.ErrOrStderr(), "no usable credential for %s", highlightText.Sprint(args[0]))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Delete a provider credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Credentials.DeleteCredential(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "credential for %s deleted", highlightText.Sprint(args[0]))
		return nil
	},
}

var credentialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		providers, err := app.Credentials.ListProviders(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), providers)
		}
		for _, p := range providers {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var credentialMigrateCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Move the plaintext legacy credential blob into encrypted records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := app.Credentials.MigrateLegacy(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		printSuccess(cmd.OutOrStdout(), "%d migrated, %d failed", report.Migrated, report.Failed)
		return nil
	},
}

func init() {
	credentialsCmd.AddCommand(credentialSetCmd, credentialGetCmd, credentialDeleteCmd, credentialListCmd, credentialMigrateCmd)
}

// readSecret takes the first line of r so secrets stay out of shell history.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
