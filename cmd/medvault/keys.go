package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect or reset domain keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		handles := make([]domain.KeyHandle, 0, len(domain.Domains))
		for _, d := range domain.Domains {
			h, err := app.Vault.GetKey(cmd.Context(), d)
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), handles)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tSOURCE\tCREATED\tEXPIRES\tFINGERPRINT")
		for _, h := range handles {
			expires := mutedText.Sprint("never")
			if h.ExpiresAt != nil {
				expires = h.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", h.Domain, h.Source, h.CreatedAt.Format(time.RFC3339), expires, h.Fingerprint)
		}
		return w.Flush()
	},
}

var resetConfirmed bool

var keyResetCmd = &cobra.Command{
	Use:   "reset <domain>",
	Short: "Replace a domain key; every record of the domain becomes unreadable and is purged",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := domain.ParseDomain(args[0])
		if err != nil {
			return err
		}
		if !resetConfirmed {
			return fmt.Errorf("resetting the %s key destroys its records; pass --yes to confirm", d)
		}
		h, err := app.Vault.Reset(cmd.Context(), d)
		if err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "%s key reset, new fingerprint %s", d, highlightText.Sprint(h.Fingerprint))
		return nil
	},
}

var breachesCmd = &cobra.Command{
	Use:   "breaches",
	Short: "List detected security breaches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		breaches := app.Monitor.Breaches()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), breaches)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tTYPE\tSTATUS")
		for _, b := range breaches {
			status := errorText.Sprint("open")
			if b.Resolved {
				status = mutedText.Sprint("resolved")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Timestamp.Format(time.RFC3339), b.Type, status)
		}
		return w.Flush()
	},
}

var breachResolveCmd = &cobra.Command{
	Use:   "resolve <breach-id>",
	Short: "Acknowledge a breach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Monitor.ResolveBreach(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "breach %s resolved", highlightText.Sprint(args[0]))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep medvault running and print breach notifications until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, cmd)
	},
}

func watch(ctx context.Context, cmd *cobra.Command) error {
	app.Logger.InfoContext(ctx, "watching for breach notifications")
	events := app.Notifier.Events()
	for {
		select {
		case <-ctx.Done():
			app.Logger.InfoContext(ctx, "shutdown signal received")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), ev); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", warningText.Sprint("!"),
				ev.Breach.Timestamp.Format(time.RFC3339), ev.Breach.Type, ev.Message)
		}
	}
}

func init() {
	keyResetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "confirm the reset")
	keysCmd.AddCommand(keyResetCmd)
	breachesCmd.AddCommand(breachResolveCmd)
}
