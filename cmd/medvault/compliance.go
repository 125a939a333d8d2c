package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spounge-ai/medvault/internal/compliance"
	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/validation"
	"github.com/spf13/cobra"
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Show or change consent flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := app.Ledger.Consent()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), c)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, flag := range []domain.ConsentFlag{domain.ConsentDataCollection, domain.ConsentDataStorage, domain.ConsentDataSharing, domain.ConsentAnalytics} {
			fmt.Fprintf(w, "%s\t%s\n", flag, onOff(c.Has(flag)))
		}
		if !c.LastUpdated.IsZero() {
			fmt.Fprintf(w, "lastUpdated\t%s\n", c.LastUpdated.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func consentChange(granted bool) *cobra.Command {
	use, verb := "revoke <flag>", "revoked"
	if granted {
		use, verb = "grant <flag>", "granted"
	}
	return &cobra.Command{
		Use:       use,
		Short:     "Set a consent flag: dataCollection, dataStorage, dataSharing or analytics",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"dataCollection", "dataStorage", "dataSharing", "analytics"},
		RunE: func(cmd *cobra.Command, args []string) error {
			flag, err := domain.ParseConsentFlag(args[0])
			if err != nil {
				return err
			}
			if err := app.Ledger.SetConsent(cmd.Context(), flag, granted); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "%s %s", flag, verb)
			return nil
		},
	}
}

var privacyCmd = &cobra.Command{
	Use:   "privacy",
	Short: "Show privacy settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printPrivacy(cmd, app.Ledger.Privacy())
	},
}

var privacySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change privacy settings; only the flags given are changed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fl := cmd.Flags()
		var firstErr error
		boolFlag := func(name string, dst *bool) {
			if !fl.Changed(name) || firstErr != nil {
				return
			}
			v, err := fl.GetBool(name)
			if err != nil {
				firstErr = err
				return
			}
			*dst = v
		}
		updated, err := app.Ledger.UpdatePrivacy(cmd.Context(), func(p *domain.PrivacySettings) {
			if fl.Changed("max-retention-days") {
				v, err := fl.GetInt("max-retention-days")
				if err != nil {
					firstErr = err
					return
				}
				p.MaxRetentionDays = v
			}
			boolFlag("auto-delete", &p.AutoDelete)
			boolFlag("anonymize-pii", &p.AnonymizePII)
			boolFlag("audit-logging", &p.AuditLogging)
			boolFlag("breach-detection", &p.BreachDetection)
			boolFlag("encryption", &p.EncryptionEnabled)
			boolFlag("access-monitoring", &p.AccessMonitoring)
		})
		if firstErr != nil {
			return firstErr
		}
		if err != nil {
			return err
		}
		return printPrivacy(cmd, updated)
	},
}

func printPrivacy(cmd *cobra.Command, p domain.PrivacySettings) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), p)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "maxRetentionDays\t%d\n", p.MaxRetentionDays)
	fmt.Fprintf(w, "autoDelete\t%s\n", onOff(p.AutoDelete))
	fmt.Fprintf(w, "anonymizePII\t%s\n", onOff(p.AnonymizePII))
	fmt.Fprintf(w, "auditLogging\t%s\n", onOff(p.AuditLogging))
	fmt.Fprintf(w, "breachDetection\t%s\n", onOff(p.BreachDetection))
	fmt.Fprintf(w, "encryptionEnabled\t%s\n", onOff(p.EncryptionEnabled))
	fmt.Fprintf(w, "accessMonitoring\t%s\n", onOff(p.AccessMonitoring))
	return w.Flush()
}

var (
	auditAction string
	auditSince  time.Duration
	auditUntil  time.Duration
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now := time.Now().UTC()
		q := validation.AuditQuery{Action: auditAction, Limit: auditLimit}
		if auditSince > 0 {
			q.Since = now.Add(-auditSince)
		}
		if auditUntil > 0 {
			q.Until = now.Add(-auditUntil)
		}
		entries, err := app.Ledger.QueryHistory(cmd.Context(), q)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tSEVERITY\tRESULT\tKIND")
		for _, e := range entries {
			result := successText.Sprint("ok")
			if !e.Success {
				result = errorText.Sprint("failed")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Action, e.Severity, result, e.DataKind)
		}
		return w.Flush()
	},
}

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize",
	Short: "Redact PII keys from a JSON document (file or stdin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var doc any
		if err := readJSONInput(cmd, &doc); err != nil {
			return err
		}
		out, err := app.Ledger.Anonymize(doc)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail, snapshots and medical records (requires dataSharing consent)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := compliance.ParseExportFormat(exportFormat)
		if err != nil {
			return err
		}
		res, err := app.Ledger.ExportAll(cmd.Context(), format)
		if err != nil {
			return err
		}
		if res.Location != "" {
			printSuccess(cmd.ErrOrStderr(), "export uploaded to %s", highlightText.Sprint(res.Location))
		}
		if exportOut == "" {
			_, err = cmd.OutOrStdout().Write(res.Data)
			return err
		}
		if err := os.WriteFile(exportOut, res.Data, 0o600); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		printSuccess(cmd.ErrOrStderr(), "export written to %s", highlightText.Sprint(exportOut))
		return nil
	},
}

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Snapshots, retention pruning and usage reporting",
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit entries and snapshots past the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := app.Ledger.PruneExpired(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		if report.Cutoff.IsZero() {
			printWarning(cmd.OutOrStdout(), "auto-delete is off, nothing pruned")
			return nil
		}
		printSuccess(cmd.OutOrStdout(), "pruned %d entries and %d snapshots older than %s",
			report.Entries, report.Snapshots, report.Cutoff.Format(time.RFC3339))
		return nil
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List anonymized conversation snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snaps, err := app.Ledger.Snapshots(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), snaps)
		}
		for _, s := range snaps {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", s.ID, s.Data.Timestamp.Format(time.RFC3339), mutedText.Sprint(s.Data.OriginalHash))
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Aggregate the audit trail (requires analytics consent)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := app.Ledger.UsageReport(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		data, err := json.MarshalIndent(report.ByAction, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d failures\n%s\n", report.Total, report.Failures, data)
		return nil
	},
}

func init() {
	consentCmd.AddCommand(consentChange(true), consentChange(false))

	pf := privacySetCmd.Flags()
	pf.Int("max-retention-days", 0, "days audit entries and snapshots are kept")
	pf.Bool("auto-delete", false, "prune expired data automatically")
	pf.Bool("anonymize-pii", false, "redact PII keys in audit details and exports")
	pf.Bool("audit-logging", false, "record audit entries")
	pf.Bool("breach-detection", false, "evaluate anomaly rules")
	pf.Bool("encryption", false, "informational encryption flag")
	pf.Bool("access-monitoring", false, "audit record reads")
	privacyCmd.AddCommand(privacySetCmd)

	auditCmd.Flags().StringVar(&auditAction, "action", "", "only entries with this action")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "only entries newer than this age, e.g. 24h")
	auditCmd.Flags().DurationVar(&auditUntil, "until", 0, "only entries older than this age")
	auditCmd.Flags().IntVar(&auditLimit, "limit", validation.DefaultQueryLimit, "maximum entries to return")
	anonymizeCmd.Flags().StringVarP(&inputFile, "file", "f", "", "JSON input file (default: stdin)")
	auditCmd.AddCommand(anonymizeCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", string(compliance.FormatJSON), "json, csv or yaml")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write the export to a file instead of stdout")

	retentionCmd.AddCommand(pruneCmd, snapshotsCmd, usageCmd)
}
