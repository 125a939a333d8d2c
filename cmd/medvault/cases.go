package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spf13/cobra"
)

var (
	inputFile        string
	translationCase  string
	translationOK    bool
	translationError string
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage saved medical conversations, summaries and extractions",
}

var caseSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a conversation from a JSON file (or stdin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var conv domain.Conversation
		if err := readJSONInput(cmd, &conv); err != nil {
			return err
		}
		if err := app.Cases.SaveCase(cmd.Context(), conv); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "case %s saved", highlightText.Sprint(conv.CaseID))
		return nil
	},
}

var caseGetCmd = &cobra.Command{
	Use:   "get <case-id>",
	Short: "Print a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, found, err := app.Cases.GetCase(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			printWarning(cmd.ErrOrStderr(), "case %s not found", highlightText.Sprint(args[0]))
			return nil
		}
		return printJSON(cmd.OutOrStdout(), conv)
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved case ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ids, err := app.Cases.ListCases(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ids)
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var caseDeleteCmd = &cobra.Command{
	Use:   "delete <case-id>",
	Short: "Delete a case with its summary and extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Cases.DeleteCase(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "case %s deleted", highlightText.Sprint(args[0]))
		return nil
	},
}

var caseSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Save or print a case summary",
}

var caseSummarySaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a summary from a JSON file (or stdin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var s domain.Summary
		if err := readJSONInput(cmd, &s); err != nil {
			return err
		}
		if err := app.Cases.SaveSummary(cmd.Context(), s); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "summary for %s saved", highlightText.Sprint(s.CaseID))
		return nil
	},
}

var caseSummaryGetCmd = &cobra.Command{
	Use:   "get <case-id>",
	Short: "Print a case summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, found, err := app.Cases.GetSummary(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			printWarning(cmd.ErrOrStderr(), "no summary for %s", highlightText.Sprint(args[0]))
			return nil
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

var caseExtractionCmd = &cobra.Command{
	Use:   "extraction",
	Short: "Save or print extracted medical facts",
}

var caseExtractionSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save an extraction from a JSON file (or stdin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var e domain.Extraction
		if err := readJSONInput(cmd, &e); err != nil {
			return err
		}
		if err := app.Cases.SaveExtraction(cmd.Context(), e); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "extraction for %s saved", highlightText.Sprint(e.CaseID))
		return nil
	},
}

var caseExtractionGetCmd = &cobra.Command{
	Use:   "get <case-id>",
	Short: "Print an extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, found, err := app.Cases.GetExtraction(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			printWarning(cmd.ErrOrStderr(), "no extraction for %s", highlightText.Sprint(args[0]))
			return nil
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

var caseTranslationCmd = &cobra.Command{
	Use:   "record-translation <provider>",
	Short: "Audit one translation call; the text is read from stdin and only hashed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read text: %w", err)
		}
		app.Cases.RecordTranslation(cmd.Context(), translationCase, args[0], string(text), translationOK, translationError)
		printSuccess(cmd.OutOrStdout(), "translation recorded")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{caseSaveCmd, caseSummarySaveCmd, caseExtractionSaveCmd} {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "JSON input file (default: stdin)")
	}
	caseTranslationCmd.Flags().StringVar(&translationCase, "case", "", "case id the translation belongs to")
	caseTranslationCmd.Flags().BoolVar(&translationOK, "success", true, "whether the provider call succeeded")
	caseTranslationCmd.Flags().StringVar(&translationError, "error", "", "provider error message")

	caseSummaryCmd.AddCommand(caseSummarySaveCmd, caseSummaryGetCmd)
	caseExtractionCmd.AddCommand(caseExtractionSaveCmd, caseExtractionGetCmd)
	casesCmd.AddCommand(caseSaveCmd, caseGetCmd, caseListCmd, caseDeleteCmd, caseSummaryCmd, caseExtractionCmd, caseTranslationCmd)
}

func readJSONInput(cmd *cobra.Command, v any) error {
	var r io.Reader = cmd.InOrStdin()
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}
	return nil
}
