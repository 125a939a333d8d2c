package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	apperrors "github.com/spounge-ai/medvault/internal/errors"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/wiring"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	jsonOutput bool

	app *wiring.Container
)

var rootCmd = &cobra.Command{
	Use:   "medvault",
	Short: "Encrypted record store and compliance ledger for the medical translation assistant",
	Long: `medvault keeps provider credentials and medical conversations encrypted at rest,
records an audit trail of every sensitive operation and flags anomalous usage.

Every command loads the configuration, opens the stores and initializes the
domain keys before it runs.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  openContainer,
	PersistentPostRunE: closeContainer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default: $"+config.ConfigPathEnv+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(credentialsCmd, casesCmd, consentCmd, privacyCmd, auditCmd,
		exportCmd, retentionCmd, keysCmd, breachesCmd, watchCmd, statusCmd)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openContainer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	c, err := wiring.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build medvault: %w", err)
	}
	if err := c.Start(cmd.Context()); err != nil {
		_ = c.Stop(context.Background())
		return fmt.Errorf("failed to start medvault: %w", err)
	}
	app = c
	return nil
}

func closeContainer(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := app.Stop(ctx)
	app = nil
	return err
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil && app != nil {
		// PersistentPostRunE does not run when the command fails.
		_ = closeContainer(nil, nil)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorText.Sprint("✗"), describe(err))
		os.Exit(1)
	}
}

func describe(err error) string {
	var se *apperrors.SanitizedError
	if errors.As(err, &se) {
		msg := se.Message
		if se.Retryable {
			msg += " " + mutedText.Sprint("retryable")
		}
		return msg
	}
	if errors.Is(err, apperrors.ErrConsentDenied) || errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrUnsupportedFormat) || errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.PublicMessage(err)
	}
	return err.Error()
}
