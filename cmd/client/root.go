package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harrylevesque/steamguard/internal/app"
	"github.com/harrylevesque/steamguard/internal/config"
	"github.com/harrylevesque/steamguard/internal/utils"
)

var (
	cfgFile   string
	envFile   string
	accountID string
	logLevel  string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "steamguard",
		Short: "Mobile authenticator: auth codes and trade confirmations",
		Long: `steamguard generates mobile auth codes and manages pending confirmations
for an enrolled account.

Examples:
  steamguard code
  steamguard code --unique
  steamguard confirmations list
  steamguard confirmations act --deny 1234567890
`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "steamguard.yaml", "config file path")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file with STEAMGUARD_* variables")
	root.PersistentFlags().StringVar(&accountID, "account", "", "account id (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newCodeCmd())
	root.AddCommand(newDeviceIDCmd())
	root.AddCommand(newConfirmationsCmd())
	root.AddCommand(newAccountCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if accountID != "" {
		cfg.AccountID = accountID
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	} else if cfg.LogFile == "" {
		// Keep stderr quiet for interactive use unless asked otherwise.
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// withApp loads config, builds the app and runs fn with it.
func withApp(ctx context.Context, fn func(a *app.App, logger logrus.FieldLogger) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer := utils.NewLogger(cfg.LoggerOptions())
	defer closer.Close()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, logger)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
