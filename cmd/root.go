// =============================================================================
// Billing Status Reconciler - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (billrecon)
//   ├── reconcileCmd  (billrecon reconcile)
//   ├── identitiesCmd (billrecon identities)
//   ├── validateCmd   (billrecon validate)
//   └── versionCmd    (billrecon version)
//
// CONFIGURATION:
//   Settings are layered, later layers winning:
//   1. Built-in defaults
//   2. The YAML file named by --config
//   3. BILLRECON_* environment variables (a .env file is loaded first)
//   4. Command-line flags
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/logger"
)

// envPrefix prefixes every environment variable the CLI reads.
const envPrefix = "BILLRECON"

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "billrecon",
	Short: "Billing status reconciler - merge billing exports into one payment-status table",
	Long: `billrecon reads billing exports from a deferred-payment service and a
direct-invoice service, lets you mark which direct invoices have been paid,
and exports one reconciled table of billed and unpaid amounts.

Key Features:
  - Encoding fallback for UTF-8 and Shift_JIS exports
  - Header normalization with aliases for drifting column names
  - Interactive or flag-driven payment-status selection
  - Excel, CSV (UTF-8 or CP932), ZIP and HTML report exports
  - Optional push to Google Sheets and upload to Cloud Storage

Example Usage:
  billrecon reconcile                               # Discover files in input_dir
  billrecon reconcile --direct b.csv --interactive  # Select paid invoices in a TUI
  billrecon identities --direct b.csv               # List invoice identities
  billrecon validate                                # Check config and inputs`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "config.yaml", "Path to the main configuration file")
	flags.BoolP("verbose", "v", false, "Enable verbose output for debugging")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.String("log-format", "", "Log format: console or json (overrides config)")
	flags.String("input-dir", "", "Directory scanned for feed files (overrides config)")
	flags.String("output-dir", "", "Directory receiving exports (overrides config)")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

// initConfig loads .env and wires environment variables into viper.
func initConfig() {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// setup loads the configuration, applies the environment and flag overlay
// and returns a context carrying the logger.
func setup(cmd *cobra.Command) (*config.MainConfig, context.Context, error) {
	cfg, err := config.LoadMainConfig(viper.GetString("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load main config: %w", err)
	}
	overlay(cfg)

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log.Debug().Str("config", viper.GetString("config")).
		Str("input_dir", cfg.InputDir).Str("output_dir", cfg.OutputDir).Msg("configuration loaded")
	return cfg, logger.WithContext(ctx, log), nil
}

// overlay copies environment and flag values onto cfg.
func overlay(cfg *config.MainConfig) {
	setIf := func(dst *string, key string) {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}

	setIf(&cfg.InputDir, "input-dir")
	setIf(&cfg.OutputDir, "output-dir")
	setIf(&cfg.LogLevel, "log-level")
	setIf(&cfg.LogFormat, "log-format")
	if viper.GetBool("verbose") {
		cfg.LogLevel = "debug"
	}

	setIf(&cfg.Remote.Sheets.SpreadsheetID, "sheets-spreadsheet-id")
	setIf(&cfg.Remote.Sheets.Range, "sheets-range")
	setIf(&cfg.Remote.Sheets.CredentialsFile, "sheets-credentials-file")
	setIf(&cfg.Remote.GCS.Bucket, "gcs-bucket")
	setIf(&cfg.Remote.GCS.Prefix, "gcs-prefix")
	setIf(&cfg.Remote.GCS.CredentialsFile, "gcs-credentials-file")
}
