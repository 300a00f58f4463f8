// =============================================================================
// Billing Status Reconciler - Validate Command
// =============================================================================
//
// This file defines the 'validate' command, which checks the configuration
// and the feed files without exporting anything.
//
// COMMAND USAGE:
//   billrecon validate [--deferred FILE...] [--direct FILE...] [--error-log FILE]
//
// EXIT STATUS:
//   Non-zero when any error-severity problem is found. Warnings alone (values
//   that would be coerced) do not fail the command unless --strict is set.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/billing-status-reconciler/internal/validation"
)

var (
	validateInputs   inputFlags
	validateStrict   bool
	validateErrorLog string
)

// errValidationFailed is returned after the problems have been printed.
var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and input files without exporting",
	Long: `The validate command loads the configuration, decodes every input file and
checks each feed's required columns, dates and amounts. Nothing is written
except the optional error log.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := setup(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		options := validation.DefaultValidationOptions()
		options.TreatWarningsAsErrors = validateStrict
		v := validation.NewValidatorWithOptions(cfg, options)

		fmt.Fprintln(out, "Validating configuration...")
		cfgResult := v.ValidateConfig()

		in, err := validateInputs.load(ctx, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Validating %d deferred-payment and %d direct-invoice file(s)...\n", len(in.Deferred), len(in.Direct))
		feedResult := v.ValidateFeeds(in.Deferred, in.Direct)

		problems := append(cfgResult.Errors, feedResult.Errors...)
		fmt.Fprintln(out, validation.FormatErrors(problems))
		fmt.Fprintf(out, "Files: %d  Rows: %d  Errors: %d  Warnings: %d\n",
			feedResult.FilesValidated, feedResult.RowsValidated,
			cfgResult.ErrorCount+feedResult.ErrorCount, cfgResult.WarningCount+feedResult.WarningCount)

		if validateErrorLog != "" && len(problems) > 0 {
			if err := validation.WriteErrorLog(problems, validateErrorLog, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Problems have been logged to %s\n", validateErrorLog)
		}

		if !cfgResult.IsValid || !feedResult.IsValid {
			return errValidationFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateInputs.bind(validateCmd)
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Treat coercion warnings as errors")
	validateCmd.Flags().StringVar(&validateErrorLog, "error-log", "", "Write problems to this file")
}
