// =============================================================================
// Billing Status Reconciler - Reconcile Command
// =============================================================================
//
// This file defines the 'reconcile' command, the main command of the tool.
//
// COMMAND USAGE:
//   billrecon reconcile [flags]
//
// PROCESSING PIPELINE:
//   1. Load configuration
//   2. Read the feed files (flags or discovery in input_dir)
//   3. Ingest, normalize and transform both feeds
//   4. Build the payment-status selection from the selection file, the
//      --paid / --exclude flags and, with --interactive, the selector
//   5. Reconcile and export; optionally push to Sheets and upload to GCS
//   6. Print the summary
//
// =============================================================================

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/export"
	"github.com/ginjaninja78/billing-status-reconciler/internal/logger"
	"github.com/ginjaninja78/billing-status-reconciler/internal/pipeline"
	"github.com/ginjaninja78/billing-status-reconciler/internal/remote"
	"github.com/ginjaninja78/billing-status-reconciler/internal/selection"
	"github.com/ginjaninja78/billing-status-reconciler/internal/tui"
	"github.com/ginjaninja78/billing-status-reconciler/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// reconcileFlags holds the flags of the reconcile command.
type reconcileFlags struct {
	inputs inputFlags

	paid          []string
	exclude       []string
	selectionFile string
	saveSelection string
	interactive   bool

	format   string
	encoding string
	split    bool
	label    string

	dryRun     bool
	pushSheets bool
	upload     bool
}

var reconcileOpts reconcileFlags

// =============================================================================
// RECONCILE COMMAND DEFINITION
// =============================================================================

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile billing exports and export the payment-status table",
	Long: `The reconcile command reads the deferred-payment and direct-invoice exports,
applies the payment-status selection to the direct invoices, and exports one
table of billed and unpaid amounts sorted by usage month.

Direct invoices are unpaid unless marked otherwise. Identities are written as
"document|counterparty|amount"; list them with 'billrecon identities'.

A file that cannot be decoded, or a feed missing required columns, is skipped
with a notice. The other feed still goes through.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd, &reconcileOpts)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	f := reconcileCmd.Flags()
	reconcileOpts.inputs.bind(reconcileCmd)

	f.StringArrayVar(&reconcileOpts.paid, "paid", nil, "Mark an invoice identity paid (repeatable)")
	f.StringArrayVar(&reconcileOpts.exclude, "exclude", nil, "Exclude an invoice identity (repeatable)")
	f.StringVar(&reconcileOpts.selectionFile, "selection", "", "Read paid/excluded marks from a YAML file")
	f.StringVar(&reconcileOpts.saveSelection, "save-selection", "", "Write the final marks to a YAML file")
	f.BoolVarP(&reconcileOpts.interactive, "interactive", "i", false, "Select paid invoices interactively")

	f.StringVar(&reconcileOpts.format, "format", "", "Export format: xlsx, csv, zip, html (overrides config)")
	f.StringVar(&reconcileOpts.encoding, "encoding", "", "CSV encoding: utf-8, utf-8-bom, cp932 (overrides config)")
	f.BoolVar(&reconcileOpts.split, "split", false, "Add one sheet or file per billing method")
	f.StringVar(&reconcileOpts.label, "label", "", "Label used in the export file name (overrides config)")

	f.BoolVar(&reconcileOpts.dryRun, "dry-run", false, "Reconcile and print the summary without writing files")
	f.BoolVar(&reconcileOpts.pushSheets, "push-sheets", false, "Push the table to the configured Google Sheets range")
	f.BoolVar(&reconcileOpts.upload, "upload", false, "Upload the export to the configured Cloud Storage bucket")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runReconcile(cmd *cobra.Command, opts *reconcileFlags) error {
	cfg, ctx, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "=== Billing Status Reconciler ===")

	// =========================================================================
	// STEP 1: READ AND PREPARE THE FEEDS
	// =========================================================================

	in, err := opts.inputs.load(ctx, cfg)
	if err != nil {
		return err
	}
	if len(in.Deferred) == 0 && len(in.Direct) == 0 {
		fmt.Fprintln(out, "No input files found.")
		return nil
	}
	fmt.Fprintf(out, "Reading %d deferred-payment and %d direct-invoice file(s)\n", len(in.Deferred), len(in.Direct))

	runner := pipeline.NewRunner(cfg)
	prepared := runner.Prepare(ctx, in)

	// =========================================================================
	// STEP 2: BUILD THE SELECTION
	// =========================================================================

	store, err := buildSelection(opts)
	if err != nil {
		return err
	}

	if opts.interactive && len(prepared.Direct) > 0 {
		selector := tui.NewSelector(prepared.Identities(), store, prepared.UnpaidTotal)
		confirmed, err := tui.Run(selector)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Selection cancelled; nothing exported.")
			return nil
		}
	}

	if opts.saveSelection != "" {
		if err := selection.SaveFile(opts.saveSelection, store); err != nil {
			return err
		}
		log.Info().Str("file", opts.saveSelection).Int("marks", store.Len()).Msg("selection saved")
	}

	// =========================================================================
	// STEP 3: EXPORT
	// =========================================================================

	exportOpts := exportOptions(cmd, cfg, opts)
	dest, err := destinations(cfg, opts)
	if err != nil {
		return err
	}

	result, err := runner.Export(ctx, prepared, store, exportOpts, dest)
	if result != nil {
		printSummary(cmd, result, exportOpts.Now)
	}
	return err
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// buildSelection combines the marks of the selection file and the flags.
func buildSelection(opts *reconcileFlags) (*selection.Store, error) {
	store := selection.NewStore()

	if opts.selectionFile != "" {
		fromFile, err := selection.LoadFile(opts.selectionFile)
		if err != nil {
			return nil, err
		}
		store.Merge(fromFile)
	}

	fromFlags, err := selection.FromFlags(opts.paid, opts.exclude)
	if err != nil {
		return nil, err
	}
	store.Merge(fromFlags)

	return store, nil
}

// exportOptions seeds export options from config and applies the flags the
// user actually set.
func exportOptions(cmd *cobra.Command, cfg *config.MainConfig, opts *reconcileFlags) export.Options {
	exportOpts := export.OptionsFromConfig(cfg.Export)
	if opts.format != "" {
		exportOpts.Format = opts.format
	}
	if opts.encoding != "" {
		exportOpts.Encoding = opts.encoding
	}
	if cmd.Flags().Changed("split") {
		exportOpts.Split = opts.split
	}
	if opts.label != "" {
		exportOpts.Label = opts.label
	}
	exportOpts.Now = time.Now()
	return exportOpts
}

// destinations builds the configured destinations. A dry run writes nothing.
func destinations(cfg *config.MainConfig, opts *reconcileFlags) (pipeline.Destinations, error) {
	var dest pipeline.Destinations
	if opts.dryRun {
		return dest, nil
	}

	dest.Files = utils.NewFileManager(cfg.InputDir, cfg.OutputDir)
	if err := dest.Files.EnsureDirectories(); err != nil {
		return dest, err
	}

	if opts.pushSheets {
		dest.Sheets = &remote.SheetsPusher{
			SpreadsheetID:   cfg.Remote.Sheets.SpreadsheetID,
			Range:           cfg.Remote.Sheets.Range,
			CredentialsFile: cfg.Remote.Sheets.CredentialsFile,
		}
	}
	if opts.upload {
		dest.Uploader = &remote.GCSUploader{
			Bucket:          cfg.Remote.GCS.Bucket,
			Prefix:          cfg.Remote.GCS.Prefix,
			CredentialsFile: cfg.Remote.GCS.CredentialsFile,
		}
	}
	return dest, nil
}

// printSummary prints the notices and the outcome of the run.
func printSummary(cmd *cobra.Command, result *pipeline.Result, now time.Time) {
	out := cmd.OutOrStdout()

	if len(result.Notices) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Notices:")
		printNotices(cmd, result.Notices)
	}

	fmt.Fprintln(out, "\n=== Reconciliation Complete ===")
	fmt.Fprintf(out, "Files read:      %d\n", result.Stats.FilesRead)
	fmt.Fprintf(out, "Files skipped:   %d\n", result.Stats.FilesFailed)
	fmt.Fprintf(out, "Identities:      %d\n", result.Stats.Identities)
	fmt.Fprintf(out, "Records:         %d\n", result.Stats.Records)

	if result.Table != nil && result.Table.Empty() == nil {
		totals := result.Table.Totals()
		fmt.Fprintf(out, "Billed total:    %s円\n", export.FormatYen(totals.Billed))
		fmt.Fprintf(out, "Unpaid total:    %s円\n", export.FormatYen(totals.Unpaid))
	}
	if result.OutputFile != "" {
		fmt.Fprintf(out, "Output:          %s\n", result.OutputFile)
	}
	if result.PushedToSheets {
		fmt.Fprintln(out, "Sheets:          pushed")
	}
	if result.UploadedTo != "" {
		fmt.Fprintf(out, "Uploaded to:     %s\n", result.UploadedTo)
	}
	fmt.Fprintf(out, "Time elapsed:    %s\n", result.Stats.ProcessingTime)

	if result.Table != nil && result.Table.Empty() == nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, export.AsOfLine(result.Table, now))
	}
}
