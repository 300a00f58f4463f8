// =============================================================================
// Billing Status Reconciler - Identities Command
// =============================================================================
//
// Lists the distinct direct-invoice identities, one per line, in the form
// accepted by 'reconcile --paid' and '--exclude'.
//
// COMMAND USAGE:
//   billrecon identities [--direct FILE...] [--selection FILE]
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/billing-status-reconciler/internal/pipeline"
	"github.com/ginjaninja78/billing-status-reconciler/internal/selection"
)

var (
	identitiesInputs    inputFlags
	identitiesSelection string
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List direct-invoice identities for use with --paid and --exclude",
	Long: `The identities command reads the direct-invoice exports and prints each
distinct invoice identity as "document|counterparty|amount".

With --selection, each line is prefixed with its current mark:
  [x] paid   [-] excluded   [ ] unpaid`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, ctx, err := setup(cmd)
		if err != nil {
			return err
		}

		in, err := identitiesInputs.load(ctx, cfg)
		if err != nil {
			return err
		}
		prepared := pipeline.NewRunner(cfg).Prepare(ctx, pipeline.Inputs{Direct: in.Direct})
		printNotices(cmd, prepared.Notices)

		var store *selection.Store
		if identitiesSelection != "" {
			if store, err = selection.LoadFile(identitiesSelection); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		for _, id := range prepared.Identities() {
			if store == nil {
				fmt.Fprintln(out, id.String())
				continue
			}
			mark := store.Mark(id)
			box := "[ ]"
			switch {
			case mark.Excluded:
				box = "[-]"
			case mark.Paid:
				box = "[x]"
			}
			fmt.Fprintf(out, "%s %s\n", box, id.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesInputs.bind(identitiesCmd)
	identitiesCmd.Flags().StringVar(&identitiesSelection, "selection", "", "Show marks from a YAML selection file")
}
