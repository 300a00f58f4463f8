// =============================================================================
// Billing Status Reconciler - Main Entry Point
// =============================================================================
//
// USAGE:
//   billrecon reconcile   - Reconcile the billing exports and export the table
//   billrecon identities  - List direct-invoice identities
//   billrecon validate    - Validate configuration and input files
//   billrecon version     - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Ingestion, normalization, feeds, selection, reconciliation,
//                  export, remote destinations and the selector TUI
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/billing-status-reconciler/cmd"
)

func main() {
	cmd.Execute()
}
