// =============================================================================
// Billing Status Reconciler - Column Normalizer
// =============================================================================
//
// The normalizer sits between ingestion and the feed transformers. For one
// feed it:
//   1. Normalizes every header (NFKC, surrounding whitespace removed)
//   2. Renames alias headers onto the configured canonical header
//   3. Creates optional columns that are missing, filled with ""
//   4. Checks that every required column is present
//
// A failed check returns *MissingColumnError and the feed's transformer must
// not run.
//
// =============================================================================

package normalize

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
)

// Header normalizes a single header name. It is idempotent.
func Header(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// MissingColumnError names the required source columns a feed lacks.
type MissingColumnError struct {
	Feed    string
	Columns []string
}

// Error implements the error interface.
func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Feed, strings.Join(e.Columns, ", "))
}

// Result is a table whose headers match the feed schema.
type Result struct {
	Table *ingest.Table

	// Renamed maps each original header to the header it became, for headers
	// that changed.
	Renamed map[string]string

	// Injected lists optional columns that were created empty.
	Injected []string

	// columns maps field keys to normalized headers.
	columns map[string]string
}

// Value returns the row's value for a field key and whether it is non-null.
func (r *Result) Value(row ingest.Row, field string) (string, bool) {
	header, ok := r.columns[field]
	if !ok {
		return "", false
	}
	return row.Get(header)
}

// HasField reports whether the field is bound to a column of the table.
func (r *Result) HasField(field string) bool {
	_, ok := r.columns[field]
	return ok
}

// Apply normalizes table against the feed schema.
//
// PARAMETERS:
//   - table: The concatenated raw table of one feed.
//   - feed: The feed schema (labels, columns, aliases).
//
// RETURNS:
//   - The normalized result. The input table is not modified.
//   - *MissingColumnError when required columns are absent.
func Apply(table *ingest.Table, feed config.FeedConfig) (*Result, error) {
	if table == nil {
		table = &ingest.Table{}
	}

	// Alias and canonical headers, both normalized, keyed to the canonical.
	targets := make(map[string]string)
	for _, col := range feed.Columns {
		canonical := Header(col.Header)
		targets[canonical] = canonical
		for _, alias := range col.Aliases {
			a := Header(alias)
			if _, taken := targets[a]; !taken {
				targets[a] = canonical
			}
		}
	}

	rename := make(map[string]string, len(table.Headers))
	renamed := make(map[string]string)
	var headers []string
	present := make(map[string]bool)

	for _, raw := range table.Headers {
		h := Header(raw)
		if canonical, ok := targets[h]; ok {
			h = canonical
		}
		rename[raw] = h
		if h != raw {
			renamed[raw] = h
		}
		if !present[h] {
			present[h] = true
			headers = append(headers, h)
		}
	}

	rows := make([]ingest.Row, len(table.Rows))
	for i, row := range table.Rows {
		out := make(ingest.Row, len(row))
		// Walk headers in order so the first column mapped onto a name wins.
		for _, raw := range table.Headers {
			v, ok := row[raw]
			if !ok {
				continue
			}
			h := rename[raw]
			if _, exists := out[h]; !exists {
				out[h] = v
			}
		}
		rows[i] = out
	}

	result := &Result{
		Renamed: renamed,
		columns: make(map[string]string),
	}

	var missing []string
	for _, col := range feed.Columns {
		canonical := Header(col.Header)
		switch {
		case present[canonical]:
		case col.Required:
			missing = append(missing, col.Header)
			continue
		default:
			present[canonical] = true
			headers = append(headers, canonical)
			result.Injected = append(result.Injected, canonical)
			for _, row := range rows {
				row[canonical] = ""
			}
		}
		result.columns[col.Field] = canonical
	}

	if len(missing) > 0 {
		return nil, &MissingColumnError{Feed: feed.Label, Columns: missing}
	}

	result.Table = &ingest.Table{
		Headers: headers,
		Rows:    rows,
		Sources: table.Sources,
	}
	return result, nil
}
