// Package remote pushes reconciled results to Google services: the table to
// a Sheets range and the export artifact to a Cloud Storage bucket.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/ginjaninja78/billing-status-reconciler/internal/export"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
)

// Uploader stores an export artifact and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Pusher replaces the contents of a spreadsheet range with values.
type Pusher interface {
	Push(ctx context.Context, values [][]interface{}) error
}

// SheetsPusher writes to one range of a Google Sheets spreadsheet.
type SheetsPusher struct {
	SpreadsheetID string

	// Range is an A1 range such as "Sheet1!A1"; the sheet part is cleared
	// before writing.
	Range string

	// CredentialsFile is a service-account key. Empty means Application
	// Default Credentials.
	CredentialsFile string
}

// Push clears the target sheet and writes values starting at Range.
func (p *SheetsPusher) Push(ctx context.Context, values [][]interface{}) error {
	if p.SpreadsheetID == "" {
		return errors.New("sheets: spreadsheet id is not configured")
	}

	srv, err := sheets.NewService(ctx, clientOptions(p.CredentialsFile)...)
	if err != nil {
		return fmt.Errorf("create sheets service: %w", err)
	}

	if _, err := srv.Spreadsheets.Values.Clear(p.SpreadsheetID, sheetOf(p.Range), &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", sheetOf(p.Range), err)
	}

	body := &sheets.ValueRange{Values: values}
	if _, err := srv.Spreadsheets.Values.Update(p.SpreadsheetID, p.Range, body).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", p.Range, err)
	}
	return nil
}

// SheetValues lays out table for a spreadsheet: the header row, then every
// record with numeric amounts.
func SheetValues(table *reconcile.Table, totalsLabel string) [][]interface{} {
	records := table.Records()
	values := make([][]interface{}, 0, len(records)+1)

	header := make([]interface{}, len(export.Columns))
	for i, c := range export.Columns {
		header[i] = c
	}
	values = append(values, header)

	for _, r := range records {
		cells := export.Row(r, totalsLabel)
		row := make([]interface{}, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		row[2] = r.Billed.InexactFloat64()
		row[3] = r.Unpaid.InexactFloat64()
		values = append(values, row)
	}
	return values
}

// sheetOf returns the sheet part of an A1 range ("Sheet1!A1" -> "Sheet1").
func sheetOf(a1 string) string {
	if i := strings.Index(a1, "!"); i >= 0 {
		return a1[:i]
	}
	return a1
}
