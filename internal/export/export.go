// =============================================================================
// Billing Status Reconciler - Exporter
// =============================================================================
//
// This module serializes a reconciled table into a downloadable artifact.
//
// FORMATS:
//   - xlsx: one sheet with the combined table, plus one sheet per billing
//           method when Split is set
//   - csv:  the combined table as delimited text in the chosen encoding;
//           with Split the result is packaged as zip instead
//   - zip:  the combined CSV plus one CSV per billing method when Split is set
//   - html: a printable report with addressee, creation date and the
//           outstanding total
//
// OUTPUT STRUCTURE:
//   Every format uses the same nine columns, in the order of Columns. The
//   totals record shows the totals label in the billing-method column.
//
// =============================================================================

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
	"github.com/ginjaninja78/billing-status-reconciler/pkg/utils"
)

// Columns is the header of every exported table.
var Columns = []string{
	"ご利用年月",
	"ご請求方法",
	"ご請求金額合計 (税込)",
	"未入金金額合計 (税込)",
	"請求書番号",
	"請求書発行日",
	"お支払期日",
	"入金有無",
	"企業名",
}

// DateLayout is the layout of exported dates.
const DateLayout = "2006/01/02"

// ErrUnknownFormat is returned for formats Render does not support.
var ErrUnknownFormat = errors.New("unknown export format")

// =============================================================================
// OPTIONS AND ARTIFACT
// =============================================================================

// Options controls how a table is exported.
type Options struct {
	// Format is one of xlsx, csv, zip, html.
	Format string

	// Encoding applies to delimited text: utf-8, utf-8-bom or cp932.
	Encoding string

	// Split adds one sheet or file per billing method.
	Split bool

	// Label fills the {label} placeholder of FilenamePattern.
	Label string

	// FilenamePattern supports {label}, {timestamp}, {date} and {uuid}.
	FilenamePattern string

	// SheetName names the combined sheet of a workbook.
	SheetName string

	// TotalsLabel is shown in the billing-method column of the totals row.
	TotalsLabel string

	// Now is the creation time used in file names and the report.
	// Zero means time.Now().
	Now time.Time
}

// OptionsFromConfig returns export options seeded from configuration.
func OptionsFromConfig(cfg config.ExportConfig) Options {
	return Options{
		Format:          cfg.Format,
		Encoding:        cfg.Encoding,
		Split:           cfg.Split,
		Label:           cfg.Label,
		FilenamePattern: cfg.FilenamePattern,
		SheetName:       cfg.SheetName,
		TotalsLabel:     cfg.TotalsLabel,
	}
}

// Artifact is an exported file held in memory.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Content types of the supported formats.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv"
	ContentTypeZIP  = "application/zip"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// =============================================================================
// RENDER
// =============================================================================

// Render exports table according to opts.
//
// RETURNS:
//   - The artifact.
//   - reconcile.ErrNothingToExport when the table is empty, or an error
//     from the format writer.
func Render(table *reconcile.Table, opts Options) (*Artifact, error) {
	if err := table.Empty(); err != nil {
		return nil, err
	}

	opts = withDefaults(opts)
	format := strings.ToLower(opts.Format)
	if format == config.FormatCSV && opts.Split {
		format = config.FormatZIP
	}

	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case config.FormatXLSX:
		data, err = WriteWorkbook(table, opts)
		contentType = ContentTypeXLSX
	case config.FormatCSV:
		data, err = encodeCSV(table, opts)
		contentType = ContentTypeCSV
	case config.FormatZIP:
		data, err = WriteZip(table, opts)
		contentType = ContentTypeZIP
	case config.FormatHTML:
		data, err = WriteReport(table, opts)
		contentType = ContentTypeHTML
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", format, err)
	}

	return &Artifact{
		Filename:    FileName(opts, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// FileName builds the artifact's file name for the given extension.
func FileName(opts Options, ext string) string {
	opts = withDefaults(opts)
	return utils.GenerateOutputFileName(opts.FilenamePattern, ext, opts.Now,
		map[string]string{"label": opts.Label})
}

func withDefaults(opts Options) Options {
	def := config.Default().Export
	if opts.Format == "" {
		opts.Format = def.Format
	}
	if opts.Encoding == "" {
		opts.Encoding = def.Encoding
	}
	if opts.Label == "" {
		opts.Label = def.Label
	}
	if opts.FilenamePattern == "" {
		opts.FilenamePattern = def.FilenamePattern
	}
	if opts.SheetName == "" {
		opts.SheetName = def.SheetName
	}
	if opts.TotalsLabel == "" {
		opts.TotalsLabel = def.TotalsLabel
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return opts
}

// =============================================================================
// ROW FORMATTING
// =============================================================================

// Row renders one record as text cells in Columns order.
func Row(r billing.CommonRecord, totalsLabel string) []string {
	method := r.BillingMethod
	if r.Total {
		method = totalsLabel
	}
	return []string{
		r.UsageMonth,
		method,
		r.Billed.String(),
		r.Unpaid.String(),
		r.InvoiceNumber,
		r.IssueDate.Format(DateLayout),
		r.DueDate.Format(DateLayout),
		r.Paid.Label(),
		r.CompanyName,
	}
}

// FormatYen renders an amount rounded to whole yen with thousands
// separators, e.g. 35500 -> "35,500".
func FormatYen(d decimal.Decimal) string {
	s := d.Round(0).String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}

// AsOfLine is the closing line of the report: the outstanding total as of
// the month of now.
func AsOfLine(table *reconcile.Table, now time.Time) string {
	return fmt.Sprintf("※%s時点での未入金合計金額: %s円",
		now.Format("2006年01月"), FormatYen(table.Totals().Unpaid))
}
