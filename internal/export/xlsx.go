package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
)

// maxSheetName is the sheet name limit of the xlsx format.
const maxSheetName = 31

// WriteWorkbook writes the combined table to opts.SheetName and, with
// opts.Split, one sheet per billing method.
func WriteWorkbook(table *reconcile.Table, opts Options) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	combined := sheetName(opts.SheetName)
	if err := f.SetSheetName(f.GetSheetName(0), combined); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}

	if err := writeSheet(f, combined, table, opts.TotalsLabel, styles); err != nil {
		return nil, err
	}

	if opts.Split {
		used := map[string]bool{combined: true}
		methods, tables := table.ByBillingMethod()
		for _, m := range methods {
			name := uniqueSheetName(sheetName(m), used)
			if _, err := f.NewSheet(name); err != nil {
				return nil, fmt.Errorf("create sheet %q: %w", name, err)
			}
			if err := writeSheet(f, name, tables[m], opts.TotalsLabel, styles); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type sheetStyles struct {
	header int
	amount int
	total  int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("amount style: %w", err)
	}
	total, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 3})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("total style: %w", err)
	}
	return sheetStyles{header: header, amount: amount, total: total}, nil
}

// writeSheet writes the header row followed by every record. Amounts are
// stored as numbers, everything else as text.
func writeSheet(f *excelize.File, sheet string, table *reconcile.Table, totalsLabel string, styles sheetStyles) error {
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Columns))
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", styles.header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	records := table.Records()
	for i, r := range records {
		rowNum := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		values := workbookRow(r, totalsLabel)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", rowNum, err)
		}

		style := styles.amount
		if r.Total {
			style = styles.total
		}
		from, _ := excelize.CoordinatesToCellName(3, rowNum)
		to, _ := excelize.CoordinatesToCellName(4, rowNum)
		if err := f.SetCellStyle(sheet, from, to, style); err != nil {
			return fmt.Errorf("style row %d: %w", rowNum, err)
		}
	}

	widths := map[string]float64{"A": 12, "B": 16, "C": 20, "D": 20, "E": 16, "F": 14, "G": 14, "H": 10, "I": 28}
	for col, w := range widths {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}

// workbookRow is Row with the amounts kept numeric.
func workbookRow(r billing.CommonRecord, totalsLabel string) []any {
	text := Row(r, totalsLabel)
	values := make([]any, len(text))
	for i, v := range text {
		values[i] = v
	}
	values[2] = r.Billed.InexactFloat64()
	values[3] = r.Unpaid.InexactFloat64()
	return values
}

// sheetName strips characters excelize rejects and truncates to the limit.
func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.Trim(s, "'"))
	if s == "" {
		s = "Sheet"
	}
	if r := []rune(s); len(r) > maxSheetName {
		s = string(r[:maxSheetName])
	}
	return s
}

func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[candidate]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		r := []rune(name)
		if len(r)+len([]rune(suffix)) > maxSheetName {
			r = r[:maxSheetName-len([]rune(suffix))]
		}
		candidate = string(r) + suffix
	}
	used[candidate] = true
	return candidate
}
