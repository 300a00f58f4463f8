package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>{{.Label}}</title>
<style>
body { font-family: "Hiragino Sans", "Yu Gothic", "Meiryo", sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; margin-bottom: 0.2em; }
h2 { font-size: 1.2em; margin-top: 0; }
table { border-collapse: collapse; width: 100%; font-size: 0.9em; }
th, td { border: 1px solid #999; padding: 4px 8px; }
th { background: #ddebf7; }
td.amount { text-align: right; }
tr.total td { font-weight: bold; background: #f2f2f2; }
p.asof { font-weight: bold; margin-top: 1em; }
</style>
</head>
<body>
<h1>{{.Company}}さま</h1>
<h2>{{.Label}}</h2>
<p><strong>作成日: {{.Created}}</strong></p>
<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr{{if .Total}} class="total"{{end}}>
<td>{{.UsageMonth}}</td><td>{{.Method}}</td><td class="amount">{{.Billed}}</td><td class="amount">{{.Unpaid}}</td>
<td>{{.Invoice}}</td><td>{{.Issued}}</td><td>{{.Due}}</td><td>{{.Paid}}</td><td>{{.Company}}</td>
</tr>
{{- end}}
</tbody>
</table>
<p class="asof">{{.AsOf}}</p>
</body>
</html>
`))

type reportRow struct {
	Total      bool
	UsageMonth string
	Method     string
	Billed     string
	Unpaid     string
	Invoice    string
	Issued     string
	Due        string
	Paid       string
	Company    string
}

type reportData struct {
	Label   string
	Company string
	Created string
	Columns []string
	Rows    []reportRow
	AsOf    string
}

// WriteReport renders the table as a standalone HTML page.
func WriteReport(table *reconcile.Table, opts Options) ([]byte, error) {
	data := reportData{
		Label:   opts.Label,
		Company: table.CompanyHeading(),
		Created: opts.Now.Format(DateLayout),
		Columns: Columns,
		AsOf:    AsOfLine(table, opts.Now),
	}

	for _, r := range table.Records() {
		cells := Row(r, opts.TotalsLabel)
		data.Rows = append(data.Rows, reportRow{
			Total:      r.Total,
			UsageMonth: cells[0],
			Method:     cells[1],
			Billed:     FormatYen(r.Billed),
			Unpaid:     FormatYen(r.Unpaid),
			Invoice:    cells[4],
			Issued:     cells[5],
			Due:        cells[6],
			Paid:       cells[7],
			Company:    cells[8],
		})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
