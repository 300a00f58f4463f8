package export

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/reconcile"
)

var fixedNow = time.Date(2024, time.June, 15, 9, 30, 0, 0, time.UTC)

func sampleTable() *reconcile.Table {
	return reconcile.Reconcile(
		[]billing.CommonRecord{
			billing.NewRecord("NP掛け払い", decimal.NewFromInt(10000), billing.Paid, "NP-1",
				billing.NewDate(2024, time.June, 1), billing.NewDate(2024, time.June, 30), "A社"),
		},
		[]billing.CommonRecord{
			billing.NewRecord("直接請求", decimal.NewFromInt(25500), billing.Unpaid, "INV-1",
				billing.NewDate(2024, time.June, 2), billing.Date{}, "B社"),
		},
	)
}

func TestRow(t *testing.T) {
	records := sampleTable().Records()

	got := Row(records[1], "合計")
	want := []string{"2024年06月", "直接請求", "25500", "25500", "INV-1", "2024/06/02", "", "なし", "B社"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("row = %v, want %v", got, want)
	}

	totals := Row(records[2], "合計")
	if totals[1] != "合計" || totals[2] != "35500" || totals[0] != "" || totals[7] != "" {
		t.Errorf("totals row = %v", totals)
	}
}

func TestCSVWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{Encoding: "utf-8", TotalsLabel: "合計"}
	if err := w.Write(&buf, sampleTable()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.HasPrefix(output, strings.Join(Columns, ",")) {
		t.Error("expected column headers first")
	}
	if !strings.Contains(output, "2024年06月,NP掛け払い,10000,0,NP-1,2024/06/01,2024/06/30,あり,A社") {
		t.Errorf("expected paid NP row, got:\n%s", output)
	}
	if !strings.Contains(output, ",合計,35500,25500,") {
		t.Errorf("expected totals row, got:\n%s", output)
	}
}

func TestCSVWriterEncodings(t *testing.T) {
	t.Run("utf-8-bom", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&CSVWriter{Encoding: "utf-8-bom"}).Write(&buf, sampleTable()); err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}) {
			t.Error("expected a BOM")
		}
	})

	t.Run("cp932", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&CSVWriter{Encoding: "cp932", TotalsLabel: "合計"}).Write(&buf, sampleTable()); err != nil {
			t.Fatal(err)
		}
		decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(buf.Bytes())
		if err != nil {
			t.Fatalf("output is not Shift_JIS: %v", err)
		}
		if !strings.Contains(string(decoded), "直接請求") {
			t.Errorf("decoded output lacks billing method:\n%s", decoded)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := (&CSVWriter{Encoding: "latin-1"}).Write(io.Discard, sampleTable()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestRenderFormats(t *testing.T) {
	tests := []struct {
		format      string
		split       bool
		wantExt     string
		contentType string
	}{
		{"xlsx", false, ".xlsx", ContentTypeXLSX},
		{"csv", false, ".csv", ContentTypeCSV},
		{"csv", true, ".zip", ContentTypeZIP},
		{"zip", false, ".zip", ContentTypeZIP},
		{"html", false, ".html", ContentTypeHTML},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			art, err := Render(sampleTable(), Options{Format: tt.format, Split: tt.split, Now: fixedNow})
			if err != nil {
				t.Fatalf("Render returned error: %v", err)
			}
			if !strings.HasSuffix(art.Filename, tt.wantExt) {
				t.Errorf("filename = %q, want suffix %q", art.Filename, tt.wantExt)
			}
			if !strings.HasPrefix(art.Filename, "ご請求およびご入金状況一覧_20240615_093000") {
				t.Errorf("filename = %q", art.Filename)
			}
			if art.ContentType != tt.contentType || len(art.Data) == 0 {
				t.Errorf("unexpected artifact: %s, %d bytes", art.ContentType, len(art.Data))
			}
		})
	}
}

func TestRenderEmptyAndUnknown(t *testing.T) {
	if _, err := Render(reconcile.Reconcile(), Options{}); !errors.Is(err, reconcile.ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}
	if _, err := Render(sampleTable(), Options{Format: "pdf"}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestWriteWorkbookSplit(t *testing.T) {
	data, err := WriteWorkbook(sampleTable(), withDefaults(Options{Split: true, Now: fixedNow}))
	if err != nil {
		t.Fatalf("WriteWorkbook returned error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "ご入金状況一覧" {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := f.GetRows("ご入金状況一覧")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[0][0] != "ご利用年月" || rows[3][1] != "合計" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	raw, err := f.GetCellValue("ご入金状況一覧", "C4", excelize.Options{RawCellValue: true})
	if err != nil || raw != "35500" {
		t.Errorf("total billed cell = %q, %v", raw, err)
	}
}

func TestWriteZipSplit(t *testing.T) {
	data, err := WriteZip(sampleTable(), withDefaults(Options{Split: true, Now: fixedNow}))
	if err != nil {
		t.Fatalf("WriteZip returned error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("entries = %d, want 3", len(zr.File))
	}
	if !strings.Contains(zr.File[2].Name, "直接請求") {
		t.Errorf("split entry name = %q", zr.File[2].Name)
	}
}

func TestWriteZipFlatEntryNames(t *testing.T) {
	table := reconcile.Reconcile([]billing.CommonRecord{
		billing.NewRecord("請求書/納品書", decimal.NewFromInt(1000), billing.Unpaid, "INV-1",
			billing.NewDate(2024, time.June, 1), billing.Date{}, "A社"),
		billing.NewRecord("請求書_納品書", decimal.NewFromInt(2000), billing.Unpaid, "INV-2",
			billing.NewDate(2024, time.June, 2), billing.Date{}, "A社"),
	})
	opts := withDefaults(Options{Split: true, Now: fixedNow, FilenamePattern: "../exports/{label}"})

	data, err := WriteZip(table, opts)
	if err != nil {
		t.Fatalf("WriteZip returned error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("entries = %d, want 3", len(zr.File))
	}

	seen := make(map[string]bool)
	for _, f := range zr.File {
		if strings.ContainsAny(f.Name, "/\\") || strings.HasPrefix(f.Name, ".") {
			t.Errorf("entry %q is not a flat file name", f.Name)
		}
		if seen[f.Name] {
			t.Errorf("duplicate entry %q", f.Name)
		}
		seen[f.Name] = true
	}
}

func TestEntryName(t *testing.T) {
	used := make(map[string]bool)
	tests := []struct{ in, want string }{
		{"a/b.csv", "a_b.csv"},
		{"a_b.csv", "a_b (2).csv"},
		{"..", "export.csv"},
	}
	for _, tt := range tests {
		if got := entryName(tt.in, used); got != tt.want {
			t.Errorf("entryName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteReport(t *testing.T) {
	data, err := WriteReport(sampleTable(), withDefaults(Options{Now: fixedNow}))
	if err != nil {
		t.Fatalf("WriteReport returned error: %v", err)
	}

	html := string(data)
	for _, want := range []string{
		"A社, B社 他さま",
		"作成日: 2024/06/15",
		"35,500",
		"※2024年06月時点での未入金合計金額: 25,500円",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report lacks %q", want)
		}
	}
}

func TestFormatYen(t *testing.T) {
	tests := map[string]string{
		"0":       "0",
		"999":     "999",
		"1000":    "1,000",
		"35500":   "35,500",
		"1234567": "1,234,567",
		"-2500":   "-2,500",
		"1000.6":  "1,001",
	}
	for in, want := range tests {
		if got := FormatYen(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatYen(%s) = %q, want %q", in, got, want)
		}
	}
}
