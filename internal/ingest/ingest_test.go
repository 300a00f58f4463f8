package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
)

func mustShiftJIS(t *testing.T, s string) []byte {
	t.Helper()
	b, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode shift_jis: %v", err)
	}
	return b
}

func TestParseUTF8(t *testing.T) {
	src := Source{Name: "np.csv", Data: []byte("請求書発行日,請求金額\n2024/06/01,10000\n2024/06/02,2500\n")}

	table, enc, err := Parse(src, Options{Encodings: []string{"utf-8", "shift_jis"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if enc != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", enc)
	}
	if len(table.Headers) != 2 || table.Headers[0] != "請求書発行日" {
		t.Fatalf("unexpected headers: %v", table.Headers)
	}
	if table.Len() != 2 {
		t.Fatalf("rows = %d, want 2", table.Len())
	}
	if v, _ := table.Rows[1].Get("請求金額"); v != "2500" {
		t.Errorf("second amount = %q", v)
	}
}

func TestParseFallsBackToShiftJIS(t *testing.T) {
	data := mustShiftJIS(t, "日付,送付先名,金額\n2024/06/01,株式会社テスト,5500\n")

	table, enc, err := Parse(Source{Name: "bakuraku.csv", Data: data}, Options{Encodings: []string{"utf-8", "shift_jis"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if enc != "shift_jis" {
		t.Fatalf("encoding = %q, want shift_jis", enc)
	}
	if v, _ := table.Rows[0].Get("送付先名"); v != "株式会社テスト" {
		t.Errorf("counterparty = %q", v)
	}
}

func TestParseStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("日付,金額\n2024/06/01,1\n")...)

	for _, enc := range []string{"utf-8", "utf-8-sig"} {
		t.Run(enc, func(t *testing.T) {
			table, _, err := Parse(Source{Name: "x.csv", Data: data}, Options{Encodings: []string{enc}})
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if table.Headers[0] != "日付" {
				t.Fatalf("first header = %q", table.Headers[0])
			}
		})
	}
}

func TestParseDecodeError(t *testing.T) {
	data := mustShiftJIS(t, "日付,金額\n")

	_, _, err := Parse(Source{Name: "broken.csv", Data: data}, Options{Encodings: []string{"utf-8"}})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if decodeErr.Source != "broken.csv" || len(decodeErr.Tried) != 1 {
		t.Errorf("unexpected error contents: %+v", decodeErr)
	}
}

func TestShortRowsLeaveNulls(t *testing.T) {
	src := Source{Name: "x.csv", Data: []byte("a,b,c\n1,2\n")}

	table, _, err := Parse(src, Options{Encodings: []string{"utf-8"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if _, ok := table.Rows[0].Get("c"); ok {
		t.Error("expected column c to be null for a short row")
	}
	if v, ok := table.Rows[0].Get("b"); !ok || v != "2" {
		t.Errorf("b = %q, %v", v, ok)
	}
}

func TestUniqueHeaders(t *testing.T) {
	got := uniqueHeaders([]string{"a", "", "a", "a"})
	want := []string{"a", "Column_2", "a.1", "a.2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("headers = %v, want %v", got, want)
		}
	}
}

func TestLoadConcatenatesAndReportsFailures(t *testing.T) {
	sources := []Source{
		{Name: "one.csv", Data: []byte("日付,金額\n2024/06/01,100\n")},
		{Name: "bad.csv", Data: mustShiftJIS(t, "日付,金額\n")},
		{Name: "two.csv", Data: []byte("日付,書類番号\n2024/06/02,B-2\n")},
	}

	table, failed := Load(sources, Options{Encodings: []string{"utf-8"}})
	if len(failed) != 1 || failed[0].Source != "bad.csv" {
		t.Fatalf("unexpected failures: %v", failed)
	}
	if table.Len() != 2 {
		t.Fatalf("rows = %d, want 2", table.Len())
	}
	if !table.HasHeader("書類番号") || !table.HasHeader("金額") {
		t.Fatalf("expected header union, got %v", table.Headers)
	}
	if _, ok := table.Rows[0].Get("書類番号"); ok {
		t.Error("first row should have a null 書類番号")
	}
}

func TestLoadAllFailed(t *testing.T) {
	table, failed := Load([]Source{{Name: "bad.csv", Data: []byte{0xff, 0xfe, 0xfd}}}, Options{Encodings: []string{"utf-8"}})
	if table != nil {
		t.Fatalf("expected nil table, got %+v", table)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failure, got %d", len(failed))
	}
}

func TestParseWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"書類番号", "金額"})
	_ = f.SetSheetRow(sheet, "A2", &[]any{"B-1", "5500"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	table, enc, err := Parse(Source{Name: "direct.xlsx", Data: buf.Bytes()}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if enc != "xlsx" {
		t.Errorf("encoding = %q, want xlsx", enc)
	}
	if v, _ := table.Rows[0].Get("金額"); v != "5500" {
		t.Errorf("amount = %q", v)
	}
}

func TestParseWorkbookDateCells(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetSheetRow(sheet, "A1", &[]any{"日付", "支払期日", "請求日付", "金額", "書類番号"})
	_ = f.SetCellValue(sheet, "A2", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	_ = f.SetCellValue(sheet, "B2", time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC))
	_ = f.SetCellValue(sheet, "C2", 45444)
	_ = f.SetCellValue(sheet, "D2", 25500)
	_ = f.SetCellValue(sheet, "E2", "12345")

	custom := "yyyy\"年\"m\"月\"d\"日\""
	styleID, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	if err != nil {
		t.Fatalf("new style: %v", err)
	}
	_ = f.SetCellStyle(sheet, "C2", "C2", styleID)

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		t.Fatalf("new style: %v", err)
	}
	_ = f.SetCellStyle(sheet, "D2", "D2", amountStyle)

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	table, _, err := Parse(Source{Name: "direct.xlsx", Data: buf.Bytes()}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	want := map[string]string{
		"日付":   "2024/06/01",
		"支払期日": "2024/06/30",
		"請求日付": "2024/06/01",
		"金額":   "25500",
		"書類番号": "12345",
	}
	for header, w := range want {
		if got, _ := table.Rows[0].Get(header); got != w {
			t.Errorf("%s = %q, want %q", header, got, w)
		}
	}
}

func TestIsDateFormatCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"yyyy/mm/dd", true},
		{"yyyy\"年\"m\"月\"d\"日\"", true},
		{"[$-411]ge.m.d", true},
		{"#,##0", false},
		{"#,##0\"円\"", false},
		{"[Red]#,##0;\\-#,##0", false},
		{"h:mm", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := isDateFormatCode(tt.code); got != tt.want {
				t.Errorf("isDateFormatCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
