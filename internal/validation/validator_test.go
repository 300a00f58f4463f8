package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
)

const cleanDeferred = `請求書発行日,支払期限日,請求金額,入金ステータス,企業名
2024/06/01,2024/06/30,10000,入金済み,A社
`

const cleanDirect = `日付,支払期日,書類番号,送付先名,金額
2024/06/02,2024/06/30,INV-1,B社,25500
`

func src(name, data string) []ingest.Source {
	return []ingest.Source{{Name: name, Data: []byte(data)}}
}

func TestValidateFeedsClean(t *testing.T) {
	result := NewValidator(nil).ValidateFeeds(src("np.csv", cleanDeferred), src("b.csv", cleanDirect))
	if !result.IsValid || len(result.Errors) != 0 {
		t.Fatalf("expected clean result, got %s", FormatErrors(result.Errors))
	}
	if result.FilesValidated != 2 || result.RowsValidated != 2 {
		t.Errorf("files=%d rows=%d", result.FilesValidated, result.RowsValidated)
	}
}

func TestValidateFeedsProblems(t *testing.T) {
	tests := []struct {
		name     string
		deferred []ingest.Source
		direct   []ingest.Source
		valid    bool
		errors   int
		warnings int
		contains string
	}{
		{
			name:     "missing status column",
			deferred: src("np.csv", strings.Replace(cleanDeferred, "入金ステータス", "状況", 1)),
			valid:    false,
			errors:   1,
			contains: "入金ステータス",
		},
		{
			name:     "undecodable file",
			direct:   []ingest.Source{{Name: "broken.csv", Data: []byte{0xff, 0xfe, 0x00, 0x81}}},
			valid:    false,
			errors:   1,
			contains: "broken.csv",
		},
		{
			name:     "bad values",
			direct:   src("b.csv", "日付,支払期日,書類番号,送付先名,金額\nsoon,2024/06/30,,B社,-5\n"),
			valid:    true,
			warnings: 3,
			contains: "row 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewValidator(nil).ValidateFeeds(tt.deferred, tt.direct)
			if result.IsValid != tt.valid {
				t.Errorf("IsValid = %v, want %v", result.IsValid, tt.valid)
			}
			if result.ErrorCount != tt.errors || result.WarningCount != tt.warnings {
				t.Errorf("errors=%d warnings=%d, want %d/%d:\n%s",
					result.ErrorCount, result.WarningCount, tt.errors, tt.warnings, FormatErrors(result.Errors))
			}
			if !strings.Contains(FormatErrors(result.Errors), tt.contains) {
				t.Errorf("expected %q in:\n%s", tt.contains, FormatErrors(result.Errors))
			}
		})
	}
}

func TestTreatWarningsAsErrors(t *testing.T) {
	v := NewValidatorWithOptions(nil, ValidationOptions{TreatWarningsAsErrors: true})
	result := v.ValidateFeeds(nil, src("b.csv", "日付,支払期日,書類番号,送付先名,金額\n2024/06/01,2024/06/30,INV-1,B社,abc\n"))
	if result.IsValid || result.ErrorCount != 1 {
		t.Errorf("expected one error, got %s", FormatErrors(result.Errors))
	}
}

func TestMaxRowProblems(t *testing.T) {
	var b strings.Builder
	b.WriteString("日付,支払期日,書類番号,送付先名,金額\n")
	for i := 0; i < 10; i++ {
		b.WriteString("x,2024/06/30,INV,B社,1\n")
	}
	v := NewValidatorWithOptions(nil, ValidationOptions{MaxRowProblems: 3})
	result := v.ValidateFeeds(nil, src("b.csv", b.String()))
	if len(result.Errors) != 3 || result.RowsValidated != 10 {
		t.Errorf("problems=%d rows=%d", len(result.Errors), result.RowsValidated)
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Export.Format = "pdf"
	cfg.Export.Encoding = "latin1"

	result := NewValidator(cfg).ValidateConfig()
	if result.IsValid || result.ErrorCount != 2 {
		t.Errorf("expected two config errors, got %s", FormatErrors(result.Errors))
	}
}

func TestWriteErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	errs := []*ValidationError{{Severity: SeverityError, Feed: "NP掛け払い", File: "np.csv", Message: "bad"}}

	if err := WriteErrorLog(errs, path, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteErrorLog: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2024-06-01T00:00:00Z", "[ERROR] NP掛け払い (np.csv): bad"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log missing %q:\n%s", want, data)
		}
	}
}

func TestFormatErrorsEmpty(t *testing.T) {
	if got := FormatErrors(nil); got != "No validation errors." {
		t.Errorf("FormatErrors(nil) = %q", got)
	}
}
