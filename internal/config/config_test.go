package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMainConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadMainConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadMainConfig returned error: %v", err)
	}
	if cfg.Export.Format != FormatXLSX {
		t.Errorf("expected default format %q, got %q", FormatXLSX, cfg.Export.Format)
	}
	if got := cfg.Encodings; len(got) != 2 || got[0] != EncodingUTF8 || got[1] != EncodingShiftJIS {
		t.Errorf("unexpected default encodings: %v", got)
	}
	if cfg.Feeds.Deferred.PaidStatus != "入金済み" {
		t.Errorf("unexpected paid status: %q", cfg.Feeds.Deferred.PaidStatus)
	}
	if cfg.Feeds.Direct.BillingMethod.Value != "直接請求" {
		t.Errorf("unexpected direct billing method: %q", cfg.Feeds.Direct.BillingMethod.Value)
	}
	if h := cfg.Feeds.Deferred.Header(FieldPaymentStatus); h != "入金ステータス" {
		t.Errorf("unexpected payment status header: %q", h)
	}
}

func TestLoadMainConfigParsesYaml(t *testing.T) {
	dir := t.TempDir()
	configYAML := strings.TrimSpace(`
output_dir: ./exports
encodings: [shift_jis, utf-8]
feeds:
  deferred:
    paid_status: 入金完了
  direct:
    billing_method:
      source: column
      value: 直接請求
      lookup:
        請求書: 請求書払い
export:
  format: csv
  encoding: cp932
  split: true
`)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadMainConfig(path)
	if err != nil {
		t.Fatalf("LoadMainConfig returned error: %v", err)
	}
	if cfg.OutputDir != "./exports" {
		t.Errorf("output dir = %q", cfg.OutputDir)
	}
	if cfg.Encodings[0] != EncodingShiftJIS {
		t.Errorf("expected shift_jis first, got %v", cfg.Encodings)
	}
	if cfg.Feeds.Deferred.PaidStatus != "入金完了" {
		t.Errorf("paid status = %q", cfg.Feeds.Deferred.PaidStatus)
	}
	if len(cfg.Feeds.Deferred.Columns) == 0 {
		t.Error("expected default deferred columns to be applied")
	}
	bm := cfg.Feeds.Direct.BillingMethod
	if bm.Source != BillingMethodColumn || bm.Lookup["請求書"] != "請求書払い" {
		t.Errorf("unexpected billing method config: %+v", bm)
	}
	if cfg.Export.Format != FormatCSV || cfg.Export.Encoding != EncodingCP932 || !cfg.Export.Split {
		t.Errorf("unexpected export config: %+v", cfg.Export)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MainConfig)
		want   string
	}{
		{"unknown input encoding", func(c *MainConfig) { c.Encodings = []string{"latin-9"} }, "unknown input encoding"},
		{"unknown format", func(c *MainConfig) { c.Export.Format = "pdf" }, "unknown export format"},
		{"unknown export encoding", func(c *MainConfig) { c.Export.Encoding = "shift_jis" }, "unknown export encoding"},
		{"missing required field", func(c *MainConfig) {
			c.Feeds.Deferred.Columns = c.Feeds.Deferred.Columns[:3]
		}, `field "payment_status" has no column`},
		{"column source without document type", func(c *MainConfig) {
			c.Feeds.Deferred.BillingMethod.Source = BillingMethodColumn
		}, "needs a \"document_type\" column"},
		{"unknown billing source", func(c *MainConfig) {
			c.Feeds.Direct.BillingMethod.Source = "guess"
		}, "unknown billing_method source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestEffectiveEncodings(t *testing.T) {
	global := []string{EncodingUTF8, EncodingShiftJIS}
	feed := DefaultDirectFeed()
	if got := feed.EffectiveEncodings(global); len(got) != 2 {
		t.Fatalf("expected global encodings, got %v", got)
	}
	feed.Encodings = []string{EncodingUTF8Sig}
	if got := feed.EffectiveEncodings(global); len(got) != 1 || got[0] != EncodingUTF8Sig {
		t.Fatalf("expected feed override, got %v", got)
	}
}
