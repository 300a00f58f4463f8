// =============================================================================
// Billing Status Reconciler - Configuration Module
// =============================================================================
//
// This module is responsible for loading and validating the application
// configuration. One YAML file describes:
//   1. Global settings (directories, logging, encoding fallback order)
//   2. One schema per feed (deferred-payment and direct-invoice)
//   3. Export defaults (format, text encoding, file naming)
//   4. Optional remote destinations (Google Sheets, Cloud Storage)
//
// ARCHITECTURE:
//   The many near-identical revisions of the reconciliation script differed
//   only in which columns they tolerated, which encodings they tried and how
//   the billing method was derived. All of those knobs live here, so one
//   pipeline serves every variant.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// FIELD KEYS
// =============================================================================
// Field keys name the logical columns a transformer reads. The source header
// for each key is configured per feed.

const (
	FieldIssueDate      = "issue_date"
	FieldDueDate        = "due_date"
	FieldBilledAmount   = "billed_amount"
	FieldPaymentStatus  = "payment_status"
	FieldCompanyName    = "company_name"
	FieldInvoiceNumber  = "invoice_number"
	FieldDocumentNumber = "document_number"
	FieldCounterparty   = "counterparty_name"
	FieldAmount         = "amount"
	FieldDocumentType   = "document_type"
)

// =============================================================================
// ENCODING AND FORMAT NAMES
// =============================================================================

// Text encoding names accepted in configuration and flags.
const (
	EncodingUTF8     = "utf-8"
	EncodingUTF8BOM  = "utf-8-bom"
	EncodingUTF8Sig  = "utf-8-sig"
	EncodingShiftJIS = "shift_jis"
	EncodingCP932    = "cp932"
	EncodingEUCJP    = "euc-jp"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatZIP  = "zip"
	FormatHTML = "html"
)

// Billing method sources.
const (
	BillingMethodFixed  = "fixed"
	BillingMethodColumn = "column"
)

// KnownInputEncodings lists the encodings the ingestion stage can try.
var KnownInputEncodings = []string{
	EncodingUTF8, EncodingUTF8Sig, EncodingUTF8BOM, EncodingShiftJIS, EncodingCP932, EncodingEUCJP,
}

// KnownOutputEncodings lists the encodings delimited-text exports can use.
var KnownOutputEncodings = []string{EncodingUTF8, EncodingUTF8BOM, EncodingCP932}

// KnownFormats lists the supported export formats.
var KnownFormats = []string{FormatXLSX, FormatCSV, FormatZIP, FormatHTML}

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the whole application configuration.
type MainConfig struct {
	// InputDir is scanned for feed files when none are given on the command
	// line. Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir receives export artifacts. Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error". Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "console" (human readable) or "json". Default: "console"
	LogFormat string `yaml:"log_format"`

	// Encodings is the ordered fallback list tried when decoding an input
	// file. A feed may override it. Default: utf-8, shift_jis
	Encodings []string `yaml:"encodings"`

	// Feeds holds one schema per feed type.
	Feeds FeedsConfig `yaml:"feeds"`

	// Export holds export defaults; command-line flags override them.
	Export ExportConfig `yaml:"export"`

	// Remote holds optional remote destinations.
	Remote RemoteConfig `yaml:"remote"`
}

// FeedsConfig groups the two feed schemas.
type FeedsConfig struct {
	Deferred FeedConfig `yaml:"deferred"`
	Direct   FeedConfig `yaml:"direct"`
}

// =============================================================================
// FEED CONFIGURATION STRUCTURE
// =============================================================================

// FeedConfig describes how one feed type is read and interpreted.
type FeedConfig struct {
	// Label is the human-readable feed name used in logs and messages.
	Label string `yaml:"label"`

	// FileMatchingPatterns are glob patterns used to discover this feed's
	// files in the input directory.
	FileMatchingPatterns []string `yaml:"file_matching_patterns"`

	// Encodings overrides the global fallback order for this feed.
	Encodings []string `yaml:"encodings"`

	// Delimiter is the field separator. Default: ","
	Delimiter string `yaml:"delimiter"`

	// Columns maps field keys to source headers.
	Columns []ColumnConfig `yaml:"columns"`

	// BillingMethod decides the billing_method of produced records.
	BillingMethod BillingMethodConfig `yaml:"billing_method"`

	// PaidStatus is the exact payment-status literal meaning "paid".
	// Only used by the deferred-payment feed.
	PaidStatus string `yaml:"paid_status,omitempty"`
}

// ColumnConfig binds one field key to its source header.
type ColumnConfig struct {
	// Field is the logical field key (see the Field* constants).
	Field string `yaml:"field"`

	// Header is the canonical source header.
	Header string `yaml:"header"`

	// Aliases are alternative headers seen in older exports; they are
	// renamed onto Header during normalization.
	Aliases []string `yaml:"aliases,omitempty"`

	// Required columns must be present; optional ones are created empty.
	Required bool `yaml:"required"`
}

// BillingMethodConfig decides how billing_method is derived.
type BillingMethodConfig struct {
	// Source is "fixed" (use Value) or "column" (read the document_type
	// column, map it through Lookup, fall back to Value when empty).
	Source string `yaml:"source"`

	// Value is the fixed literal or the fallback.
	Value string `yaml:"value"`

	// Lookup maps document-type values to billing method labels.
	Lookup map[string]string `yaml:"lookup,omitempty"`
}

// =============================================================================
// EXPORT AND REMOTE CONFIGURATION
// =============================================================================

// ExportConfig holds export defaults.
type ExportConfig struct {
	// Format is one of xlsx, csv, zip, html. Default: "xlsx"
	Format string `yaml:"format"`

	// Encoding is used for delimited-text output.
	// Valid values: "utf-8", "utf-8-bom", "cp932". Default: "utf-8"
	Encoding string `yaml:"encoding"`

	// Split additionally emits one sheet / file per billing method.
	Split bool `yaml:"split"`

	// Label is the feed label placed in file names.
	Label string `yaml:"label"`

	// FilenamePattern supports {label}, {timestamp} and {uuid}.
	// Default: "{label}_{timestamp}"
	FilenamePattern string `yaml:"filename_pattern"`

	// SheetName is the workbook sheet holding the combined table.
	SheetName string `yaml:"sheet_name"`

	// TotalsLabel is rendered in the billing-method column of the totals row.
	TotalsLabel string `yaml:"totals_label"`
}

// RemoteConfig holds optional remote destinations.
type RemoteConfig struct {
	Sheets SheetsConfig `yaml:"sheets"`
	GCS    GCSConfig    `yaml:"gcs"`
}

// SheetsConfig addresses a Google Sheets range.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Range           string `yaml:"range"`
	CredentialsFile string `yaml:"credentials_file"`
}

// GCSConfig addresses a Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file. A missing file is not
//     an error; the built-in defaults are used instead.
//
// RETURNS:
//   - A pointer to the MainConfig struct with defaults applied.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Built-in defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	ApplyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration made of built-in defaults only.
func Default() *MainConfig {
	var config MainConfig
	ApplyDefaults(&config)
	return &config
}

// ApplyDefaults sets default values for any unset configuration options.
func ApplyDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "console"
	}
	if len(config.Encodings) == 0 {
		config.Encodings = []string{EncodingUTF8, EncodingShiftJIS}
	}

	applyFeedDefaults(&config.Feeds.Deferred, DefaultDeferredFeed())
	applyFeedDefaults(&config.Feeds.Direct, DefaultDirectFeed())

	if config.Export.Format == "" {
		config.Export.Format = FormatXLSX
	}
	if config.Export.Encoding == "" {
		config.Export.Encoding = EncodingUTF8
	}
	if config.Export.Label == "" {
		config.Export.Label = "ご請求およびご入金状況一覧"
	}
	if config.Export.FilenamePattern == "" {
		config.Export.FilenamePattern = "{label}_{timestamp}"
	}
	if config.Export.SheetName == "" {
		config.Export.SheetName = "ご入金状況一覧"
	}
	if config.Export.TotalsLabel == "" {
		config.Export.TotalsLabel = "合計"
	}
	if config.Remote.Sheets.Range == "" {
		config.Remote.Sheets.Range = "Sheet1!A1"
	}
}

// applyFeedDefaults fills empty fields of feed from def.
func applyFeedDefaults(feed *FeedConfig, def FeedConfig) {
	if feed.Label == "" {
		feed.Label = def.Label
	}
	if len(feed.FileMatchingPatterns) == 0 {
		feed.FileMatchingPatterns = def.FileMatchingPatterns
	}
	if feed.Delimiter == "" {
		feed.Delimiter = def.Delimiter
	}
	if len(feed.Columns) == 0 {
		feed.Columns = def.Columns
	}
	if feed.BillingMethod.Source == "" {
		feed.BillingMethod.Source = def.BillingMethod.Source
	}
	if feed.BillingMethod.Value == "" {
		feed.BillingMethod.Value = def.BillingMethod.Value
	}
	if feed.PaidStatus == "" {
		feed.PaidStatus = def.PaidStatus
	}
}

// DefaultDeferredFeed returns the built-in deferred-payment (NP掛け払い) schema.
func DefaultDeferredFeed() FeedConfig {
	return FeedConfig{
		Label:                "NP掛け払い",
		FileMatchingPatterns: []string{"*np*.csv", "*NP*.csv", "*掛け払い*.csv"},
		Delimiter:            ",",
		Columns: []ColumnConfig{
			{Field: FieldIssueDate, Header: "請求書発行日", Aliases: []string{"請求日付"}, Required: true},
			{Field: FieldDueDate, Header: "支払期限日", Aliases: []string{"お支払期日", "支払期日"}, Required: true},
			{Field: FieldBilledAmount, Header: "請求金額", Required: true},
			{Field: FieldPaymentStatus, Header: "入金ステータス", Required: true},
			{Field: FieldCompanyName, Header: "企業名", Aliases: []string{"顧客名"}},
			{Field: FieldInvoiceNumber, Header: "請求番号"},
		},
		BillingMethod: BillingMethodConfig{Source: BillingMethodFixed, Value: "NP掛け払い"},
		PaidStatus:    "入金済み",
	}
}

// DefaultDirectFeed returns the built-in direct-invoice (バクラク請求書) schema.
func DefaultDirectFeed() FeedConfig {
	return FeedConfig{
		Label:                "バクラク請求書",
		FileMatchingPatterns: []string{"*bakuraku*.csv", "*バクラク*.csv"},
		Delimiter:            ",",
		Columns: []ColumnConfig{
			{Field: FieldIssueDate, Header: "日付", Required: true},
			{Field: FieldDueDate, Header: "支払期日", Aliases: []string{"支払期限日"}, Required: true},
			{Field: FieldDocumentNumber, Header: "書類番号", Required: true},
			{Field: FieldCounterparty, Header: "送付先名", Required: true},
			{Field: FieldAmount, Header: "金額", Required: true},
			{Field: FieldDocumentType, Header: "書類種別"},
		},
		BillingMethod: BillingMethodConfig{Source: BillingMethodFixed, Value: "直接請求"},
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values no stage can work with.
func (c *MainConfig) Validate() error {
	var problems []string

	for _, enc := range c.Encodings {
		if !contains(KnownInputEncodings, enc) {
			problems = append(problems, fmt.Sprintf("unknown input encoding %q", enc))
		}
	}

	problems = append(problems, c.Feeds.Deferred.validate("deferred",
		FieldIssueDate, FieldDueDate, FieldBilledAmount, FieldPaymentStatus)...)
	problems = append(problems, c.Feeds.Direct.validate("direct",
		FieldIssueDate, FieldDueDate, FieldDocumentNumber, FieldCounterparty, FieldAmount)...)

	if !contains(KnownFormats, c.Export.Format) {
		problems = append(problems, fmt.Sprintf("unknown export format %q", c.Export.Format))
	}
	if !contains(KnownOutputEncodings, c.Export.Encoding) {
		problems = append(problems, fmt.Sprintf("unknown export encoding %q", c.Export.Encoding))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// validate checks one feed schema; requiredFields must be bound to headers.
func (f *FeedConfig) validate(name string, requiredFields ...string) []string {
	var problems []string

	for _, enc := range f.Encodings {
		if !contains(KnownInputEncodings, enc) {
			problems = append(problems, fmt.Sprintf("feeds.%s: unknown input encoding %q", name, enc))
		}
	}

	seen := make(map[string]bool)
	for _, col := range f.Columns {
		if col.Field == "" || col.Header == "" {
			problems = append(problems, fmt.Sprintf("feeds.%s: column needs both field and header", name))
			continue
		}
		if seen[col.Field] {
			problems = append(problems, fmt.Sprintf("feeds.%s: field %q bound twice", name, col.Field))
		}
		seen[col.Field] = true
	}
	for _, field := range requiredFields {
		if !seen[field] {
			problems = append(problems, fmt.Sprintf("feeds.%s: field %q has no column", name, field))
		}
	}

	switch f.BillingMethod.Source {
	case BillingMethodFixed:
	case BillingMethodColumn:
		if !seen[FieldDocumentType] {
			problems = append(problems, fmt.Sprintf("feeds.%s: billing_method source %q needs a %q column", name, BillingMethodColumn, FieldDocumentType))
		}
	default:
		problems = append(problems, fmt.Sprintf("feeds.%s: unknown billing_method source %q", name, f.BillingMethod.Source))
	}

	return problems
}

// Column returns the column bound to field.
func (f *FeedConfig) Column(field string) (ColumnConfig, bool) {
	for _, col := range f.Columns {
		if col.Field == field {
			return col, true
		}
	}
	return ColumnConfig{}, false
}

// Header returns the source header bound to field, or "" when unbound.
func (f *FeedConfig) Header(field string) string {
	col, _ := f.Column(field)
	return col.Header
}

// EffectiveEncodings returns the feed's fallback order, or global when the
// feed does not override it.
func (f *FeedConfig) EffectiveEncodings(global []string) []string {
	if len(f.Encodings) > 0 {
		return f.Encodings
	}
	return global
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
