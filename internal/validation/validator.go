// =============================================================================
// Billing Status Reconciler - Input Validation
// =============================================================================
//
// This module checks feed files against their schemas without exporting
// anything. It backs the 'validate' command.
//
// VALIDATION LEVELS:
//   1. File-level:  the file decodes with one of the feed's encodings
//   2. Feed-level:  the feed's required columns are present
//   3. Row-level:   dates and amounts parse, identities are complete
//
// ERROR HANDLING:
//   - Problems are collected, never returned early
//   - Each problem carries the feed, file, row and field it concerns
//   - "error" severity means the reconcile command would skip the file or
//     feed; "warning" means a value would be coerced
//
// =============================================================================

package validation

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/feed"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
	"github.com/ginjaninja78/billing-status-reconciler/internal/normalize"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single validation problem.
type ValidationError struct {
	// Severity is SeverityError or SeverityWarning.
	Severity string

	// Feed is the label of the feed being validated.
	Feed string

	// File is the source file name; empty for feed-level problems.
	File string

	// RowNumber is the 1-based data row; 0 for file and feed problems.
	RowNumber int

	// Field is the header of the offending column, if any.
	Field string

	// Value is the offending raw value, if any.
	Value string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var where []string
	if e.File != "" {
		where = append(where, e.File)
	}
	if e.RowNumber > 0 {
		where = append(where, fmt.Sprintf("row %d", e.RowNumber))
	}
	if e.Field != "" {
		where = append(where, fmt.Sprintf("field '%s'", e.Field))
	}

	msg := fmt.Sprintf("[%s] %s", strings.ToUpper(e.Severity), e.Feed)
	if len(where) > 0 {
		msg += " (" + strings.Join(where, ", ") + ")"
	}
	msg += ": " + e.Message
	if e.Value != "" {
		msg += fmt.Sprintf(" (value: '%s')", e.Value)
	}
	return msg
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no errors. Warnings do not count.
	IsValid bool

	// Errors contains all problems, warnings included.
	Errors []*ValidationError

	ErrorCount   int
	WarningCount int

	// FilesValidated is the number of files that decoded.
	FilesValidated int

	// RowsValidated is the number of data rows checked.
	RowsValidated int
}

func (r *ValidationResult) add(e *ValidationError) {
	r.Errors = append(r.Errors, e)
	if e.Severity == SeverityError {
		r.ErrorCount++
	} else {
		r.WarningCount++
	}
	r.IsValid = r.ErrorCount == 0
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator checks feed files against one configuration.
type Validator struct {
	cfg     *config.MainConfig
	options ValidationOptions
}

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors reports coercions as errors.
	TreatWarningsAsErrors bool

	// MaxRowProblems caps row-level problems reported per file; 0 means no
	// cap.
	MaxRowProblems int
}

// DefaultValidationOptions returns the default validation options.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{MaxRowProblems: 50}
}

// NewValidator creates a Validator. A nil cfg means built-in defaults.
func NewValidator(cfg *config.MainConfig) *Validator {
	return NewValidatorWithOptions(cfg, DefaultValidationOptions())
}

// NewValidatorWithOptions creates a Validator with custom options.
func NewValidatorWithOptions(cfg *config.MainConfig, options ValidationOptions) *Validator {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Validator{cfg: cfg, options: options}
}

// =============================================================================
// MAIN VALIDATION FUNCTIONS
// =============================================================================

// ValidateConfig reports configuration problems as one feed-less error.
func (v *Validator) ValidateConfig() *ValidationResult {
	result := &ValidationResult{IsValid: true}
	if err := v.cfg.Validate(); err != nil {
		for _, msg := range strings.Split(err.Error(), "; ") {
			result.add(&ValidationError{Severity: SeverityError, Feed: "config", Message: msg})
		}
	}
	return result
}

// ValidateFeeds checks the deferred and direct files and merges the results.
func (v *Validator) ValidateFeeds(deferred, direct []ingest.Source) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	v.validateFeed(result, v.cfg.Feeds.Deferred, deferred, v.checkDeferredRow)
	v.validateFeed(result, v.cfg.Feeds.Direct, direct, v.checkDirectRow)
	return result
}

// rowCheck inspects one normalized row and reports problems through add.
type rowCheck func(res *normalize.Result, fc config.FeedConfig, row ingest.Row, add func(field, value, msg string, sev string))

// validateFeed validates each file of one feed on its own so problems point
// at the file they came from.
func (v *Validator) validateFeed(result *ValidationResult, fc config.FeedConfig, sources []ingest.Source, check rowCheck) {
	opts := ingest.Options{Encodings: fc.EffectiveEncodings(v.cfg.Encodings), Delimiter: fc.Delimiter}

	for _, src := range sources {
		table, _, err := ingest.Parse(src, opts)
		if err != nil {
			result.add(&ValidationError{
				Severity: SeverityError,
				Feed:     fc.Label,
				File:     src.Name,
				Message:  err.Error(),
			})
			continue
		}
		result.FilesValidated++

		res, err := normalize.Apply(table, fc)
		if err != nil {
			var missing *normalize.MissingColumnError
			msg := err.Error()
			if errors.As(err, &missing) {
				msg = "missing required columns: " + strings.Join(missing.Columns, ", ")
			}
			result.add(&ValidationError{
				Severity: SeverityError,
				Feed:     fc.Label,
				File:     src.Name,
				Message:  msg,
			})
			continue
		}

		reported := 0
		for i, row := range res.Table.Rows {
			result.RowsValidated++
			check(res, fc, row, func(field, value, msg, sev string) {
				if v.options.MaxRowProblems > 0 && reported >= v.options.MaxRowProblems {
					return
				}
				if v.options.TreatWarningsAsErrors {
					sev = SeverityError
				}
				reported++
				result.add(&ValidationError{
					Severity:  sev,
					Feed:      fc.Label,
					File:      src.Name,
					RowNumber: i + 1,
					Field:     field,
					Value:     value,
					Message:   msg,
				})
			})
		}
	}
}

func (v *Validator) checkDeferredRow(res *normalize.Result, fc config.FeedConfig, row ingest.Row, add func(field, value, msg, sev string)) {
	checkDate(res, fc, row, config.FieldIssueDate, add)
	checkDate(res, fc, row, config.FieldDueDate, add)
	checkAmount(res, fc, row, config.FieldBilledAmount, add)

	if status, _ := res.Value(row, config.FieldPaymentStatus); status == "" {
		add(fc.Header(config.FieldPaymentStatus), "", "empty payment status is treated as unpaid", SeverityWarning)
	}
}

func (v *Validator) checkDirectRow(res *normalize.Result, fc config.FeedConfig, row ingest.Row, add func(field, value, msg, sev string)) {
	checkDate(res, fc, row, config.FieldIssueDate, add)
	checkDate(res, fc, row, config.FieldDueDate, add)
	checkAmount(res, fc, row, config.FieldAmount, add)

	for _, field := range []string{config.FieldDocumentNumber, config.FieldCounterparty} {
		if value, _ := res.Value(row, field); value == "" {
			add(fc.Header(field), "", "empty value weakens the invoice identity", SeverityWarning)
		}
	}
}

func checkDate(res *normalize.Result, fc config.FeedConfig, row ingest.Row, field string, add func(field, value, msg, sev string)) {
	raw, _ := res.Value(row, field)
	if _, ok := feed.ParseDate(raw); !ok {
		add(fc.Header(field), raw, "unparseable date becomes null", SeverityWarning)
	}
}

func checkAmount(res *normalize.Result, fc config.FeedConfig, row ingest.Row, field string, add func(field, value, msg, sev string)) {
	raw, _ := res.Value(row, field)
	amount, ok := feed.ParseAmount(raw)
	switch {
	case !ok:
		add(fc.Header(field), raw, "unparseable amount becomes 0", SeverityWarning)
	case amount.IsNegative():
		add(fc.Header(field), raw, "negative amount is clamped to 0", SeverityWarning)
	}
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
//
// PARAMETERS:
//   - errors: The validation errors to format.
//
// RETURNS:
//   - A formatted string containing all errors.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d problem(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes validation errors to a log file.
//
// PARAMETERS:
//   - errors: The validation errors to write.
//   - filePath: The path to the output file.
//   - now: The time stamped into the header.
//
// RETURNS:
//   - An error if writing fails.
func WriteErrorLog(errors []*ValidationError, filePath string, now time.Time) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "Validation run: %s\n\n", now.Format(time.RFC3339))
	writer.WriteString(FormatErrors(errors))
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	return nil
}
