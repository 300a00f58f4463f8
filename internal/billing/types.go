// =============================================================================
// Billing Status Reconciler - Shared Billing Types
// =============================================================================
//
// This package contains the canonical record shapes shared by every stage of
// the pipeline. Types defined here are used by:
//   - feed       (produces CommonRecord values)
//   - selection  (keys manual marks by InvoiceIdentity)
//   - reconcile  (sorts and totals CommonRecord values)
//   - export     (renders CommonRecord values)
//
// =============================================================================

package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE
// =============================================================================

// Date is a nullable calendar date. The zero value is null.
type Date struct {
	t     time.Time
	valid bool
}

// NewDate returns a valid date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), valid: true}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Valid reports whether the date is non-null.
func (d Date) Valid() bool { return d.valid }

// Time returns the underlying time. It is the zero time for a null date.
func (d Date) Time() time.Time { return d.t }

// Format formats a non-null date with layout; null dates format as "".
func (d Date) Format(layout string) string {
	if !d.valid {
		return ""
	}
	return d.t.Format(layout)
}

// Key is a stable string form used for grouping ("" when null).
func (d Date) Key() string {
	return d.Format("2006-01-02")
}

// Before orders non-null dates chronologically and puts null dates last.
func (d Date) Before(other Date) bool {
	switch {
	case !d.valid:
		return false
	case !other.valid:
		return true
	default:
		return d.t.Before(other.t)
	}
}

// UsageMonth renders the "2006年01月" label for the date, or "" when null.
func (d Date) UsageMonth() string {
	return d.Format(UsageMonthLayout)
}

// String implements fmt.Stringer.
func (d Date) String() string {
	if !d.valid {
		return "<null>"
	}
	return d.Key()
}

// =============================================================================
// PAID FLAG
// =============================================================================

// PaidFlag is the payment state of a billing line.
type PaidFlag string

const (
	Paid   PaidFlag = "paid"
	Unpaid PaidFlag = "unpaid"
)

// Label returns the Japanese label used in exported tables.
func (p PaidFlag) Label() string {
	switch p {
	case Paid:
		return "あり"
	case Unpaid:
		return "なし"
	default:
		return ""
	}
}

// =============================================================================
// COMMON RECORD
// =============================================================================

// UsageMonthLayout is the Go layout for the usage-month label.
const UsageMonthLayout = "2006年01月"

// CommonRecord is the unified billing-line shape both feeds are transformed
// into before reconciliation.
type CommonRecord struct {
	UsageMonth    string
	BillingMethod string
	Billed        decimal.Decimal
	Unpaid        decimal.Decimal
	InvoiceNumber string
	IssueDate     Date
	DueDate       Date
	Paid          PaidFlag
	CompanyName   string

	// Total marks the synthetic totals record appended by the reconciler.
	Total bool
}

// NewRecord builds a record whose unpaid amount and usage month are derived
// from billed, paid and issueDate.
func NewRecord(method string, billed decimal.Decimal, paid PaidFlag, invoiceNumber string, issueDate, dueDate Date, company string) CommonRecord {
	return CommonRecord{
		UsageMonth:    issueDate.UsageMonth(),
		BillingMethod: method,
		Billed:        billed,
		Unpaid:        UnpaidAmount(billed, paid),
		InvoiceNumber: invoiceNumber,
		IssueDate:     issueDate,
		DueDate:       dueDate,
		Paid:          paid,
		CompanyName:   company,
	}
}

// UnpaidAmount is billed when unpaid and zero otherwise.
func UnpaidAmount(billed decimal.Decimal, paid PaidFlag) decimal.Decimal {
	if paid == Unpaid {
		return billed
	}
	return decimal.Zero
}

// =============================================================================
// INVOICE IDENTITY
// =============================================================================

// identitySeparator separates the parts of an identity's textual form.
const identitySeparator = "|"

// InvoiceIdentity addresses one logical direct invoice. It is comparable and
// used as a map key, so the amount is kept in canonical decimal string form.
type InvoiceIdentity struct {
	DocumentNumber string `yaml:"document_number"`
	Counterparty   string `yaml:"counterparty"`
	Amount         string `yaml:"amount"`
}

// NewIdentity builds an identity with a canonical amount.
func NewIdentity(documentNumber, counterparty string, amount decimal.Decimal) InvoiceIdentity {
	return InvoiceIdentity{
		DocumentNumber: documentNumber,
		Counterparty:   counterparty,
		Amount:         amount.String(),
	}
}

// String renders "document|counterparty|amount".
func (id InvoiceIdentity) String() string {
	return strings.Join([]string{id.DocumentNumber, id.Counterparty, id.Amount}, identitySeparator)
}

// Display renders the identity for humans, mirroring the spreadsheet label.
func (id InvoiceIdentity) Display() string {
	return fmt.Sprintf("%s - %s - %s円", id.DocumentNumber, id.Counterparty, id.Amount)
}

// ParseIdentity parses the "document|counterparty|amount" form. The amount is
// canonicalized so "10000.0" and "10000" address the same invoice.
func ParseIdentity(s string) (InvoiceIdentity, error) {
	parts := strings.Split(s, identitySeparator)
	if len(parts) != 3 {
		return InvoiceIdentity{}, fmt.Errorf("invalid invoice identity %q: want document|counterparty|amount", s)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return InvoiceIdentity{}, fmt.Errorf("invalid invoice identity %q: amount: %w", s, err)
	}
	return NewIdentity(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), amount), nil
}

// Canonical re-canonicalizes the amount of an identity read from an external
// source such as a YAML file.
func (id InvoiceIdentity) Canonical() (InvoiceIdentity, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(id.Amount))
	if err != nil {
		return InvoiceIdentity{}, fmt.Errorf("invalid amount %q for %s: %w", id.Amount, id.DocumentNumber, err)
	}
	return NewIdentity(strings.TrimSpace(id.DocumentNumber), strings.TrimSpace(id.Counterparty), amount), nil
}
