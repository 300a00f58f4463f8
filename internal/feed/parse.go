package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006/01/02",
	"2006-01-02",
	"2006/1/2",
	"2006-1-2",
	"2006年1月2日",
	"2006.01.02",
	"20060102",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a calendar date. Empty or unparseable values return a null
// date and false.
func ParseDate(s string) (billing.Date, bool) {
	s = strings.TrimSpace(norm.NFKC.String(s))
	if s == "" {
		return billing.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return billing.DateOf(t), true
		}
	}
	return billing.Date{}, false
}

// amountReplacer strips currency marks and separators seen in the exports.
var amountReplacer = strings.NewReplacer(",", "", "¥", "", "円", "", " ", "", "\\", "")

// ParseAmount parses a currency amount. Empty or unparseable values return
// zero and false.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = amountReplacer.Replace(strings.TrimSpace(norm.NFKC.String(s)))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CoercionWarning aggregates the values of one feed that could not be
// coerced. Dates became null and amounts became zero.
type CoercionWarning struct {
	Feed            string
	InvalidDates    int
	InvalidAmounts  int
	NegativeAmounts int
}

// Error implements the error interface.
func (w *CoercionWarning) Error() string {
	var parts []string
	if w.InvalidDates > 0 {
		parts = append(parts, fmt.Sprintf("%d rows with missing or invalid dates", w.InvalidDates))
	}
	if w.InvalidAmounts > 0 {
		parts = append(parts, fmt.Sprintf("%d missing or invalid amounts set to 0", w.InvalidAmounts))
	}
	if w.NegativeAmounts > 0 {
		parts = append(parts, fmt.Sprintf("%d negative amounts set to 0", w.NegativeAmounts))
	}
	return fmt.Sprintf("%s: %s", w.Feed, strings.Join(parts, ", "))
}

// orNil returns w only when something was counted.
func (w *CoercionWarning) orNil() *CoercionWarning {
	if w.InvalidDates == 0 && w.InvalidAmounts == 0 && w.NegativeAmounts == 0 {
		return nil
	}
	return w
}

// coerceDates parses both dates of a row and counts the row once if either
// ends up null.
func (w *CoercionWarning) coerceDates(issueRaw, dueRaw string) (issue, due billing.Date) {
	issue, okIssue := ParseDate(issueRaw)
	due, okDue := ParseDate(dueRaw)
	if !okIssue || !okDue {
		w.InvalidDates++
	}
	return issue, due
}

// coerceAmount parses an amount, clamping negatives to zero. The unclamped
// value is returned as well.
func (w *CoercionWarning) coerceAmount(raw string) (billed, parsed decimal.Decimal) {
	parsed, ok := ParseAmount(raw)
	if !ok {
		w.InvalidAmounts++
		return decimal.Zero, decimal.Zero
	}
	if parsed.IsNegative() {
		w.NegativeAmounts++
		return decimal.Zero, parsed
	}
	return parsed, parsed
}
