// Package reconcile merges the records of both feeds into one ordered table
// closed by a totals record.
package reconcile

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
)

// ErrNothingToExport signals that no records survived to the reconciled
// table. It is informational, not a failure.
var ErrNothingToExport = errors.New("nothing to export")

// Table is the reconciled result: ordered records and one totals record.
type Table struct {
	lines  []billing.CommonRecord
	totals billing.CommonRecord
}

// Reconcile concatenates the given record sets, sorts them by usage month
// then issue date (null issue dates last within a month) and computes the
// totals. Nil sets are absent feeds.
func Reconcile(sets ...[]billing.CommonRecord) *Table {
	var lines []billing.CommonRecord
	for _, set := range sets {
		lines = append(lines, set...)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.UsageMonth != b.UsageMonth {
			return a.UsageMonth < b.UsageMonth
		}
		return a.IssueDate.Before(b.IssueDate)
	})

	totals := billing.CommonRecord{Total: true, Billed: decimal.Zero, Unpaid: decimal.Zero}
	for _, r := range lines {
		totals.Billed = totals.Billed.Add(r.Billed)
		totals.Unpaid = totals.Unpaid.Add(r.Unpaid)
	}

	return &Table{lines: lines, totals: totals}
}

// Empty reports ErrNothingToExport when the table holds no records.
func (t *Table) Empty() error {
	if t == nil || len(t.lines) == 0 {
		return ErrNothingToExport
	}
	return nil
}

// Lines returns the sorted records without the totals record.
func (t *Table) Lines() []billing.CommonRecord {
	return t.lines
}

// Totals returns the totals record.
func (t *Table) Totals() billing.CommonRecord {
	return t.totals
}

// Records returns the sorted records followed by the totals record.
func (t *Table) Records() []billing.CommonRecord {
	out := make([]billing.CommonRecord, 0, len(t.lines)+1)
	out = append(out, t.lines...)
	return append(out, t.totals)
}

// ByBillingMethod splits the records into one table per billing method,
// in first-appearance order of the sorted records.
func (t *Table) ByBillingMethod() (methods []string, tables map[string]*Table) {
	groups := make(map[string][]billing.CommonRecord)
	for _, r := range t.lines {
		if _, ok := groups[r.BillingMethod]; !ok {
			methods = append(methods, r.BillingMethod)
		}
		groups[r.BillingMethod] = append(groups[r.BillingMethod], r)
	}

	tables = make(map[string]*Table, len(groups))
	for _, m := range methods {
		tables[m] = Reconcile(groups[m])
	}
	return methods, tables
}

// Companies returns the distinct non-empty company names, sorted.
func (t *Table) Companies() []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range t.lines {
		if r.CompanyName != "" && !seen[r.CompanyName] {
			seen[r.CompanyName] = true
			names = append(names, r.CompanyName)
		}
	}
	sort.Strings(names)
	return names
}

// CompanyHeading is the addressee of the report: the single company, the
// first two followed by "他" when there are more, or a generic addressee.
func (t *Table) CompanyHeading() string {
	names := t.Companies()
	switch len(names) {
	case 0:
		return "取引先"
	case 1:
		return names[0]
	default:
		return names[0] + ", " + names[1] + " 他"
	}
}
