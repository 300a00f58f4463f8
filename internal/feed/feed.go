// =============================================================================
// Billing Status Reconciler - Feed Transformers
// =============================================================================
//
// This module turns normalized feed tables into billing.CommonRecord values.
//
// DEFERRED-PAYMENT FEED:
//   One record per row. A row is paid when its payment status equals the
//   configured sentinel exactly.
//
// DIRECT-INVOICE FEED:
//   Rows carry no payment status, so the human decides. The feed is handled
//   in two steps:
//   1. ParseDirect coerces values and derives each row's InvoiceIdentity
//   2. ApplySelection drops excluded identities, assigns paid flags and
//      groups rows of the same document into one record
//
// =============================================================================

package feed

import (
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/config"
	"github.com/ginjaninja78/billing-status-reconciler/internal/ingest"
	"github.com/ginjaninja78/billing-status-reconciler/internal/normalize"
)

// =============================================================================
// DEFERRED-PAYMENT FEED
// =============================================================================

// Deferred transforms a normalized deferred-payment table.
//
// RETURNS:
//   - One record per row, in source order.
//   - A *CoercionWarning when dates or amounts had to be coerced, else nil.
func Deferred(res *normalize.Result, feed config.FeedConfig) ([]billing.CommonRecord, *CoercionWarning) {
	warn := &CoercionWarning{Feed: feed.Label}
	records := make([]billing.CommonRecord, 0, len(res.Table.Rows))

	for _, row := range res.Table.Rows {
		issueRaw, _ := res.Value(row, config.FieldIssueDate)
		dueRaw, _ := res.Value(row, config.FieldDueDate)
		amountRaw, _ := res.Value(row, config.FieldBilledAmount)
		status, _ := res.Value(row, config.FieldPaymentStatus)
		invoice, _ := res.Value(row, config.FieldInvoiceNumber)
		company, _ := res.Value(row, config.FieldCompanyName)

		issue, due := warn.coerceDates(issueRaw, dueRaw)
		billed, _ := warn.coerceAmount(amountRaw)

		paid := billing.Unpaid
		if status == feed.PaidStatus {
			paid = billing.Paid
		}

		records = append(records, billing.NewRecord(
			billingMethod(res, row, feed), billed, paid, invoice, issue, due, company,
		))
	}

	return records, warn.orNil()
}

// =============================================================================
// DIRECT-INVOICE FEED
// =============================================================================

// DirectLine is one coerced row of the direct-invoice feed.
type DirectLine struct {
	Identity       billing.InvoiceIdentity
	DocumentNumber string
	Counterparty   string
	IssueDate      billing.Date
	DueDate        billing.Date
	Amount         decimal.Decimal
	BillingMethod  string
}

// Selection answers the human's classification of direct invoices.
type Selection interface {
	IsPaid(id billing.InvoiceIdentity) bool
	IsExcluded(id billing.InvoiceIdentity) bool
}

// ParseDirect coerces a normalized direct-invoice table into lines.
func ParseDirect(res *normalize.Result, feed config.FeedConfig) ([]DirectLine, *CoercionWarning) {
	warn := &CoercionWarning{Feed: feed.Label}
	lines := make([]DirectLine, 0, len(res.Table.Rows))

	for _, row := range res.Table.Rows {
		issueRaw, _ := res.Value(row, config.FieldIssueDate)
		dueRaw, _ := res.Value(row, config.FieldDueDate)
		doc, _ := res.Value(row, config.FieldDocumentNumber)
		counterparty, _ := res.Value(row, config.FieldCounterparty)
		amountRaw, _ := res.Value(row, config.FieldAmount)

		issue, due := warn.coerceDates(issueRaw, dueRaw)
		amount, parsed := warn.coerceAmount(amountRaw)

		lines = append(lines, DirectLine{
			Identity:       billing.NewIdentity(doc, counterparty, parsed),
			DocumentNumber: doc,
			Counterparty:   counterparty,
			IssueDate:      issue,
			DueDate:        due,
			Amount:         amount,
			BillingMethod:  billingMethod(res, row, feed),
		})
	}

	return lines, warn.orNil()
}

// Identities returns the distinct identities of lines in first-appearance
// order.
func Identities(lines []DirectLine) []billing.InvoiceIdentity {
	seen := make(map[billing.InvoiceIdentity]bool)
	var ids []billing.InvoiceIdentity
	for _, line := range lines {
		if !seen[line.Identity] {
			seen[line.Identity] = true
			ids = append(ids, line.Identity)
		}
	}
	return ids
}

// groupKey identifies the rows that make up one direct-invoice record.
type groupKey struct {
	document     string
	issue        string
	due          string
	counterparty string
	method       string
}

// ApplySelection turns lines into records using the human's selection.
//
// Excluded identities are removed first, so a paid mark on an excluded
// identity has no effect. Identities not marked paid are unpaid. Rows are
// then grouped by document number, issue date, due date, counterparty and
// billing method in first-appearance order; a group is unpaid when any of
// its rows is unpaid, and its unpaid amount sums only the unpaid rows.
func ApplySelection(lines []DirectLine, sel Selection) []billing.CommonRecord {
	type group struct {
		first  DirectLine
		billed decimal.Decimal
		unpaid decimal.Decimal
		paid   billing.PaidFlag
	}

	var order []groupKey
	groups := make(map[groupKey]*group)

	for _, line := range lines {
		if sel != nil && sel.IsExcluded(line.Identity) {
			continue
		}

		paid := billing.Unpaid
		if sel != nil && sel.IsPaid(line.Identity) {
			paid = billing.Paid
		}

		key := groupKey{
			document:     line.DocumentNumber,
			issue:        line.IssueDate.Key(),
			due:          line.DueDate.Key(),
			counterparty: line.Counterparty,
			method:       line.BillingMethod,
		}
		g, ok := groups[key]
		if !ok {
			g = &group{first: line, paid: billing.Paid}
			groups[key] = g
			order = append(order, key)
		}
		g.billed = g.billed.Add(line.Amount)
		g.unpaid = g.unpaid.Add(billing.UnpaidAmount(line.Amount, paid))
		if paid == billing.Unpaid {
			g.paid = billing.Unpaid
		}
	}

	records := make([]billing.CommonRecord, 0, len(order))
	for _, key := range order {
		g := groups[key]
		rec := billing.NewRecord(g.first.BillingMethod, g.billed, g.paid,
			g.first.DocumentNumber, g.first.IssueDate, g.first.DueDate, g.first.Counterparty)
		// A mixed group is unpaid but only its unpaid rows are outstanding.
		rec.Unpaid = g.unpaid
		records = append(records, rec)
	}
	return records
}

// billingMethod derives a row's billing method from the feed configuration.
func billingMethod(res *normalize.Result, row ingest.Row, feed config.FeedConfig) string {
	bm := feed.BillingMethod
	if bm.Source != config.BillingMethodColumn {
		return bm.Value
	}
	v, ok := res.Value(row, config.FieldDocumentType)
	if !ok || v == "" {
		return bm.Value
	}
	if mapped, ok := bm.Lookup[v]; ok {
		return mapped
	}
	return v
}
