package billing

import "time"

type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteViewed   QuoteStatus = "viewed"
	QuoteSigned   QuoteStatus = "signed"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRejected QuoteStatus = "rejected"
	QuoteExpired  QuoteStatus = "expired"
	QuoteInvoiced QuoteStatus = "invoiced"
)

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceSent          InvoiceStatus = "sent"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

// quoteEdges is the explicit adjacency table for quote statuses.
// Anything not listed is rejected.
var quoteEdges = map[QuoteStatus][]QuoteStatus{
	QuoteDraft:    {QuoteSent},
	QuoteSent:     {QuoteViewed, QuoteSigned, QuoteRejected, QuoteExpired, QuoteAccepted},
	QuoteViewed:   {QuoteSigned, QuoteRejected, QuoteExpired, QuoteAccepted},
	QuoteSigned:   {QuoteAccepted, QuoteInvoiced},
	QuoteAccepted: {QuoteInvoiced},
	QuoteRejected: {},
	QuoteExpired:  {},
	QuoteInvoiced: {},
}

var invoiceEdges = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:         {InvoiceSent, InvoiceCancelled},
	InvoiceSent:          {InvoicePartiallyPaid, InvoicePaid, InvoiceCancelled},
	InvoicePartiallyPaid: {InvoicePaid, InvoiceCancelled},
	InvoicePaid:          {},
	InvoiceCancelled:     {},
}

// TransitionQuote validates a quote status change against the adjacency
// table. Re-applying the current status is a no-op success so at-least-once
// webhook delivery and client retries stay safe.
func TransitionQuote(current, target QuoteStatus) error {
	if current == target {
		return nil
	}
	for _, next := range quoteEdges[current] {
		if next == target {
			return nil
		}
	}
	return NewError(CodeInvalidTransition, "quote cannot move from %s to %s", current, target)
}

// TransitionInvoice validates an invoice status change, idempotent on
// the current status like TransitionQuote.
func TransitionInvoice(current, target InvoiceStatus) error {
	if current == target {
		return nil
	}
	for _, next := range invoiceEdges[current] {
		if next == target {
			return nil
		}
	}
	return NewError(CodeInvalidTransition, "invoice cannot move from %s to %s", current, target)
}

// CanConvert reports whether a quote is eligible for conversion into an
// invoice.
func CanConvert(status QuoteStatus) bool {
	return status == QuoteSigned || status == QuoteAccepted
}

// QuoteMutable reports whether the owner may still edit quote items.
func QuoteMutable(status QuoteStatus) bool {
	return status == QuoteDraft || status == QuoteSent
}

// AgingClass is a derived display classification. It is recomputed on
// every query and never persisted as the canonical status.
type AgingClass string

const (
	AgingCurrent AgingClass = "current"
	AgingNearDue AgingClass = "near_due"
	AgingOverdue AgingClass = "overdue"
)

// Classify derives the aging class of an invoice at a point in time.
// Paid, draft and cancelled invoices never age.
func Classify(status InvoiceStatus, dueDate, now time.Time, nearWindow time.Duration) AgingClass {
	if status == InvoicePaid || status == InvoiceDraft || status == InvoiceCancelled {
		return AgingCurrent
	}
	if dueDate.Before(now) {
		return AgingOverdue
	}
	if !dueDate.After(now.Add(nearWindow)) {
		return AgingNearDue
	}
	return AgingCurrent
}
