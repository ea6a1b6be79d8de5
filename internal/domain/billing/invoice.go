package billing

import (
	"strings"
	"time"
)

type Invoice struct {
	ID        string
	Number    string
	ClientID  string
	CompanyID string
	// QuoteID is set when the invoice was materialized from a quote.
	QuoteID   string
	Status    InvoiceStatus
	IssueDate time.Time
	DueDate   time.Time
	Items     []InvoiceItem

	TaxPercent int
	Subtotal   int64
	TaxAmount  int64
	Total      int64
	Notes      string

	// AmountPaid is always recomputed as the sum of committed payments,
	// never incremented in place.
	AmountPaid int64

	// ExternalRef is the payment processor's identifier, empty until the
	// invoice has been synced.
	ExternalRef string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type InvoiceItem struct {
	ID          string
	Description string
	Qty         int
	UnitPrice   int64
	LineTotal   int64
}

// Recalculate rederives totals from items. Only legal while draft; the
// store enforces immutability after that.
func (inv *Invoice) Recalculate() {
	var subtotal int64
	for i := range inv.Items {
		inv.Items[i].LineTotal = inv.Items[i].UnitPrice * int64(inv.Items[i].Qty)
		subtotal += inv.Items[i].LineTotal
	}
	inv.Subtotal = subtotal
	inv.TaxAmount = subtotal * int64(inv.TaxPercent) / 100
	inv.Total = inv.Subtotal + inv.TaxAmount
}

func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.ClientID) == "" {
		return NewError(CodeValidation, "client id is required")
	}
	if strings.TrimSpace(inv.CompanyID) == "" {
		return NewError(CodeValidation, "company id is required")
	}
	for _, it := range inv.Items {
		if it.Qty <= 0 {
			return NewError(CodeValidation, "item qty must be > 0")
		}
		if it.UnitPrice < 0 {
			return NewError(CodeValidation, "item unit price must be >= 0")
		}
	}
	return nil
}

// StatusForAmount derives the status a given paid amount implies. A zero
// amount leaves the current status untouched.
func (inv *Invoice) StatusForAmount(amountPaid int64) InvoiceStatus {
	switch {
	case amountPaid <= 0:
		return inv.Status
	case amountPaid < inv.Total:
		return InvoicePartiallyPaid
	default:
		return InvoicePaid
	}
}

// Open reports whether the invoice still participates in payment
// reconciliation and reminder sweeps.
func (inv *Invoice) Open() bool {
	return inv.Status != InvoicePaid && inv.Status != InvoiceCancelled
}
