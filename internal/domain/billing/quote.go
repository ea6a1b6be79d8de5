package billing

import (
	"strings"
	"time"
)

// Money values are integer minor units (cents) in the document's single
// currency.

type Quote struct {
	ID         string
	Number     string
	ClientID   string
	CompanyID  string
	Status     QuoteStatus
	IssueDate  time.Time
	ValidUntil time.Time
	ExecDate   time.Time
	Items      []QuoteItem
	Signatures []QuoteSignature

	TaxPercent int
	Subtotal   int64
	TaxAmount  int64
	Total      int64
	Notes      string

	// ShareToken is minted when the quote is sent; the public view and
	// sign endpoints resolve quotes through it.
	ShareToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type QuoteItem struct {
	ID          string
	Description string
	Qty         int
	UnitPrice   int64
	LineTotal   int64
}

// QuoteSignature is immutable once recorded. Only the first confirmed
// signature transitions the quote; later attempts are kept for audit.
type QuoteSignature struct {
	ID         string
	QuoteID    string
	SignerName string
	Artifact   string
	SignedAt   time.Time
	OriginIP   string
	UserAgent  string
	Confirmed  bool
}

// Recalculate rederives line totals and the subtotal/tax/total triple.
// Totals are never mutated independently of items.
func (q *Quote) Recalculate() {
	var subtotal int64
	for i := range q.Items {
		q.Items[i].LineTotal = q.Items[i].UnitPrice * int64(q.Items[i].Qty)
		subtotal += q.Items[i].LineTotal
	}
	q.Subtotal = subtotal
	q.TaxAmount = subtotal * int64(q.TaxPercent) / 100
	q.Total = q.Subtotal + q.TaxAmount
}

// Validate rejects malformed quotes before any ledger write.
func (q *Quote) Validate() error {
	if strings.TrimSpace(q.ClientID) == "" {
		return NewError(CodeValidation, "client id is required")
	}
	if strings.TrimSpace(q.CompanyID) == "" {
		return NewError(CodeValidation, "company id is required")
	}
	if len(q.Items) == 0 {
		return NewError(CodeValidation, "quote needs at least one item")
	}
	for _, it := range q.Items {
		if it.Qty <= 0 {
			return NewError(CodeValidation, "item qty must be > 0")
		}
		if it.UnitPrice < 0 {
			return NewError(CodeValidation, "item unit price must be >= 0")
		}
	}
	if q.TaxPercent < 0 || q.TaxPercent > 100 {
		return NewError(CodeValidation, "tax percent out of range")
	}
	return nil
}

// FirstConfirmedSignature returns the earliest confirmed signature, if any.
func (q *Quote) FirstConfirmedSignature() *QuoteSignature {
	var first *QuoteSignature
	for i := range q.Signatures {
		s := &q.Signatures[i]
		if !s.Confirmed {
			continue
		}
		if first == nil || s.SignedAt.Before(first.SignedAt) {
			first = s
		}
	}
	return first
}
