package handlers

import (
	"time"

	"paperbill/go_backend/internal/domain/billing"
)

type quoteView struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	ClientID   string          `json:"client_id"`
	CompanyID  string          `json:"company_id"`
	Status     string          `json:"status"`
	IssueDate  time.Time       `json:"issue_date"`
	ValidUntil time.Time       `json:"valid_until"`
	ExecDate   time.Time       `json:"exec_date"`
	Items      []itemView      `json:"items"`
	Signatures []signatureView `json:"signatures,omitempty"`
	TaxPercent int             `json:"tax_percent"`
	Subtotal   int64           `json:"subtotal"`
	TaxAmount  int64           `json:"tax_amount"`
	Total      int64           `json:"total"`
	Notes      string          `json:"notes,omitempty"`
	ShareToken string          `json:"share_token,omitempty"`
}

type itemView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Qty         int    `json:"qty"`
	UnitPrice   int64  `json:"unit_price"`
	LineTotal   int64  `json:"line_total"`
}

type signatureView struct {
	SignerName string    `json:"signer_name"`
	SignedAt   time.Time `json:"signed_at"`
	Confirmed  bool      `json:"confirmed"`
}

type invoiceView struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	ClientID    string     `json:"client_id"`
	CompanyID   string     `json:"company_id"`
	QuoteID     string     `json:"quote_id,omitempty"`
	Status      string     `json:"status"`
	IssueDate   time.Time  `json:"issue_date"`
	DueDate     time.Time  `json:"due_date"`
	Items       []itemView `json:"items"`
	TaxPercent  int        `json:"tax_percent"`
	Subtotal    int64      `json:"subtotal"`
	TaxAmount   int64      `json:"tax_amount"`
	Total       int64      `json:"total"`
	AmountPaid  int64      `json:"amount_paid"`
	ExternalRef string     `json:"external_ref,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type paymentView struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"invoice_id"`
	ExternalRef string    `json:"external_ref,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	Method      string    `json:"method,omitempty"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func toQuoteView(q billing.Quote, withToken bool) quoteView {
	v := quoteView{
		ID:         q.ID,
		Number:     q.Number,
		ClientID:   q.ClientID,
		CompanyID:  q.CompanyID,
		Status:     string(q.Status),
		IssueDate:  q.IssueDate,
		ValidUntil: q.ValidUntil,
		ExecDate:   q.ExecDate,
		TaxPercent: q.TaxPercent,
		Subtotal:   q.Subtotal,
		TaxAmount:  q.TaxAmount,
		Total:      q.Total,
		Notes:      q.Notes,
	}
	if withToken {
		v.ShareToken = q.ShareToken
	}
	for _, it := range q.Items {
		v.Items = append(v.Items, itemView{
			ID:          it.ID,
			Description: it.Description,
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	for _, sig := range q.Signatures {
		v.Signatures = append(v.Signatures, signatureView{
			SignerName: sig.SignerName,
			SignedAt:   sig.SignedAt,
			Confirmed:  sig.Confirmed,
		})
	}
	return v
}

func toInvoiceView(inv billing.Invoice) invoiceView {
	v := invoiceView{
		ID:          inv.ID,
		Number:      inv.Number,
		ClientID:    inv.ClientID,
		CompanyID:   inv.CompanyID,
		QuoteID:     inv.QuoteID,
		Status:      string(inv.Status),
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		TaxPercent:  inv.TaxPercent,
		Subtotal:    inv.Subtotal,
		TaxAmount:   inv.TaxAmount,
		Total:       inv.Total,
		AmountPaid:  inv.AmountPaid,
		ExternalRef: inv.ExternalRef,
		Notes:       inv.Notes,
	}
	for _, it := range inv.Items {
		v.Items = append(v.Items, itemView{
			ID:          it.ID,
			Description: it.Description,
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	return v
}

func toPaymentView(p billing.Payment) paymentView {
	return paymentView{
		ID:          p.ID,
		InvoiceID:   p.InvoiceID,
		ExternalRef: p.ExternalRef,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Method:      p.Method,
		Source:      string(p.Source),
		OccurredAt:  p.OccurredAt,
	}
}
