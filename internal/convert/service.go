// Package convert materializes invoices from signed or accepted quotes.
package convert

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/ledger"
)

type Config struct {
	// DueOffset is added to the invoice issue date to produce the due
	// date. Zero falls back to 30 days.
	DueOffset time.Duration
}

const defaultDueOffset = 30 * 24 * time.Hour

type Service struct {
	store ledger.Store
	cfg   Config
	clock func() time.Time
	newID func() string
}

func New(store ledger.Store, cfg Config) *Service {
	if cfg.DueOffset <= 0 {
		cfg.DueOffset = defaultDueOffset
	}
	return &Service{
		store: store,
		cfg:   cfg,
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Convert turns a signed/accepted quote into a draft invoice. The invoice
// creation, item copy and quote status update commit as one unit inside
// the store's transactional boundary. Conversion is at-most-once: a quote
// that is already invoiced yields ALREADY_CONVERTED.
func (s *Service) Convert(ctx context.Context, quoteID string) (billing.Invoice, error) {
	inv, err := s.store.ConvertQuote(ctx, quoteID, func(q billing.Quote) (billing.Invoice, error) {
		if q.Status == billing.QuoteInvoiced {
			return billing.Invoice{}, billing.NewError(billing.CodeAlreadyConverted, "quote %s is already invoiced", q.ID)
		}
		if !billing.CanConvert(q.Status) {
			return billing.Invoice{}, billing.NewError(billing.CodeInvalidState, "quote %s is %s, needs signed or accepted", q.ID, q.Status)
		}
		if err := billing.TransitionQuote(q.Status, billing.QuoteInvoiced); err != nil {
			return billing.Invoice{}, err
		}
		return s.buildInvoice(q), nil
	})
	if err != nil {
		return billing.Invoice{}, err
	}
	log.Printf("convert: quote converted quote_id=%s invoice_id=%s total=%d", quoteID, inv.ID, inv.Total)
	return inv, nil
}

func (s *Service) buildInvoice(q billing.Quote) billing.Invoice {
	now := s.clock()
	inv := billing.Invoice{
		ID:         s.newID(),
		Number:     q.Number,
		ClientID:   q.ClientID,
		CompanyID:  q.CompanyID,
		QuoteID:    q.ID,
		Status:     billing.InvoiceDraft,
		IssueDate:  now,
		DueDate:    now.Add(s.cfg.DueOffset),
		TaxPercent: q.TaxPercent,
		Subtotal:   q.Subtotal,
		TaxAmount:  q.TaxAmount,
		Total:      q.Total,
		Notes:      q.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, it := range q.Items {
		inv.Items = append(inv.Items, billing.InvoiceItem{
			ID:          s.newID(),
			Description: it.Description,
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	return inv
}
