package convert

import (
	"context"
	"testing"
	"time"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/ledger/memory"
)

func fixedClock(at time.Time) func() time.Time { return func() time.Time { return at } }

func newService(t *testing.T, store *memory.Store, at time.Time) *Service {
	t.Helper()
	svc := New(store, Config{})
	svc.clock = fixedClock(at)
	n := 0
	svc.newID = func() string {
		n++
		return "id-" + string(rune('a'+n-1))
	}
	return svc
}

func seedQuote(t *testing.T, store *memory.Store, status billing.QuoteStatus) billing.Quote {
	t.Helper()
	q := billing.Quote{
		ID:         "q1",
		Number:     "Q-42",
		ClientID:   "client-1",
		CompanyID:  "company-1",
		Status:     status,
		TaxPercent: 20,
		Items: []billing.QuoteItem{
			{ID: "qi1", Description: "labour", Qty: 4, UnitPrice: 2000},
			{ID: "qi2", Description: "parts", Qty: 1, UnitPrice: 2000},
		},
		Notes: "net 30",
	}
	q.Recalculate()
	if err := store.CreateQuote(context.Background(), &q); err != nil {
		t.Fatalf("seed quote: %v", err)
	}
	return q
}

func TestConvertCopiesQuoteIntoInvoice(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	store := memory.New()
	q := seedQuote(t, store, billing.QuoteSigned)
	svc := newService(t, store, now)

	inv, err := svc.Convert(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if inv.Status != billing.InvoiceDraft {
		t.Fatalf("invoice status = %s, want draft", inv.Status)
	}
	if inv.QuoteID != q.ID || inv.ClientID != q.ClientID || inv.CompanyID != q.CompanyID {
		t.Fatalf("references not copied: %+v", inv)
	}
	// subtotal 10000 + 20%% tax = 12000
	if inv.Subtotal != 10000 || inv.TaxAmount != 2000 || inv.Total != 12000 {
		t.Fatalf("totals = %d/%d/%d, want 10000/2000/12000", inv.Subtotal, inv.TaxAmount, inv.Total)
	}
	if len(inv.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(inv.Items))
	}
	var lineSum int64
	for i, it := range inv.Items {
		if it.Description != q.Items[i].Description || it.Qty != q.Items[i].Qty || it.UnitPrice != q.Items[i].UnitPrice {
			t.Fatalf("item %d not copied: %+v", i, it)
		}
		lineSum += it.LineTotal
	}
	if lineSum != inv.Subtotal {
		t.Fatalf("line totals sum to %d, want %d", lineSum, inv.Subtotal)
	}
	if !inv.DueDate.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Fatalf("due date = %s, want issue + 30 days", inv.DueDate)
	}

	got, err := store.GetQuote(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if got.Status != billing.QuoteInvoiced {
		t.Fatalf("quote status = %s, want invoiced", got.Status)
	}
}

func TestConvertTwiceReturnsAlreadyConverted(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	store := memory.New()
	q := seedQuote(t, store, billing.QuoteAccepted)
	svc := newService(t, store, now)

	first, err := svc.Convert(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("first convert: %v", err)
	}
	_, err = svc.Convert(context.Background(), q.ID)
	if !billing.IsCode(err, billing.CodeAlreadyConverted) {
		t.Fatalf("expected ALREADY_CONVERTED, got %v", err)
	}

	invoices, err := store.ListOpenInvoices(context.Background())
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(invoices) != 1 || invoices[0].ID != first.ID {
		t.Fatalf("expected exactly the first invoice, got %+v", invoices)
	}
}

func TestConvertRejectsUnsignedQuote(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	for _, status := range []billing.QuoteStatus{billing.QuoteDraft, billing.QuoteSent, billing.QuoteViewed, billing.QuoteRejected, billing.QuoteExpired} {
		store := memory.New()
		q := seedQuote(t, store, status)
		svc := newService(t, store, now)

		_, err := svc.Convert(context.Background(), q.ID)
		if !billing.IsCode(err, billing.CodeInvalidState) {
			t.Fatalf("status %s: expected INVALID_STATE, got %v", status, err)
		}
		got, _ := store.GetQuote(context.Background(), q.ID)
		if got.Status != status {
			t.Fatalf("status %s: quote mutated to %s after failed conversion", status, got.Status)
		}
	}
}

func TestConvertCustomDueOffset(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	store := memory.New()
	q := seedQuote(t, store, billing.QuoteSigned)
	svc := New(store, Config{DueOffset: 14 * 24 * time.Hour})
	svc.clock = fixedClock(now)

	inv, err := svc.Convert(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !inv.DueDate.Equal(now.Add(14 * 24 * time.Hour)) {
		t.Fatalf("due date = %s, want issue + 14 days", inv.DueDate)
	}
}
