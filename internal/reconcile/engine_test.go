package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/gateway"
	"paperbill/go_backend/internal/ledger/memory"
)

func newEngine(store *memory.Store, at time.Time) *Engine {
	e := New(store, Config{})
	e.clock = func() time.Time { return at }
	var mu sync.Mutex
	n := 0
	e.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "pay-" + itoa(n)
	}
	return e
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func seedInvoice(t *testing.T, store *memory.Store, total int64) billing.Invoice {
	t.Helper()
	inv := billing.Invoice{
		ID:          "inv-1",
		ClientID:    "client-1",
		CompanyID:   "company-1",
		Status:      billing.InvoiceSent,
		Total:       total,
		ExternalRef: "ext-inv-1",
		DueDate:     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	if err := store.CreateInvoice(context.Background(), &inv); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func TestApplyPaymentDerivesStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	res, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: "gw-1", Amount: 4000, IsPartial: true, Source: billing.PaymentSourceGateway})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if res.Invoice.Status != billing.InvoicePartiallyPaid || res.Invoice.AmountPaid != 4000 {
		t.Fatalf("after partial: status=%s amount_paid=%d", res.Invoice.Status, res.Invoice.AmountPaid)
	}

	res, err = e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: "gw-2", Amount: 6000, Source: billing.PaymentSourceGateway})
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if res.Invoice.Status != billing.InvoicePaid || res.Invoice.AmountPaid != 10000 {
		t.Fatalf("after full: status=%s amount_paid=%d", res.Invoice.Status, res.Invoice.AmountPaid)
	}
	if res.Warning != "" {
		t.Fatalf("unexpected warning %q", res.Warning)
	}
}

func TestApplyPaymentIdempotentOnExternalRef(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	in := Input{InvoiceID: "inv-1", ExternalRef: "gw-1", Amount: 4000, Source: billing.PaymentSourceGateway}
	first, err := e.ApplyPayment(ctx, in)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// Webhook re-delivery: same external ref, any number of times.
	for i := 0; i < 3; i++ {
		res, err := e.ApplyPayment(ctx, in)
		if err != nil {
			t.Fatalf("re-apply %d: %v", i, err)
		}
		if !res.Duplicate {
			t.Fatalf("re-apply %d not marked duplicate", i)
		}
		if res.Payment.ID != first.Payment.ID {
			t.Fatalf("re-apply %d returned a different payment", i)
		}
	}

	payments, err := store.ListPayments(ctx, "inv-1")
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment row, got %d", len(payments))
	}
	inv, _ := store.GetInvoice(ctx, "inv-1")
	if inv.AmountPaid != 4000 {
		t.Fatalf("amount_paid = %d, want 4000", inv.AmountPaid)
	}
}

func TestApplyPaymentOverpaymentCapsAndWarns(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	// 150 against a total of 100.
	res, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: "gw-1", Amount: 15000, Source: billing.PaymentSourceGateway})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Warning != WarningOverpayment {
		t.Fatalf("warning = %q, want %q", res.Warning, WarningOverpayment)
	}
	if res.Invoice.AmountPaid != 10000 || res.Invoice.Status != billing.InvoicePaid {
		t.Fatalf("invoice = %d/%s, want 10000/paid", res.Invoice.AmountPaid, res.Invoice.Status)
	}

	// The payment row keeps the full audited amount.
	payments, _ := store.ListPayments(ctx, "inv-1")
	if len(payments) != 1 || payments[0].Amount != 15000 {
		t.Fatalf("payment rows = %+v", payments)
	}
}

func TestApplyPaymentPaidStatusIsMonotonic(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	if _, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: "gw-full", Amount: 10000, Source: billing.PaymentSourceGateway}); err != nil {
		t.Fatalf("full payment: %v", err)
	}

	// A late-arriving partial lands as overpayment, never regresses paid.
	res, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: "gw-late", Amount: 2000, IsPartial: true, Source: billing.PaymentSourceGateway})
	if err != nil {
		t.Fatalf("late partial: %v", err)
	}
	if res.Invoice.Status != billing.InvoicePaid || res.Invoice.AmountPaid != 10000 {
		t.Fatalf("invoice regressed: %s/%d", res.Invoice.Status, res.Invoice.AmountPaid)
	}
	if res.Warning != WarningOverpayment {
		t.Fatalf("expected overpayment warning, got %q", res.Warning)
	}
}

func TestApplyPaymentManualDedupeWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	in := Input{InvoiceID: "inv-1", Amount: 3000, Method: "cash", Source: billing.PaymentSourceManual}
	first, err := e.ApplyPayment(ctx, in)
	if err != nil {
		t.Fatalf("first manual: %v", err)
	}

	// Double-click within the window is a no-op.
	res, err := e.ApplyPayment(ctx, in)
	if err != nil {
		t.Fatalf("duplicate manual: %v", err)
	}
	if !res.Duplicate || res.Payment.ID != first.Payment.ID {
		t.Fatalf("expected duplicate short-circuit, got %+v", res)
	}

	// Outside the window the same amount is a legitimate new payment.
	e.clock = func() time.Time { return now.Add(2 * time.Minute) }
	res, err = e.ApplyPayment(ctx, in)
	if err != nil {
		t.Fatalf("later manual: %v", err)
	}
	if res.Duplicate {
		t.Fatal("later manual payment wrongly deduped")
	}
	payments, _ := store.ListPayments(ctx, "inv-1")
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
}

func TestApplyPaymentValidation(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	if _, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", Amount: 0, Source: billing.PaymentSourceManual}); !billing.IsCode(err, billing.CodeValidation) {
		t.Fatalf("zero amount: expected VALIDATION_ERROR, got %v", err)
	}
	if _, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", Amount: -50, Source: billing.PaymentSourceManual}); !billing.IsCode(err, billing.CodeValidation) {
		t.Fatalf("negative amount: expected VALIDATION_ERROR, got %v", err)
	}
	if _, err := e.ApplyPayment(ctx, Input{InvoiceID: "missing", Amount: 100, Source: billing.PaymentSourceManual}); !billing.IsCode(err, billing.CodeNotFound) {
		t.Fatalf("missing invoice: expected NOT_FOUND, got %v", err)
	}
}

func TestApplyPaymentRejectsCancelledAndDraft(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	ctx := context.Background()

	cancelled := billing.Invoice{ID: "inv-c", ClientID: "c", CompanyID: "co", Status: billing.InvoiceCancelled, Total: 1000}
	draft := billing.Invoice{ID: "inv-d", ClientID: "c", CompanyID: "co", Status: billing.InvoiceDraft, Total: 1000}
	if err := store.CreateInvoice(ctx, &cancelled); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateInvoice(ctx, &draft); err != nil {
		t.Fatal(err)
	}
	e := newEngine(store, now)

	for _, id := range []string{"inv-c", "inv-d"} {
		if _, err := e.ApplyPayment(ctx, Input{InvoiceID: id, Amount: 100, Source: billing.PaymentSourceManual}); !billing.IsCode(err, billing.CodeInvalidTransition) {
			t.Fatalf("invoice %s: expected INVALID_TRANSITION, got %v", id, err)
		}
		payments, _ := store.ListPayments(ctx, id)
		if len(payments) != 0 {
			t.Fatalf("invoice %s: payment written despite rejection", id)
		}
	}
}

func TestAmountPaidEqualsPaymentSum(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	refs := []struct {
		ref    string
		amount int64
	}{{"gw-1", 1500}, {"gw-2", 2500}, {"gw-3", 3000}}
	for _, r := range refs {
		if _, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: r.ref, Amount: r.amount, IsPartial: true, Source: billing.PaymentSourceGateway}); err != nil {
			t.Fatalf("apply %s: %v", r.ref, err)
		}
		inv, _ := store.GetInvoice(ctx, "inv-1")
		payments, _ := store.ListPayments(ctx, "inv-1")
		if inv.AmountPaid != billing.SumPayments(payments) {
			t.Fatalf("after %s: amount_paid=%d sum=%d", r.ref, inv.AmountPaid, billing.SumPayments(payments))
		}
	}
}

func TestReverseRegressesStatus(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	res, err := e.ApplyPayment(ctx, Input{InvoiceID: "inv-1", ExternalRef: "gw-1", Amount: 10000, Source: billing.PaymentSourceGateway})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Invoice.Status != billing.InvoicePaid {
		t.Fatalf("status = %s, want paid", res.Invoice.Status)
	}

	rev, err := e.Reverse(ctx, "inv-1", res.Payment.ID, "chargeback")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if rev.Invoice.AmountPaid != 0 {
		t.Fatalf("amount_paid = %d after full reversal, want 0", rev.Invoice.AmountPaid)
	}
	payments, _ := store.ListPayments(ctx, "inv-1")
	if len(payments) != 2 {
		t.Fatalf("expected original + reversal rows, got %d", len(payments))
	}
	if billing.SumPayments(payments) != 0 {
		t.Fatalf("payment sum = %d, want 0", billing.SumPayments(payments))
	}
}

func TestSyncAppliesGatewayBatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	seedInvoice(t, store, 10000)
	e := newEngine(store, now)
	ctx := context.Background()

	events := []gateway.PaymentEvent{
		{ExternalInvoiceRef: "ext-inv-1", ExternalPaymentRef: "pay-1", AmountDelta: 4000, IsPartial: true},
		{ExternalInvoiceRef: "ext-inv-1", ExternalPaymentRef: "pay-1", AmountDelta: 4000, IsPartial: true}, // redelivery
		{ExternalInvoiceRef: "ext-inv-1", ExternalPaymentRef: "pay-2", AmountDelta: 6000},
		{ExternalInvoiceRef: "ext-inv-unknown", ExternalPaymentRef: "pay-3", AmountDelta: 100},
		{ExternalPaymentRef: "pay-4", AmountDelta: 100}, // invalid, no invoice ref
	}
	res, err := e.Sync(ctx, events)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Applied != 2 || res.Duplicates != 1 || res.Errors != 2 {
		t.Fatalf("sync result = %+v", res)
	}
	inv, _ := store.GetInvoice(ctx, "inv-1")
	if inv.Status != billing.InvoicePaid || inv.AmountPaid != 10000 {
		t.Fatalf("invoice = %s/%d, want paid/10000", inv.Status, inv.AmountPaid)
	}
}
