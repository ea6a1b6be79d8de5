// Package reconcile merges payment facts from the gateway and from manual
// entry into the invoice ledger. The gateway is authoritative for money
// movement; nothing is marked paid without a gateway event or an explicit
// manual payment record.
package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/gateway"
	"paperbill/go_backend/internal/ledger"
)

const WarningOverpayment = "overpayment"

type Config struct {
	// ManualDedupeWindow guards against rapid double-entry of the same
	// manual payment. Zero falls back to 30 seconds.
	ManualDedupeWindow time.Duration
}

const defaultManualDedupeWindow = 30 * time.Second

type Engine struct {
	store ledger.Store
	cfg   Config
	clock func() time.Time
	newID func() string
}

func New(store ledger.Store, cfg Config) *Engine {
	if cfg.ManualDedupeWindow <= 0 {
		cfg.ManualDedupeWindow = defaultManualDedupeWindow
	}
	return &Engine{
		store: store,
		cfg:   cfg,
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

type Input struct {
	InvoiceID   string
	ExternalRef string
	Amount      int64
	Currency    string
	Method      string
	IsPartial   bool
	OccurredAt  time.Time
	Source      billing.PaymentSource
}

type Result struct {
	Payment billing.Payment
	Invoice billing.Invoice
	// Warning is set to WarningOverpayment when the payment overshoots
	// the invoice total. The payment is still recorded for audit.
	Warning string
	// Duplicate marks an idempotency short-circuit: the payment already
	// existed and nothing changed.
	Duplicate bool
}

// ApplyPayment applies one payment delta idempotently. Gateway events are
// keyed by external ref, manual entries by (invoice, amount) inside the
// dedupe window. amount_paid is always recomputed from the committed
// payment rows, never incremented in place, so concurrent appliers
// converge on the same figure.
func (e *Engine) ApplyPayment(ctx context.Context, in Input) (Result, error) {
	if in.Amount <= 0 {
		return Result{}, billing.NewError(billing.CodeValidation, "payment amount must be > 0")
	}
	now := e.clock()
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	inv, err := e.store.GetInvoice(ctx, in.InvoiceID)
	if errors.Is(err, ledger.ErrNotFound) {
		return Result{}, billing.NewError(billing.CodeNotFound, "invoice %s not found", in.InvoiceID)
	}
	if err != nil {
		return Result{}, err
	}
	if inv.Status == billing.InvoiceCancelled {
		return Result{}, billing.NewError(billing.CodeInvalidTransition, "invoice %s is cancelled", inv.ID)
	}

	if in.ExternalRef != "" {
		existing, err := e.store.FindPaymentByExternalRef(ctx, inv.ID, in.ExternalRef)
		if err == nil {
			log.Printf("reconcile: duplicate gateway payment invoice_id=%s external_ref=%s", inv.ID, in.ExternalRef)
			return Result{Payment: existing, Invoice: inv, Duplicate: true}, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return Result{}, err
		}
	}
	if in.Source == billing.PaymentSourceManual {
		existing, err := e.store.FindRecentManualPayment(ctx, inv.ID, in.Amount, now.Add(-e.cfg.ManualDedupeWindow))
		if err == nil {
			log.Printf("reconcile: duplicate manual payment invoice_id=%s amount=%d", inv.ID, in.Amount)
			return Result{Payment: existing, Invoice: inv, Duplicate: true}, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return Result{}, err
		}
	}

	p := billing.Payment{
		ID:          e.newID(),
		InvoiceID:   inv.ID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Method:      in.Method,
		ExternalRef: in.ExternalRef,
		IsPartial:   in.IsPartial,
		OccurredAt:  occurredAt,
		Source:      in.Source,
		RecordedAt:  now,
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	// Reject an illegal status change before any write keeps the
	// operation all-or-nothing (e.g. payments against draft invoices).
	predicted := capAmount(inv.AmountPaid+in.Amount, inv.Total)
	if err := billing.TransitionInvoice(inv.Status, inv.StatusForAmount(predicted)); err != nil {
		return Result{}, err
	}

	if err := e.store.InsertPayment(ctx, p); err != nil {
		if errors.Is(err, ledger.ErrDuplicatePayment) {
			// Lost a webhook re-delivery race; the other writer's row wins.
			existing, ferr := e.store.FindPaymentByExternalRef(ctx, inv.ID, in.ExternalRef)
			if ferr != nil {
				return Result{}, ferr
			}
			inv, ferr = e.store.GetInvoice(ctx, inv.ID)
			if ferr != nil {
				return Result{}, ferr
			}
			return Result{Payment: existing, Invoice: inv, Duplicate: true}, nil
		}
		return Result{}, err
	}

	return e.settle(ctx, inv, p)
}

// settle recomputes amount_paid from the payment rows and commits the
// derived status.
func (e *Engine) settle(ctx context.Context, inv billing.Invoice, p billing.Payment) (Result, error) {
	payments, err := e.store.ListPayments(ctx, inv.ID)
	if err != nil {
		return Result{}, err
	}
	sum := billing.SumPayments(payments)

	var warning string
	amountPaid := sum
	if sum > inv.Total {
		// Overpayment never silently disappears: the rows keep the full
		// amount, the invoice caps at its total.
		amountPaid = inv.Total
		warning = WarningOverpayment
		log.Printf("reconcile: overpayment invoice_id=%s paid_sum=%d total=%d", inv.ID, sum, inv.Total)
	}

	status := inv.StatusForAmount(amountPaid)
	if err := billing.TransitionInvoice(inv.Status, status); err != nil {
		return Result{}, err
	}
	if err := e.store.SetInvoicePaidState(ctx, inv.ID, amountPaid, status); err != nil {
		return Result{}, err
	}
	inv.AmountPaid = amountPaid
	inv.Status = status
	log.Printf("reconcile: payment applied invoice_id=%s payment_id=%s amount=%d amount_paid=%d status=%s source=%s",
		inv.ID, p.ID, p.Amount, amountPaid, status, p.Source)
	return Result{Payment: p, Invoice: inv, Warning: warning}, nil
}

// Reverse records an offsetting negative payment against a committed one.
// Payments are immutable; this is the only way a paid figure goes down.
func (e *Engine) Reverse(ctx context.Context, invoiceID, paymentID, reason string) (Result, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if errors.Is(err, ledger.ErrNotFound) {
		return Result{}, billing.NewError(billing.CodeNotFound, "invoice %s not found", invoiceID)
	}
	if err != nil {
		return Result{}, err
	}
	payments, err := e.store.ListPayments(ctx, invoiceID)
	if err != nil {
		return Result{}, err
	}
	var original *billing.Payment
	for i := range payments {
		if payments[i].ID == paymentID {
			original = &payments[i]
			break
		}
	}
	if original == nil {
		return Result{}, billing.NewError(billing.CodeNotFound, "payment %s not found", paymentID)
	}
	if original.Amount <= 0 {
		return Result{}, billing.NewError(billing.CodeValidation, "cannot reverse a reversal")
	}

	now := e.clock()
	rev := billing.Payment{
		ID:         e.newID(),
		InvoiceID:  invoiceID,
		Amount:     -original.Amount,
		Currency:   original.Currency,
		Method:     reason,
		OccurredAt: now,
		Source:     original.Source,
		RecordedAt: now,
	}
	if rev.Source == billing.PaymentSourceGateway {
		rev.ExternalRef = original.ExternalRef + ":reversal"
	}
	if err := e.store.InsertPayment(ctx, rev); err != nil {
		return Result{}, err
	}

	payments = append(payments, rev)
	amountPaid := capAmount(billing.SumPayments(payments), inv.Total)
	if amountPaid < 0 {
		amountPaid = 0
	}
	// A reversal may legitimately regress paid -> partially_paid; the
	// monotonic guard applies to derived events, not explicit reversals,
	// so the status is written directly.
	status := inv.Status
	if amountPaid > 0 && amountPaid < inv.Total {
		status = billing.InvoicePartiallyPaid
	} else if amountPaid >= inv.Total {
		status = billing.InvoicePaid
	}
	if err := e.store.SetInvoicePaidState(ctx, invoiceID, amountPaid, status); err != nil {
		return Result{}, err
	}
	inv.AmountPaid = amountPaid
	inv.Status = status
	log.Printf("reconcile: payment reversed invoice_id=%s payment_id=%s amount=%d amount_paid=%d", invoiceID, paymentID, rev.Amount, amountPaid)
	return Result{Payment: rev, Invoice: inv}, nil
}

// SyncResult summarizes one gateway batch application.
type SyncResult struct {
	Applied    int
	Duplicates int
	Warnings   int
	Errors     int
}

// Sync applies a batch of gateway payment events in arrival order. Events
// carry deltas, not snapshots, so no reordering buffer is needed; the
// per-external-ref idempotency guard in ApplyPayment is enough.
func (e *Engine) Sync(ctx context.Context, events []gateway.PaymentEvent) (SyncResult, error) {
	var res SyncResult
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			log.Printf("reconcile: invalid gateway event external_ref=%s err=%v", ev.ExternalPaymentRef, err)
			res.Errors++
			continue
		}
		inv, err := e.store.GetInvoiceByExternalRef(ctx, ev.ExternalInvoiceRef)
		if errors.Is(err, ledger.ErrNotFound) {
			log.Printf("reconcile: no invoice for gateway event external_invoice_ref=%s", ev.ExternalInvoiceRef)
			res.Errors++
			continue
		}
		if err != nil {
			return res, err
		}
		out, err := e.ApplyPayment(ctx, Input{
			InvoiceID:   inv.ID,
			ExternalRef: ev.ExternalPaymentRef,
			Amount:      ev.AmountDelta,
			Currency:    ev.Currency,
			IsPartial:   ev.IsPartial,
			OccurredAt:  ev.OccurredAt,
			Source:      billing.PaymentSourceGateway,
		})
		if err != nil {
			log.Printf("reconcile: gateway event failed external_ref=%s err=%v", ev.ExternalPaymentRef, err)
			res.Errors++
			continue
		}
		switch {
		case out.Duplicate:
			res.Duplicates++
		default:
			res.Applied++
		}
		if out.Warning != "" {
			res.Warnings++
		}
	}
	return res, nil
}

func capAmount(v, max int64) int64 {
	if v > max {
		return max
	}
	return v
}
