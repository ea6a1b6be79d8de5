// Package ledger defines the persistence boundary for quotes, invoices,
// payments and reminder state. The store is the only writer of status
// fields; services validate every change through the billing state
// machine before committing it here.
package ledger

import (
	"context"
	"errors"
	"time"

	"paperbill/go_backend/internal/domain/billing"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicatePayment indicates a payment with the same
	// (invoice, external ref) pair is already committed.
	ErrDuplicatePayment = errors.New("duplicate payment")
	// ErrDuplicateSend indicates a non-failed reminder send already exists
	// for the (invoice, rule, fire-instant bucket) key.
	ErrDuplicateSend = errors.New("duplicate reminder send")
)

// Store is the durable record of the billing subsystem. Implementations
// must make InsertPayment's duplicate check atomic (a uniqueness
// constraint, not a read-then-write) and run ConvertQuote all-or-nothing.
type Store interface {
	CreateQuote(ctx context.Context, q *billing.Quote) error
	GetQuote(ctx context.Context, id string) (billing.Quote, error)
	GetQuoteByShareToken(ctx context.Context, token string) (billing.Quote, error)
	UpdateQuote(ctx context.Context, q *billing.Quote) error
	SetQuoteStatus(ctx context.Context, id string, status billing.QuoteStatus) error
	AddSignature(ctx context.Context, sig billing.QuoteSignature) error

	CreateInvoice(ctx context.Context, inv *billing.Invoice) error
	GetInvoice(ctx context.Context, id string) (billing.Invoice, error)
	GetInvoiceByExternalRef(ctx context.Context, ref string) (billing.Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]billing.Invoice, error)
	SetInvoiceStatus(ctx context.Context, id string, status billing.InvoiceStatus) error
	// SetInvoiceExternalRef links the invoice to the payment processor's
	// identifier used to route gateway events.
	SetInvoiceExternalRef(ctx context.Context, id, externalRef string) error
	// SetInvoicePaidState commits a recomputed amount_paid together with
	// the status it implies.
	SetInvoicePaidState(ctx context.Context, id string, amountPaid int64, status billing.InvoiceStatus) error

	InsertPayment(ctx context.Context, p billing.Payment) error
	ListPayments(ctx context.Context, invoiceID string) ([]billing.Payment, error)
	FindPaymentByExternalRef(ctx context.Context, invoiceID, externalRef string) (billing.Payment, error)
	// FindRecentManualPayment locates a manual payment for the invoice
	// with the same amount recorded at or after since. Backs the manual
	// double-entry guard.
	FindRecentManualPayment(ctx context.Context, invoiceID string, amount int64, since time.Time) (billing.Payment, error)

	// ConvertQuote loads the quote, runs build against it and, when build
	// succeeds, persists the returned invoice (with items) and marks the
	// quote invoiced as one atomic unit.
	ConvertQuote(ctx context.Context, quoteID string, build func(billing.Quote) (billing.Invoice, error)) (billing.Invoice, error)

	PutSchedule(ctx context.Context, s *billing.ReminderSchedule) error
	ListSchedules(ctx context.Context) ([]billing.ReminderSchedule, error)
	// ScheduleForCompany resolves the company's schedule, falling back to
	// the default schedule when it has none.
	ScheduleForCompany(ctx context.Context, companyID string) (billing.ReminderSchedule, error)

	InsertSendRecord(ctx context.Context, rec billing.ReminderSendRecord) error
	HasSentRecord(ctx context.Context, invoiceID, ruleID, bucket string) (bool, error)
	// LatestSend returns the timestamp of the most recent non-failed send
	// for the invoice across any rule, or ErrNotFound.
	LatestSend(ctx context.Context, invoiceID string) (time.Time, error)
}
