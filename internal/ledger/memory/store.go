// Package memory provides an in-process ledger store. It backs tests and
// the LEDGER_BACKEND=memory local mode; the postgres store is the
// production implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/ledger"
)

type Store struct {
	mu sync.Mutex

	quotes     map[string]billing.Quote
	byToken    map[string]string // share token -> quote id
	invoices   map[string]billing.Invoice
	byExtRef   map[string]string // invoice external ref -> invoice id
	payments   map[string][]billing.Payment
	payByRef   map[string]string // invoiceID+"\x00"+externalRef -> payment id
	schedules  map[string]billing.ReminderSchedule
	sendByKey  map[string]billing.ReminderSendRecord // invoice+rule+bucket -> non-failed record
	sends      map[string][]billing.ReminderSendRecord
	latestSend map[string]time.Time
}

func New() *Store {
	return &Store{
		quotes:     make(map[string]billing.Quote),
		byToken:    make(map[string]string),
		invoices:   make(map[string]billing.Invoice),
		byExtRef:   make(map[string]string),
		payments:   make(map[string][]billing.Payment),
		payByRef:   make(map[string]string),
		schedules:  make(map[string]billing.ReminderSchedule),
		sendByKey:  make(map[string]billing.ReminderSendRecord),
		sends:      make(map[string][]billing.ReminderSendRecord),
		latestSend: make(map[string]time.Time),
	}
}

func cloneQuote(q billing.Quote) billing.Quote {
	q.Items = append([]billing.QuoteItem(nil), q.Items...)
	q.Signatures = append([]billing.QuoteSignature(nil), q.Signatures...)
	return q
}

func cloneInvoice(inv billing.Invoice) billing.Invoice {
	inv.Items = append([]billing.InvoiceItem(nil), inv.Items...)
	return inv
}

func (s *Store) CreateQuote(ctx context.Context, q *billing.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.ID] = cloneQuote(*q)
	if q.ShareToken != "" {
		s.byToken[q.ShareToken] = q.ID
	}
	return nil
}

func (s *Store) GetQuote(ctx context.Context, id string) (billing.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok {
		return billing.Quote{}, ledger.ErrNotFound
	}
	return cloneQuote(q), nil
}

func (s *Store) GetQuoteByShareToken(ctx context.Context, token string) (billing.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return billing.Quote{}, ledger.ErrNotFound
	}
	return cloneQuote(s.quotes[id]), nil
}

func (s *Store) UpdateQuote(ctx context.Context, q *billing.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quotes[q.ID]; !ok {
		return ledger.ErrNotFound
	}
	s.quotes[q.ID] = cloneQuote(*q)
	if q.ShareToken != "" {
		s.byToken[q.ShareToken] = q.ID
	}
	return nil
}

func (s *Store) SetQuoteStatus(ctx context.Context, id string, status billing.QuoteStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok {
		return ledger.ErrNotFound
	}
	q.Status = status
	s.quotes[id] = q
	return nil
}

func (s *Store) AddSignature(ctx context.Context, sig billing.QuoteSignature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[sig.QuoteID]
	if !ok {
		return ledger.ErrNotFound
	}
	q.Signatures = append(q.Signatures, sig)
	s.quotes[sig.QuoteID] = q
	return nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createInvoiceLocked(inv)
	return nil
}

func (s *Store) createInvoiceLocked(inv *billing.Invoice) {
	s.invoices[inv.ID] = cloneInvoice(*inv)
	if inv.ExternalRef != "" {
		s.byExtRef[inv.ExternalRef] = inv.ID
	}
}

func (s *Store) GetInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return billing.Invoice{}, ledger.ErrNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *Store) GetInvoiceByExternalRef(ctx context.Context, ref string) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExtRef[ref]
	if !ok {
		return billing.Invoice{}, ledger.ErrNotFound
	}
	return cloneInvoice(s.invoices[id]), nil
}

func (s *Store) ListOpenInvoices(ctx context.Context) ([]billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range s.invoices {
		if inv.Open() {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id string, status billing.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return ledger.ErrNotFound
	}
	inv.Status = status
	s.invoices[id] = inv
	return nil
}

func (s *Store) SetInvoiceExternalRef(ctx context.Context, id, externalRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return ledger.ErrNotFound
	}
	inv.ExternalRef = externalRef
	s.invoices[id] = inv
	return nil
}

func (s *Store) SetInvoicePaidState(ctx context.Context, id string, amountPaid int64, status billing.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return ledger.ErrNotFound
	}
	inv.AmountPaid = amountPaid
	inv.Status = status
	s.invoices[id] = inv
	return nil
}

func payRefKey(invoiceID, externalRef string) string { return invoiceID + "\x00" + externalRef }

func (s *Store) InsertPayment(ctx context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[p.InvoiceID]; !ok {
		return ledger.ErrNotFound
	}
	if p.ExternalRef != "" {
		key := payRefKey(p.InvoiceID, p.ExternalRef)
		if _, exists := s.payByRef[key]; exists {
			return ledger.ErrDuplicatePayment
		}
		s.payByRef[key] = p.ID
	}
	s.payments[p.InvoiceID] = append(s.payments[p.InvoiceID], p)
	return nil
}

func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]billing.Payment(nil), s.payments[invoiceID]...), nil
}

func (s *Store) FindPaymentByExternalRef(ctx context.Context, invoiceID, externalRef string) (billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments[invoiceID] {
		if p.ExternalRef == externalRef {
			return p, nil
		}
	}
	return billing.Payment{}, ledger.ErrNotFound
}

func (s *Store) FindRecentManualPayment(ctx context.Context, invoiceID string, amount int64, since time.Time) (billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments[invoiceID] {
		if p.Source == billing.PaymentSourceManual && p.Amount == amount && !p.RecordedAt.Before(since) {
			return p, nil
		}
	}
	return billing.Payment{}, ledger.ErrNotFound
}

func (s *Store) ConvertQuote(ctx context.Context, quoteID string, build func(billing.Quote) (billing.Invoice, error)) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[quoteID]
	if !ok {
		return billing.Invoice{}, ledger.ErrNotFound
	}
	inv, err := build(cloneQuote(q))
	if err != nil {
		return billing.Invoice{}, err
	}
	s.createInvoiceLocked(&inv)
	q.Status = billing.QuoteInvoiced
	s.quotes[quoteID] = q
	return cloneInvoice(inv), nil
}

func (s *Store) PutSchedule(ctx context.Context, sched *billing.ReminderSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sched
	cp.Rules = append([]billing.ReminderRule(nil), sched.Rules...)
	s.schedules[sched.ID] = cp
	return nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]billing.ReminderSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.ReminderSchedule
	for _, sched := range s.schedules {
		cp := sched
		cp.Rules = append([]billing.ReminderRule(nil), sched.Rules...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ScheduleForCompany(ctx context.Context, companyID string) (billing.ReminderSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fallback *billing.ReminderSchedule
	for id := range s.schedules {
		sched := s.schedules[id]
		if sched.CompanyID == companyID {
			return sched, nil
		}
		if sched.IsDefault {
			cp := sched
			fallback = &cp
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return billing.ReminderSchedule{}, ledger.ErrNotFound
}

func sendKey(invoiceID, ruleID, bucket string) string {
	return invoiceID + "\x00" + ruleID + "\x00" + bucket
}

func (s *Store) InsertSendRecord(ctx context.Context, rec billing.ReminderSendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sendKey(rec.InvoiceID, rec.RuleID, billing.Bucket(rec.FireInstant))
	if rec.Status != billing.SendStatusFailed {
		if _, exists := s.sendByKey[key]; exists {
			return ledger.ErrDuplicateSend
		}
		s.sendByKey[key] = rec
		if rec.SentAt.After(s.latestSend[rec.InvoiceID]) {
			s.latestSend[rec.InvoiceID] = rec.SentAt
		}
	}
	s.sends[rec.InvoiceID] = append(s.sends[rec.InvoiceID], rec)
	return nil
}

func (s *Store) HasSentRecord(ctx context.Context, invoiceID, ruleID, bucket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sendByKey[sendKey(invoiceID, ruleID, bucket)]
	return ok, nil
}

func (s *Store) LatestSend(ctx context.Context, invoiceID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.latestSend[invoiceID]
	if !ok {
		return time.Time{}, ledger.ErrNotFound
	}
	return ts, nil
}
