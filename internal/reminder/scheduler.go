// Package reminder evaluates reminder rules against open invoices and
// dispatches at most one send per (invoice, rule, fire-instant bucket).
// Sweeps are safe to overlap or repeat; the send-record key absorbs
// at-least-once scheduling.
package reminder

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/ledger"
	"paperbill/go_backend/internal/notify"
)

type Config struct {
	// NearDueWindow classifies invoices due within this window as
	// near_due. Zero falls back to 7 days.
	NearDueWindow time.Duration
}

const defaultNearDueWindow = 7 * 24 * time.Hour

type Scheduler struct {
	store      ledger.Store
	dispatcher notify.Dispatcher
	cfg        Config
	clock      func() time.Time
	newID      func() string
}

func New(store ledger.Store, dispatcher notify.Dispatcher, cfg Config) *Scheduler {
	if cfg.NearDueWindow <= 0 {
		cfg.NearDueWindow = defaultNearDueWindow
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		clock:      time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// SweepResult reports one reminder sweep for observability.
type SweepResult struct {
	Invoices  int `json:"invoices"`
	Evaluated int `json:"evaluated"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sweep walks every open invoice and every enabled rule applicable to its
// company, dispatching reminders whose fire instant has passed. Dispatch
// failures are recorded as failed sends and retried on the next sweep;
// they never block other reminders.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock()
	var res SweepResult

	invoices, err := s.store.ListOpenInvoices(ctx)
	if err != nil {
		return res, err
	}
	res.Invoices = len(invoices)

	for _, inv := range invoices {
		if inv.Status == billing.InvoiceDraft {
			continue
		}
		sched, err := s.store.ScheduleForCompany(ctx, inv.CompanyID)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		if !sched.Enabled {
			continue
		}

		var lastSend *time.Time
		if ts, err := s.store.LatestSend(ctx, inv.ID); err == nil {
			lastSend = &ts
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return res, err
		}

		for _, rule := range sched.Rules {
			res.Evaluated++
			if err := rule.Validate(); err != nil {
				log.Printf("reminder: skipping invalid rule rule_id=%s err=%v", rule.ID, err)
				res.Skipped++
				continue
			}
			fire, eligible := rule.FireInstant(inv.DueDate, lastSend)
			if !eligible || fire.After(now) {
				res.Skipped++
				continue
			}
			bucket := billing.Bucket(fire)
			sent, err := s.store.HasSentRecord(ctx, inv.ID, rule.ID, bucket)
			if err != nil {
				return res, err
			}
			if sent {
				res.Skipped++
				continue
			}
			if s.fire(ctx, inv, rule, fire, now) {
				res.Sent++
				// Later rules in this sweep anchor off this send.
				ts := now
				lastSend = &ts
			} else {
				res.Failed++
			}
		}
	}
	log.Printf("reminder: sweep done invoices=%d evaluated=%d sent=%d failed=%d skipped=%d",
		res.Invoices, res.Evaluated, res.Sent, res.Failed, res.Skipped)
	return res, nil
}

// fire dispatches one reminder and records the outcome. Returns true when
// the send succeeded.
func (s *Scheduler) fire(ctx context.Context, inv billing.Invoice, rule billing.ReminderRule, fire, now time.Time) bool {
	subject, body := notify.Render(rule, inv)
	payload := notify.Reminder{
		InvoiceID: inv.ID,
		RuleID:    rule.ID,
		Subject:   subject,
		Body:      body,
		Recipient: inv.ClientID,
	}
	rec := billing.ReminderSendRecord{
		ID:          s.newID(),
		InvoiceID:   inv.ID,
		RuleID:      rule.ID,
		FireInstant: fire,
		SentAt:      now,
	}

	if err := s.dispatcher.Send(ctx, payload); err != nil {
		log.Printf("reminder: dispatch failed invoice_id=%s rule_id=%s err=%v", inv.ID, rule.ID, err)
		rec.Status = billing.SendStatusFailed
		rec.Detail = err.Error()
		if werr := s.store.InsertSendRecord(ctx, rec); werr != nil {
			log.Printf("reminder: failed-send record write failed invoice_id=%s rule_id=%s err=%v", inv.ID, rule.ID, werr)
		}
		return false
	}

	rec.Status = billing.SendStatusSent
	if err := s.store.InsertSendRecord(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrDuplicateSend) {
			// An overlapping sweep won the race after our dispatch; the
			// record already exists, nothing else to do.
			return true
		}
		log.Printf("reminder: send record write failed invoice_id=%s rule_id=%s err=%v", inv.ID, rule.ID, err)
		return true
	}
	return true
}

// Run invokes Sweep on a fixed interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Printf("reminder: sweep failed: %v", err)
			}
		}
	}
}
