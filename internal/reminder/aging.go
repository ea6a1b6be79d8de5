package reminder

import (
	"context"
	"log"
	"time"

	"paperbill/go_backend/internal/domain/billing"
)

// AgingReport is the dashboard view of invoice aging. Both classes are
// derived fresh on every call; neither is ever persisted as a status.
type AgingReport struct {
	Overdue    int      `json:"overdue"`
	NearDue    int      `json:"near_due"`
	OverdueIDs []string `json:"overdue_ids"`
	NearDueIDs []string `json:"near_due_ids"`
}

// ClassifySweep computes the overdue/near-due classification of all open
// invoices. This is a read-only companion to Sweep; it triggers no sends.
func (s *Scheduler) ClassifySweep(ctx context.Context) (AgingReport, error) {
	now := s.clock()
	var report AgingReport

	invoices, err := s.store.ListOpenInvoices(ctx)
	if err != nil {
		return report, err
	}
	for _, inv := range invoices {
		switch billing.Classify(inv.Status, inv.DueDate, now, s.cfg.NearDueWindow) {
		case billing.AgingOverdue:
			report.Overdue++
			report.OverdueIDs = append(report.OverdueIDs, inv.ID)
		case billing.AgingNearDue:
			report.NearDue++
			report.NearDueIDs = append(report.NearDueIDs, inv.ID)
		}
	}
	log.Printf("reminder: aging sweep overdue=%d near_due=%d", report.Overdue, report.NearDue)
	return report, nil
}

// RunAging logs the aging report on a fixed interval until ctx is
// cancelled.
func (s *Scheduler) RunAging(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ClassifySweep(ctx); err != nil {
				log.Printf("reminder: aging sweep failed: %v", err)
			}
		}
	}
}
