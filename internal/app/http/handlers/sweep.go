package handlers

import (
	"encoding/json"
	"net/http"

	"paperbill/go_backend/internal/domain/billing"
)

// SweepReminders triggers one reminder sweep on demand, mirroring the
// ticker-driven sweep. Re-running is safe: sends are deduped per day
// bucket.
func (h *Handlers) SweepReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scheduler.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AgingReport classifies open invoices into overdue and near_due. The
// classes are derived on read and never persisted.
func (h *Handlers) AgingReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Scheduler.ClassifySweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type PutScheduleRequest struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	IsDefault bool   `json:"is_default"`
	Rules     []struct {
		ID      string `json:"id"`
		Trigger string `json:"trigger"`
		Days    int    `json:"days"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	} `json:"rules"`
}

// PutSchedule creates or replaces a reminder schedule. Rules are
// validated up front so the sweep never sees a malformed trigger.
func (h *Handlers) PutSchedule(w http.ResponseWriter, r *http.Request) {
	var req PutScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}
	if req.ID == "" {
		req.ID = h.newID()
	}

	sched := billing.ReminderSchedule{
		ID:        req.ID,
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Enabled:   req.Enabled,
		IsDefault: req.IsDefault,
	}
	for _, rule := range req.Rules {
		id := rule.ID
		if id == "" {
			id = h.newID()
		}
		sched.Rules = append(sched.Rules, billing.ReminderRule{
			ID:         id,
			ScheduleID: sched.ID,
			Trigger:    billing.ReminderTrigger(rule.Trigger),
			Days:       rule.Days,
			Subject:    rule.Subject,
			Body:       rule.Body,
		})
	}
	for _, rule := range sched.Rules {
		if err := rule.Validate(); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := h.Store.PutSchedule(r.Context(), &sched); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": sched.ID})
}
