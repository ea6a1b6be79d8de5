package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/reconcile"
)

type RecordPaymentRequest struct {
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	Reference string    `json:"reference"`
	Date      time.Time `json:"date"`
}

type paymentResponse struct {
	Payment   paymentView `json:"payment"`
	Invoice   invoiceView `json:"invoice"`
	Warning   string      `json:"warning,omitempty"`
	Duplicate bool        `json:"duplicate,omitempty"`
}

// RecordPayment books a manual payment against the invoice. Rapid
// double-entry of the same amount inside the dedupe window is treated as
// one payment.
func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}

	res, err := h.Engine.ApplyPayment(r.Context(), reconcile.Input{
		InvoiceID:   chi.URLParam(r, "id"),
		ExternalRef: req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		OccurredAt:  req.Date,
		Source:      billing.PaymentSourceManual,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		Payment:   toPaymentView(res.Payment),
		Invoice:   toInvoiceView(res.Invoice),
		Warning:   res.Warning,
		Duplicate: res.Duplicate,
	})
}

type ReversePaymentRequest struct {
	Reason string `json:"reason"`
}

// ReversePayment books an offsetting negative payment. The original row
// is never mutated; the invoice status may regress.
func (h *Handlers) ReversePayment(w http.ResponseWriter, r *http.Request) {
	var req ReversePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}

	res, err := h.Engine.Reverse(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "paymentID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		Payment: toPaymentView(res.Payment),
		Invoice: toInvoiceView(res.Invoice),
		Warning: res.Warning,
	})
}
