package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paperbill/go_backend/internal/domain/billing"
)

type invoiceDetail struct {
	Invoice  invoiceView   `json:"invoice"`
	Payments []paymentView `json:"payments"`
	Aging    string        `json:"aging"`
}

func (h *Handlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := h.Store.GetInvoice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	pays, err := h.Store.ListPayments(ctx, inv.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	detail := invoiceDetail{
		Invoice: toInvoiceView(inv),
		Aging:   string(billing.Classify(inv.Status, inv.DueDate, h.clock(), h.Cfg.NearDueWindow())),
	}
	for _, p := range pays {
		detail.Payments = append(detail.Payments, toPaymentView(p))
	}
	writeJSON(w, http.StatusOK, detail)
}

// SendInvoice issues the invoice to the client. Payments only apply to
// issued invoices, so this is the gate between drafting and collecting.
func (h *Handlers) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.setInvoiceStatus(w, r, billing.InvoiceSent)
}

// CancelInvoice voids the invoice. Cancelled is terminal; payments that
// arrive afterwards are rejected by the reconciler.
func (h *Handlers) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.setInvoiceStatus(w, r, billing.InvoiceCancelled)
}

func (h *Handlers) setInvoiceStatus(w http.ResponseWriter, r *http.Request, target billing.InvoiceStatus) {
	ctx := r.Context()
	inv, err := h.Store.GetInvoice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := billing.TransitionInvoice(inv.Status, target); err != nil {
		writeError(w, err)
		return
	}
	if inv.Status != target {
		if err := h.Store.SetInvoiceStatus(ctx, inv.ID, target); err != nil {
			writeError(w, err)
			return
		}
		inv.Status = target
	}
	writeJSON(w, http.StatusOK, toInvoiceView(inv))
}

type SetExternalRefRequest struct {
	ExternalRef string `json:"external_ref"`
}

// SetInvoiceExternalRef links the invoice to the payment processor's
// identifier so webhook events can be routed to it.
func (h *Handlers) SetInvoiceExternalRef(w http.ResponseWriter, r *http.Request) {
	var req SetExternalRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}
	if req.ExternalRef == "" {
		badRequest(w, "external_ref is required")
		return
	}

	ctx := r.Context()
	inv, err := h.Store.GetInvoice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.SetInvoiceExternalRef(ctx, inv.ID, req.ExternalRef); err != nil {
		writeError(w, err)
		return
	}
	inv.ExternalRef = req.ExternalRef
	writeJSON(w, http.StatusOK, toInvoiceView(inv))
}
