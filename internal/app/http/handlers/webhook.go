package handlers

import (
	"crypto/subtle"
	"net/http"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/gateway"
	"paperbill/go_backend/internal/reconcile"
)

// GatewayWebhook ingests one payment event pushed by the processor. The
// processor retries until it sees 2xx, so duplicates are expected and
// acknowledged rather than rejected.
func (h *Handlers) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("X-Gateway-Signature")
	if subtle.ConstantTimeCompare([]byte(sig), []byte(h.Cfg.GatewayWebhookSecret)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ev, err := gateway.DecodeEvent(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	inv, err := h.Store.GetInvoiceByExternalRef(ctx, ev.ExternalInvoiceRef)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Engine.ApplyPayment(ctx, reconcile.Input{
		InvoiceID:   inv.ID,
		ExternalRef: ev.ExternalPaymentRef,
		Amount:      ev.AmountDelta,
		Currency:    ev.Currency,
		IsPartial:   ev.IsPartial,
		OccurredAt:  ev.OccurredAt,
		Source:      billing.PaymentSourceGateway,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{
		Payment:   toPaymentView(res.Payment),
		Invoice:   toInvoiceView(res.Invoice),
		Warning:   res.Warning,
		Duplicate: res.Duplicate,
	})
}

type syncResponse struct {
	Applied    int    `json:"applied"`
	Duplicates int    `json:"duplicates"`
	Warnings   int    `json:"warnings"`
	Errors     int    `json:"errors"`
	Cursor     string `json:"cursor,omitempty"`
}

type SyncRequest struct {
	Cursor string `json:"cursor"`
}

// GatewaySync pulls pending events from the processor and reconciles
// them. Safe to re-run with any cursor: application is idempotent.
func (h *Handlers) GatewaySync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "bad request body")
			return
		}
	}
	if h.Gateway == nil {
		writeError(w, billing.NewError(billing.CodeGatewayUnavailable, "gateway is not configured"))
		return
	}

	ctx := r.Context()
	events, err := h.Gateway.PollEvents(ctx, req.Cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Engine.Sync(ctx, events)
	if err != nil {
		writeError(w, err)
		return
	}

	out := syncResponse{
		Applied:    res.Applied,
		Duplicates: res.Duplicates,
		Warnings:   res.Warnings,
		Errors:     res.Errors,
	}
	if n := len(events); n > 0 {
		out.Cursor = events[n-1].ExternalPaymentRef
	}
	writeJSON(w, http.StatusOK, out)
}
