package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"paperbill/go_backend/internal/domain/billing"
)

type CreateQuoteRequest struct {
	ClientID   string `json:"client_id"`
	CompanyID  string `json:"company_id"`
	TaxPercent int    `json:"tax_percent"`
	ValidDays  int    `json:"valid_days"`
	ExecDays   int    `json:"exec_days"`
	Notes      string `json:"notes"`
	Items      []struct {
		Description string `json:"description"`
		Qty         int    `json:"qty"`
		UnitPrice   int64  `json:"unit_price"`
	} `json:"items"`
}

func (h *Handlers) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}
	if req.ValidDays <= 0 {
		req.ValidDays = 30
	}
	if req.ExecDays <= 0 {
		req.ExecDays = req.ValidDays
	}

	now := h.clock()
	q := billing.Quote{
		ID:         h.newID(),
		Number:     h.quoteNumber(now),
		ClientID:   req.ClientID,
		CompanyID:  req.CompanyID,
		Status:     billing.QuoteDraft,
		IssueDate:  now,
		ValidUntil: now.AddDate(0, 0, req.ValidDays),
		ExecDate:   now.AddDate(0, 0, req.ExecDays),
		TaxPercent: req.TaxPercent,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, it := range req.Items {
		q.Items = append(q.Items, billing.QuoteItem{
			ID:          h.newID(),
			Description: it.Description,
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice,
		})
	}
	q.Recalculate()
	if err := q.Validate(); err != nil {
		writeError(w, err)
		return
	}

	if err := h.Store.CreateQuote(r.Context(), &q); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuoteView(q, true))
}

func (h *Handlers) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.Store.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteView(q, true))
}

// SendQuote moves the quote to sent and mints the share token the public
// endpoints resolve it by. Re-sending an already sent quote is a no-op.
func (h *Handlers) SendQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := h.Store.GetQuote(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := billing.TransitionQuote(q.Status, billing.QuoteSent); err != nil {
		writeError(w, err)
		return
	}
	if q.Status != billing.QuoteSent {
		q.Status = billing.QuoteSent
		if q.ShareToken == "" {
			q.ShareToken = h.newID()
		}
		q.UpdatedAt = h.clock()
		if err := h.Store.UpdateQuote(ctx, &q); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toQuoteView(q, true))
}

type SetQuoteStatusRequest struct {
	Status string `json:"status"`
}

// SetQuoteStatus drives the remaining client-decision edges: accepted,
// rejected, expired. Every change goes through the transition table.
func (h *Handlers) SetQuoteStatus(w http.ResponseWriter, r *http.Request) {
	var req SetQuoteStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}
	target := billing.QuoteStatus(strings.TrimSpace(req.Status))
	if target == "" {
		badRequest(w, "status is required")
		return
	}

	ctx := r.Context()
	q, err := h.Store.GetQuote(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := billing.TransitionQuote(q.Status, target); err != nil {
		writeError(w, err)
		return
	}
	if q.Status != target {
		if err := h.Store.SetQuoteStatus(ctx, q.ID, target); err != nil {
			writeError(w, err)
			return
		}
		q.Status = target
	}
	writeJSON(w, http.StatusOK, toQuoteView(q, true))
}

// SharedQuote is the public (token-resolved) read. First view of a sent
// quote flips it to viewed; later views leave the status alone.
func (h *Handlers) SharedQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := h.Store.GetQuoteByShareToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	if q.Status == billing.QuoteSent {
		if err := h.Store.SetQuoteStatus(ctx, q.ID, billing.QuoteViewed); err != nil {
			writeError(w, err)
			return
		}
		q.Status = billing.QuoteViewed
	}
	writeJSON(w, http.StatusOK, toQuoteView(q, false))
}

type SignQuoteRequest struct {
	SignerName string `json:"signer_name"`
	Artifact   string `json:"artifact"`
}

// SignSharedQuote records an immutable signature against the quote. The
// first confirmed signature moves the quote to signed; a repeat request
// is answered with the current state and no second transition.
func (h *Handlers) SignSharedQuote(w http.ResponseWriter, r *http.Request) {
	var req SignQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad request body")
		return
	}
	if strings.TrimSpace(req.SignerName) == "" {
		badRequest(w, "signer_name is required")
		return
	}

	ctx := r.Context()
	q, err := h.Store.GetQuoteByShareToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	if q.Status == billing.QuoteSigned || q.Status == billing.QuoteAccepted {
		writeJSON(w, http.StatusOK, toQuoteView(q, false))
		return
	}
	if err := billing.TransitionQuote(q.Status, billing.QuoteSigned); err != nil {
		writeError(w, err)
		return
	}

	sig := billing.QuoteSignature{
		ID:         h.newID(),
		QuoteID:    q.ID,
		SignerName: req.SignerName,
		Artifact:   req.Artifact,
		SignedAt:   h.clock(),
		OriginIP:   clientIP(r),
		UserAgent:  r.UserAgent(),
		Confirmed:  true,
	}
	if err := h.Store.AddSignature(ctx, sig); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.SetQuoteStatus(ctx, q.ID, billing.QuoteSigned); err != nil {
		writeError(w, err)
		return
	}
	q.Status = billing.QuoteSigned
	q.Signatures = append(q.Signatures, sig)
	writeJSON(w, http.StatusOK, toQuoteView(q, false))
}

func (h *Handlers) quoteNumber(now time.Time) string {
	return fmt.Sprintf("Q-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(h.newID()[:8]))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
