package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ConvertQuote materializes an invoice from a signed or accepted quote.
// The conversion is at-most-once; a second call conflicts.
func (h *Handlers) ConvertQuote(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Converter.Convert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceView(inv))
}
