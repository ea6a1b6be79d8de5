package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"paperbill/go_backend/internal/app/config"
	"paperbill/go_backend/internal/app/http/handlers"
	"paperbill/go_backend/internal/app/http/middleware"
)

func NewRouter(cfg config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSAllowOrigin))

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {

		// Public endpoints: resolved by share token or signed by the
		// gateway secret, never by the internal token.
		r.Get("/quotes/shared/{token}", h.SharedQuote)
		r.Post("/quotes/shared/{token}/sign", h.SignSharedQuote)
		r.Post("/gateway/webhook", h.GatewayWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.InternalAuth(cfg.InternalToken))

			r.Post("/quotes", h.CreateQuote)
			r.Get("/quotes/{id}", h.GetQuote)
			r.Post("/quotes/{id}/send", h.SendQuote)
			r.Post("/quotes/{id}/status", h.SetQuoteStatus)
			r.Post("/quotes/{id}/convert", h.ConvertQuote)

			r.Get("/invoices/{id}", h.GetInvoice)
			r.Post("/invoices/{id}/send", h.SendInvoice)
			r.Post("/invoices/{id}/cancel", h.CancelInvoice)
			r.Post("/invoices/{id}/external-ref", h.SetInvoiceExternalRef)
			r.Post("/invoices/{id}/payments", h.RecordPayment)
			r.Post("/invoices/{id}/payments/{paymentID}/reverse", h.ReversePayment)

			r.Post("/gateway/sync", h.GatewaySync)

			r.Put("/reminder-schedules", h.PutSchedule)
			r.Post("/sweep/reminders", h.SweepReminders)
			r.Get("/sweep/aging", h.AgingReport)
		})
	})

	return r
}
