// Package gateway models the external payment processor's observable
// contract: the payment events it pushes over webhooks or serves to the
// poller. The processor is the source of truth for money movement; this
// package only maps its payloads into typed events, validation failures
// are raised before anything touches the ledger.
package gateway

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"paperbill/go_backend/internal/domain/billing"
)

// PaymentEvent carries one payment delta. ExternalPaymentRef is the
// idempotency key for the whole reconciliation path.
type PaymentEvent struct {
	ExternalInvoiceRef string    `json:"external_invoice_ref"`
	ExternalPaymentRef string    `json:"external_payment_ref"`
	AmountDelta        int64     `json:"amount_delta"`
	Currency           string    `json:"currency"`
	IsPartial          bool      `json:"is_partial"`
	OccurredAt         time.Time `json:"occurred_at"`
}

func (ev PaymentEvent) Validate() error {
	if strings.TrimSpace(ev.ExternalInvoiceRef) == "" {
		return billing.NewError(billing.CodeValidation, "event missing external invoice ref")
	}
	if strings.TrimSpace(ev.ExternalPaymentRef) == "" {
		return billing.NewError(billing.CodeValidation, "event missing external payment ref")
	}
	if ev.AmountDelta <= 0 {
		return billing.NewError(billing.CodeValidation, "event amount delta must be > 0")
	}
	return nil
}

// DecodeEvent parses one webhook body into a validated event. Untyped
// payloads never travel past this boundary.
func DecodeEvent(r io.Reader) (PaymentEvent, error) {
	var ev PaymentEvent
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return PaymentEvent{}, billing.NewError(billing.CodeValidation, "malformed gateway payload: %v", err)
	}
	if err := ev.Validate(); err != nil {
		return PaymentEvent{}, err
	}
	return ev, nil
}
