package billing

import "time"

type PaymentSource string

const (
	PaymentSourceGateway PaymentSource = "gateway"
	PaymentSourceManual  PaymentSource = "manual"
)

// Payment is immutable once committed. Corrections are new offsetting
// payments with a negative amount, never in-place edits.
type Payment struct {
	ID        string
	InvoiceID string
	Amount    int64
	Currency  string
	Method    string
	// ExternalRef is the processor's payment reference and the idempotency
	// key for gateway-sourced payments. Empty for manual entries.
	ExternalRef string
	IsPartial   bool
	OccurredAt  time.Time
	Source      PaymentSource
	RecordedAt  time.Time
}

func (p *Payment) Validate() error {
	if p.InvoiceID == "" {
		return NewError(CodeValidation, "invoice id is required")
	}
	if p.Amount == 0 {
		return NewError(CodeValidation, "payment amount must be non-zero")
	}
	if p.Source != PaymentSourceGateway && p.Source != PaymentSourceManual {
		return NewError(CodeValidation, "unknown payment source %q", p.Source)
	}
	if p.Source == PaymentSourceGateway && p.ExternalRef == "" {
		return NewError(CodeValidation, "gateway payment needs an external reference")
	}
	return nil
}

// SumPayments adds up committed payments. Reversals are negative amounts,
// so the plain sum is already the net paid figure.
func SumPayments(payments []Payment) int64 {
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}
