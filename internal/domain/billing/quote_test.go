package billing

import (
	"testing"
	"time"
)

func TestQuoteRecalculate(t *testing.T) {
	t.Parallel()

	q := Quote{
		TaxPercent: 20,
		Items: []QuoteItem{
			{Description: "install", Qty: 2, UnitPrice: 2500},
			{Description: "materials", Qty: 1, UnitPrice: 5000},
		},
	}
	q.Recalculate()

	if q.Items[0].LineTotal != 5000 {
		t.Fatalf("line total = %d, want 5000", q.Items[0].LineTotal)
	}
	if q.Subtotal != 10000 {
		t.Fatalf("subtotal = %d, want 10000", q.Subtotal)
	}
	if q.TaxAmount != 2000 {
		t.Fatalf("tax = %d, want 2000", q.TaxAmount)
	}
	if q.Total != 12000 {
		t.Fatalf("total = %d, want 12000", q.Total)
	}
}

func TestQuoteValidate(t *testing.T) {
	t.Parallel()

	valid := Quote{
		ClientID:  "client-1",
		CompanyID: "company-1",
		Items:     []QuoteItem{{Description: "work", Qty: 1, UnitPrice: 100}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid quote rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Quote)
	}{
		{"missing client", func(q *Quote) { q.ClientID = "" }},
		{"missing company", func(q *Quote) { q.CompanyID = "" }},
		{"no items", func(q *Quote) { q.Items = nil }},
		{"zero qty", func(q *Quote) { q.Items[0].Qty = 0 }},
		{"negative price", func(q *Quote) { q.Items[0].UnitPrice = -1 }},
		{"tax out of range", func(q *Quote) { q.TaxPercent = 120 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			q.Items = append([]QuoteItem(nil), valid.Items...)
			tt.mutate(&q)
			err := q.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsCode(err, CodeValidation) {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestFirstConfirmedSignature(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	q := Quote{
		Signatures: []QuoteSignature{
			{ID: "s1", SignedAt: base.Add(2 * time.Hour), Confirmed: true},
			{ID: "s2", SignedAt: base, Confirmed: false},
			{ID: "s3", SignedAt: base.Add(time.Hour), Confirmed: true},
		},
	}
	first := q.FirstConfirmedSignature()
	if first == nil || first.ID != "s3" {
		t.Fatalf("expected earliest confirmed signature s3, got %+v", first)
	}

	empty := Quote{Signatures: []QuoteSignature{{ID: "s1", Confirmed: false}}}
	if empty.FirstConfirmedSignature() != nil {
		t.Fatal("expected no confirmed signature")
	}
}
