package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"paperbill/go_backend/internal/domain/billing"
)

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	body := `{"external_invoice_ref":"ext-inv-1","external_payment_ref":"pay-1","amount_delta":5000,"currency":"EUR","is_partial":true,"occurred_at":"2024-01-10T12:00:00Z"}`
	ev, err := DecodeEvent(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ExternalPaymentRef != "pay-1" || ev.AmountDelta != 5000 || !ev.IsPartial {
		t.Fatalf("unexpected event: %+v", ev)
	}
	want := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Fatalf("occurred_at = %s, want %s", ev.OccurredAt, want)
	}
}

func TestDecodeEventRejectsBadPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing payment ref", `{"external_invoice_ref":"ext-1","amount_delta":100}`},
		{"missing invoice ref", `{"external_payment_ref":"pay-1","amount_delta":100}`},
		{"zero amount", `{"external_invoice_ref":"ext-1","external_payment_ref":"pay-1","amount_delta":0}`},
		{"negative amount", `{"external_invoice_ref":"ext-1","external_payment_ref":"pay-1","amount_delta":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(strings.NewReader(tt.body))
			if !billing.IsCode(err, billing.CodeValidation) {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestPollEventsRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"events":[{"external_invoice_ref":"ext-1","external_payment_ref":"pay-1","amount_delta":100}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", srv.Client())
	events, err := c.PollEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 1 || events[0].ExternalPaymentRef != "pay-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestPollEventsDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", srv.Client())
	if _, err := c.PollEvents(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestPollEventsSendsCursorAndAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("after"); got != "pay-9" {
			t.Errorf("cursor = %q, want pay-9", got)
		}
		w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", srv.Client())
	if _, err := c.PollEvents(context.Background(), "pay-9"); err != nil {
		t.Fatalf("poll: %v", err)
	}
}
