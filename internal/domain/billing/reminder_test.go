package billing

import (
	"testing"
	"time"
)

func TestFireInstant(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	lastSend := time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		rule     ReminderRule
		lastSend *time.Time
		want     time.Time
		eligible bool
	}{
		{
			name:     "five days after due",
			rule:     ReminderRule{Trigger: TriggerDaysAfterDue, Days: 5},
			want:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			eligible: true,
		},
		{
			name:     "three days before due",
			rule:     ReminderRule{Trigger: TriggerDaysBeforeDue, Days: 3},
			want:     time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
			eligible: true,
		},
		{
			name:     "after last reminder with prior send",
			rule:     ReminderRule{Trigger: TriggerDaysAfterLastReminder, Days: 2},
			lastSend: &lastSend,
			want:     time.Date(2024, 1, 14, 10, 30, 0, 0, time.UTC),
			eligible: true,
		},
		{
			name:     "after last reminder without prior send is not eligible",
			rule:     ReminderRule{Trigger: TriggerDaysAfterLastReminder, Days: 2},
			eligible: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.FireInstant(due, tt.lastSend)
			if ok != tt.eligible {
				t.Fatalf("eligible = %v, want %v", ok, tt.eligible)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("fire instant = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()

	morning := time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)
	if Bucket(morning) != Bucket(evening) {
		t.Fatal("same-day instants must share a bucket")
	}
	if Bucket(morning) != "2024-01-15" {
		t.Fatalf("bucket = %s, want 2024-01-15", Bucket(morning))
	}
	nextDay := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	if Bucket(morning) == Bucket(nextDay) {
		t.Fatal("different days must not share a bucket")
	}
}

func TestReminderRuleValidate(t *testing.T) {
	t.Parallel()

	if err := (ReminderRule{Trigger: TriggerDaysAfterDue, Days: 5}).Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
	if err := (ReminderRule{Trigger: "whenever", Days: 1}).Validate(); !IsCode(err, CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for unknown trigger, got %v", err)
	}
	if err := (ReminderRule{Trigger: TriggerDaysAfterDue, Days: -1}).Validate(); !IsCode(err, CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for negative offset, got %v", err)
	}
}

func TestSumPayments(t *testing.T) {
	t.Parallel()

	payments := []Payment{
		{Amount: 5000},
		{Amount: 2500},
		{Amount: -1000}, // reversal
	}
	if got := SumPayments(payments); got != 6500 {
		t.Fatalf("sum = %d, want 6500", got)
	}
	if got := SumPayments(nil); got != 0 {
		t.Fatalf("empty sum = %d, want 0", got)
	}
}
