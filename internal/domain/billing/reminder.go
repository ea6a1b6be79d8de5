package billing

import "time"

type ReminderTrigger string

const (
	TriggerDaysBeforeDue         ReminderTrigger = "days_before_due"
	TriggerDaysAfterDue          ReminderTrigger = "days_after_due"
	TriggerDaysAfterLastReminder ReminderTrigger = "days_after_last_reminder"
)

// ReminderSchedule groups rules for a company. The default schedule is
// used for invoices whose company has no schedule of its own.
type ReminderSchedule struct {
	ID        string
	CompanyID string
	Name      string
	Enabled   bool
	IsDefault bool
	Rules     []ReminderRule
}

type ReminderRule struct {
	ID         string
	ScheduleID string
	Trigger    ReminderTrigger
	// Days is the integer day offset the trigger applies to its anchor.
	Days    int
	Subject string
	Body    string
}

type SendStatus string

const (
	SendStatusSent   SendStatus = "sent"
	SendStatusFailed SendStatus = "failed"
)

// ReminderSendRecord is the de-duplication unit: at most one non-failed
// record may exist per (invoice, rule, fire-instant day bucket).
type ReminderSendRecord struct {
	ID          string
	InvoiceID   string
	RuleID      string
	FireInstant time.Time
	SentAt      time.Time
	Status      SendStatus
	Detail      string
}

// Bucket is the day-granularity dedupe key for a fire instant. Bucketing
// tolerates sweep jitter around the exact instant.
func Bucket(fireInstant time.Time) string {
	return fireInstant.UTC().Format("2006-01-02")
}

// FireInstant computes when a rule fires for an invoice. lastSend is the
// most recent send record timestamp across any rule for the invoice; ok is
// false when the rule is not yet eligible (days_after_last_reminder with
// no prior send).
func (r ReminderRule) FireInstant(dueDate time.Time, lastSend *time.Time) (time.Time, bool) {
	offset := time.Duration(r.Days) * 24 * time.Hour
	switch r.Trigger {
	case TriggerDaysBeforeDue:
		return dueDate.Add(-offset), true
	case TriggerDaysAfterDue:
		return dueDate.Add(offset), true
	case TriggerDaysAfterLastReminder:
		if lastSend == nil {
			return time.Time{}, false
		}
		return lastSend.Add(offset), true
	default:
		return time.Time{}, false
	}
}

func (r ReminderRule) Validate() error {
	switch r.Trigger {
	case TriggerDaysBeforeDue, TriggerDaysAfterDue, TriggerDaysAfterLastReminder:
	default:
		return NewError(CodeValidation, "unknown reminder trigger %q", r.Trigger)
	}
	if r.Days < 0 {
		return NewError(CodeValidation, "reminder day offset must be >= 0")
	}
	return nil
}
