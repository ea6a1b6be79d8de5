// Package notify delivers composed reminder payloads. The scheduler
// decides that and when to send; dispatchers only carry the message.
package notify

import (
	"context"
	"log"
	"strconv"
	"strings"

	"paperbill/go_backend/internal/domain/billing"
)

// Reminder is the payload handed to a dispatcher.
type Reminder struct {
	InvoiceID string
	RuleID    string
	Subject   string
	Body      string
	Recipient string
}

type Dispatcher interface {
	Send(ctx context.Context, r Reminder) error
}

// Render fills the rule's subject/body templates with invoice facts.
// Placeholders: {{invoice_id}}, {{invoice_number}}, {{amount_due}},
// {{due_date}}.
func Render(rule billing.ReminderRule, inv billing.Invoice) (subject, body string) {
	due := inv.Total - inv.AmountPaid
	if due < 0 {
		due = 0
	}
	repl := strings.NewReplacer(
		"{{invoice_id}}", inv.ID,
		"{{invoice_number}}", inv.Number,
		"{{amount_due}}", formatAmount(due),
		"{{due_date}}", inv.DueDate.UTC().Format("2006-01-02"),
	)
	return repl.Replace(rule.Subject), repl.Replace(rule.Body)
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	return sign + strconv.FormatInt(whole, 10) + "." + pad2(frac)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// LogDispatcher writes reminders to the process log. Default backend for
// local runs and tests.
type LogDispatcher struct{}

func (LogDispatcher) Send(ctx context.Context, r Reminder) error {
	log.Printf("notify: reminder invoice_id=%s rule_id=%s recipient=%s subject=%q", r.InvoiceID, r.RuleID, r.Recipient, r.Subject)
	return nil
}

// FuncDispatcher adapts a function to the Dispatcher interface.
type FuncDispatcher func(ctx context.Context, r Reminder) error

func (f FuncDispatcher) Send(ctx context.Context, r Reminder) error { return f(ctx, r) }
