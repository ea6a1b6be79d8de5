package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"paperbill/go_backend/internal/domain/billing"
	"paperbill/go_backend/internal/ledger"
)

// Store implements ledger.Store on top of the pgx pool. Uniqueness
// constraints in the schema back the idempotency guarantees; unique
// violations are translated to the ledger sentinel errors.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store { return &Store{db: db} }

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) CreateQuote(ctx context.Context, q *billing.Quote) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertQuote(ctx, tx, q); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertQuote(ctx context.Context, tx pgx.Tx, q *billing.Quote) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO quotes (id, number, client_id, company_id, status, issue_date, valid_until, exec_date,
			tax_percent, subtotal, tax_amount, total, notes, share_token, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		q.ID, q.Number, q.ClientID, q.CompanyID, q.Status, q.IssueDate, q.ValidUntil, q.ExecDate,
		q.TaxPercent, q.Subtotal, q.TaxAmount, q.Total, q.Notes, q.ShareToken, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return err
	}
	for i, it := range q.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO quote_items (id, quote_id, description, qty, unit_price, line_total, pos)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, q.ID, it.Description, it.Qty, it.UnitPrice, it.LineTotal, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetQuote(ctx context.Context, id string) (billing.Quote, error) {
	return s.getQuoteWhere(ctx, "id = $1", id)
}

func (s *Store) GetQuoteByShareToken(ctx context.Context, token string) (billing.Quote, error) {
	return s.getQuoteWhere(ctx, "share_token = $1", token)
}

func (s *Store) getQuoteWhere(ctx context.Context, where string, arg any) (billing.Quote, error) {
	var q billing.Quote
	row := s.db.Pool.QueryRow(ctx, `
		SELECT id, number, client_id, company_id, status, issue_date, valid_until, exec_date,
			tax_percent, subtotal, tax_amount, total, notes, COALESCE(share_token, ''), created_at, updated_at
		FROM quotes WHERE `+where, arg)
	err := row.Scan(&q.ID, &q.Number, &q.ClientID, &q.CompanyID, &q.Status, &q.IssueDate, &q.ValidUntil, &q.ExecDate,
		&q.TaxPercent, &q.Subtotal, &q.TaxAmount, &q.Total, &q.Notes, &q.ShareToken, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Quote{}, ledger.ErrNotFound
	}
	if err != nil {
		return billing.Quote{}, err
	}
	if q.Items, err = s.quoteItems(ctx, q.ID); err != nil {
		return billing.Quote{}, err
	}
	if q.Signatures, err = s.quoteSignatures(ctx, q.ID); err != nil {
		return billing.Quote{}, err
	}
	return q, nil
}

func (s *Store) quoteItems(ctx context.Context, quoteID string) ([]billing.QuoteItem, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, description, qty, unit_price, line_total
		FROM quote_items WHERE quote_id = $1 ORDER BY pos`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []billing.QuoteItem
	for rows.Next() {
		var it billing.QuoteItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Qty, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) quoteSignatures(ctx context.Context, quoteID string) ([]billing.QuoteSignature, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, quote_id, signer_name, artifact, signed_at, origin_ip, user_agent, confirmed
		FROM quote_signatures WHERE quote_id = $1 ORDER BY signed_at`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sigs []billing.QuoteSignature
	for rows.Next() {
		var sig billing.QuoteSignature
		if err := rows.Scan(&sig.ID, &sig.QuoteID, &sig.SignerName, &sig.Artifact, &sig.SignedAt, &sig.OriginIP, &sig.UserAgent, &sig.Confirmed); err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

func (s *Store) UpdateQuote(ctx context.Context, q *billing.Quote) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE quotes SET number=$2, client_id=$3, company_id=$4, status=$5, issue_date=$6,
			valid_until=$7, exec_date=$8, tax_percent=$9, subtotal=$10, tax_amount=$11,
			total=$12, notes=$13, share_token=$14, updated_at=$15
		WHERE id = $1`,
		q.ID, q.Number, q.ClientID, q.CompanyID, q.Status, q.IssueDate,
		q.ValidUntil, q.ExecDate, q.TaxPercent, q.Subtotal, q.TaxAmount,
		q.Total, q.Notes, q.ShareToken, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
		return err
	}
	for i, it := range q.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO quote_items (id, quote_id, description, qty, unit_price, line_total, pos)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, q.ID, it.Description, it.Qty, it.UnitPrice, it.LineTotal, i); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) SetQuoteStatus(ctx context.Context, id string, status billing.QuoteStatus) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE quotes SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) AddSignature(ctx context.Context, sig billing.QuoteSignature) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO quote_signatures (id, quote_id, signer_name, artifact, signed_at, origin_ip, user_agent, confirmed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sig.ID, sig.QuoteID, sig.SignerName, sig.Artifact, sig.SignedAt, sig.OriginIP, sig.UserAgent, sig.Confirmed)
	return err
}

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertInvoice(ctx, tx, inv); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertInvoice(ctx context.Context, tx pgx.Tx, inv *billing.Invoice) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO invoices (id, number, client_id, company_id, quote_id, status, issue_date, due_date,
			tax_percent, subtotal, tax_amount, total, notes, amount_paid, external_ref, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		inv.ID, inv.Number, inv.ClientID, inv.CompanyID, inv.QuoteID, inv.Status, inv.IssueDate, inv.DueDate,
		inv.TaxPercent, inv.Subtotal, inv.TaxAmount, inv.Total, inv.Notes, inv.AmountPaid, inv.ExternalRef,
		inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	for i, it := range inv.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, qty, unit_price, line_total, pos)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, inv.ID, it.Description, it.Qty, it.UnitPrice, it.LineTotal, i); err != nil {
			return err
		}
	}
	return nil
}

const invoiceColumns = `id, number, client_id, company_id, COALESCE(quote_id, ''), status, issue_date, due_date,
	tax_percent, subtotal, tax_amount, total, notes, amount_paid, COALESCE(external_ref, ''), created_at, updated_at`

func scanInvoice(row pgx.Row) (billing.Invoice, error) {
	var inv billing.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.CompanyID, &inv.QuoteID, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &inv.TaxPercent, &inv.Subtotal, &inv.TaxAmount, &inv.Total,
		&inv.Notes, &inv.AmountPaid, &inv.ExternalRef, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func (s *Store) GetInvoice(ctx context.Context, id string) (billing.Invoice, error) {
	return s.getInvoiceWhere(ctx, "id = $1", id)
}

func (s *Store) GetInvoiceByExternalRef(ctx context.Context, ref string) (billing.Invoice, error) {
	return s.getInvoiceWhere(ctx, "external_ref = $1", ref)
}

func (s *Store) getInvoiceWhere(ctx context.Context, where string, arg any) (billing.Invoice, error) {
	inv, err := scanInvoice(s.db.Pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Invoice{}, ledger.ErrNotFound
	}
	if err != nil {
		return billing.Invoice{}, err
	}
	if inv.Items, err = s.invoiceItems(ctx, inv.ID); err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) invoiceItems(ctx context.Context, invoiceID string) ([]billing.InvoiceItem, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, description, qty, unit_price, line_total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY pos`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []billing.InvoiceItem
	for rows.Next() {
		var it billing.InvoiceItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Qty, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ListOpenInvoices(ctx context.Context) ([]billing.Invoice, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status NOT IN ('paid', 'cancelled') ORDER BY due_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id string, status billing.InvoiceStatus) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE invoices SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) SetInvoiceExternalRef(ctx context.Context, id, externalRef string) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE invoices SET external_ref=$2, updated_at=now() WHERE id=$1`, id, externalRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) SetInvoicePaidState(ctx context.Context, id string, amountPaid int64, status billing.InvoiceStatus) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE invoices SET amount_paid=$2, status=$3, updated_at=now() WHERE id=$1`,
		id, amountPaid, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) InsertPayment(ctx context.Context, p billing.Payment) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount, currency, method, external_ref, is_partial, occurred_at, source, recorded_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10)`,
		p.ID, p.InvoiceID, p.Amount, p.Currency, p.Method, p.ExternalRef, p.IsPartial, p.OccurredAt, p.Source, p.RecordedAt)
	if isUniqueViolation(err) {
		return ledger.ErrDuplicatePayment
	}
	return err
}

const paymentColumns = `id, invoice_id, amount, currency, method, COALESCE(external_ref, ''), is_partial, occurred_at, source, recorded_at`

func scanPayment(row pgx.Row) (billing.Payment, error) {
	var p billing.Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Currency, &p.Method, &p.ExternalRef, &p.IsPartial, &p.OccurredAt, &p.Source, &p.RecordedAt)
	return p, err
}

func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]billing.Payment, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE invoice_id = $1 ORDER BY recorded_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) FindPaymentByExternalRef(ctx context.Context, invoiceID, externalRef string) (billing.Payment, error) {
	p, err := scanPayment(s.db.Pool.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE invoice_id = $1 AND external_ref = $2`, invoiceID, externalRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Payment{}, ledger.ErrNotFound
	}
	return p, err
}

func (s *Store) FindRecentManualPayment(ctx context.Context, invoiceID string, amount int64, since time.Time) (billing.Payment, error) {
	p, err := scanPayment(s.db.Pool.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE invoice_id = $1 AND source = 'manual' AND amount = $2 AND recorded_at >= $3
		ORDER BY recorded_at DESC LIMIT 1`, invoiceID, amount, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Payment{}, ledger.ErrNotFound
	}
	return p, err
}

// ConvertQuote runs the three conversion effects in one transaction. The
// quote row is locked for the duration so concurrent conversions of the
// same quote serialize and the loser sees status invoiced.
func (s *Store) ConvertQuote(ctx context.Context, quoteID string, build func(billing.Quote) (billing.Invoice, error)) (billing.Invoice, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return billing.Invoice{}, err
	}
	defer tx.Rollback(ctx)

	var q billing.Quote
	row := tx.QueryRow(ctx, `
		SELECT id, number, client_id, company_id, status, issue_date, valid_until, exec_date,
			tax_percent, subtotal, tax_amount, total, notes, COALESCE(share_token, ''), created_at, updated_at
		FROM quotes WHERE id = $1 FOR UPDATE`, quoteID)
	err = row.Scan(&q.ID, &q.Number, &q.ClientID, &q.CompanyID, &q.Status, &q.IssueDate, &q.ValidUntil, &q.ExecDate,
		&q.TaxPercent, &q.Subtotal, &q.TaxAmount, &q.Total, &q.Notes, &q.ShareToken, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Invoice{}, ledger.ErrNotFound
	}
	if err != nil {
		return billing.Invoice{}, err
	}
	if q.Items, err = s.quoteItems(ctx, q.ID); err != nil {
		return billing.Invoice{}, err
	}

	inv, err := build(q)
	if err != nil {
		return billing.Invoice{}, err
	}
	if err := insertInvoice(ctx, tx, &inv); err != nil {
		return billing.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE quotes SET status=$2, updated_at=now() WHERE id=$1`, quoteID, billing.QuoteInvoiced); err != nil {
		return billing.Invoice{}, fmt.Errorf("mark quote invoiced: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) PutSchedule(ctx context.Context, sched *billing.ReminderSchedule) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO reminder_schedules (id, company_id, name, enabled, is_default)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET company_id=$2, name=$3, enabled=$4, is_default=$5`,
		sched.ID, sched.CompanyID, sched.Name, sched.Enabled, sched.IsDefault); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reminder_rules WHERE schedule_id = $1`, sched.ID); err != nil {
		return err
	}
	for _, r := range sched.Rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reminder_rules (id, schedule_id, trigger_type, days, subject, body)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			r.ID, sched.ID, r.Trigger, r.Days, r.Subject, r.Body); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListSchedules(ctx context.Context) ([]billing.ReminderSchedule, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT id, company_id, name, enabled, is_default FROM reminder_schedules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []billing.ReminderSchedule
	for rows.Next() {
		var sched billing.ReminderSchedule
		if err := rows.Scan(&sched.ID, &sched.CompanyID, &sched.Name, &sched.Enabled, &sched.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Rules, err = s.scheduleRules(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scheduleRules(ctx context.Context, scheduleID string) ([]billing.ReminderRule, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, schedule_id, trigger_type, days, subject, body
		FROM reminder_rules WHERE schedule_id = $1 ORDER BY id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []billing.ReminderRule
	for rows.Next() {
		var r billing.ReminderRule
		if err := rows.Scan(&r.ID, &r.ScheduleID, &r.Trigger, &r.Days, &r.Subject, &r.Body); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) ScheduleForCompany(ctx context.Context, companyID string) (billing.ReminderSchedule, error) {
	var sched billing.ReminderSchedule
	row := s.db.Pool.QueryRow(ctx, `
		SELECT id, company_id, name, enabled, is_default FROM reminder_schedules
		WHERE company_id = $1 OR is_default
		ORDER BY (company_id = $1) DESC LIMIT 1`, companyID)
	err := row.Scan(&sched.ID, &sched.CompanyID, &sched.Name, &sched.Enabled, &sched.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.ReminderSchedule{}, ledger.ErrNotFound
	}
	if err != nil {
		return billing.ReminderSchedule{}, err
	}
	if sched.Rules, err = s.scheduleRules(ctx, sched.ID); err != nil {
		return billing.ReminderSchedule{}, err
	}
	return sched, nil
}

func (s *Store) InsertSendRecord(ctx context.Context, rec billing.ReminderSendRecord) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO reminder_sends (id, invoice_id, rule_id, fire_instant, fire_bucket, sent_at, status, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.InvoiceID, rec.RuleID, rec.FireInstant, billing.Bucket(rec.FireInstant), rec.SentAt, rec.Status, rec.Detail)
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateSend
	}
	return err
}

func (s *Store) HasSentRecord(ctx context.Context, invoiceID, ruleID, bucket string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminder_sends
			WHERE invoice_id = $1 AND rule_id = $2 AND fire_bucket = $3 AND status <> 'failed'
		)`, invoiceID, ruleID, bucket).Scan(&exists)
	return exists, err
}

func (s *Store) LatestSend(ctx context.Context, invoiceID string) (time.Time, error) {
	var ts time.Time
	err := s.db.Pool.QueryRow(ctx, `
		SELECT sent_at FROM reminder_sends
		WHERE invoice_id = $1 AND status <> 'failed'
		ORDER BY sent_at DESC LIMIT 1`, invoiceID).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ledger.ErrNotFound
	}
	return ts, err
}
