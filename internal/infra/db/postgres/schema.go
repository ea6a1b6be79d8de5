package postgres

import "context"

// schema is applied at startup. The unique indexes are load-bearing:
// payments_invoice_ext_ref makes the reconciliation idempotency check
// atomic, reminder_sends_dedupe enforces at most one non-failed send per
// (invoice, rule, fire-instant bucket).
const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id            text PRIMARY KEY,
	number        text NOT NULL DEFAULT '',
	client_id     text NOT NULL,
	company_id    text NOT NULL,
	status        text NOT NULL,
	issue_date    timestamptz NOT NULL,
	valid_until   timestamptz NOT NULL,
	exec_date     timestamptz NOT NULL,
	tax_percent   int NOT NULL DEFAULT 0,
	subtotal      bigint NOT NULL DEFAULT 0,
	tax_amount    bigint NOT NULL DEFAULT 0,
	total         bigint NOT NULL DEFAULT 0,
	notes         text NOT NULL DEFAULT '',
	share_token   text,
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS quotes_share_token ON quotes (share_token) WHERE share_token IS NOT NULL AND share_token <> '';

CREATE TABLE IF NOT EXISTS quote_items (
	id          text PRIMARY KEY,
	quote_id    text NOT NULL REFERENCES quotes(id),
	description text NOT NULL,
	qty         int NOT NULL,
	unit_price  bigint NOT NULL,
	line_total  bigint NOT NULL,
	pos         int NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quote_signatures (
	id          text PRIMARY KEY,
	quote_id    text NOT NULL REFERENCES quotes(id),
	signer_name text NOT NULL,
	artifact    text NOT NULL,
	signed_at   timestamptz NOT NULL,
	origin_ip   text NOT NULL DEFAULT '',
	user_agent  text NOT NULL DEFAULT '',
	confirmed   bool NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS invoices (
	id            text PRIMARY KEY,
	number        text NOT NULL DEFAULT '',
	client_id     text NOT NULL,
	company_id    text NOT NULL,
	quote_id      text,
	status        text NOT NULL,
	issue_date    timestamptz NOT NULL,
	due_date      timestamptz NOT NULL,
	tax_percent   int NOT NULL DEFAULT 0,
	subtotal      bigint NOT NULL DEFAULT 0,
	tax_amount    bigint NOT NULL DEFAULT 0,
	total         bigint NOT NULL DEFAULT 0,
	notes         text NOT NULL DEFAULT '',
	amount_paid   bigint NOT NULL DEFAULT 0,
	external_ref  text,
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS invoices_external_ref ON invoices (external_ref) WHERE external_ref IS NOT NULL AND external_ref <> '';

CREATE TABLE IF NOT EXISTS invoice_items (
	id          text PRIMARY KEY,
	invoice_id  text NOT NULL REFERENCES invoices(id),
	description text NOT NULL,
	qty         int NOT NULL,
	unit_price  bigint NOT NULL,
	line_total  bigint NOT NULL,
	pos         int NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS payments (
	id           text PRIMARY KEY,
	invoice_id   text NOT NULL REFERENCES invoices(id),
	amount       bigint NOT NULL,
	currency     text NOT NULL DEFAULT '',
	method       text NOT NULL DEFAULT '',
	external_ref text,
	is_partial   bool NOT NULL DEFAULT false,
	occurred_at  timestamptz NOT NULL,
	source       text NOT NULL,
	recorded_at  timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS payments_invoice_ext_ref ON payments (invoice_id, external_ref) WHERE external_ref IS NOT NULL AND external_ref <> '';

CREATE TABLE IF NOT EXISTS reminder_schedules (
	id         text PRIMARY KEY,
	company_id text NOT NULL DEFAULT '',
	name       text NOT NULL DEFAULT '',
	enabled    bool NOT NULL DEFAULT true,
	is_default bool NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS reminder_rules (
	id          text PRIMARY KEY,
	schedule_id text NOT NULL REFERENCES reminder_schedules(id),
	trigger_type text NOT NULL,
	days        int NOT NULL,
	subject     text NOT NULL DEFAULT '',
	body        text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS reminder_sends (
	id           text PRIMARY KEY,
	invoice_id   text NOT NULL REFERENCES invoices(id),
	rule_id      text NOT NULL,
	fire_instant timestamptz NOT NULL,
	fire_bucket  text NOT NULL,
	sent_at      timestamptz NOT NULL,
	status       text NOT NULL,
	detail       text NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS reminder_sends_dedupe ON reminder_sends (invoice_id, rule_id, fire_bucket) WHERE status <> 'failed';
`

// EnsureSchema creates missing tables and indexes.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, schema)
	return err
}
