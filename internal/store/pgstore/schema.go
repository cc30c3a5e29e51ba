package pgstore

import "context"

var schemaStatements = []string{
	`create table if not exists users (
		user_id text primary key,
		email text not null unique,
		role text not null default 'user',
		created_at timestamptz not null default now()
	)`,
	`create table if not exists ledger_accounts (
		ledger_id uuid primary key,
		user_id text not null unique,
		currency text not null,
		status text not null,
		created_at timestamptz not null default now()
	)`,
	`create table if not exists ledger_entries (
		row_id bigserial primary key,
		entry_id uuid not null unique,
		ledger_id uuid not null references ledger_accounts(ledger_id),
		type text not null,
		category text not null,
		amount_kobo bigint not null,
		fee_kobo bigint not null,
		net_amount_kobo bigint not null,
		balance_after_kobo bigint not null,
		status text not null,
		provider text not null,
		provider_reference text,
		reference text not null unique,
		metadata jsonb not null default '{}',
		created_at timestamptz not null default now()
	)`,
	`create index if not exists idx_entries_ledger_created on ledger_entries(ledger_id, created_at)`,
	`create index if not exists idx_entries_status_created on ledger_entries(status, created_at)`,
	`create table if not exists idempotency_records (
		reference text primary key,
		status text not null,
		entry_id text not null default '',
		expires_at timestamptz not null,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create index if not exists idx_idempotency_expires on idempotency_records(expires_at)`,
	`create table if not exists withdrawals (
		withdrawal_id uuid primary key,
		user_id text not null,
		ledger_id uuid not null references ledger_accounts(ledger_id),
		amount_kobo bigint not null,
		fee_kobo bigint not null,
		net_amount_kobo bigint not null,
		bank_name text not null,
		bank_code text not null default '',
		account_number text not null,
		account_name text not null,
		status text not null,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create index if not exists idx_withdrawals_user_status on withdrawals(user_id, status)`,
}

// EnsureSchema creates the tables and indexes the store expects. Statements
// are idempotent so repeated startup runs are safe.
func (store *Store) EnsureSchema(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := store.db.Exec(ctx, statement); err != nil {
			return wrapStoreError(errorSubjectTx, errorCodeCreate, err)
		}
	}
	return nil
}
