package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sabipay/wallet/pkg/ledger"
)

const (
	pgUniqueViolationCode = "23505"

	errorOperationStore    = "store"
	errorSubjectUser       = "user"
	errorSubjectAccount    = "account"
	errorSubjectBalance    = "balance"
	errorSubjectEntry      = "entry"
	errorSubjectGuard      = "idempotency"
	errorSubjectWithdrawal = "withdrawal"
	errorSubjectTx         = "transaction"
	errorCodeBegin         = "begin"
	errorCodeCommit        = "commit"
	errorCodeCreate        = "create"
	errorCodeGet           = "get"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeSum           = "sum"
	errorCodeCount         = "count"
	errorCodeClaim         = "claim"
	errorCodeUpdateStatus  = "update_status"

	sqlUpsertUser = `
		insert into users(user_id, email, role, created_at) values($1, $2, $3, now())
		on conflict (user_id) do update set email = excluded.email, role = excluded.role
	`

	sqlSelectUser = `
		select user_id, email, role from users where user_id = $1
	`

	sqlInsertAccount = `
		insert into ledger_accounts(ledger_id, user_id, currency, status, created_at)
		values($1, $2, $3, $4, to_timestamp($5))
	`

	sqlSelectAccountForUpdate = `
		select ledger_id::text, user_id, currency, status, extract(epoch from created_at)::bigint
		from ledger_accounts where ledger_id = $1
		for update
	`

	sqlSelectAccountByUser = `
		select ledger_id::text, user_id, currency, status, extract(epoch from created_at)::bigint
		from ledger_accounts where user_id = $1
	`

	sqlUpdateAccountStatus = `
		update ledger_accounts set status = $2 where ledger_id = $1
	`

	sqlInsertEntry = `
		insert into ledger_entries(
			entry_id, ledger_id, type, category,
			amount_kobo, fee_kobo, net_amount_kobo, balance_after_kobo,
			status, provider, provider_reference, reference, metadata, created_at
		)
		values(
			gen_random_uuid(), $1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			coalesce(nullif($12,''),'{}')::jsonb,
			to_timestamp($13)
		)
		returning entry_id::text
	`

	sqlSelectEntryColumns = `
		select
			e.entry_id::text,
			e.ledger_id::text,
			a.user_id,
			e.type,
			e.category,
			e.amount_kobo,
			e.fee_kobo,
			e.net_amount_kobo,
			e.balance_after_kobo,
			e.status,
			e.provider,
			coalesce(e.provider_reference,''),
			e.reference,
			coalesce(e.metadata::text,'{}'),
			extract(epoch from e.created_at)::bigint
		from ledger_entries e
		join ledger_accounts a on a.ledger_id = e.ledger_id
	`

	sqlSelectEntryByReference = sqlSelectEntryColumns + `
		where e.reference = $1
	`

	sqlSelectLatestCompleted = sqlSelectEntryColumns + `
		where e.ledger_id = $1 and e.status = 'COMPLETED'
		order by e.row_id desc
		limit 1
	`

	sqlListEntries = sqlSelectEntryColumns + `
		where e.ledger_id = $1
		and ($2 = '' or e.status = $2)
		and ($3 = '' or e.category = $3)
		order by e.row_id desc
		limit $4 offset $5
	`

	sqlSumCompleted = `
		select coalesce(sum(net_amount_kobo),0) from ledger_entries
		where ledger_id = $1 and type = $2 and status = 'COMPLETED'
	`

	sqlClaimIdempotency = `
		insert into idempotency_records(reference, status, entry_id, expires_at, created_at, updated_at)
		values($1, 'processing', '', to_timestamp($2), now(), now())
		on conflict (reference) do nothing
	`

	sqlSelectIdempotency = `
		select status, entry_id, (expires_at > now()) from idempotency_records where reference = $1
	`

	sqlTakeOverIdempotency = `
		update idempotency_records
		set status = 'processing', entry_id = '', expires_at = to_timestamp($2), updated_at = now()
		where reference = $1 and (status = 'failed' or expires_at <= now())
	`

	sqlCompleteIdempotency = `
		update idempotency_records
		set status = 'completed', entry_id = $2, updated_at = now()
		where reference = $1
	`

	sqlFailIdempotency = `
		insert into idempotency_records(reference, status, entry_id, expires_at, created_at, updated_at)
		values($1, 'failed', '', now(), now(), now())
		on conflict (reference) do update set status = 'failed', updated_at = now()
	`

	sqlInsertWithdrawal = `
		insert into withdrawals(
			withdrawal_id, user_id, ledger_id,
			amount_kobo, fee_kobo, net_amount_kobo,
			bank_name, bank_code, account_number, account_name,
			status, created_at, updated_at
		)
		values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, to_timestamp($12), to_timestamp($13))
	`

	sqlSelectWithdrawal = `
		select
			withdrawal_id::text, user_id, ledger_id::text,
			amount_kobo, fee_kobo, net_amount_kobo,
			bank_name, bank_code, account_number, account_name,
			status,
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
		from withdrawals where withdrawal_id = $1
	`

	sqlUpdateWithdrawalStatus = `
		update withdrawals set status = $3, updated_at = now()
		where withdrawal_id = $1 and status = $2
	`

	sqlCountWithdrawal = `
		select count(*) from withdrawals where withdrawal_id = $1
	`

	sqlCountOpenWithdrawals = `
		select count(*) from withdrawals
		where user_id = $1 and status in ('PENDING','APPROVED','PROCESSING')
	`
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx so every statement is
// written once and runs inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store and ledger.UserDirectory on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx runs fn inside a transaction. When the store already wraps an open
// transaction the call joins it.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

// EnsureUser upserts a directory row.
func (store *Store) EnsureUser(ctx context.Context, record ledger.UserRecord) error {
	_, err := store.db.Exec(ctx, sqlUpsertUser, record.UserID.String(), record.Email, record.Role)
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return nil
}

// LookupUser satisfies ledger.UserDirectory.
func (store *Store) LookupUser(ctx context.Context, userID ledger.UserID) (ledger.UserRecord, error) {
	var userValue, emailValue, roleValue string
	err := store.db.QueryRow(ctx, sqlSelectUser, userID.String()).Scan(&userValue, &emailValue, &roleValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.UserRecord{}, wrapStoreError(errorSubjectUser, errorCodeGet, ledger.ErrUserNotFound)
		}
		return ledger.UserRecord{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	parsedUserID, err := ledger.NewUserID(userValue)
	if err != nil {
		return ledger.UserRecord{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return ledger.UserRecord{UserID: parsedUserID, Email: emailValue, Role: roleValue}, nil
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	_, err := store.db.Exec(ctx, sqlInsertAccount,
		account.LedgerID.String(),
		account.UserID.String(),
		account.Currency,
		account.Status.String(),
		account.CreatedUnixUTC,
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, ledger.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, ledgerID ledger.LedgerID) (ledger.Account, error) {
	return store.scanAccount(store.db.QueryRow(ctx, sqlSelectAccountForUpdate, ledgerID.String()))
}

func (store *Store) GetAccountByUser(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	return store.scanAccount(store.db.QueryRow(ctx, sqlSelectAccountByUser, userID.String()))
}

func (store *Store) scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		ledgerValue      string
		userValue        string
		currencyValue    string
		statusValue      string
		createdAtUnixUTC int64
	)
	err := row.Scan(&ledgerValue, &userValue, &currencyValue, &statusValue, &createdAtUnixUTC)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	ledgerID, err := ledger.NewLedgerID(ledgerValue)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	userID, err := ledger.NewUserID(userValue)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	status, err := ledger.ParseAccountStatus(statusValue)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return ledger.Account{
		LedgerID:       ledgerID,
		UserID:         userID,
		Currency:       currencyValue,
		Status:         status,
		CreatedUnixUTC: createdAtUnixUTC,
	}, nil
}

func (store *Store) UpdateAccountStatus(ctx context.Context, ledgerID ledger.LedgerID, status ledger.AccountStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdateAccountStatus, ledgerID.String(), status.String())
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateStatus, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, input ledger.EntryInput) (ledger.Entry, error) {
	var entryID string
	err := store.db.QueryRow(ctx, sqlInsertEntry,
		input.LedgerID().String(),
		input.Type().String(),
		input.Category().String(),
		input.AmountKobo().Int64(),
		input.FeeKobo().Int64(),
		input.NetAmountKobo(),
		input.BalanceAfterKobo(),
		input.Status().String(),
		input.Provider(),
		input.ProviderReference(),
		input.Reference().String(),
		input.MetadataJSON().String(),
		input.CreatedUnixUTC(),
	).Scan(&entryID)
	if isUniqueViolation(err) {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, ledger.ErrDuplicateReference)
	}
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	entry, err := ledger.NewEntry(entryID, input)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) GetEntryByReference(ctx context.Context, reference ledger.Reference) (ledger.Entry, error) {
	entry, err := scanEntry(store.db.QueryRow(ctx, sqlSelectEntryByReference, reference.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return entry, nil
}

func (store *Store) SumCompleted(ctx context.Context, ledgerID ledger.LedgerID, entryType ledger.EntryType) (int64, error) {
	var sum int64
	err := store.db.QueryRow(ctx, sqlSumCompleted, ledgerID.String(), entryType.String()).Scan(&sum)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum, nil
}

func (store *Store) LatestCompletedEntry(ctx context.Context, ledgerID ledger.LedgerID) (ledger.Entry, error) {
	entry, err := scanEntry(store.db.QueryRow(ctx, sqlSelectLatestCompleted, ledgerID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return entry, nil
}

func (store *Store) ListEntries(ctx context.Context, ledgerID ledger.LedgerID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	statusValue := ""
	if filter.Status != nil {
		statusValue = filter.Status.String()
	}
	categoryValue := ""
	if filter.Category != nil {
		categoryValue = filter.Category.String()
	}
	rows, err := store.db.Query(ctx, sqlListEntries, ledgerID.String(), statusValue, categoryValue, filter.Limit, filter.Offset)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries := make([]ledger.Entry, 0, filter.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return entries, nil
}

func (store *Store) BeginIdempotency(ctx context.Context, key ledger.Reference, expiresAtUnixUTC int64) (ledger.IdempotencyOutcome, error) {
	tag, err := store.db.Exec(ctx, sqlClaimIdempotency, key.String(), expiresAtUnixUTC)
	if err != nil {
		return ledger.IdempotencyOutcome{}, wrapStoreError(errorSubjectGuard, errorCodeClaim, err)
	}
	if tag.RowsAffected() == 1 {
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyCreated}, nil
	}

	var (
		statusValue  string
		entryIDValue string
		live         bool
	)
	if err := store.db.QueryRow(ctx, sqlSelectIdempotency, key.String()).Scan(&statusValue, &entryIDValue, &live); err != nil {
		return ledger.IdempotencyOutcome{}, wrapStoreError(errorSubjectGuard, errorCodeClaim, err)
	}
	switch {
	case statusValue == "completed":
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyAlreadyCompleted, EntryID: entryIDValue}, nil
	case statusValue == "processing" && live:
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyAlreadyProcessing}, nil
	}

	takeover, err := store.db.Exec(ctx, sqlTakeOverIdempotency, key.String(), expiresAtUnixUTC)
	if err != nil {
		return ledger.IdempotencyOutcome{}, wrapStoreError(errorSubjectGuard, errorCodeClaim, err)
	}
	if takeover.RowsAffected() == 0 {
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyAlreadyProcessing}, nil
	}
	return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyCreated}, nil
}

func (store *Store) CompleteIdempotency(ctx context.Context, key ledger.Reference, entryID string) error {
	tag, err := store.db.Exec(ctx, sqlCompleteIdempotency, key.String(), entryID)
	if err != nil {
		return wrapStoreError(errorSubjectGuard, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectGuard, errorCodeUpdateStatus, ledger.ErrDuplicateOperation)
	}
	return nil
}

func (store *Store) FailIdempotency(ctx context.Context, key ledger.Reference) error {
	if _, err := store.db.Exec(ctx, sqlFailIdempotency, key.String()); err != nil {
		return wrapStoreError(errorSubjectGuard, errorCodeUpdateStatus, err)
	}
	return nil
}

func (store *Store) CreateWithdrawal(ctx context.Context, withdrawal ledger.Withdrawal) error {
	_, err := store.db.Exec(ctx, sqlInsertWithdrawal,
		withdrawal.WithdrawalID,
		withdrawal.UserID.String(),
		withdrawal.LedgerID.String(),
		withdrawal.AmountKobo,
		withdrawal.FeeKobo,
		withdrawal.NetAmountKobo,
		withdrawal.BankName,
		withdrawal.BankCode,
		withdrawal.AccountNumber,
		withdrawal.AccountName,
		withdrawal.Status.String(),
		withdrawal.CreatedUnixUTC,
		withdrawal.UpdatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWithdrawal(ctx context.Context, withdrawalID string) (ledger.Withdrawal, error) {
	var (
		idValue, userValue, ledgerValue    string
		amountValue, feeValue, netValue    int64
		bankValue, bankCodeValue           string
		accountNumValue, accountName       string
		statusValue                        string
		createdAtUnixUTC, updatedAtUnixUTC int64
	)
	err := store.db.QueryRow(ctx, sqlSelectWithdrawal, withdrawalID).Scan(
		&idValue, &userValue, &ledgerValue,
		&amountValue, &feeValue, &netValue,
		&bankValue, &bankCodeValue, &accountNumValue, &accountName,
		&statusValue,
		&createdAtUnixUTC, &updatedAtUnixUTC,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, ledger.ErrWithdrawalNotFound)
		}
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	userID, err := ledger.NewUserID(userValue)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	ledgerID, err := ledger.NewLedgerID(ledgerValue)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	status, err := ledger.ParseWithdrawalStatus(statusValue)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	return ledger.Withdrawal{
		WithdrawalID:   idValue,
		UserID:         userID,
		LedgerID:       ledgerID,
		AmountKobo:     amountValue,
		FeeKobo:        feeValue,
		NetAmountKobo:  netValue,
		BankName:       bankValue,
		BankCode:       bankCodeValue,
		AccountNumber:  accountNumValue,
		AccountName:    accountName,
		Status:         status,
		CreatedUnixUTC: createdAtUnixUTC,
		UpdatedUnixUTC: updatedAtUnixUTC,
	}, nil
}

func (store *Store) UpdateWithdrawalStatus(ctx context.Context, withdrawalID string, from, to ledger.WithdrawalStatus) error {
	tag, err := store.db.Exec(ctx, sqlUpdateWithdrawalStatus, withdrawalID, from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		var count int64
		if err := store.db.QueryRow(ctx, sqlCountWithdrawal, withdrawalID).Scan(&count); err != nil {
			return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, err)
		}
		if count == 0 {
			return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, ledger.ErrWithdrawalNotFound)
		}
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, ledger.ErrWithdrawalStateConflict)
	}
	return nil
}

func (store *Store) CountOpenWithdrawals(ctx context.Context, userID ledger.UserID) (int64, error) {
	var count int64
	err := store.db.QueryRow(ctx, sqlCountOpenWithdrawals, userID.String()).Scan(&count)
	if err != nil {
		return 0, wrapStoreError(errorSubjectWithdrawal, errorCodeCount, err)
	}
	return count, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		entryIDValue      string
		ledgerValue       string
		userValue         string
		typeValue         string
		categoryValue     string
		amountValue       int64
		feeValue          int64
		netValue          int64
		balanceAfterValue int64
		statusValue       string
		providerValue     string
		providerReference string
		referenceValue    string
		metadataValue     string
		createdAtUnixUTC  int64
	)
	if err := row.Scan(
		&entryIDValue,
		&ledgerValue,
		&userValue,
		&typeValue,
		&categoryValue,
		&amountValue,
		&feeValue,
		&netValue,
		&balanceAfterValue,
		&statusValue,
		&providerValue,
		&providerReference,
		&referenceValue,
		&metadataValue,
		&createdAtUnixUTC,
	); err != nil {
		return ledger.Entry{}, err
	}
	ledgerID, err := ledger.NewLedgerID(ledgerValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	userID, err := ledger.NewUserID(userValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	entryType, err := ledger.ParseEntryType(typeValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	category, err := ledger.ParseEntryCategory(categoryValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.NewAmountKobo(amountValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	fee, err := ledger.NewFeeKobo(feeValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	status, err := ledger.ParseEntryStatus(statusValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	reference, err := ledger.NewReference(referenceValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadata(metadataValue)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.RestoreEntry(
		entryIDValue,
		ledgerID,
		userID,
		entryType,
		category,
		amount,
		fee,
		netValue,
		balanceAfterValue,
		status,
		providerValue,
		providerReference,
		reference,
		metadata,
		createdAtUnixUTC,
	)
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
