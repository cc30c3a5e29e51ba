package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sabipay/wallet/pkg/ledger"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	dialectPostgres       = "postgres"

	idempotencyProcessing = "processing"
	idempotencyCompleted  = "completed"
	idempotencyFailed     = "failed"

	errorOperationStore    = "store"
	errorSubjectUser       = "user"
	errorSubjectAccount    = "account"
	errorSubjectEntry      = "entry"
	errorSubjectBalance    = "balance"
	errorSubjectGuard      = "idempotency"
	errorSubjectWithdrawal = "withdrawal"
	errorCodeCreate        = "create"
	errorCodeGet           = "get"
	errorCodeInsert        = "insert"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeSum           = "sum"
	errorCodeCount         = "count"
	errorCodeClaim         = "claim"
	errorCodeUpdateStatus  = "update_status"
)

// Store implements ledger.Store and ledger.UserDirectory using GORM.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db, nowFn: func() time.Time { return time.Now().UTC() }}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, nowFn: store.nowFn})
	})
}

// EnsureUser upserts a directory row so the ledger can resolve the user.
func (store *Store) EnsureUser(ctx context.Context, record ledger.UserRecord) error {
	model := User{
		UserID:    record.UserID.String(),
		Email:     record.Email,
		Role:      record.Role,
		CreatedAt: store.nowFn(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "role"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return nil
}

// LookupUser satisfies ledger.UserDirectory.
func (store *Store) LookupUser(ctx context.Context, userID ledger.UserID) (ledger.UserRecord, error) {
	var model User
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.UserRecord{}, wrapStoreError(errorSubjectUser, errorCodeGet, ledger.ErrUserNotFound)
		}
		return ledger.UserRecord{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	parsedUserID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.UserRecord{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return ledger.UserRecord{UserID: parsedUserID, Email: model.Email, Role: model.Role}, nil
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	model := LedgerAccount{
		LedgerID:  account.LedgerID.String(),
		UserID:    account.UserID.String(),
		Currency:  account.Currency,
		Status:    account.Status.String(),
		CreatedAt: time.Unix(account.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, ledger.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, ledgerID ledger.LedgerID) (ledger.Account, error) {
	query := store.db.WithContext(ctx)
	// Row locks serialize concurrent writers per account on postgres. SQLite
	// is single-writer, and FOR UPDATE is not valid syntax there.
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model LedgerAccount
	err := query.Where("ledger_id = ?", ledgerID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

func (store *Store) GetAccountByUser(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var model LedgerAccount
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(model)
}

func (store *Store) UpdateAccountStatus(ctx context.Context, ledgerID ledger.LedgerID, status ledger.AccountStatus) error {
	result := store.db.WithContext(ctx).
		Model(&LedgerAccount{}).
		Where("ledger_id = ?", ledgerID.String()).
		Update("status", status.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateStatus, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, input ledger.EntryInput) (ledger.Entry, error) {
	model := LedgerEntry{
		LedgerID:          input.LedgerID().String(),
		Type:              input.Type().String(),
		Category:          input.Category().String(),
		AmountKobo:        input.AmountKobo().Int64(),
		FeeKobo:           input.FeeKobo().Int64(),
		NetAmountKobo:     input.NetAmountKobo(),
		BalanceAfterKobo:  input.BalanceAfterKobo(),
		Status:            input.Status().String(),
		Provider:          input.Provider(),
		ProviderReference: input.ProviderReference(),
		Reference:         input.Reference().String(),
		Metadata:          datatypesJSON(input.MetadataJSON().String()),
		CreatedAt:         time.Unix(input.CreatedUnixUTC(), 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = store.nowFn()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, ledger.ErrDuplicateReference)
	}
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	// The entry carries the user id of its account owner for listing without
	// a join; re-read is unnecessary since the input already holds it.
	entry, err := mapLedgerEntry(model, input.UserID().String())
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) GetEntryByReference(ctx context.Context, reference ledger.Reference) (ledger.Entry, error) {
	var model LedgerEntry
	err := store.db.WithContext(ctx).Where("reference = ?", reference.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	owner, err := store.ownerOf(ctx, model.LedgerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry, err := mapLedgerEntry(model, owner)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) SumCompleted(ctx context.Context, ledgerID ledger.LedgerID, entryType ledger.EntryType) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(net_amount_kobo),0) as total").
		Where("ledger_id = ? AND type = ? AND status = ?",
			ledgerID.String(), entryType.String(), ledger.EntryStatusCompleted.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *Store) LatestCompletedEntry(ctx context.Context, ledgerID ledger.LedgerID) (ledger.Entry, error) {
	var model LedgerEntry
	err := store.db.WithContext(ctx).
		Where("ledger_id = ? AND status = ?", ledgerID.String(), ledger.EntryStatusCompleted.String()).
		Order("row_id DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	owner, err := store.ownerOf(ctx, model.LedgerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry, err := mapLedgerEntry(model, owner)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListEntries(ctx context.Context, ledgerID ledger.LedgerID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).
		Where("ledger_id = ?", ledgerID.String()).
		Order("row_id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset)
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Category != nil {
		query = query.Where("category = ?", filter.Category.String())
	}
	var rows []LedgerEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	owner, err := store.ownerOf(ctx, ledgerID.String())
	if err != nil {
		return nil, err
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row, owner)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// BeginIdempotency claims the reference. A live processing row yields
// AlreadyProcessing, a completed row yields AlreadyCompleted, and a failed or
// expired row is taken over as a fresh claim.
func (store *Store) BeginIdempotency(ctx context.Context, key ledger.Reference, expiresAtUnixUTC int64) (ledger.IdempotencyOutcome, error) {
	now := store.nowFn()
	expiresAt := time.Unix(expiresAtUnixUTC, 0).UTC()
	record := IdempotencyRecord{
		Reference: key.String(),
		Status:    idempotencyProcessing,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := store.db.WithContext(ctx).Create(&record).Error
	if err == nil {
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyCreated}, nil
	}
	if !isUniqueViolation(err) {
		return ledger.IdempotencyOutcome{}, wrapStoreError(errorSubjectGuard, errorCodeClaim, err)
	}

	var existing IdempotencyRecord
	if err := store.db.WithContext(ctx).Where("reference = ?", key.String()).Take(&existing).Error; err != nil {
		return ledger.IdempotencyOutcome{}, wrapStoreError(errorSubjectGuard, errorCodeClaim, err)
	}
	switch {
	case existing.Status == idempotencyCompleted:
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyAlreadyCompleted, EntryID: existing.EntryID}, nil
	case existing.Status == idempotencyProcessing && existing.ExpiresAt.After(now):
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyAlreadyProcessing}, nil
	}

	// Failed or expired: take over the row. A zero rows-affected result means
	// another claimer got there first.
	takeover := store.db.WithContext(ctx).
		Model(&IdempotencyRecord{}).
		Where("reference = ? AND status = ? AND updated_at = ?", key.String(), existing.Status, existing.UpdatedAt).
		Updates(map[string]interface{}{
			"status":     idempotencyProcessing,
			"entry_id":   "",
			"expires_at": expiresAt,
			"updated_at": now,
		})
	if takeover.Error != nil {
		return ledger.IdempotencyOutcome{}, wrapStoreError(errorSubjectGuard, errorCodeClaim, takeover.Error)
	}
	if takeover.RowsAffected == 0 {
		return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyAlreadyProcessing}, nil
	}
	return ledger.IdempotencyOutcome{Decision: ledger.IdempotencyCreated}, nil
}

func (store *Store) CompleteIdempotency(ctx context.Context, key ledger.Reference, entryID string) error {
	result := store.db.WithContext(ctx).
		Model(&IdempotencyRecord{}).
		Where("reference = ?", key.String()).
		Updates(map[string]interface{}{
			"status":     idempotencyCompleted,
			"entry_id":   entryID,
			"updated_at": store.nowFn(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectGuard, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectGuard, errorCodeUpdateStatus, ledger.ErrDuplicateOperation)
	}
	return nil
}

// FailIdempotency leaves a terminal failed marker so the attempt stays
// auditable while the reference remains claimable.
func (store *Store) FailIdempotency(ctx context.Context, key ledger.Reference) error {
	now := store.nowFn()
	record := IdempotencyRecord{
		Reference: key.String(),
		Status:    idempotencyFailed,
		ExpiresAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return wrapStoreError(errorSubjectGuard, errorCodeUpdateStatus, err)
	}
	return nil
}

func (store *Store) CreateWithdrawal(ctx context.Context, withdrawal ledger.Withdrawal) error {
	model := Withdrawal{
		WithdrawalID:  withdrawal.WithdrawalID,
		UserID:        withdrawal.UserID.String(),
		LedgerID:      withdrawal.LedgerID.String(),
		AmountKobo:    withdrawal.AmountKobo,
		FeeKobo:       withdrawal.FeeKobo,
		NetAmountKobo: withdrawal.NetAmountKobo,
		BankName:      withdrawal.BankName,
		BankCode:      withdrawal.BankCode,
		AccountNumber: withdrawal.AccountNumber,
		AccountName:   withdrawal.AccountName,
		Status:        withdrawal.Status.String(),
		CreatedAt:     time.Unix(withdrawal.CreatedUnixUTC, 0).UTC(),
		UpdatedAt:     time.Unix(withdrawal.UpdatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWithdrawal(ctx context.Context, withdrawalID string) (ledger.Withdrawal, error) {
	var model Withdrawal
	err := store.db.WithContext(ctx).Where("withdrawal_id = ?", withdrawalID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, ledger.ErrWithdrawalNotFound)
		}
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	return mapWithdrawal(model)
}

func (store *Store) UpdateWithdrawalStatus(ctx context.Context, withdrawalID string, from, to ledger.WithdrawalStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Where("withdrawal_id = ? AND status = ?", withdrawalID, from.String()).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"updated_at": store.nowFn(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).Model(&Withdrawal{}).Where("withdrawal_id = ?", withdrawalID).Count(&count).Error; err != nil {
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
	err := store.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Where("user_id = ? AND status IN ?", userID.String(), []string{
			ledger.WithdrawalPending.String(),
			ledger.WithdrawalApproved.String(),
			ledger.WithdrawalProcessing.String(),
		}).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectWithdrawal, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) ownerOf(ctx context.Context, ledgerID string) (string, error) {
	var model LedgerAccount
	err := store.db.WithContext(ctx).Select("user_id").Where("ledger_id = ?", ledgerID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		return "", wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return model.UserID, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapAccount(model LedgerAccount) (ledger.Account, error) {
	ledgerID, err := ledger.NewLedgerID(model.LedgerID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	status, err := ledger.ParseAccountStatus(model.Status)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return ledger.Account{
		LedgerID:       ledgerID,
		UserID:         userID,
		Currency:       model.Currency,
		Status:         status,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapLedgerEntry(model LedgerEntry, ownerUserID string) (ledger.Entry, error) {
	ledgerID, err := ledger.NewLedgerID(model.LedgerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	userID, err := ledger.NewUserID(ownerUserID)
	if err != nil {
		return ledger.Entry{}, err
	}
	entryType, err := ledger.ParseEntryType(model.Type)
	if err != nil {
		return ledger.Entry{}, err
	}
	category, err := ledger.ParseEntryCategory(model.Category)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.NewAmountKobo(model.AmountKobo)
	if err != nil {
		return ledger.Entry{}, err
	}
	fee, err := ledger.NewFeeKobo(model.FeeKobo)
	if err != nil {
		return ledger.Entry{}, err
	}
	status, err := ledger.ParseEntryStatus(model.Status)
	if err != nil {
		return ledger.Entry{}, err
	}
	reference, err := ledger.NewReference(model.Reference)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadata(string(model.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.RestoreEntry(
		model.EntryID,
		ledgerID,
		userID,
		entryType,
		category,
		amount,
		fee,
		model.NetAmountKobo,
		model.BalanceAfterKobo,
		status,
		model.Provider,
		model.ProviderReference,
		reference,
		metadata,
		model.CreatedAt.Unix(),
	)
}

func mapWithdrawal(model Withdrawal) (ledger.Withdrawal, error) {
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	ledgerID, err := ledger.NewLedgerID(model.LedgerID)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	status, err := ledger.ParseWithdrawalStatus(model.Status)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	return ledger.Withdrawal{
		WithdrawalID:   model.WithdrawalID,
		UserID:         userID,
		LedgerID:       ledgerID,
		AmountKobo:     model.AmountKobo,
		FeeKobo:        model.FeeKobo,
		NetAmountKobo:  model.NetAmountKobo,
		BankName:       model.BankName,
		BankCode:       model.BankCode,
		AccountNumber:  model.AccountNumber,
		AccountName:    model.AccountName,
		Status:         status,
		CreatedUnixUTC: model.CreatedAt.Unix(),
		UpdatedUnixUTC: model.UpdatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
