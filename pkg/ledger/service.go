package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Service is the only sanctioned mutator of accounts and entries.
type Service struct {
	store  Store
	users  UserDirectory
	nowFn  func() int64
	newID  func() string
	logger OperationLogger

	withdrawalMinKobo int64
	withdrawalMaxKobo int64
	withdrawalFeeKobo int64
}

// NewService wires a Service.
func NewService(store Store, users UserDirectory, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if users == nil {
		return nil, fmt.Errorf("%w: user directory dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store: store,
		users: users,
		nowFn: now,
		newID: uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateAccount provisions a ledger for the user, or returns the existing one.
func (service *Service) CreateAccount(ctx context.Context, userID UserID) (Account, error) {
	account, operationError := service.createAccount(ctx, userID)
	service.logOperation(ctx, OperationLog{
		Operation: operationCreateAccount,
		UserID:    userID,
		LedgerID:  account.LedgerID,
		Error:     operationError,
	})
	return account, operationError
}

func (service *Service) createAccount(ctx context.Context, userID UserID) (Account, error) {
	if _, err := service.users.LookupUser(ctx, userID); err != nil {
		return Account{}, err
	}
	existing, err := service.store.GetAccountByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}
	ledgerID, err := NewLedgerID(service.newID())
	if err != nil {
		return Account{}, err
	}
	account := Account{
		LedgerID:       ledgerID,
		UserID:         userID,
		Currency:       defaultCurrency,
		Status:         AccountActive,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.store.CreateAccount(ctx, account); err != nil {
		// Lost a creation race; the winner's account is the account.
		if errors.Is(err, ErrAccountExists) {
			return service.store.GetAccountByUser(ctx, userID)
		}
		return Account{}, err
	}
	return account, nil
}

// Balance derives the account position from the full completed-entry history.
// Entries are the source of truth; there is no cached counter to drift.
func (service *Service) Balance(ctx context.Context, ledgerID LedgerID) (Balance, error) {
	if _, err := service.store.GetAccount(ctx, ledgerID); err != nil {
		return Balance{}, err
	}
	kobo, err := service.balanceOf(ctx, service.store, ledgerID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{LedgerID: ledgerID, Kobo: kobo}, nil
}

func (service *Service) balanceOf(ctx context.Context, store Store, ledgerID LedgerID) (int64, error) {
	credits, err := store.SumCompleted(ctx, ledgerID, EntryCredit)
	if err != nil {
		return 0, err
	}
	debits, err := store.SumCompleted(ctx, ledgerID, EntryDebit)
	if err != nil {
		return 0, err
	}
	balance := credits - debits
	if balance < 0 {
		return 0, WrapError(errorOperationService, "balance", "negative", ErrInvariantViolation)
	}
	return balance, nil
}

// EntryParams describes a requested ledger entry. Reference is optional and
// auto-generated when absent; UserID is an optional ownership cross-check.
type EntryParams struct {
	LedgerID          LedgerID
	UserID            UserID
	Type              EntryType
	Category          EntryCategory
	Amount            AmountKobo
	Fee               FeeKobo
	Provider          string
	ProviderReference string
	Reference         Reference
	Metadata          Metadata
}

func (params EntryParams) validate() error {
	if params.Amount.Int64() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if params.Fee.Int64() < 0 {
		return fmt.Errorf("%w: fee must not be negative", ErrInvalidAmount)
	}
	if params.Fee.Int64() > params.Amount.Int64() {
		return fmt.Errorf("%w: fee exceeds amount", ErrInvalidAmount)
	}
	if _, err := ParseEntryType(params.Type.String()); err != nil {
		return err
	}
	if _, err := ParseEntryCategory(params.Category.String()); err != nil {
		return err
	}
	return nil
}

// CreateEntry is the core write path. Balance read, overdraft check, entry
// insert, and the idempotency guard all run inside one transaction so two
// concurrent debits cannot both observe the same pre-debit balance. The
// reused flag reports whether the returned entry was written by an earlier
// attempt with the same reference instead of this call.
func (service *Service) CreateEntry(ctx context.Context, params EntryParams) (Entry, bool, error) {
	entry, reused, operationError := service.createEntry(ctx, params)
	service.logOperation(ctx, OperationLog{
		Operation:  operationCreateEntry,
		UserID:     params.UserID,
		LedgerID:   params.LedgerID,
		Reference:  entry.Reference(),
		AmountKobo: params.Amount.Int64(),
		Error:      operationError,
	})
	return entry, reused, operationError
}

func (service *Service) createEntry(ctx context.Context, params EntryParams) (Entry, bool, error) {
	if err := params.validate(); err != nil {
		return Entry{}, false, err
	}
	reference := params.Reference
	if reference.IsZero() {
		generated, err := NewReference(referencePrefixLedger + service.newID())
		if err != nil {
			return Entry{}, false, err
		}
		reference = generated
	}
	var created Entry
	var reused bool
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		entry, fromEarlierAttempt, err := service.createEntryLocked(ctx, txStore, params, reference)
		if err != nil {
			return err
		}
		created = entry
		reused = fromEarlierAttempt
		return nil
	})
	if errors.Is(operationError, ErrInsufficientBalance) {
		// The transaction rolled back the processing record; leave a terminal
		// failed record so the attempt stays auditable.
		_ = service.store.FailIdempotency(ctx, reference)
	}
	if operationError != nil {
		return Entry{}, false, operationError
	}
	return created, reused, nil
}

// createEntryLocked runs inside an open transaction. Callers that manage
// their own transaction scope (withdrawal completion) share it directly.
func (service *Service) createEntryLocked(ctx context.Context, txStore Store, params EntryParams, reference Reference) (Entry, bool, error) {
	account, err := txStore.GetAccount(ctx, params.LedgerID)
	if err != nil {
		return Entry{}, false, err
	}
	if params.UserID.String() != "" && params.UserID != account.UserID {
		return Entry{}, false, WrapError(errorOperationService, "entry", "ownership_mismatch", ErrAccountNotFound)
	}
	if account.Status != AccountActive {
		return Entry{}, false, fmt.Errorf("%w: account is %s", ErrAccountNotActive, account.Status)
	}
	nowUnixUTC := service.nowFn()
	outcome, err := txStore.BeginIdempotency(ctx, reference, nowUnixUTC+int64(idempotencyWindow.Seconds()))
	if err != nil {
		return Entry{}, false, err
	}
	switch outcome.Decision {
	case IdempotencyAlreadyCompleted:
		existing, err := txStore.GetEntryByReference(ctx, reference)
		return existing, err == nil, err
	case IdempotencyAlreadyProcessing:
		return Entry{}, false, ErrDuplicateOperation
	}
	balance, err := service.balanceOf(ctx, txStore, params.LedgerID)
	if err != nil {
		return Entry{}, false, err
	}
	netAmount := params.Amount.Int64() - params.Fee.Int64()
	balanceAfter := balance + netAmount
	if params.Type == EntryDebit {
		balanceAfter = balance - netAmount
		if balanceAfter < 0 {
			return Entry{}, false, ErrInsufficientBalance
		}
	}
	input, err := NewEntryInput(
		params.LedgerID,
		account.UserID,
		params.Type,
		params.Category,
		params.Amount,
		params.Fee,
		balanceAfter,
		params.Provider,
		params.ProviderReference,
		reference,
		params.Metadata,
		nowUnixUTC,
	)
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := txStore.InsertEntry(ctx, input)
	if err != nil {
		return Entry{}, false, err
	}
	if err := txStore.CompleteIdempotency(ctx, reference, entry.EntryID()); err != nil {
		return Entry{}, false, err
	}
	return entry, false, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
