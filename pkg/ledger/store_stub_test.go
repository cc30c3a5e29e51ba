package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// stubState holds the in-memory tables. Methods assume the owning lock is held.
type stubState struct {
	users          map[string]UserRecord
	accounts       map[string]Account
	accountsByUser map[string]string
	entries        []Entry
	entriesByRef   map[string]Entry
	idempotency    map[string]IdempotencyOutcome
	withdrawals    map[string]Withdrawal
	entrySequence  int
}

func newStubState() *stubState {
	return &stubState{
		users:          map[string]UserRecord{},
		accounts:       map[string]Account{},
		accountsByUser: map[string]string{},
		entriesByRef:   map[string]Entry{},
		idempotency:    map[string]IdempotencyOutcome{},
		withdrawals:    map[string]Withdrawal{},
	}
}

func (state *stubState) clone() *stubState {
	copied := newStubState()
	for key, value := range state.users {
		copied.users[key] = value
	}
	for key, value := range state.accounts {
		copied.accounts[key] = value
	}
	for key, value := range state.accountsByUser {
		copied.accountsByUser[key] = value
	}
	copied.entries = append([]Entry(nil), state.entries...)
	for key, value := range state.entriesByRef {
		copied.entriesByRef[key] = value
	}
	for key, value := range state.idempotency {
		copied.idempotency[key] = value
	}
	for key, value := range state.withdrawals {
		copied.withdrawals[key] = value
	}
	copied.entrySequence = state.entrySequence
	return copied
}

func (state *stubState) createAccount(account Account) error {
	if _, exists := state.accountsByUser[account.UserID.String()]; exists {
		return ErrAccountExists
	}
	state.accounts[account.LedgerID.String()] = account
	state.accountsByUser[account.UserID.String()] = account.LedgerID.String()
	return nil
}

func (state *stubState) getAccount(ledgerID LedgerID) (Account, error) {
	account, found := state.accounts[ledgerID.String()]
	if !found {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (state *stubState) getAccountByUser(userID UserID) (Account, error) {
	ledgerID, found := state.accountsByUser[userID.String()]
	if !found {
		return Account{}, ErrAccountNotFound
	}
	return state.accounts[ledgerID], nil
}

func (state *stubState) updateAccountStatus(ledgerID LedgerID, status AccountStatus) error {
	account, found := state.accounts[ledgerID.String()]
	if !found {
		return ErrAccountNotFound
	}
	account.Status = status
	state.accounts[ledgerID.String()] = account
	return nil
}

func (state *stubState) insertEntry(input EntryInput) (Entry, error) {
	if _, exists := state.entriesByRef[input.Reference().String()]; exists {
		return Entry{}, ErrDuplicateReference
	}
	state.entrySequence++
	entry, err := NewEntry(fmt.Sprintf("entry-%d", state.entrySequence), input)
	if err != nil {
		return Entry{}, err
	}
	state.entries = append(state.entries, entry)
	state.entriesByRef[input.Reference().String()] = entry
	return entry, nil
}

func (state *stubState) getEntryByReference(reference Reference) (Entry, error) {
	entry, found := state.entriesByRef[reference.String()]
	if !found {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (state *stubState) sumCompleted(ledgerID LedgerID, entryType EntryType) int64 {
	var sum int64
	for _, entry := range state.entries {
		if entry.LedgerID() == ledgerID && entry.Type() == entryType && entry.Status() == EntryStatusCompleted {
			sum += entry.NetAmountKobo()
		}
	}
	return sum
}

func (state *stubState) latestCompletedEntry(ledgerID LedgerID) (Entry, error) {
	for index := len(state.entries) - 1; index >= 0; index-- {
		entry := state.entries[index]
		if entry.LedgerID() == ledgerID && entry.Status() == EntryStatusCompleted {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (state *stubState) listEntries(ledgerID LedgerID, filter EntryFilter) []Entry {
	matched := make([]Entry, 0, len(state.entries))
	for index := len(state.entries) - 1; index >= 0; index-- {
		entry := state.entries[index]
		if entry.LedgerID() != ledgerID {
			continue
		}
		if filter.Status != nil && entry.Status() != *filter.Status {
			continue
		}
		if filter.Category != nil && entry.Category() != *filter.Category {
			continue
		}
		matched = append(matched, entry)
	}
	if filter.Offset >= len(matched) {
		return nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

func (state *stubState) beginIdempotency(key Reference) IdempotencyOutcome {
	existing, found := state.idempotency[key.String()]
	if !found || existing.Decision == "failed" {
		state.idempotency[key.String()] = IdempotencyOutcome{Decision: IdempotencyAlreadyProcessing}
		return IdempotencyOutcome{Decision: IdempotencyCreated}
	}
	return existing
}

func (state *stubState) completeIdempotency(key Reference, entryID string) {
	state.idempotency[key.String()] = IdempotencyOutcome{Decision: IdempotencyAlreadyCompleted, EntryID: entryID}
}

func (state *stubState) failIdempotency(key Reference) {
	state.idempotency[key.String()] = IdempotencyOutcome{Decision: "failed"}
}

func (state *stubState) updateWithdrawalStatus(withdrawalID string, from, to WithdrawalStatus) error {
	withdrawal, found := state.withdrawals[withdrawalID]
	if !found {
		return ErrWithdrawalNotFound
	}
	if withdrawal.Status != from {
		return ErrWithdrawalStateConflict
	}
	withdrawal.Status = to
	state.withdrawals[withdrawalID] = withdrawal
	return nil
}

func (state *stubState) countOpenWithdrawals(userID UserID) int64 {
	var count int64
	for _, withdrawal := range state.withdrawals {
		if withdrawal.UserID == userID && withdrawal.Status.Open() {
			count++
		}
	}
	return count
}

// stubStore is a transactional in-memory Store. WithTx holds one lock for
// the whole function and rolls the state back on error, mirroring the
// serialization the real stores get from the database.
type stubStore struct {
	mu    sync.Mutex
	state *stubState
}

func newStubStore() *stubStore {
	return &stubStore{state: newStubState()}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshot := store.state.clone()
	if err := fn(ctx, &stubTx{state: store.state}); err != nil {
		store.state = snapshot
		return err
	}
	return nil
}

func (store *stubStore) locked(fn func(state *stubState) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return fn(store.state)
}

func (store *stubStore) CreateAccount(_ context.Context, account Account) error {
	return store.locked(func(state *stubState) error { return state.createAccount(account) })
}

func (store *stubStore) GetAccount(_ context.Context, ledgerID LedgerID) (Account, error) {
	var account Account
	err := store.locked(func(state *stubState) error {
		var innerErr error
		account, innerErr = state.getAccount(ledgerID)
		return innerErr
	})
	return account, err
}

func (store *stubStore) GetAccountByUser(_ context.Context, userID UserID) (Account, error) {
	var account Account
	err := store.locked(func(state *stubState) error {
		var innerErr error
		account, innerErr = state.getAccountByUser(userID)
		return innerErr
	})
	return account, err
}

func (store *stubStore) UpdateAccountStatus(_ context.Context, ledgerID LedgerID, status AccountStatus) error {
	return store.locked(func(state *stubState) error { return state.updateAccountStatus(ledgerID, status) })
}

func (store *stubStore) InsertEntry(_ context.Context, input EntryInput) (Entry, error) {
	var entry Entry
	err := store.locked(func(state *stubState) error {
		var innerErr error
		entry, innerErr = state.insertEntry(input)
		return innerErr
	})
	return entry, err
}

func (store *stubStore) GetEntryByReference(_ context.Context, reference Reference) (Entry, error) {
	var entry Entry
	err := store.locked(func(state *stubState) error {
		var innerErr error
		entry, innerErr = state.getEntryByReference(reference)
		return innerErr
	})
	return entry, err
}

func (store *stubStore) SumCompleted(_ context.Context, ledgerID LedgerID, entryType EntryType) (int64, error) {
	var sum int64
	_ = store.locked(func(state *stubState) error {
		sum = state.sumCompleted(ledgerID, entryType)
		return nil
	})
	return sum, nil
}

func (store *stubStore) LatestCompletedEntry(_ context.Context, ledgerID LedgerID) (Entry, error) {
	var entry Entry
	err := store.locked(func(state *stubState) error {
		var innerErr error
		entry, innerErr = state.latestCompletedEntry(ledgerID)
		return innerErr
	})
	return entry, err
}

func (store *stubStore) ListEntries(_ context.Context, ledgerID LedgerID, filter EntryFilter) ([]Entry, error) {
	var entries []Entry
	_ = store.locked(func(state *stubState) error {
		entries = state.listEntries(ledgerID, filter)
		return nil
	})
	return entries, nil
}

func (store *stubStore) BeginIdempotency(_ context.Context, key Reference, _ int64) (IdempotencyOutcome, error) {
	var outcome IdempotencyOutcome
	_ = store.locked(func(state *stubState) error {
		outcome = state.beginIdempotency(key)
		return nil
	})
	return outcome, nil
}

func (store *stubStore) CompleteIdempotency(_ context.Context, key Reference, entryID string) error {
	return store.locked(func(state *stubState) error {
		state.completeIdempotency(key, entryID)
		return nil
	})
}

func (store *stubStore) FailIdempotency(_ context.Context, key Reference) error {
	return store.locked(func(state *stubState) error {
		state.failIdempotency(key)
		return nil
	})
}

func (store *stubStore) CreateWithdrawal(_ context.Context, withdrawal Withdrawal) error {
	return store.locked(func(state *stubState) error {
		state.withdrawals[withdrawal.WithdrawalID] = withdrawal
		return nil
	})
}

func (store *stubStore) GetWithdrawal(_ context.Context, withdrawalID string) (Withdrawal, error) {
	var withdrawal Withdrawal
	err := store.locked(func(state *stubState) error {
		found, ok := state.withdrawals[withdrawalID]
		if !ok {
			return ErrWithdrawalNotFound
		}
		withdrawal = found
		return nil
	})
	return withdrawal, err
}

func (store *stubStore) UpdateWithdrawalStatus(_ context.Context, withdrawalID string, from, to WithdrawalStatus) error {
	return store.locked(func(state *stubState) error { return state.updateWithdrawalStatus(withdrawalID, from, to) })
}

func (store *stubStore) CountOpenWithdrawals(_ context.Context, userID UserID) (int64, error) {
	var count int64
	_ = store.locked(func(state *stubState) error {
		count = state.countOpenWithdrawals(userID)
		return nil
	})
	return count, nil
}

func (store *stubStore) LookupUser(_ context.Context, userID UserID) (UserRecord, error) {
	var record UserRecord
	err := store.locked(func(state *stubState) error {
		found, ok := state.users[userID.String()]
		if !ok {
			return ErrUserNotFound
		}
		record = found
		return nil
	})
	return record, err
}

func (store *stubStore) addUser(record UserRecord) {
	_ = store.locked(func(state *stubState) error {
		state.users[record.UserID.String()] = record
		return nil
	})
}

// stubTx serves calls inside an open WithTx; the outer lock is already held.
type stubTx struct {
	state *stubState
}

func (tx *stubTx) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, tx)
}

func (tx *stubTx) CreateAccount(_ context.Context, account Account) error {
	return tx.state.createAccount(account)
}

func (tx *stubTx) GetAccount(_ context.Context, ledgerID LedgerID) (Account, error) {
	return tx.state.getAccount(ledgerID)
}

func (tx *stubTx) GetAccountByUser(_ context.Context, userID UserID) (Account, error) {
	return tx.state.getAccountByUser(userID)
}

func (tx *stubTx) UpdateAccountStatus(_ context.Context, ledgerID LedgerID, status AccountStatus) error {
	return tx.state.updateAccountStatus(ledgerID, status)
}

func (tx *stubTx) InsertEntry(_ context.Context, input EntryInput) (Entry, error) {
	return tx.state.insertEntry(input)
}

func (tx *stubTx) GetEntryByReference(_ context.Context, reference Reference) (Entry, error) {
	return tx.state.getEntryByReference(reference)
}

func (tx *stubTx) SumCompleted(_ context.Context, ledgerID LedgerID, entryType EntryType) (int64, error) {
	return tx.state.sumCompleted(ledgerID, entryType), nil
}

func (tx *stubTx) LatestCompletedEntry(_ context.Context, ledgerID LedgerID) (Entry, error) {
	return tx.state.latestCompletedEntry(ledgerID)
}

func (tx *stubTx) ListEntries(_ context.Context, ledgerID LedgerID, filter EntryFilter) ([]Entry, error) {
	return tx.state.listEntries(ledgerID, filter), nil
}

func (tx *stubTx) BeginIdempotency(_ context.Context, key Reference, _ int64) (IdempotencyOutcome, error) {
	return tx.state.beginIdempotency(key), nil
}

func (tx *stubTx) CompleteIdempotency(_ context.Context, key Reference, entryID string) error {
	tx.state.completeIdempotency(key, entryID)
	return nil
}

func (tx *stubTx) FailIdempotency(_ context.Context, key Reference) error {
	tx.state.failIdempotency(key)
	return nil
}

func (tx *stubTx) CreateWithdrawal(_ context.Context, withdrawal Withdrawal) error {
	tx.state.withdrawals[withdrawal.WithdrawalID] = withdrawal
	return nil
}

func (tx *stubTx) GetWithdrawal(_ context.Context, withdrawalID string) (Withdrawal, error) {
	withdrawal, found := tx.state.withdrawals[withdrawalID]
	if !found {
		return Withdrawal{}, ErrWithdrawalNotFound
	}
	return withdrawal, nil
}

func (tx *stubTx) UpdateWithdrawalStatus(_ context.Context, withdrawalID string, from, to WithdrawalStatus) error {
	return tx.state.updateWithdrawalStatus(withdrawalID, from, to)
}

func (tx *stubTx) CountOpenWithdrawals(_ context.Context, userID UserID) (int64, error) {
	return tx.state.countOpenWithdrawals(userID), nil
}

// Test helpers shared across the package tests.

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustReference(test *testing.T, raw string) Reference {
	test.Helper()
	reference, err := NewReference(raw)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	return reference
}

func mustAmount(test *testing.T, raw int64) AmountKobo {
	test.Helper()
	amount, err := NewAmountKobo(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func mustMetadata(test *testing.T, raw string) Metadata {
	test.Helper()
	metadata, err := NewMetadata(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return metadata
}

func mustNewService(test *testing.T, store *stubStore, options ...ServiceOption) *Service {
	test.Helper()
	sequence := 0
	generate := func() string {
		sequence++
		return fmt.Sprintf("id-%d", sequence)
	}
	options = append([]ServiceOption{WithIDGenerator(generate)}, options...)
	service, err := NewService(store, store, func() int64 { return 1_700_000_000 }, options...)
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	return service
}

func mustAccount(test *testing.T, service *Service, store *stubStore, rawUserID string) Account {
	test.Helper()
	userID := mustUserID(test, rawUserID)
	store.addUser(UserRecord{UserID: userID, Role: "user"})
	account, err := service.CreateAccount(context.Background(), userID)
	if err != nil {
		test.Fatalf("create account: %v", err)
	}
	return account
}

func mustCredit(test *testing.T, service *Service, account Account, amountKobo int64, reference string) Entry {
	test.Helper()
	entry, _, err := service.CreateEntry(context.Background(), EntryParams{
		LedgerID:  account.LedgerID,
		Type:      EntryCredit,
		Category:  CategoryFunding,
		Amount:    mustAmount(test, amountKobo),
		Reference: mustReference(test, reference),
	})
	if err != nil {
		test.Fatalf("credit: %v", err)
	}
	return entry
}
