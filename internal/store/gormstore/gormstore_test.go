package gormstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sabipay/wallet/internal/store/gormstore"
	"github.com/sabipay/wallet/pkg/ledger"
)

func openTestStore(t *testing.T) (*gormstore.Store, *gorm.DB) {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(t.TempDir()+"/wallet.db"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	if err := gormstore.Migrate(database); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	return gormstore.New(database), database
}

func mustUserID(t *testing.T, raw string) ledger.UserID {
	t.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return userID
}

func mustLedgerID(t *testing.T, raw string) ledger.LedgerID {
	t.Helper()
	ledgerID, err := ledger.NewLedgerID(raw)
	if err != nil {
		t.Fatalf("ledger id: %v", err)
	}
	return ledgerID
}

func mustReference(t *testing.T, raw string) ledger.Reference {
	t.Helper()
	reference, err := ledger.NewReference(raw)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	return reference
}

func seedAccount(t *testing.T, store *gormstore.Store, userRaw, ledgerRaw string) ledger.Account {
	t.Helper()
	userID := mustUserID(t, userRaw)
	if err := store.EnsureUser(context.Background(), ledger.UserRecord{UserID: userID, Email: userRaw + "@example.com", Role: "user"}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	account := ledger.Account{
		LedgerID:       mustLedgerID(t, ledgerRaw),
		UserID:         userID,
		Currency:       "NGN",
		Status:         ledger.AccountActive,
		CreatedUnixUTC: time.Now().UTC().Unix(),
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func seedEntry(t *testing.T, store *gormstore.Store, account ledger.Account, entryType ledger.EntryType, category ledger.EntryCategory, amount, fee, balanceAfter int64, referenceRaw string) ledger.Entry {
	t.Helper()
	amountKobo, err := ledger.NewAmountKobo(amount)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	feeKobo, err := ledger.NewFeeKobo(fee)
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	input, err := ledger.NewEntryInput(
		account.LedgerID,
		account.UserID,
		entryType,
		category,
		amountKobo,
		feeKobo,
		balanceAfter,
		ledger.ProviderInternal,
		"",
		mustReference(t, referenceRaw),
		ledger.Metadata{},
		time.Now().UTC().Unix(),
	)
	if err != nil {
		t.Fatalf("entry input: %v", err)
	}
	entry, err := store.InsertEntry(context.Background(), input)
	if err != nil {
		t.Fatalf("insert entry: %v", err)
	}
	return entry
}

func TestAccountRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	account := seedAccount(t, store, "user-1", "11111111-1111-1111-1111-111111111111")

	fetched, err := store.GetAccount(context.Background(), account.LedgerID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if fetched.UserID != account.UserID || fetched.Status != ledger.AccountActive {
		t.Fatalf("unexpected account: %+v", fetched)
	}

	byUser, err := store.GetAccountByUser(context.Background(), account.UserID)
	if err != nil {
		t.Fatalf("get by user: %v", err)
	}
	if byUser.LedgerID != account.LedgerID {
		t.Fatalf("expected ledger %s, got %s", account.LedgerID, byUser.LedgerID)
	}

	duplicate := account
	duplicate.LedgerID = mustLedgerID(t, "22222222-2222-2222-2222-222222222222")
	if err := store.CreateAccount(context.Background(), duplicate); !errors.Is(err, ledger.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists for second account per user, got %v", err)
	}

	if err := store.UpdateAccountStatus(context.Background(), account.LedgerID, ledger.AccountFrozen); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	frozen, err := store.GetAccount(context.Background(), account.LedgerID)
	if err != nil {
		t.Fatalf("get frozen: %v", err)
	}
	if frozen.Status != ledger.AccountFrozen {
		t.Fatalf("expected frozen, got %s", frozen.Status)
	}

	missing := mustLedgerID(t, "99999999-9999-9999-9999-999999999999")
	if _, err := store.GetAccount(context.Background(), missing); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := store.UpdateAccountStatus(context.Background(), missing, ledger.AccountFrozen); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound on status update, got %v", err)
	}
}

func TestLookupUser(t *testing.T) {
	store, _ := openTestStore(t)
	userID := mustUserID(t, "user-1")
	if err := store.EnsureUser(context.Background(), ledger.UserRecord{UserID: userID, Email: "user-1@example.com", Role: "admin"}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	record, err := store.LookupUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record.Role != "admin" || record.Email != "user-1@example.com" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if _, err := store.LookupUser(context.Background(), mustUserID(t, "ghost")); !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestEntryInsertAndQueries(t *testing.T) {
	store, _ := openTestStore(t)
	account := seedAccount(t, store, "user-1", "11111111-1111-1111-1111-111111111111")

	seedEntry(t, store, account, ledger.EntryCredit, ledger.CategoryFunding, 100_000, 1_600, 98_400, "FUND-1")
	seedEntry(t, store, account, ledger.EntryDebit, ledger.CategoryVTUPurchase, 40_000, 0, 58_400, "BUY-1")
	latest := seedEntry(t, store, account, ledger.EntryCredit, ledger.CategoryFunding, 10_000, 0, 68_400, "FUND-2")

	if _, err := store.GetEntryByReference(context.Background(), mustReference(t, "FUND-1")); err != nil {
		t.Fatalf("get by reference: %v", err)
	}
	if _, err := store.GetEntryByReference(context.Background(), mustReference(t, "GHOST")); !errors.Is(err, ledger.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}

	credits, err := store.SumCompleted(context.Background(), account.LedgerID, ledger.EntryCredit)
	if err != nil {
		t.Fatalf("sum credits: %v", err)
	}
	if credits != 108_400 {
		t.Fatalf("expected credit net sum 108400, got %d", credits)
	}
	debits, err := store.SumCompleted(context.Background(), account.LedgerID, ledger.EntryDebit)
	if err != nil {
		t.Fatalf("sum debits: %v", err)
	}
	if debits != 40_000 {
		t.Fatalf("expected debit net sum 40000, got %d", debits)
	}

	newest, err := store.LatestCompletedEntry(context.Background(), account.LedgerID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if newest.EntryID() != latest.EntryID() {
		t.Fatalf("expected latest entry %s, got %s", latest.EntryID(), newest.EntryID())
	}

	category := ledger.CategoryFunding
	listed, err := store.ListEntries(context.Background(), account.LedgerID, ledger.EntryFilter{Limit: 10, Category: &category})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 funding entries, got %d", len(listed))
	}
	if listed[0].Reference().String() != "FUND-2" {
		t.Fatalf("expected newest first, got %s", listed[0].Reference())
	}
}

func TestEntryReferenceIsUnique(t *testing.T) {
	store, _ := openTestStore(t)
	account := seedAccount(t, store, "user-1", "11111111-1111-1111-1111-111111111111")
	seedEntry(t, store, account, ledger.EntryCredit, ledger.CategoryFunding, 100_000, 0, 100_000, "FUND-1")

	amount, _ := ledger.NewAmountKobo(100_000)
	input, err := ledger.NewEntryInput(
		account.LedgerID, account.UserID, ledger.EntryCredit, ledger.CategoryFunding,
		amount, 0, 200_000, ledger.ProviderInternal, "", mustReference(t, "FUND-1"),
		ledger.Metadata{}, time.Now().UTC().Unix(),
	)
	if err != nil {
		t.Fatalf("entry input: %v", err)
	}
	if _, err := store.InsertEntry(context.Background(), input); !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
}

func TestIdempotencyLifecycle(t *testing.T) {
	store, _ := openTestStore(t)
	key := mustReference(t, "FUND-1")
	expiresAt := time.Now().UTC().Add(48 * time.Hour).Unix()

	outcome, err := store.BeginIdempotency(context.Background(), key, expiresAt)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if outcome.Decision != ledger.IdempotencyCreated {
		t.Fatalf("expected created, got %s", outcome.Decision)
	}

	outcome, err = store.BeginIdempotency(context.Background(), key, expiresAt)
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if outcome.Decision != ledger.IdempotencyAlreadyProcessing {
		t.Fatalf("expected already_processing, got %s", outcome.Decision)
	}

	if err := store.CompleteIdempotency(context.Background(), key, "entry-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	outcome, err = store.BeginIdempotency(context.Background(), key, expiresAt)
	if err != nil {
		t.Fatalf("begin after completion: %v", err)
	}
	if outcome.Decision != ledger.IdempotencyAlreadyCompleted || outcome.EntryID != "entry-1" {
		t.Fatalf("expected already_completed with entry-1, got %+v", outcome)
	}
}

func TestIdempotencyFailedKeyIsReclaimable(t *testing.T) {
	store, _ := openTestStore(t)
	key := mustReference(t, "FUND-1")
	expiresAt := time.Now().UTC().Add(48 * time.Hour).Unix()

	if err := store.FailIdempotency(context.Background(), key); err != nil {
		t.Fatalf("fail: %v", err)
	}
	outcome, err := store.BeginIdempotency(context.Background(), key, expiresAt)
	if err != nil {
		t.Fatalf("begin after failure: %v", err)
	}
	if outcome.Decision != ledger.IdempotencyCreated {
		t.Fatalf("expected created takeover, got %s", outcome.Decision)
	}
}

func TestIdempotencyExpiredClaimIsReclaimable(t *testing.T) {
	store, database := openTestStore(t)
	key := mustReference(t, "FUND-1")

	stale := time.Now().UTC().Add(-time.Hour)
	record := gormstore.IdempotencyRecord{
		Reference: key.String(),
		Status:    "processing",
		ExpiresAt: stale,
		CreatedAt: stale,
		UpdatedAt: stale,
	}
	if err := database.Create(&record).Error; err != nil {
		t.Fatalf("seed stale claim: %v", err)
	}

	outcome, err := store.BeginIdempotency(context.Background(), key, time.Now().UTC().Add(48*time.Hour).Unix())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if outcome.Decision != ledger.IdempotencyCreated {
		t.Fatalf("expected expired claim takeover, got %s", outcome.Decision)
	}
}

func TestWithdrawalStoreLifecycle(t *testing.T) {
	store, _ := openTestStore(t)
	account := seedAccount(t, store, "user-1", "11111111-1111-1111-1111-111111111111")
	now := time.Now().UTC().Unix()
	withdrawal := ledger.Withdrawal{
		WithdrawalID:   "33333333-3333-3333-3333-333333333333",
		UserID:         account.UserID,
		LedgerID:       account.LedgerID,
		AmountKobo:     50_000,
		FeeKobo:        0,
		NetAmountKobo:  50_000,
		BankName:       "GTBank",
		AccountNumber:  "0123456789",
		AccountName:    "Ada Obi",
		Status:         ledger.WithdrawalPending,
		CreatedUnixUTC: now,
		UpdatedUnixUTC: now,
	}
	if err := store.CreateWithdrawal(context.Background(), withdrawal); err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	open, err := store.CountOpenWithdrawals(context.Background(), account.UserID)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if open != 1 {
		t.Fatalf("expected 1 open withdrawal, got %d", open)
	}

	if err := store.UpdateWithdrawalStatus(context.Background(), withdrawal.WithdrawalID, ledger.WithdrawalPending, ledger.WithdrawalApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := store.UpdateWithdrawalStatus(context.Background(), withdrawal.WithdrawalID, ledger.WithdrawalPending, ledger.WithdrawalApproved); !errors.Is(err, ledger.ErrWithdrawalStateConflict) {
		t.Fatalf("expected state conflict on repeated approval, got %v", err)
	}
	if err := store.UpdateWithdrawalStatus(context.Background(), "ghost", ledger.WithdrawalPending, ledger.WithdrawalApproved); !errors.Is(err, ledger.ErrWithdrawalNotFound) {
		t.Fatalf("expected ErrWithdrawalNotFound, got %v", err)
	}

	if err := store.UpdateWithdrawalStatus(context.Background(), withdrawal.WithdrawalID, ledger.WithdrawalApproved, ledger.WithdrawalCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	open, err = store.CountOpenWithdrawals(context.Background(), account.UserID)
	if err != nil {
		t.Fatalf("count open after completion: %v", err)
	}
	if open != 0 {
		t.Fatalf("expected 0 open withdrawals, got %d", open)
	}

	fetched, err := store.GetWithdrawal(context.Background(), withdrawal.WithdrawalID)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if fetched.Status != ledger.WithdrawalCompleted {
		t.Fatalf("expected COMPLETED, got %s", fetched.Status)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, _ := openTestStore(t)
	account := seedAccount(t, store, "user-1", "11111111-1111-1111-1111-111111111111")

	sentinel := errors.New("boom")
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore ledger.Store) error {
		amount, _ := ledger.NewAmountKobo(100_000)
		input, err := ledger.NewEntryInput(
			account.LedgerID, account.UserID, ledger.EntryCredit, ledger.CategoryFunding,
			amount, 0, 100_000, ledger.ProviderInternal, "", mustReference(t, "FUND-1"),
			ledger.Metadata{}, time.Now().UTC().Unix(),
		)
		if err != nil {
			return err
		}
		if _, err := txStore.InsertEntry(ctx, input); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if _, err := store.GetEntryByReference(context.Background(), mustReference(t, "FUND-1")); !errors.Is(err, ledger.ErrEntryNotFound) {
		t.Fatalf("expected rollback to discard the entry, got %v", err)
	}
}

func TestServiceOverGormStore(t *testing.T) {
	store, _ := openTestStore(t)
	now := func() int64 { return time.Now().UTC().Unix() }
	service, err := ledger.NewService(store, store, now)
	if err != nil {
		t.Fatalf("service init: %v", err)
	}

	userID := mustUserID(t, "user-1")
	if err := store.EnsureUser(context.Background(), ledger.UserRecord{UserID: userID, Email: "user-1@example.com", Role: "user"}); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	account, err := service.CreateAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	amount, _ := ledger.NewAmountKobo(100_000)
	if _, _, err := service.CreateEntry(context.Background(), ledger.EntryParams{
		LedgerID:  account.LedgerID,
		Type:      ledger.EntryCredit,
		Category:  ledger.CategoryFunding,
		Amount:    amount,
		Reference: mustReference(t, "FUND-1"),
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	debit, _ := ledger.NewAmountKobo(30_000)
	if _, _, err := service.CreateEntry(context.Background(), ledger.EntryParams{
		LedgerID:  account.LedgerID,
		Type:      ledger.EntryDebit,
		Category:  ledger.CategoryVTUPurchase,
		Amount:    debit,
		Reference: mustReference(t, "BUY-1"),
	}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	balance, err := service.Balance(context.Background(), account.LedgerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Kobo != 70_000 {
		t.Fatalf("expected 70000, got %d", balance.Kobo)
	}

	report, err := service.VerifyIntegrity(context.Background(), account.LedgerID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.IsValid || report.Drift != 0 {
		t.Fatalf("expected clean integrity report, got %+v", report)
	}
}
