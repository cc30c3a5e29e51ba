package ledger

import "context"

// EntryFilter narrows and pages a transaction history query. Entries are
// always returned newest first.
type EntryFilter struct {
	Limit    int
	Offset   int
	Status   *EntryStatus
	Category *EntryCategory
}

// UserDirectory is the boundary to the user/auth collaborator. The ledger
// consumes existence and role, nothing else.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID UserID) (UserRecord, error)
}

// Store is the persistence contract used by Service. Entries expose insert
// and read operations only; there is no update or delete for an entry at
// the contract level.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, ledgerID LedgerID) (Account, error)
	GetAccountByUser(ctx context.Context, userID UserID) (Account, error)
	UpdateAccountStatus(ctx context.Context, ledgerID LedgerID, status AccountStatus) error

	InsertEntry(ctx context.Context, input EntryInput) (Entry, error)
	GetEntryByReference(ctx context.Context, reference Reference) (Entry, error)
	SumCompleted(ctx context.Context, ledgerID LedgerID, entryType EntryType) (int64, error)
	LatestCompletedEntry(ctx context.Context, ledgerID LedgerID) (Entry, error)
	ListEntries(ctx context.Context, ledgerID LedgerID, filter EntryFilter) ([]Entry, error)

	BeginIdempotency(ctx context.Context, key Reference, expiresAtUnixUTC int64) (IdempotencyOutcome, error)
	CompleteIdempotency(ctx context.Context, key Reference, entryID string) error
	FailIdempotency(ctx context.Context, key Reference) error

	CreateWithdrawal(ctx context.Context, withdrawal Withdrawal) error
	GetWithdrawal(ctx context.Context, withdrawalID string) (Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, withdrawalID string, from, to WithdrawalStatus) error
	CountOpenWithdrawals(ctx context.Context, userID UserID) (int64, error)
}

// IdempotencyDecision tags the outcome of claiming an idempotency key.
// "Already" outcomes are expected states, not errors.
type IdempotencyDecision string

const (
	IdempotencyCreated           IdempotencyDecision = "created"
	IdempotencyAlreadyProcessing IdempotencyDecision = "already_processing"
	IdempotencyAlreadyCompleted  IdempotencyDecision = "already_completed"
)

// IdempotencyOutcome is the result of BeginIdempotency. EntryID is set only
// for the already-completed decision.
type IdempotencyOutcome struct {
	Decision IdempotencyDecision
	EntryID  string
}
