package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AmountKobo is an integer currency amount in kobo (NGN smallest unit).
type AmountKobo int64

// FeeKobo is a non-negative platform fee in kobo.
type FeeKobo int64

// UserID identifies an account owner.
type UserID struct {
	value string
}

// LedgerID identifies a ledger account.
type LedgerID struct {
	value string
}

// Reference is the globally unique idempotency key of an entry.
type Reference struct {
	value string
}

// Metadata stores arbitrary request metadata as JSON.
type Metadata struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewLedgerID validates and normalizes a ledger id.
func NewLedgerID(raw string) (LedgerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LedgerID{}, fmt.Errorf("%w: empty value", ErrInvalidLedgerID)
	}
	return LedgerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id LedgerID) String() string {
	return id.value
}

// NewReference validates and normalizes a reference.
func NewReference(raw string) (Reference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, fmt.Errorf("%w: empty value", ErrInvalidReference)
	}
	return Reference{value: trimmed}, nil
}

// String returns the normalized reference.
func (reference Reference) String() string {
	return reference.value
}

// IsZero reports whether the reference is absent.
func (reference Reference) IsZero() bool {
	return reference.value == ""
}

// NewMetadata validates a metadata string (defaulting to "{}" for empty inputs).
func NewMetadata(raw string) (Metadata, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return Metadata{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadata)
	}
	return Metadata{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata Metadata) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// NewAmountKobo validates an amount and ensures it is strictly positive.
func NewAmountKobo(raw int64) (AmountKobo, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return AmountKobo(raw), nil
}

// Int64 returns the raw kobo value.
func (amount AmountKobo) Int64() int64 {
	return int64(amount)
}

// NewFeeKobo validates a fee and ensures it is non-negative.
func NewFeeKobo(raw int64) (FeeKobo, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: fee must not be negative", ErrInvalidAmount)
	}
	return FeeKobo(raw), nil
}

// Int64 returns the raw kobo value.
func (fee FeeKobo) Int64() int64 {
	return int64(fee)
}

// EntryType enumerates the two directions an entry can move a balance.
type EntryType string

const (
	EntryCredit EntryType = "CREDIT"
	EntryDebit  EntryType = "DEBIT"
)

// ParseEntryType validates a raw entry type.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(raw) {
	case EntryCredit, EntryDebit:
		return EntryType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
}

// String returns the raw entry type.
func (entryType EntryType) String() string {
	return string(entryType)
}

// Opposite returns the compensating direction.
func (entryType EntryType) Opposite() EntryType {
	if entryType == EntryCredit {
		return EntryDebit
	}
	return EntryCredit
}

// EntryCategory classifies the business reason for an entry.
type EntryCategory string

const (
	CategoryFunding     EntryCategory = "FUNDING"
	CategoryWithdrawal  EntryCategory = "WITHDRAWAL"
	CategoryVTUPurchase EntryCategory = "VTU_PURCHASE"
	CategoryReversal    EntryCategory = "REVERSAL"
	CategoryFee         EntryCategory = "FEE"
	CategoryRefund      EntryCategory = "REFUND"
	CategoryAdjustment  EntryCategory = "ADJUSTMENT"
)

// ParseEntryCategory validates a raw entry category.
func ParseEntryCategory(raw string) (EntryCategory, error) {
	switch EntryCategory(raw) {
	case CategoryFunding, CategoryWithdrawal, CategoryVTUPurchase, CategoryReversal, CategoryFee, CategoryRefund, CategoryAdjustment:
		return EntryCategory(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryCategory, raw)
}

// String returns the raw category.
func (category EntryCategory) String() string {
	return string(category)
}

// EntryStatus describes the settlement state of an entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
	EntryStatusReversed  EntryStatus = "REVERSED"
)

// ParseEntryStatus validates a raw entry status.
func ParseEntryStatus(raw string) (EntryStatus, error) {
	switch EntryStatus(raw) {
	case EntryStatusPending, EntryStatusCompleted, EntryStatusFailed, EntryStatusReversed:
		return EntryStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryStatus, raw)
}

// String returns the raw status.
func (status EntryStatus) String() string {
	return string(status)
}

// AccountStatus describes whether an account accepts new entries.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// ParseAccountStatus validates a raw account status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	switch AccountStatus(raw) {
	case AccountActive, AccountFrozen, AccountClosed:
		return AccountStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccountStatus, raw)
}

// String returns the raw status.
func (status AccountStatus) String() string {
	return string(status)
}

// WithdrawalStatus describes the workflow state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalApproved   WithdrawalStatus = "APPROVED"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// ParseWithdrawalStatus validates a raw withdrawal status.
func ParseWithdrawalStatus(raw string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(raw) {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalProcessing, WithdrawalCompleted, WithdrawalFailed:
		return WithdrawalStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
}

// String returns the raw status.
func (status WithdrawalStatus) String() string {
	return string(status)
}

// Open reports whether the withdrawal still counts against the
// one-in-flight admission limit.
func (status WithdrawalStatus) Open() bool {
	switch status {
	case WithdrawalPending, WithdrawalApproved, WithdrawalProcessing:
		return true
	}
	return false
}

// Account is the single mutable record per user ledger. Entries are the
// source of truth; the account row only carries identity and status.
type Account struct {
	LedgerID       LedgerID
	UserID         UserID
	Currency       string
	Status         AccountStatus
	CreatedUnixUTC int64
}

// UserRecord is the slice of the user/auth collaborator the ledger consumes.
type UserRecord struct {
	UserID UserID
	Email  string
	Role   string
}

// Withdrawal is the mutable workflow record behind a payout request. The
// ledger debit only exists once the status reaches COMPLETED.
type Withdrawal struct {
	WithdrawalID   string
	UserID         UserID
	LedgerID       LedgerID
	AmountKobo     int64
	FeeKobo        int64
	NetAmountKobo  int64
	BankName       string
	BankCode       string
	AccountNumber  string
	AccountName    string
	Status         WithdrawalStatus
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// Balance is the derived position of one account.
type Balance struct {
	LedgerID LedgerID
	Kobo     int64
}

// IntegrityReport compares the derived balance against the last snapshot.
type IntegrityReport struct {
	LedgerID        LedgerID
	IsValid         bool
	ComputedBalance int64
	SnapshotBalance int64
	Drift           int64
}
