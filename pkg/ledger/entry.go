package ledger

import "fmt"

// ProviderInternal marks entries originated by the platform itself rather
// than an external payment provider.
const ProviderInternal = "internal"

// EntryInput is the validated, write-once payload for a new ledger entry.
// The net amount is fixed at construction; there is no mutator.
type EntryInput struct {
	ledgerID          LedgerID
	userID            UserID
	entryType         EntryType
	category          EntryCategory
	amountKobo        AmountKobo
	feeKobo           FeeKobo
	netAmountKobo     int64
	balanceAfterKobo  int64
	status            EntryStatus
	provider          string
	providerReference string
	reference         Reference
	metadata          Metadata
	createdUnixUTC    int64
}

// NewEntryInput validates the financial fields and computes the net amount.
func NewEntryInput(
	ledgerID LedgerID,
	userID UserID,
	entryType EntryType,
	category EntryCategory,
	amount AmountKobo,
	fee FeeKobo,
	balanceAfterKobo int64,
	provider string,
	providerReference string,
	reference Reference,
	metadata Metadata,
	createdUnixUTC int64,
) (EntryInput, error) {
	if amount.Int64() <= 0 {
		return EntryInput{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if fee.Int64() < 0 {
		return EntryInput{}, fmt.Errorf("%w: fee must not be negative", ErrInvalidAmount)
	}
	if fee.Int64() > amount.Int64() {
		return EntryInput{}, fmt.Errorf("%w: fee exceeds amount", ErrInvalidAmount)
	}
	if reference.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: reference is required", ErrInvalidReference)
	}
	if provider == "" {
		provider = ProviderInternal
	}
	return EntryInput{
		ledgerID:          ledgerID,
		userID:            userID,
		entryType:         entryType,
		category:          category,
		amountKobo:        amount,
		feeKobo:           fee,
		netAmountKobo:     amount.Int64() - fee.Int64(),
		balanceAfterKobo:  balanceAfterKobo,
		status:            EntryStatusCompleted,
		provider:          provider,
		providerReference: providerReference,
		reference:         reference,
		metadata:          metadata,
		createdUnixUTC:    createdUnixUTC,
	}, nil
}

func (input EntryInput) LedgerID() LedgerID { return input.ledgerID }
func (input EntryInput) UserID() UserID { return input.userID }
func (input EntryInput) Type() EntryType { return input.entryType }
func (input EntryInput) Category() EntryCategory { return input.category }
func (input EntryInput) AmountKobo() AmountKobo { return input.amountKobo }
func (input EntryInput) FeeKobo() FeeKobo { return input.feeKobo }
func (input EntryInput) NetAmountKobo() int64 { return input.netAmountKobo }
func (input EntryInput) BalanceAfterKobo() int64 { return input.balanceAfterKobo }
func (input EntryInput) Status() EntryStatus { return input.status }
func (input EntryInput) Provider() string { return input.provider }
func (input EntryInput) ProviderReference() string { return input.providerReference }
func (input EntryInput) Reference() Reference { return input.reference }
func (input EntryInput) MetadataJSON() Metadata { return input.metadata }
func (input EntryInput) CreatedUnixUTC() int64 { return input.createdUnixUTC }

// Entry is a single immutable line in the ledger. It exposes accessors only;
// corrections are separate REVERSAL or ADJUSTMENT entries.
type Entry struct {
	entryID string
	input   EntryInput
}

// NewEntry rehydrates a persisted entry.
func NewEntry(entryID string, input EntryInput) (Entry, error) {
	if entryID == "" {
		return Entry{}, fmt.Errorf("%w: empty entry id", ErrInvalidReference)
	}
	return Entry{entryID: entryID, input: input}, nil
}

func (entry Entry) EntryID() string { return entry.entryID }
func (entry Entry) LedgerID() LedgerID { return entry.input.ledgerID }
func (entry Entry) UserID() UserID { return entry.input.userID }
func (entry Entry) Type() EntryType { return entry.input.entryType }
func (entry Entry) Category() EntryCategory { return entry.input.category }
func (entry Entry) AmountKobo() AmountKobo { return entry.input.amountKobo }
func (entry Entry) FeeKobo() FeeKobo { return entry.input.feeKobo }
func (entry Entry) NetAmountKobo() int64 { return entry.input.netAmountKobo }
func (entry Entry) BalanceAfterKobo() int64 { return entry.input.balanceAfterKobo }
func (entry Entry) Status() EntryStatus { return entry.input.status }
func (entry Entry) Provider() string { return entry.input.provider }
func (entry Entry) ProviderReference() string { return entry.input.providerReference }
func (entry Entry) Reference() Reference { return entry.input.reference }
func (entry Entry) MetadataJSON() Metadata { return entry.input.metadata }
func (entry Entry) CreatedUnixUTC() int64 { return entry.input.createdUnixUTC }

// IsZero reports whether the entry is the zero value.
func (entry Entry) IsZero() bool {
	return entry.entryID == ""
}

// RestoreEntry rehydrates an entry from storage, re-checking the arithmetic
// invariants the write path guaranteed. A mismatch means the stored row was
// tampered with or corrupted.
func RestoreEntry(
	entryID string,
	ledgerID LedgerID,
	userID UserID,
	entryType EntryType,
	category EntryCategory,
	amount AmountKobo,
	fee FeeKobo,
	netAmountKobo int64,
	balanceAfterKobo int64,
	status EntryStatus,
	provider string,
	providerReference string,
	reference Reference,
	metadata Metadata,
	createdUnixUTC int64,
) (Entry, error) {
	input, err := NewEntryInput(ledgerID, userID, entryType, category, amount, fee, balanceAfterKobo, provider, providerReference, reference, metadata, createdUnixUTC)
	if err != nil {
		return Entry{}, err
	}
	if input.netAmountKobo != netAmountKobo {
		return Entry{}, fmt.Errorf("%w: stored net amount %d does not match %d - %d", ErrInvariantViolation, netAmountKobo, amount.Int64(), fee.Int64())
	}
	input.status = status
	return NewEntry(entryID, input)
}
