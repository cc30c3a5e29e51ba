package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User mirrors the users table owned by the auth collaborator.
type User struct {
	UserID    string    `gorm:"primaryKey"`
	Email     string    `gorm:"not null;uniqueIndex"`
	Role      string    `gorm:"not null;default:user"`
	CreatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// LedgerAccount mirrors the ledger_accounts table. One row per user.
type LedgerAccount struct {
	LedgerID  string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex"`
	Currency  string    `gorm:"not null"`
	Status    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (LedgerAccount) TableName() string { return "ledger_accounts" }

func (account *LedgerAccount) BeforeCreate(tx *gorm.DB) error {
	if account.LedgerID == "" {
		account.LedgerID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. RowID is a storage-internal
// surrogate that preserves insertion order; EntryID is the exposed identity.
type LedgerEntry struct {
	RowID             int64          `gorm:"primaryKey;autoIncrement"`
	EntryID           string         `gorm:"type:uuid;not null;uniqueIndex"`
	LedgerID          string         `gorm:"type:uuid;not null;index:idx_entries_ledger_created,priority:1"`
	Type              string         `gorm:"not null"`
	Category          string         `gorm:"not null"`
	AmountKobo        int64          `gorm:"not null"`
	FeeKobo           int64          `gorm:"not null"`
	NetAmountKobo     int64          `gorm:"not null"`
	BalanceAfterKobo  int64          `gorm:"not null"`
	Status            string         `gorm:"not null;index:idx_entries_status_created,priority:1"`
	Provider          string         `gorm:"not null"`
	ProviderReference string         `gorm:""`
	Reference         string         `gorm:"not null;uniqueIndex"`
	Metadata          datatypes.JSON `gorm:"not null"`
	CreatedAt         time.Time      `gorm:"not null;index:idx_entries_ledger_created,priority:2;index:idx_entries_status_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// IdempotencyRecord mirrors the idempotency_records table. The reference is
// the key; rows expire and are pruned lazily on the next claim.
type IdempotencyRecord struct {
	Reference string    `gorm:"primaryKey"`
	Status    string    `gorm:"not null"`
	EntryID   string    `gorm:""`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

// Withdrawal mirrors the withdrawals table.
type Withdrawal struct {
	WithdrawalID  string    `gorm:"type:uuid;primaryKey"`
	UserID        string    `gorm:"not null;index:idx_withdrawals_user_status,priority:1"`
	LedgerID      string    `gorm:"type:uuid;not null"`
	AmountKobo    int64     `gorm:"not null"`
	FeeKobo       int64     `gorm:"not null"`
	NetAmountKobo int64     `gorm:"not null"`
	BankName      string    `gorm:"not null"`
	BankCode      string    `gorm:""`
	AccountNumber string    `gorm:"not null"`
	AccountName   string    `gorm:"not null"`
	Status        string    `gorm:"not null;index:idx_withdrawals_user_status,priority:2"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

// Migrate creates or updates the schema for every table the store owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&LedgerAccount{},
		&LedgerEntry{},
		&IdempotencyRecord{},
		&Withdrawal{},
	)
}
