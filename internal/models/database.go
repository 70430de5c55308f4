package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a per-(adapter, external user) balance record
type Account struct {
	Id             string          `db:"id"`
	AdapterName    string          `db:"adapter_name"`
	ExternalId     string          `db:"external_id"`
	Balance        decimal.Decimal `db:"balance"`
	OpeningBalance decimal.Decimal `db:"opening_balance"`
	WalletAddress  string          `db:"wallet_address"`
	Version        int64           `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// CanPay reports whether the balance covers amount.
func (a *Account) CanPay(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(RoundAmount(amount))
}

// ActionType enumerates balance-affecting operations
type ActionType string

const (
	ActionDeposit    ActionType = "deposit"
	ActionTransfer   ActionType = "transfer"
	ActionWithdrawal ActionType = "withdrawal"
)

// Action is the idempotency and audit record of a committed balance movement.
// (SourceAccountId, Type, Hash) is unique.
type Action struct {
	Id              string          `db:"id"`
	Type            ActionType      `db:"type"`
	Amount          decimal.Decimal `db:"amount"`
	Hash            string          `db:"hash"`
	SourceAccountId string          `db:"source_account_id"`
	TargetAccountId string          `db:"target_account_id"`
	Address         string          `db:"address"`
	CreatedAt       time.Time       `db:"created_at"`
}

// TransactionType enumerates external network movements
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
)

// NativeAsset is the only asset the ledger accounts for
const NativeAsset = "native"

// Transaction records a payment observed on, or submitted to, the settlement network
type Transaction struct {
	Id        string          `db:"id"`
	Type      TransactionType `db:"type"`
	Source    string          `db:"source"`
	Target    string          `db:"target"`
	Amount    decimal.Decimal `db:"amount"`
	Asset     string          `db:"asset"`
	Memo      string          `db:"memo"`
	Hash      string          `db:"hash"`
	Cursor    string          `db:"cursor"`
	Credited  bool            `db:"credited"`
	CreatedAt time.Time       `db:"created_at"`
}

// ReservationStatus is the state of a withdrawal attempt
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationFailed    ReservationStatus = "failed"
)

// WithdrawalReservation holds funds debited for a withdrawal until the network
// submission is confirmed or refunded.
type WithdrawalReservation struct {
	Id            string            `db:"id"`
	AccountId     string            `db:"account_id"`
	Address       string            `db:"address"`
	Amount        decimal.Decimal   `db:"amount"`
	Hash          string            `db:"hash"`
	Status        ReservationStatus `db:"status"`
	FailureReason string            `db:"failure_reason"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
}
