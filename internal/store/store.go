package store

import (
	"context"
	"time"

	"stellar-tipbot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = models.ErrDuplicateTransaction
	ErrDuplicateAction        = models.ErrDuplicateAction
	ErrConcurrentModification = models.ErrConcurrentModification
	ErrAccountNotFound        = models.ErrAccountNotFound
	ErrReservationNotOpen     = models.ErrReservationNotOpen
)

// TransferParams moves Amount from SourceId to TargetId under idempotency key Hash.
type TransferParams struct {
	SourceId string
	TargetId string
	Amount   decimal.Decimal
	Hash     string
}

// CreditDepositParams credits a recorded deposit transaction to an account.
type CreditDepositParams struct {
	Hash      string
	AccountId string
}

// ReserveWithdrawalParams debits an account ahead of a network submission.
type ReserveWithdrawalParams struct {
	AccountId string
	Address   string
	Amount    decimal.Decimal
	Hash      string
}

// ConfirmWithdrawalParams records a withdrawal the network accepted.
type ConfirmWithdrawalParams struct {
	ReservationId string
	SourceAddress string
	Memo          string
	NetworkId     string
}

// LedgerStore defines the contract that every backend must satisfy.
type LedgerStore interface {
	// --- Accounts ---
	GetOrCreateAccount(ctx context.Context, adapterName, externalId string, defaults *models.AccountDefaults) (*models.Account, error)
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	FindAccount(ctx context.Context, adapterName, externalId string) (*models.Account, error)
	FindAccountByWallet(ctx context.Context, address string) (*models.Account, error)
	GetAccounts(ctx context.Context, adapterName string) ([]models.Account, error)
	SetWalletAddress(ctx context.Context, accountId, address string) (*models.Account, error)
	CanPay(ctx context.Context, accountId string, amount decimal.Decimal) (bool, error)

	// --- Transfers ---
	Transfer(ctx context.Context, params TransferParams) (*models.TransferResult, error)

	// --- Deposits ---
	InsertDeposit(ctx context.Context, tx *models.Transaction) error
	CreditDeposit(ctx context.Context, params CreditDepositParams) (*models.DepositResult, error)
	GetTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error)
	GetUncreditedDeposits(ctx context.Context, limit int) ([]models.Transaction, error)
	LatestDepositCursor(ctx context.Context) (string, error)

	// --- Withdrawals ---
	ReserveWithdrawal(ctx context.Context, params ReserveWithdrawalParams) (*models.WithdrawalReservation, error)
	HasWithdrawal(ctx context.Context, hash, address, excludeReservationId string) (bool, error)
	ConfirmWithdrawal(ctx context.Context, params ConfirmWithdrawalParams) (*models.WithdrawalResult, error)
	RefundWithdrawal(ctx context.Context, reservationId, reason string) (*models.Account, error)
	GetOpenReservations(ctx context.Context, olderThan time.Time) ([]models.WithdrawalReservation, error)

	// --- History ---
	GetActionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.Action, error)
	ReconcileAccount(ctx context.Context, accountId string) error

	// --- Lifecycle ---
	Close()
}
