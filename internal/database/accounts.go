package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var balanceStr, openingStr string
	var wallet sql.NullString

	err := row.Scan(&account.Id, &account.AdapterName, &account.ExternalId,
		&balanceStr, &openingStr, &wallet, &account.Version,
		&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	account.OpeningBalance, err = decimal.NewFromString(openingStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse opening balance '%s': %w", openingStr, err)
	}
	account.WalletAddress = wallet.String

	return &account, nil
}

func getAccount(ctx context.Context, q queryRower, query string, args ...any) (*models.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetOrCreateAccount returns the account for (adapterName, externalId),
// creating it with defaults when it does not exist yet.
func (s *Service) GetOrCreateAccount(ctx context.Context, adapterName, externalId string, defaults *models.AccountDefaults) (*models.Account, error) {
	existing, err := s.FindAccount(ctx, adapterName, externalId)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	account, err := models.NewAccount(adapterName, externalId, defaults)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, queryInsertAccount,
		account.Id, account.AdapterName, account.ExternalId,
		models.FormatAmount(account.Balance), models.FormatAmount(account.OpeningBalance),
		nullString(account.WalletAddress), account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}

		// Another writer created the account first
		winner, findErr := s.FindAccount(ctx, adapterName, externalId)
		if findErr == nil {
			zap.L().Debug("Account created concurrently, using existing row",
				zap.String("adapter", adapterName),
				zap.String("external_id", externalId),
				zap.String("account_id", winner.Id))
			return winner, nil
		}
		if account.WalletAddress != "" {
			return nil, fmt.Errorf("%w: %s", models.ErrAddressInUse, account.WalletAddress)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	zap.L().Info("Account created",
		zap.String("account_id", account.Id),
		zap.String("adapter", adapterName),
		zap.String("external_id", externalId),
		zap.String("opening_balance", models.FormatAmount(account.OpeningBalance)))

	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	return getAccount(ctx, s.db, queryGetAccountById, accountId)
}

func (s *Service) FindAccount(ctx context.Context, adapterName, externalId string) (*models.Account, error) {
	return getAccount(ctx, s.db, queryGetAccountByExternalId, adapterName, externalId)
}

func (s *Service) FindAccountByWallet(ctx context.Context, address string) (*models.Account, error) {
	return getAccount(ctx, s.db, queryGetAccountByWallet, address)
}

// GetAccounts lists accounts of one adapter, or all accounts when adapterName is empty.
func (s *Service) GetAccounts(ctx context.Context, adapterName string) ([]models.Account, error) {
	var rows *sql.Rows
	var err error
	if adapterName == "" {
		rows, err = s.db.QueryContext(ctx, queryGetAccounts)
	} else {
		rows, err = s.db.QueryContext(ctx, queryGetAccountsByAdapter, adapterName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during account row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// SetWalletAddress registers the external withdrawal address of an account.
func (s *Service) SetWalletAddress(ctx context.Context, accountId, address string) (*models.Account, error) {
	if !models.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAddress, address)
	}

	result, err := s.db.ExecContext(ctx, queryUpdateWalletAddress, address, time.Now().UTC(), accountId)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrAddressInUse, address)
		}
		return nil, fmt.Errorf("failed to update wallet address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, store.ErrAccountNotFound
	}

	zap.L().Info("Wallet address registered",
		zap.String("account_id", accountId),
		zap.String("wallet_address", address))

	return s.GetAccount(ctx, accountId)
}

// CanPay reports whether the stored balance of accountId covers amount.
func (s *Service) CanPay(ctx context.Context, accountId string, amount decimal.Decimal) (bool, error) {
	account, err := s.GetAccount(ctx, accountId)
	if err != nil {
		return false, err
	}
	return account.CanPay(amount), nil
}

// applyBalanceChange adds delta to the account inside tx, guarded by the
// account version read in the same transaction.
func applyBalanceChange(ctx context.Context, tx *sql.Tx, account *models.Account, delta decimal.Decimal, now time.Time) error {
	newBalance := models.RoundAmount(account.Balance.Add(delta))
	if newBalance.IsNegative() {
		return fmt.Errorf("%w: balance %s, requested %s",
			models.ErrInsufficientBalance, models.FormatAmount(account.Balance), models.FormatAmount(delta.Neg()))
	}

	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance, models.FormatAmount(newBalance), now, account.Id, account.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = now
	return nil
}
