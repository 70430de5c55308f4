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

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, amountStr string
	err := row.Scan(&t.Id, &txType, &t.Source, &t.Target, &amountStr, &t.Asset,
		&t.Memo, &t.Hash, &t.Cursor, &t.Credited, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.Type = models.TransactionType(txType)
	t.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	return &t, nil
}

func insertTransaction(ctx context.Context, exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, t *models.Transaction) error {
	_, err := exec.ExecContext(ctx, queryInsertTransaction,
		t.Id, string(t.Type), t.Source, t.Target, models.FormatAmount(t.Amount), t.Asset,
		t.Memo, t.Hash, t.Cursor, t.Credited, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: hash %s already exists", store.ErrDuplicateTransaction, t.Hash)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// InsertDeposit records an observed inbound payment. A hash seen before
// returns ErrDuplicateTransaction.
func (s *Service) InsertDeposit(ctx context.Context, t *models.Transaction) error {
	if t.Type != models.TransactionDeposit {
		return fmt.Errorf("expected deposit transaction, got %q", t.Type)
	}

	if err := insertTransaction(ctx, s.db, t); err != nil {
		return err
	}

	zap.L().Info("Deposit recorded",
		zap.String("hash", t.Hash),
		zap.String("from", t.Source),
		zap.String("amount", models.FormatAmount(t.Amount)),
		zap.String("memo", t.Memo),
		zap.String("cursor", t.Cursor))
	return nil
}

// CreditDeposit applies a recorded deposit to an account. The balance change,
// the deposit action and the credited flag are written in one transaction;
// if the action already exists only the flag is set.
func (s *Service) CreditDeposit(ctx context.Context, params store.CreditDepositParams) (*models.DepositResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	deposit, err := scanTransaction(tx.QueryRowContext(ctx, queryGetTransactionByHash, params.Hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no deposit recorded for hash %s", params.Hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}
	if deposit.Type != models.TransactionDeposit {
		return nil, fmt.Errorf("transaction %s is a %s, not a deposit", params.Hash, deposit.Type)
	}

	account, err := getAccount(ctx, tx, queryGetAccountById, params.AccountId)
	if err != nil {
		return nil, err
	}

	exists, err := actionExists(ctx, tx, account.Id, models.ActionDeposit, deposit.Hash)
	if err != nil {
		return nil, err
	}

	credited := false
	if !exists {
		action, err := models.NewAction(models.ActionDeposit, account.Id, deposit.Amount, deposit.Hash)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		if err := applyBalanceChange(ctx, tx, account, deposit.Amount, now); err != nil {
			return nil, err
		}
		action.CreatedAt = now
		if err := insertAction(ctx, tx, action); err != nil {
			return nil, err
		}
		credited = true
	}

	if _, err := tx.ExecContext(ctx, queryMarkTransactionCredited, deposit.Hash); err != nil {
		return nil, fmt.Errorf("failed to mark deposit credited: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	deposit.Credited = true

	if credited {
		zap.L().Info("Deposit credited",
			zap.String("account_id", account.Id),
			zap.String("hash", deposit.Hash),
			zap.String("amount", models.FormatAmount(deposit.Amount)),
			zap.String("new_balance", models.FormatAmount(account.Balance)))
	} else {
		zap.L().Info("Deposit already applied, marked credited",
			zap.String("account_id", account.Id),
			zap.String("hash", deposit.Hash))
	}

	return &models.DepositResult{
		Account:     account,
		Transaction: deposit,
		Amount:      deposit.Amount,
		NewBalance:  account.Balance,
		Credited:    credited,
	}, nil
}

func (s *Service) GetTransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByHash, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// GetUncreditedDeposits returns the oldest deposits not yet applied to an account.
func (s *Service) GetUncreditedDeposits(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUncreditedDeposits, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get uncredited deposits: %w", err)
	}
	defer closeRows(rows)

	var deposits []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		deposits = append(deposits, *t)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return deposits, nil
}

// LatestDepositCursor returns the stream cursor of the newest recorded
// deposit, or "" when none exists.
func (s *Service) LatestDepositCursor(ctx context.Context) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, queryGetLatestDepositCursor).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest deposit cursor: %w", err)
	}
	return cursor, nil
}
