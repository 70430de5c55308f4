package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stellar-tipbot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// actionExists checks the idempotency log inside tx.
func actionExists(ctx context.Context, tx *sql.Tx, sourceAccountId string, actionType models.ActionType, hash string) (bool, error) {
	var existingId string
	err := tx.QueryRowContext(ctx, queryCheckDuplicateAction, sourceAccountId, string(actionType), hash).Scan(&existingId)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check for duplicate action: %w", err)
}

func insertAction(ctx context.Context, tx *sql.Tx, action *models.Action) error {
	_, err := tx.ExecContext(ctx, queryInsertAction,
		action.Id, string(action.Type), models.FormatAmount(action.Amount), action.Hash,
		action.SourceAccountId, action.TargetAccountId, action.Address, action.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s for account %s", models.ErrDuplicateAction, action.Type, action.Hash, action.SourceAccountId)
		}
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

// GetActionHistory returns paginated actions where the account is source or target, newest first.
func (s *Service) GetActionHistory(ctx context.Context, accountId string, limit, offset int) ([]models.Action, error) {
	zap.L().Debug("Getting action history",
		zap.String("account_id", accountId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetActionHistory, accountId, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get action history: %w", err)
	}
	defer closeRows(rows)

	var actions []models.Action
	for rows.Next() {
		var action models.Action
		var actionType, amountStr string
		err := rows.Scan(&action.Id, &actionType, &amountStr, &action.Hash,
			&action.SourceAccountId, &action.TargetAccountId, &action.Address, &action.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		action.Type = models.ActionType(actionType)
		action.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during action row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating action rows: %w", err)
	}

	return actions, nil
}

// ReconcileAccount recomputes the balance from the opening balance, the action
// log and open withdrawal reservations, and fails on mismatch.
func (s *Service) ReconcileAccount(ctx context.Context, accountId string) error {
	account, err := s.GetAccount(ctx, accountId)
	if err != nil {
		return err
	}

	movements, err := s.sumActions(ctx, accountId)
	if err != nil {
		return err
	}
	held, err := s.sumOpenReservations(ctx, accountId)
	if err != nil {
		return err
	}

	calculated := account.OpeningBalance.Add(movements).Sub(held)
	if !calculated.Equal(account.Balance) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.String("stored_balance", models.FormatAmount(account.Balance)),
			zap.String("calculated_balance", models.FormatAmount(calculated)))
		return fmt.Errorf("balance mismatch for account %s: stored %s, calculated %s",
			accountId, models.FormatAmount(account.Balance), models.FormatAmount(calculated))
	}

	zap.L().Debug("Balance reconciled",
		zap.String("account_id", accountId),
		zap.String("balance", models.FormatAmount(account.Balance)),
		zap.String("held", models.FormatAmount(held)))
	return nil
}

// sumActions returns the net movement of all committed actions for an account.
func (s *Service) sumActions(ctx context.Context, accountId string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, queryGetActionsForReconcile, accountId, accountId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load actions: %w", err)
	}
	defer closeRows(rows)

	net := decimal.Zero
	for rows.Next() {
		var actionType, amountStr, sourceId, targetId string
		if err := rows.Scan(&actionType, &amountStr, &sourceId, &targetId); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan action: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}

		switch models.ActionType(actionType) {
		case models.ActionDeposit:
			net = net.Add(amount)
		case models.ActionWithdrawal:
			net = net.Sub(amount)
		case models.ActionTransfer:
			if sourceId == accountId {
				net = net.Sub(amount)
			}
			if targetId == accountId {
				net = net.Add(amount)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating action rows: %w", err)
	}

	return net, nil
}

// sumOpenReservations returns the funds held by withdrawals still in flight.
func (s *Service) sumOpenReservations(ctx context.Context, accountId string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, queryGetOpenReservationsForAccount, accountId)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load open reservations: %w", err)
	}
	defer closeRows(rows)

	held := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan reservation: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		held = held.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating reservation rows: %w", err)
	}

	return held, nil
}
