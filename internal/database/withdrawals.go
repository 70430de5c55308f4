/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanReservation(row rowScanner) (*models.WithdrawalReservation, error) {
	var r models.WithdrawalReservation
	var amountStr, status string
	err := row.Scan(&r.Id, &r.AccountId, &r.Address, &amountStr, &r.Hash,
		&status, &r.FailureReason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = models.ReservationStatus(status)
	r.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	return &r, nil
}

// getOpenReservation loads a reservation inside tx and requires it to still be reserved.
func getOpenReservation(ctx context.Context, tx *sql.Tx, reservationId string) (*models.WithdrawalReservation, error) {
	reservation, err := scanReservation(tx.QueryRowContext(ctx, queryGetReservation, reservationId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s not found", reservationId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation.Status != models.ReservationReserved {
		return nil, fmt.Errorf("%w: %s is %s", store.ErrReservationNotOpen, reservationId, reservation.Status)
	}
	return reservation, nil
}

func closeReservation(ctx context.Context, tx *sql.Tx, reservation *models.WithdrawalReservation, status models.ReservationStatus, reason, networkId string, now time.Time) error {
	result, err := tx.ExecContext(ctx, queryUpdateReservationStatus, string(status), reason, networkId, now, reservation.Id)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrReservationNotOpen, reservation.Id)
	}

	reservation.Status = status
	reservation.FailureReason = reason
	reservation.UpdatedAt = now
	return nil
}

// activeWithdrawal returns the id of a reservation or recorded withdrawal
// already using hash, or "" when the hash is free.
func activeWithdrawal(ctx context.Context, tx *sql.Tx, hash string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, queryCheckActiveReservation, hash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to check reservations: %w", err)
	}

	err = tx.QueryRowContext(ctx, queryCheckWithdrawalTransaction, hash).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to check withdrawal transactions: %w", err)
	}
	return "", nil
}

// ReserveWithdrawal debits the account and opens a reservation in one
// transaction. A hash already reserved or settled fails with
// ErrDuplicateSubmission before any debit.
func (s *Service) ReserveWithdrawal(ctx context.Context, params store.ReserveWithdrawalParams) (*models.WithdrawalReservation, error) {
	amount := models.RoundAmount(params.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, models.FormatAmount(amount))
	}
	if params.Hash == "" {
		return nil, fmt.Errorf("withdrawal requires a hash")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	existing, err := activeWithdrawal(ctx, tx, params.Hash)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		zap.L().Info("Withdrawal hash already in use",
			zap.String("hash", params.Hash),
			zap.String("address", params.Address),
			zap.String("existing_id", existing))
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicateSubmission, params.Hash)
	}

	account, err := getAccount(ctx, tx, queryGetAccountById, params.AccountId)
	if err != nil {
		return nil, err
	}
	if !account.CanPay(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			models.ErrInsufficientBalance, models.FormatAmount(account.Balance), models.FormatAmount(amount))
	}

	now := time.Now().UTC()
	if err := applyBalanceChange(ctx, tx, account, amount.Neg(), now); err != nil {
		return nil, err
	}

	reservation := &models.WithdrawalReservation{
		Id:        uuid.New().String(),
		AccountId: account.Id,
		Address:   params.Address,
		Amount:    amount,
		Hash:      params.Hash,
		Status:    models.ReservationReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.ExecContext(ctx, queryInsertReservation,
		reservation.Id, reservation.AccountId, reservation.Address, models.FormatAmount(amount),
		reservation.Hash, string(reservation.Status), now, now)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", models.ErrDuplicateSubmission, params.Hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal funds reserved",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", account.Id),
		zap.String("amount", models.FormatAmount(amount)),
		zap.String("address", params.Address),
		zap.String("new_balance", models.FormatAmount(account.Balance)))

	return reservation, nil
}

// HasWithdrawal reports whether hash was already submitted: either a recorded
// withdrawal transaction or another reservation still in flight.
func (s *Service) HasWithdrawal(ctx context.Context, hash, address, excludeReservationId string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, queryCheckWithdrawalTransaction, hash).Scan(&id)
	if err == nil {
		zap.L().Info("Withdrawal transaction already recorded",
			zap.String("hash", hash),
			zap.String("address", address),
			zap.String("transaction_id", id))
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check withdrawal transactions: %w", err)
	}

	err = s.db.QueryRowContext(ctx, queryCheckOpenReservation, hash, excludeReservationId).Scan(&id)
	if err == nil {
		zap.L().Info("Withdrawal already in flight",
			zap.String("hash", hash),
			zap.String("address", address),
			zap.String("reservation_id", id))
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check open reservations: %w", err)
	}

	return false, nil
}

// ConfirmWithdrawal records the accepted network payment and its action and
// closes the reservation.
func (s *Service) ConfirmWithdrawal(ctx context.Context, params store.ConfirmWithdrawalParams) (*models.WithdrawalResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	reservation, err := getOpenReservation(ctx, tx, params.ReservationId)
	if err != nil {
		return nil, err
	}

	transaction, err := models.NewWithdrawalTransaction(params.SourceAddress, reservation.Address, reservation.Amount, reservation.Hash, params.Memo)
	if err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, tx, transaction); err != nil {
		return nil, err
	}

	action, err := models.NewAction(models.ActionWithdrawal, reservation.AccountId, reservation.Amount, reservation.Hash)
	if err != nil {
		return nil, err
	}
	action.Address = reservation.Address
	if err := insertAction(ctx, tx, action); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := closeReservation(ctx, tx, reservation, models.ReservationConfirmed, "", params.NetworkId, now); err != nil {
		return nil, err
	}

	account, err := getAccount(ctx, tx, queryGetAccountById, reservation.AccountId)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal confirmed",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", reservation.AccountId),
		zap.String("hash", reservation.Hash),
		zap.String("network_id", params.NetworkId))

	return &models.WithdrawalResult{
		Account:     account,
		Transaction: transaction,
		Reservation: reservation,
		NetworkId:   params.NetworkId,
	}, nil
}

// RefundWithdrawal credits the reserved amount back and marks the reservation failed.
func (s *Service) RefundWithdrawal(ctx context.Context, reservationId, reason string) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	reservation, err := getOpenReservation(ctx, tx, reservationId)
	if err != nil {
		return nil, err
	}

	account, err := getAccount(ctx, tx, queryGetAccountById, reservation.AccountId)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := applyBalanceChange(ctx, tx, account, reservation.Amount, now); err != nil {
		return nil, err
	}
	if err := closeReservation(ctx, tx, reservation, models.ReservationFailed, reason, "", now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Withdrawal refunded",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", account.Id),
		zap.String("amount", models.FormatAmount(reservation.Amount)),
		zap.String("reason", reason),
		zap.String("new_balance", models.FormatAmount(account.Balance)))

	return account, nil
}

// GetOpenReservations lists reservations still in flight that were created at or before olderThan.
func (s *Service) GetOpenReservations(ctx context.Context, olderThan time.Time) ([]models.WithdrawalReservation, error) {
	rows, err := s.db.QueryContext(ctx, queryGetOpenReservations, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get open reservations: %w", err)
	}
	defer closeRows(rows)

	var reservations []models.WithdrawalReservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during reservation row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating reservation rows: %w", err)
	}

	return reservations, nil
}
