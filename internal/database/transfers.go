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
	"fmt"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"go.uber.org/zap"
)

// Transfer atomically debits the source, credits the target and records the
// transfer action. A repeated hash for the same source fails with
// ErrDuplicateAction and changes nothing.
func (s *Service) Transfer(ctx context.Context, params store.TransferParams) (*models.TransferResult, error) {
	amount := models.RoundAmount(params.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, models.FormatAmount(amount))
	}
	if params.SourceId == params.TargetId {
		return nil, models.ErrSelfReference
	}

	zap.L().Info("Processing transfer",
		zap.String("source_account_id", params.SourceId),
		zap.String("target_account_id", params.TargetId),
		zap.String("amount", models.FormatAmount(amount)),
		zap.String("hash", params.Hash))

	action, err := models.NewAction(models.ActionTransfer, params.SourceId, amount, params.Hash)
	if err != nil {
		return nil, err
	}
	action.TargetAccountId = params.TargetId

	// Start database transaction for atomicity
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	exists, err := actionExists(ctx, tx, params.SourceId, models.ActionTransfer, params.Hash)
	if err != nil {
		return nil, err
	}
	if exists {
		zap.L().Warn("Duplicate transfer detected, skipping",
			zap.String("source_account_id", params.SourceId),
			zap.String("hash", params.Hash))
		return nil, fmt.Errorf("%w: transfer %s from %s", store.ErrDuplicateAction, params.Hash, params.SourceId)
	}

	source, err := getAccount(ctx, tx, queryGetAccountById, params.SourceId)
	if err != nil {
		return nil, fmt.Errorf("source account: %w", err)
	}
	target, err := getAccount(ctx, tx, queryGetAccountById, params.TargetId)
	if err != nil {
		return nil, fmt.Errorf("target account: %w", err)
	}

	if !source.CanPay(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			models.ErrInsufficientBalance, models.FormatAmount(source.Balance), models.FormatAmount(amount))
	}

	now := time.Now().UTC()
	if err := applyBalanceChange(ctx, tx, source, amount.Neg(), now); err != nil {
		return nil, err
	}
	if err := applyBalanceChange(ctx, tx, target, amount, now); err != nil {
		return nil, err
	}

	action.CreatedAt = now
	if err := insertAction(ctx, tx, action); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Transfer committed",
		zap.String("source_account_id", source.Id),
		zap.String("target_account_id", target.Id),
		zap.String("amount", models.FormatAmount(amount)),
		zap.String("source_balance", models.FormatAmount(source.Balance)),
		zap.String("target_balance", models.FormatAmount(target.Balance)))

	return &models.TransferResult{
		Source: source,
		Target: target,
		Amount: amount,
		Hash:   params.Hash,
	}, nil
}
