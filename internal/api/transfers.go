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

package api

import (
	"context"
	"errors"
	"fmt"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transfer moves amount from source to target. It fails with
// ErrInsufficientBalance or ErrSelfReference before touching storage, and
// with ErrDuplicateAction when hash was already used by source.
func (s *LedgerService) Transfer(ctx context.Context, source, target *models.Account, amount decimal.Decimal, hash string) (*models.TransferResult, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("source and target accounts are required")
	}
	amount = models.RoundAmount(amount)

	fail := func(err error) (*models.TransferResult, error) {
		// Retries are absorbed without notifying the adapter a second time
		if errors.Is(err, store.ErrDuplicateAction) {
			zap.L().Info("Duplicate transfer absorbed",
				zap.String("source_account_id", source.Id),
				zap.String("hash", hash))
			return nil, err
		}

		zap.L().Warn("Transfer rejected",
			zap.String("source_account_id", source.Id),
			zap.String("target_account_id", target.Id),
			zap.String("amount", models.FormatAmount(amount)),
			zap.String("hash", hash),
			zap.Error(err))
		s.notify(ctx, models.Event{
			Type:    models.EventTransferFailed,
			Account: source,
			Target:  target,
			Amount:  amount,
			Hash:    hash,
			Err:     err,
		})
		return nil, err
	}

	if !amount.IsPositive() {
		return fail(fmt.Errorf("%w: %s", models.ErrInvalidAmount, models.FormatAmount(amount)))
	}
	if hash == "" {
		return nil, fmt.Errorf("transfer requires a hash")
	}
	if !source.CanPay(amount) {
		return fail(fmt.Errorf("%w: balance %s, requested %s",
			models.ErrInsufficientBalance, models.FormatAmount(source.Balance), models.FormatAmount(amount)))
	}
	if source.Id == target.Id {
		return fail(models.ErrSelfReference)
	}

	result, err := s.db.Transfer(ctx, store.TransferParams{
		SourceId: source.Id,
		TargetId: target.Id,
		Amount:   amount,
		Hash:     hash,
	})
	if err != nil {
		return fail(err)
	}

	s.notify(ctx, models.Event{
		Type:    models.EventTransferred,
		Account: result.Source,
		Target:  result.Target,
		Amount:  result.Amount,
		Hash:    hash,
	})
	return result, nil
}

// Tip resolves both adapter users and transfers between them.
func (s *LedgerService) Tip(ctx context.Context, adapterName, fromExternalId, toExternalId string, amount decimal.Decimal, hash string) (*models.TransferResult, error) {
	source, err := s.GetOrCreateAccount(ctx, adapterName, fromExternalId)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source account: %w", err)
	}
	target, err := s.GetOrCreateAccount(ctx, adapterName, toExternalId)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target account: %w", err)
	}
	return s.Transfer(ctx, source, target, amount, hash)
}
