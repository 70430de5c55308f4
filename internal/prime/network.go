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

package prime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/network"

	"github.com/google/uuid"
	"github.com/stellar/go/strkey"
	"go.uber.org/zap"
)

var _ network.Network = (*Service)(nil)

// Deposit statuses after which funds are spendable in the wallet
var settledDepositStatuses = map[string]bool{
	"TRANSACTION_IMPORTED": true,
	"TRANSACTION_DONE":     true,
}

func (s *Service) Address() string {
	return s.depositAddress
}

func (s *Service) ValidateAddress(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// SubmitPayment creates a Prime withdrawal. The idempotency key is derived
// from the request key so a retried submission maps to the same activity.
func (s *Service) SubmitPayment(ctx context.Context, request models.PaymentRequest) (*models.SubmitResult, error) {
	if request.Destination == s.depositAddress {
		return nil, models.ErrSelfReference
	}
	if !s.ValidateAddress(request.Destination) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAddress, request.Destination)
	}

	withdrawal, err := s.CreateWithdrawal(ctx,
		request.Destination,
		request.Memo,
		models.FormatAmount(request.Amount),
		idempotencyKey(request.IdempotencyKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSubmissionFailed, err)
	}

	return &models.SubmitResult{NetworkId: withdrawal.ActivityId}, nil
}

func idempotencyKey(key string) string {
	if key == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// StreamPayments polls the wallet for settled deposits created at or after
// the cursor, an RFC 3339 timestamp. An empty cursor starts from now.
func (s *Service) StreamPayments(ctx context.Context, cursor string, handler network.PaymentHandler) error {
	since := time.Now().UTC()
	if cursor != "" {
		// Cursors written by another backend are not timestamps
		if parsed, err := time.Parse(time.RFC3339Nano, cursor); err == nil {
			since = parsed
		} else {
			zap.L().Warn("Ignoring non-timestamp cursor, polling from now",
				zap.String("cursor", cursor))
		}
	}

	seen := make(map[string]bool)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		txs, err := s.ListWalletTransactions(ctx, since)
		if err != nil {
			return err
		}

		since, err = s.deliver(ctx, txs, since, seen, handler)
		if err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// deliver hands settled deposits to handler in creation order and returns the
// advanced cursor. The cursor never moves past a deposit that is still
// settling, so it is fetched again once it completes.
func (s *Service) deliver(ctx context.Context, txs []models.PrimeTransaction, since time.Time, seen map[string]bool, handler network.PaymentHandler) (time.Time, error) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})

	var pending *time.Time
	for _, tx := range txs {
		if seen[tx.Id] || tx.Type != "DEPOSIT" {
			continue
		}
		if !settledDepositStatuses[tx.Status] {
			zap.L().Debug("Skipping unsettled deposit",
				zap.String("transaction_id", tx.Id),
				zap.String("status", tx.Status))
			if pending == nil {
				createdAt := tx.CreatedAt
				pending = &createdAt
			}
			continue
		}

		payment, err := s.toPayment(tx)
		if err != nil {
			zap.L().Warn("Skipping malformed Prime deposit",
				zap.String("transaction_id", tx.Id),
				zap.Error(err))
			seen[tx.Id] = true
			continue
		}

		if err := handler(ctx, payment); err != nil {
			return since, err
		}
		seen[tx.Id] = true
		if pending == nil && tx.CreatedAt.After(since) {
			since = tx.CreatedAt
		}
	}
	return since, nil
}

func (s *Service) toPayment(tx models.PrimeTransaction) (models.Payment, error) {
	amount, err := models.ParseAmount(tx.Amount)
	if err != nil {
		return models.Payment{}, err
	}

	from := tx.TransferFrom.Address
	if from == "" {
		from = tx.TransferFrom.Value
	}

	assetType := "custodial"
	if tx.Symbol == xlmSymbol {
		assetType = models.NativeAsset
	}

	// The blockchain hash identifies the deposit across both backends
	hash := tx.TransactionId
	if hash == "" {
		hash = tx.Id
	}

	return models.Payment{
		Id:        tx.Id,
		From:      from,
		To:        s.depositAddress,
		Amount:    amount,
		AssetType: assetType,
		AssetCode: tx.Symbol,
		Memo:      tx.TransferTo.AccountIdentifier,
		Hash:      hash,
		Cursor:    tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedAt: tx.CreatedAt,
	}, nil
}
