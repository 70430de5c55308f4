package api

import (
	"context"
	"fmt"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"go.uber.org/zap"
)

// CreditDeposit applies a recorded deposit to the account named by routing.
// Crediting the same deposit twice is a no-op and emits no event.
func (s *LedgerService) CreditDeposit(ctx context.Context, deposit *models.Transaction, routing *models.Routing) (*models.DepositResult, error) {
	if deposit == nil || routing == nil {
		return nil, fmt.Errorf("deposit and routing are required")
	}

	account, err := s.GetOrCreateAccount(ctx, routing.AdapterName, routing.ExternalId)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deposit account: %w", err)
	}

	result, err := s.db.CreditDeposit(ctx, store.CreditDepositParams{
		Hash:      deposit.Hash,
		AccountId: account.Id,
	})
	if err != nil {
		zap.L().Error("Deposit crediting failed",
			zap.String("hash", deposit.Hash),
			zap.String("account_id", account.Id),
			zap.Error(err))
		return nil, err
	}

	if result.Credited {
		s.notify(ctx, models.Event{
			Type:    models.EventDeposited,
			Account: result.Account,
			Amount:  result.Amount,
			Hash:    deposit.Hash,
			Address: deposit.Source,
		})
	}

	return result, nil
}

// ReportUnroutableDeposit notifies that a deposit could not be matched to an account.
func (s *LedgerService) ReportUnroutableDeposit(ctx context.Context, deposit *models.Transaction, err error) {
	zap.L().Warn("Deposit left uncredited",
		zap.String("hash", deposit.Hash),
		zap.String("memo", deposit.Memo),
		zap.String("amount", models.FormatAmount(deposit.Amount)),
		zap.Error(err))

	s.notify(ctx, models.Event{
		Type:    models.EventDepositUnroutable,
		Amount:  deposit.Amount,
		Hash:    deposit.Hash,
		Address: deposit.Source,
		Err:     err,
	})
}

// ReportUnsupportedAsset notifies that a non-native payment reached the service wallet.
func (s *LedgerService) ReportUnsupportedAsset(ctx context.Context, payment models.Payment) {
	err := fmt.Errorf("%w: %s %s", models.ErrUnsupportedAsset, payment.AssetType, payment.AssetCode)
	zap.L().Warn("Non-native asset received",
		zap.String("hash", payment.Hash),
		zap.String("asset_type", payment.AssetType),
		zap.String("asset_code", payment.AssetCode),
		zap.String("from", payment.From))

	s.notify(ctx, models.Event{
		Type:    models.EventUnsupportedAsset,
		Amount:  payment.Amount,
		Hash:    payment.Hash,
		Address: payment.From,
		Err:     err,
	})
}
