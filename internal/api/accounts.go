package api

import (
	"context"
	"fmt"

	"stellar-tipbot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetOrCreateAccount returns the account of an adapter user, creating an empty one if needed.
func (s *LedgerService) GetOrCreateAccount(ctx context.Context, adapterName, externalId string) (*models.Account, error) {
	if adapterName == "" || externalId == "" {
		return nil, fmt.Errorf("adapter name and external id are required")
	}
	return s.db.GetOrCreateAccount(ctx, adapterName, externalId, nil)
}

// BalanceOf reads the committed balance of account, ignoring the copy the
// caller holds.
func (s *LedgerService) BalanceOf(ctx context.Context, account *models.Account) (decimal.Decimal, error) {
	if account == nil {
		return decimal.Zero, fmt.Errorf("account is required")
	}
	current, err := s.db.GetAccount(ctx, account.Id)
	if err != nil {
		return decimal.Zero, err
	}
	return current.Balance, nil
}

// RequestBalance returns the account of an adapter user and emits a
// balance_requested event so the adapter can reply.
func (s *LedgerService) RequestBalance(ctx context.Context, adapterName, externalId string) (*models.Account, error) {
	account, err := s.GetOrCreateAccount(ctx, adapterName, externalId)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Balance requested",
		zap.String("account_id", account.Id),
		zap.String("adapter", adapterName),
		zap.String("balance", models.FormatAmount(account.Balance)))

	s.notify(ctx, models.Event{
		Type:    models.EventBalanceRequested,
		Account: account,
		Amount:  account.Balance,
	})
	return account, nil
}

// RegisterWallet stores the withdrawal address of an adapter user.
func (s *LedgerService) RegisterWallet(ctx context.Context, adapterName, externalId, address string) (*models.Account, error) {
	if !s.validAddress(address) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAddress, address)
	}

	account, err := s.GetOrCreateAccount(ctx, adapterName, externalId)
	if err != nil {
		return nil, err
	}
	return s.db.SetWalletAddress(ctx, account.Id, address)
}

// GetHistory returns the most recent movements of an account.
func (s *LedgerService) GetHistory(ctx context.Context, accountId string, limit, offset int) ([]models.ActionRecord, error) {
	actions, err := s.db.GetActionHistory(ctx, accountId, limit, offset)
	if err != nil {
		return nil, err
	}

	records := make([]models.ActionRecord, 0, len(actions))
	for _, a := range actions {
		amount := a.Amount
		// Outgoing movements are shown as negative amounts
		if a.Type == models.ActionWithdrawal || (a.Type == models.ActionTransfer && a.SourceAccountId == accountId) {
			amount = amount.Neg()
		}
		records = append(records, models.ActionRecord{
			Id:        a.Id,
			Type:      string(a.Type),
			Amount:    amount,
			Hash:      a.Hash,
			Target:    a.TargetAccountId,
			Address:   a.Address,
			CreatedAt: a.CreatedAt,
		})
	}
	return records, nil
}

func (s *LedgerService) validAddress(address string) bool {
	if s.network != nil {
		return s.network.ValidateAddress(address)
	}
	return models.IsValidAddress(address)
}
