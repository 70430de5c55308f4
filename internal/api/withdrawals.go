package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Withdraw pays amount from account to an external address.
//
// Funds are reserved (debited) first. A hash that was already submitted, or a
// network failure, refunds the reservation atomically and returns
// ErrDuplicateSubmission, ErrSelfReference, ErrDestinationMissing or
// ErrSubmissionFailed. On success the withdrawal transaction and action are
// recorded together with the reservation confirmation.
func (s *LedgerService) Withdraw(ctx context.Context, account *models.Account, address string, amount decimal.Decimal, hash string) (*models.WithdrawalResult, error) {
	if account == nil {
		return nil, fmt.Errorf("account is required")
	}
	if hash == "" {
		return nil, fmt.Errorf("withdrawal requires a hash")
	}
	amount = models.RoundAmount(amount)

	fail := func(err error) (*models.WithdrawalResult, error) {
		zap.L().Warn("Withdrawal failed",
			zap.String("account_id", account.Id),
			zap.String("address", address),
			zap.String("amount", models.FormatAmount(amount)),
			zap.String("hash", hash),
			zap.Error(err))
		s.notify(ctx, models.Event{
			Type:    models.EventWithdrawalFailed,
			Account: account,
			Amount:  amount,
			Hash:    hash,
			Address: address,
			Err:     err,
		})
		return nil, err
	}

	if !amount.IsPositive() {
		return fail(fmt.Errorf("%w: %s", models.ErrInvalidAmount, models.FormatAmount(amount)))
	}
	if !s.validAddress(address) {
		return fail(fmt.Errorf("%w: %s", models.ErrInvalidAddress, address))
	}

	zap.L().Info("Processing withdrawal",
		zap.String("account_id", account.Id),
		zap.String("address", address),
		zap.String("amount", models.FormatAmount(amount)),
		zap.String("hash", hash))

	// Step 1: reserve funds
	reservation, err := s.db.ReserveWithdrawal(ctx, store.ReserveWithdrawalParams{
		AccountId: account.Id,
		Address:   address,
		Amount:    amount,
		Hash:      hash,
	})
	if err != nil {
		return fail(err)
	}

	// Refunds and confirmations must land even if the caller goes away
	settleCtx := context.WithoutCancel(ctx)

	// Step 2: duplicate submission check
	duplicate, err := s.db.HasWithdrawal(ctx, hash, address, reservation.Id)
	if err != nil {
		s.refund(settleCtx, account, reservation, err)
		return fail(fmt.Errorf("failed to check for duplicate withdrawal: %w", err))
	}
	if duplicate {
		dupErr := fmt.Errorf("%w: %s", models.ErrDuplicateSubmission, hash)
		s.refund(settleCtx, account, reservation, dupErr)
		return fail(dupErr)
	}

	// Step 3: submit to the settlement network. A cancelled caller must not
	// abandon a payment the network may already have accepted.
	submitted, err := s.network.SubmitPayment(settleCtx, models.PaymentRequest{
		Destination:    address,
		Amount:         amount,
		Memo:           s.withdrawalMemo,
		IdempotencyKey: hash,
	})
	if err != nil {
		if !isSettlementError(err) {
			err = fmt.Errorf("%w: %w", models.ErrSubmissionFailed, err)
		}
		s.refund(settleCtx, account, reservation, err)
		return fail(err)
	}

	// Step 4: record the confirmed payment
	result, err := s.db.ConfirmWithdrawal(settleCtx, store.ConfirmWithdrawalParams{
		ReservationId: reservation.Id,
		SourceAddress: s.network.Address(),
		Memo:          s.withdrawalMemo,
		NetworkId:     submitted.NetworkId,
	})
	if err != nil {
		// The payment left the wallet; the reservation stays open for the operator
		zap.L().Error("Withdrawal submitted but not recorded",
			zap.String("reservation_id", reservation.Id),
			zap.String("hash", hash),
			zap.String("network_id", submitted.NetworkId),
			zap.Error(err))
		return nil, fmt.Errorf("withdrawal %s submitted as %s but not recorded: %w", hash, submitted.NetworkId, err)
	}

	zap.L().Info("Withdrawal completed",
		zap.String("account_id", account.Id),
		zap.String("address", address),
		zap.String("amount", models.FormatAmount(amount)),
		zap.String("network_id", submitted.NetworkId),
		zap.String("new_balance", models.FormatAmount(result.Account.Balance)))

	s.notify(ctx, models.Event{
		Type:    models.EventWithdrawn,
		Account: result.Account,
		Amount:  amount,
		Hash:    hash,
		Address: address,
	})
	return result, nil
}

// refund releases a reservation. A failed refund leaves the reservation open,
// so the funds remain accounted for and show up in RecoverReservations.
func (s *LedgerService) refund(ctx context.Context, account *models.Account, reservation *models.WithdrawalReservation, cause error) {
	refunded, err := s.db.RefundWithdrawal(ctx, reservation.Id, models.ErrorKind(cause))
	if err != nil {
		zap.L().Error("Failed to refund withdrawal reservation",
			zap.String("reservation_id", reservation.Id),
			zap.String("account_id", reservation.AccountId),
			zap.Error(err))
		return
	}
	account.Balance = refunded.Balance
	account.Version = refunded.Version
}

func isSettlementError(err error) bool {
	return errors.Is(err, models.ErrSelfReference) ||
		errors.Is(err, models.ErrDestinationMissing) ||
		errors.Is(err, models.ErrSubmissionFailed)
}

// WithdrawToWallet withdraws to the wallet address registered on the account.
func (s *LedgerService) WithdrawToWallet(ctx context.Context, adapterName, externalId string, amount decimal.Decimal, hash string) (*models.WithdrawalResult, error) {
	account, err := s.GetOrCreateAccount(ctx, adapterName, externalId)
	if err != nil {
		return nil, err
	}
	if account.WalletAddress == "" {
		return nil, fmt.Errorf("%w: no wallet registered for %s/%s", models.ErrInvalidAddress, adapterName, externalId)
	}
	return s.Withdraw(ctx, account, account.WalletAddress, amount, hash)
}

// RecoverReservations lists withdrawals still reserved after age, which is
// what a crash between submission and confirmation leaves behind.
func (s *LedgerService) RecoverReservations(ctx context.Context, age time.Duration) ([]models.WithdrawalReservation, error) {
	return s.db.GetOpenReservations(ctx, time.Now().Add(-age))
}

// ResolveReservation settles a reservation left open by a crash. With a
// networkId the withdrawal is recorded as submitted; without one it is refunded.
func (s *LedgerService) ResolveReservation(ctx context.Context, reservationId, networkId string) error {
	if networkId != "" {
		_, err := s.db.ConfirmWithdrawal(ctx, store.ConfirmWithdrawalParams{
			ReservationId: reservationId,
			SourceAddress: s.network.Address(),
			Memo:          s.withdrawalMemo,
			NetworkId:     networkId,
		})
		return err
	}

	_, err := s.db.RefundWithdrawal(ctx, reservationId, "resolved_by_operator")
	return err
}
