package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// handlePayment records and credits one streamed payment. Errors returned
// here are storage failures; the stream is reopened from the stored cursor.
func (d *DepositListener) handlePayment(ctx context.Context, payment models.Payment) error {
	if d.isProcessed(payment.Hash) {
		return nil
	}

	if payment.To != d.network.Address() {
		zap.L().Debug("Ignoring payment not addressed to the service wallet",
			zap.String("hash", payment.Hash),
			zap.String("from", payment.From),
			zap.String("to", payment.To))
		return nil
	}

	if !payment.IsNative() {
		d.apiService.ReportUnsupportedAsset(ctx, payment)
		d.markProcessed(payment.Hash)
		printLine(colorYellow, "~", payment.Hash, payment.AssetCode, "unsupported asset")
		return nil
	}

	deposit, err := models.NewDepositTransaction(payment)
	if err != nil {
		zap.L().Warn("Skipping invalid deposit",
			zap.String("hash", payment.Hash),
			zap.Error(err))
		d.markProcessed(payment.Hash)
		return nil
	}

	err = d.dbService.InsertDeposit(ctx, deposit)
	if errors.Is(err, store.ErrDuplicateTransaction) {
		stored, loadErr := d.dbService.GetTransactionByHash(ctx, payment.Hash)
		if loadErr != nil {
			return fmt.Errorf("failed to load stored deposit: %w", loadErr)
		}
		if stored == nil || stored.Type != models.TransactionDeposit || stored.Credited {
			d.markProcessed(payment.Hash)
			return nil
		}
		zap.L().Info("Resuming uncredited deposit",
			zap.String("hash", stored.Hash))
		deposit = stored
	} else if err != nil {
		return fmt.Errorf("failed to record deposit: %w", err)
	}

	if err := d.creditDeposit(ctx, deposit, true); err != nil {
		return err
	}
	d.markProcessed(payment.Hash)
	return nil
}

// creditDeposit routes a stored deposit by its memo. Unroutable deposits stay
// uncredited; they are reported only when reportUnroutable is set.
func (d *DepositListener) creditDeposit(ctx context.Context, deposit *models.Transaction, reportUnroutable bool) error {
	routing, err := d.route(deposit.Memo)
	if err != nil {
		if reportUnroutable {
			d.apiService.ReportUnroutableDeposit(ctx, deposit, err)
			printLine(colorRed, "✗", deposit.Hash, models.FormatAmount(deposit.Amount), err.Error())
		}
		return nil
	}

	result, err := d.apiService.CreditDeposit(ctx, deposit, routing)
	if err != nil {
		return fmt.Errorf("failed to credit deposit %s: %w", deposit.Hash, err)
	}

	if result.Credited {
		printLine(colorGreen, "✓", deposit.Hash, models.FormatAmount(deposit.Amount),
			fmt.Sprintf("%s/%s", routing.AdapterName, routing.ExternalId))
	}
	return nil
}

func (d *DepositListener) route(memo string) (*models.Routing, error) {
	routing, err := models.ParseRoutingMemo(memo)
	if err != nil {
		return nil, err
	}
	if d.adapters != nil && !d.adapters[routing.AdapterName] {
		return nil, fmt.Errorf("%w: unknown adapter %q", models.ErrMalformedRoutingInfo, routing.AdapterName)
	}
	return routing, nil
}

// sweepUncredited retries stored deposits that were never credited.
func (d *DepositListener) sweepUncredited(ctx context.Context) int {
	deposits, err := d.dbService.GetUncreditedDeposits(ctx, sweepBatchSize)
	if err != nil {
		zap.L().Error("Failed to load uncredited deposits", zap.Error(err))
		return 0
	}

	credited := 0
	for i := range deposits {
		deposit := &deposits[i]
		if _, err := d.route(deposit.Memo); err != nil {
			continue
		}
		if err := d.creditDeposit(ctx, deposit, false); err != nil {
			zap.L().Error("Failed to credit deposit during sweep",
				zap.String("hash", deposit.Hash),
				zap.Error(err))
			continue
		}
		d.markProcessed(deposit.Hash)
		credited++
	}

	if credited > 0 {
		zap.L().Info("Swept uncredited deposits", zap.Int("credited", credited))
	}
	return credited
}

// performStartupRecovery credits deposits stored before a crash and reports
// withdrawals whose outcome was never recorded.
func (d *DepositListener) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	if _, err := d.dbService.LatestDepositCursor(ctx); err != nil {
		return fmt.Errorf("failed to read deposit cursor: %w", err)
	}

	recovered := d.sweepUncredited(ctx)
	stale := d.reportStaleReservations(ctx)

	zap.L().Info("Startup recovery completed",
		zap.Int("deposits_recovered", recovered),
		zap.Int("open_reservations", stale))
	return nil
}

// reportStaleReservations warns about withdrawals stuck between reservation
// and confirmation. Their outcome must be resolved by an operator.
func (d *DepositListener) reportStaleReservations(ctx context.Context) int {
	reservations, err := d.apiService.RecoverReservations(ctx, d.reservationAlertAge)
	if err != nil {
		zap.L().Error("Failed to list open reservations", zap.Error(err))
		return 0
	}

	for _, r := range reservations {
		zap.L().Warn("Withdrawal reservation awaiting resolution",
			zap.String("reservation_id", r.Id),
			zap.String("account_id", r.AccountId),
			zap.String("address", r.Address),
			zap.String("amount", models.FormatAmount(r.Amount)),
			zap.String("hash", r.Hash),
			zap.Duration("age", time.Since(r.CreatedAt)))
	}
	return len(reservations)
}

func printLine(color, symbol, hash, amount, detail string) {
	short := hash
	if len(short) > 12 {
		short = short[:12] + "..."
	}
	fmt.Printf("  %s%s [%s] %s XLM | %s | %s%s\n",
		color, symbol, time.Now().Format("15:04:05"), amount, short, detail, colorReset)
}
