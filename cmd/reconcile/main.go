package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/common"
	"stellar-tipbot-go/internal/config"
	"stellar-tipbot-go/internal/database"
	"stellar-tipbot-go/internal/formance"
	"stellar-tipbot-go/internal/models"

	"go.uber.org/zap"
)

type reconcileStats struct {
	accounts         int
	mismatched       int
	mirrorMismatched int
	openReservations int
}

// reconcileAccounts checks every stored balance against its action history
// and, when a mirror is given, against the mirrored Formance balance.
func reconcileAccounts(ctx context.Context, dbService *database.Service, mirror *formance.Mirror, stats *reconcileStats) error {
	accounts, err := dbService.GetAccounts(ctx, "")
	if err != nil {
		return err
	}

	for _, account := range accounts {
		stats.accounts++
		if err := dbService.ReconcileAccount(ctx, account.Id); err != nil {
			stats.mismatched++
			fmt.Printf("%s %s/%s: %v\n", common.BoxPrefix(false), account.AdapterName, account.ExternalId, err)
		}

		if mirror == nil {
			continue
		}
		mirrored, err := mirror.Balance(ctx, account.Id)
		if err != nil {
			zap.L().Warn("Unable to read mirrored balance",
				zap.String("account_id", account.Id),
				zap.Error(err))
			continue
		}
		// Opening balances are not posted to the mirror
		expected := account.Balance.Sub(account.OpeningBalance)
		if !mirrored.Equal(expected) {
			stats.mirrorMismatched++
			fmt.Printf("%s %s/%s: formance %s, local movements %s\n",
				common.BoxPrefix(false), account.AdapterName, account.ExternalId,
				models.FormatAmount(mirrored), models.FormatAmount(expected))
		}
	}
	return nil
}

func printOpenReservations(ctx context.Context, dbService *database.Service, age time.Duration, stats *reconcileStats) error {
	reservations, err := dbService.GetOpenReservations(ctx, time.Now().Add(-age))
	if err != nil {
		return err
	}
	stats.openReservations = len(reservations)

	if len(reservations) == 0 {
		return nil
	}

	common.PrintHeader(fmt.Sprintf("OPEN WITHDRAWAL RESERVATIONS (older than %s)", age), common.DefaultWidth)
	for i, r := range reservations {
		isLast := i == len(reservations)-1
		fmt.Printf("%s %s  %s -> %s\n", common.BoxPrefix(isLast), r.Id, common.FormatXLM(r.Amount), r.Address)
		fmt.Printf("%s    account %s, hash %s, reserved %s\n",
			common.BoxDetailPrefix(isLast), r.AccountId, r.Hash, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\nCheck each payment on the network, then run with --resolve <id> [--network-id <hash>].")
	return nil
}

func resolve(ctx context.Context, cfg *models.Config, reservationId, networkId string) error {
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	if err := services.ApiService.ResolveReservation(ctx, reservationId, networkId); err != nil {
		return err
	}

	outcome := "refunded"
	if networkId != "" {
		outcome = "confirmed as " + networkId
	}
	fmt.Printf("✅ Reservation %s %s\n", reservationId, outcome)
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	resolveFlag := flag.String("resolve", "", "Reservation id to settle by hand")
	networkIdFlag := flag.String("network-id", "", "With --resolve: network transaction id of the payment that went out; omit to refund")
	ageFlag := flag.Duration("age", time.Minute, "Only list reservations open longer than this")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	if *resolveFlag != "" {
		if err := resolve(ctx, cfg, *resolveFlag, *networkIdFlag); err != nil {
			zap.L().Fatal("Failed to resolve reservation",
				zap.String("reservation_id", *resolveFlag),
				zap.Error(err))
		}
		return
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var mirror *formance.Mirror
	if cfg.Formance.Enabled {
		mirror, err = formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			zap.L().Fatal("Failed to connect to Formance", zap.Error(err))
		}
	}

	stats := &reconcileStats{}
	common.PrintHeader("BALANCE RECONCILIATION", common.DefaultWidth)
	if err := reconcileAccounts(ctx, dbService, mirror, stats); err != nil {
		zap.L().Fatal("Failed to reconcile accounts", zap.Error(err))
	}

	if mirror != nil {
		withdrawn, err := mirror.WithdrawnTotal(ctx)
		if err != nil {
			zap.L().Warn("Unable to read mirrored withdrawals", zap.Error(err))
		} else {
			fmt.Printf("Formance settlement:withdrawals holds %s\n", common.FormatXLM(withdrawn))
		}
	}

	if err := printOpenReservations(ctx, dbService, *ageFlag, stats); err != nil {
		zap.L().Fatal("Failed to list open reservations", zap.Error(err))
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts, %d mismatched, %d differ from Formance, %d open reservations",
		stats.accounts, stats.mismatched, stats.mirrorMismatched, stats.openReservations)
	common.PrintFooter(summary, common.DefaultWidth)

	zap.L().Info("Reconciliation completed",
		zap.Int("accounts", stats.accounts),
		zap.Int("mismatched", stats.mismatched),
		zap.Int("mirror_mismatched", stats.mirrorMismatched),
		zap.Int("open_reservations", stats.openReservations))
}
