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

package main

import (
	"context"
	"flag"
	"fmt"

	"stellar-tipbot-go/internal/common"
	"stellar-tipbot-go/internal/config"
	"stellar-tipbot-go/internal/database"
	"stellar-tipbot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts  int
	fundedAccounts int
	totalBalance   decimal.Decimal
}

func formatHash(hash string) string {
	if hash == "" {
		return "none"
	}
	if len(hash) > 12 {
		return hash[:12] + "..."
	}
	return hash
}

func printAction(action models.Action, accountId string, isLast bool) {
	amount := action.Amount
	if action.SourceAccountId == accountId && action.Type != models.ActionDeposit {
		amount = amount.Neg()
	}

	fmt.Printf("%s %-10s %18s  %s  hash: %s\n",
		common.BoxDetailPrefix(false)+common.BoxPrefix(isLast),
		action.Type,
		models.FormatAmount(amount),
		action.CreatedAt.Format("2006-01-02 15:04:05"),
		formatHash(action.Hash))
}

func printAccount(ctx context.Context, account models.Account, dbService *database.Service, historyLimit int) error {
	fmt.Printf("\n┌─ Account: %s/%s\n", account.AdapterName, account.ExternalId)
	fmt.Printf("│  ID: %s\n", account.Id)
	if account.WalletAddress != "" {
		fmt.Printf("│  Wallet: %s\n", account.WalletAddress)
	}
	common.PrintBoxSeparator(78)
	fmt.Printf("%s %-15s: %20s (v%d, updated: %s)\n",
		common.BoxPrefix(historyLimit == 0),
		"XLM",
		models.FormatAmount(account.Balance),
		account.Version,
		account.UpdatedAt.Format("2006-01-02 15:04:05"))

	if historyLimit == 0 {
		return nil
	}

	actions, err := dbService.GetActionHistory(ctx, account.Id, historyLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}
	for i, action := range actions {
		printAction(action, account.Id, i == len(actions)-1)
	}
	return nil
}

func loadAccounts(ctx context.Context, dbService *database.Service, adapter, externalId string) ([]models.Account, error) {
	if externalId == "" {
		return dbService.GetAccounts(ctx, adapter)
	}
	if adapter == "" {
		return nil, fmt.Errorf("--user requires --adapter")
	}
	account, err := dbService.FindAccount(ctx, adapter, externalId)
	if err != nil {
		return nil, err
	}
	return []models.Account{*account}, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	adapterFlag := flag.String("adapter", "", "Filter by adapter namespace (optional)")
	userFlag := flag.String("user", "", "Show a single external user id (requires --adapter)")
	historyFlag := flag.Int("history", 0, "Number of recent actions to show per account")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Read-only; no settlement network needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accounts, err := loadAccounts(ctx, dbService, *adapterFlag, *userFlag)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{totalBalance: decimal.Zero}
	for _, account := range accounts {
		stats.totalAccounts++
		if account.Balance.IsPositive() {
			stats.fundedAccounts++
		}
		stats.totalBalance = stats.totalBalance.Add(account.Balance)

		if err := printAccount(ctx, account, dbService, *historyFlag); err != nil {
			logger.Error("Failed to print account",
				zap.String("account_id", account.Id),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts, %d funded, %s held in total",
		stats.totalAccounts, stats.fundedAccounts, common.FormatXLM(stats.totalBalance))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("funded_accounts", stats.fundedAccounts),
		zap.String("total_balance", models.FormatAmount(stats.totalBalance)))
}
