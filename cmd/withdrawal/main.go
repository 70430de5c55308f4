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
	"errors"
	"flag"
	"fmt"

	"stellar-tipbot-go/internal/common"
	"stellar-tipbot-go/internal/config"
	"stellar-tipbot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	adapter     string
	externalId  string
	amount      decimal.Decimal
	destination string
	hash        string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	adapterFlag := flag.String("adapter", "", "Adapter namespace of the account (required)")
	userFlag := flag.String("user", "", "External user id within the adapter (required)")
	amountFlag := flag.String("amount", "", "Amount of XLM to withdraw (required)")
	destinationFlag := flag.String("destination", "", "Destination address (default: the account's registered wallet)")
	hashFlag := flag.String("hash", "", "Idempotency hash; reuse it to retry safely (default: random)")
	flag.Parse()

	if *adapterFlag == "" || *userFlag == "" || *amountFlag == "" {
		return nil, fmt.Errorf("flags are required: --adapter, --user, --amount")
	}

	amount, err := models.ParsePositiveAmount(*amountFlag)
	if err != nil {
		return nil, err
	}

	hash := *hashFlag
	if hash == "" {
		hash = "cli-" + uuid.New().String()
	}

	return &withdrawalRequest{
		adapter:     *adapterFlag,
		externalId:  *userFlag,
		amount:      amount,
		destination: *destinationFlag,
		hash:        hash,
	}, nil
}

func printWithdrawalSummary(account *models.Account, req *withdrawalRequest, destination string) {
	common.PrintHeader("WITHDRAWAL REQUEST", common.DefaultWidth)
	fmt.Printf("Account:           %s/%s (%s)\n", account.AdapterName, account.ExternalId, account.Id)
	fmt.Printf("Current Balance:   %s\n", common.FormatXLM(account.Balance))
	fmt.Printf("Withdrawal Amount: %s\n", common.FormatXLM(req.amount))
	fmt.Printf("Destination:       %s\n", destination)
	fmt.Printf("Hash:              %s\n", req.hash)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

func printFailure(err error) {
	common.PrintHeader("WITHDRAWAL FAILED", common.DefaultWidth)
	fmt.Printf("Reason: %s\n", models.ErrorKind(err))
	fmt.Printf("Error:  %v\n", err)
	switch {
	case errors.Is(err, models.ErrDuplicateSubmission):
		fmt.Println("A withdrawal with this hash was already settled; the balance was not charged again.")
	case errors.Is(err, models.ErrSubmissionFailed), errors.Is(err, models.ErrDestinationMissing):
		fmt.Println("The reservation was refunded; the balance is unchanged.")
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	account, err := services.ApiService.GetOrCreateAccount(ctx, req.adapter, req.externalId)
	if err != nil {
		zap.L().Fatal("Failed to load account", zap.Error(err))
	}

	destination := req.destination
	if destination == "" {
		destination = account.WalletAddress
	}
	printWithdrawalSummary(account, req, destination)

	var result *models.WithdrawalResult
	if req.destination == "" {
		result, err = services.ApiService.WithdrawToWallet(ctx, req.adapter, req.externalId, req.amount, req.hash)
	} else {
		result, err = services.ApiService.Withdraw(ctx, account, req.destination, req.amount, req.hash)
	}
	if err != nil {
		printFailure(err)
		zap.L().Fatal("Withdrawal failed",
			zap.String("hash", req.hash),
			zap.String("kind", models.ErrorKind(err)),
			zap.Error(err))
	}

	fmt.Println("✅ Withdrawal settled")
	fmt.Printf("   Network Id:  %s\n", result.NetworkId)
	fmt.Printf("   New Balance: %s\n\n", common.FormatXLM(result.Account.Balance))

	zap.L().Info("Withdrawal completed successfully",
		zap.String("account_id", result.Account.Id),
		zap.String("amount", models.FormatAmount(req.amount)),
		zap.String("network_id", result.NetworkId))
}
