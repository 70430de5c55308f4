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
	"stellar-tipbot-go/internal/models"

	"go.uber.org/zap"
)

type walletRequest struct {
	adapter              string
	externalId           string
	address              string
	createDepositAddress bool
}

func parseAndValidateFlags() (*walletRequest, error) {
	adapterFlag := flag.String("adapter", "", "Adapter namespace of the account")
	userFlag := flag.String("user", "", "External user id within the adapter")
	addressFlag := flag.String("address", "", "Register this Stellar address as the account's withdrawal wallet")
	createFlag := flag.Bool("create-deposit-address", false, "Provision a new Prime deposit address (prime backend only)")
	flag.Parse()

	if !*createFlag && (*adapterFlag == "" || *userFlag == "") {
		return nil, fmt.Errorf("--adapter and --user are required unless --create-deposit-address is set")
	}

	return &walletRequest{
		adapter:              *adapterFlag,
		externalId:           *userFlag,
		address:              *addressFlag,
		createDepositAddress: *createFlag,
	}, nil
}

func createDepositAddress(ctx context.Context, services *common.Services) error {
	if services.Prime == nil {
		return fmt.Errorf("deposit addresses can only be created with SETTLEMENT_BACKEND=prime")
	}

	address, err := services.Prime.CreateDepositAddress(ctx)
	if err != nil {
		return err
	}

	common.PrintHeader("PRIME DEPOSIT ADDRESS CREATED", common.DefaultWidth)
	fmt.Printf("Portfolio: %s\n", services.Prime.PortfolioId())
	fmt.Printf("Wallet:    %s\n", services.Prime.WalletId())
	fmt.Printf("Address:   %s\n", address.Address)
	fmt.Printf("Network:   %s (%s)\n", address.Network, address.Asset)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println("\nSet PRIME_DEPOSIT_ADDRESS to this address and restart the listener.")
	return nil
}

func printDepositInstructions(services *common.Services, account *models.Account) {
	routing := models.Routing{AdapterName: account.AdapterName, ExternalId: account.ExternalId}

	common.PrintHeader("WALLET", common.DefaultWidth)
	fmt.Printf("Account:           %s/%s (%s)\n", account.AdapterName, account.ExternalId, account.Id)
	fmt.Printf("Balance:           %s\n", common.FormatXLM(account.Balance))
	if account.WalletAddress != "" {
		fmt.Printf("Withdrawal wallet: %s\n", account.WalletAddress)
	} else {
		fmt.Println("Withdrawal wallet: none registered")
	}
	common.PrintSeparatorNewline("-", common.DefaultWidth)
	fmt.Println("To deposit, send XLM to:")
	fmt.Printf("   Address: %s\n", services.Network.Address())
	fmt.Printf("   Memo:    %s\n", routing.Memo())
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
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if req.createDepositAddress {
		if err := createDepositAddress(ctx, services); err != nil {
			zap.L().Fatal("Failed to create deposit address", zap.Error(err))
		}
		return
	}

	var account *models.Account
	if req.address != "" {
		account, err = services.ApiService.RegisterWallet(ctx, req.adapter, req.externalId, req.address)
		if err != nil {
			zap.L().Fatal("Failed to register wallet",
				zap.String("address", req.address),
				zap.Error(err))
		}
		zap.L().Info("Withdrawal wallet registered",
			zap.String("account_id", account.Id),
			zap.String("address", account.WalletAddress))
	} else {
		account, err = services.ApiService.RequestBalance(ctx, req.adapter, req.externalId)
		if err != nil {
			zap.L().Fatal("Failed to load account", zap.Error(err))
		}
	}

	printDepositInstructions(services, account)
}
