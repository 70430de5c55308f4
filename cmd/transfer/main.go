package main

import (
	"context"
	"flag"
	"fmt"

	"stellar-tipbot-go/internal/common"
	"stellar-tipbot-go/internal/config"
	"stellar-tipbot-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	adapterFlag := flag.String("adapter", "", "Adapter namespace of both users (required)")
	fromFlag := flag.String("from", "", "Paying external user id (required)")
	toFlag := flag.String("to", "", "Receiving external user id (required)")
	amountFlag := flag.String("amount", "", "Amount of XLM (required)")
	hashFlag := flag.String("hash", "", "Idempotency hash (default: random)")
	flag.Parse()

	if *adapterFlag == "" || *fromFlag == "" || *toFlag == "" || *amountFlag == "" {
		zap.L().Fatal("Flags are required: --adapter, --from, --to, --amount")
	}
	amount, err := models.ParsePositiveAmount(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.Error(err))
	}
	hash := *hashFlag
	if hash == "" {
		hash = "cli-" + uuid.New().String()
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

	result, err := services.ApiService.Tip(ctx, *adapterFlag, *fromFlag, *toFlag, amount, hash)
	if err != nil {
		common.PrintHeader("TRANSFER FAILED", common.DefaultWidth)
		fmt.Printf("Reason: %s\n", models.ErrorKind(err))
		fmt.Printf("Error:  %v\n", err)
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Transfer failed", zap.String("hash", hash), zap.Error(err))
	}

	common.PrintHeader("TRANSFER COMMITTED", common.DefaultWidth)
	fmt.Printf("From:   %s/%s  balance %s\n", *adapterFlag, *fromFlag, common.FormatXLM(result.Source.Balance))
	fmt.Printf("To:     %s/%s  balance %s\n", *adapterFlag, *toFlag, common.FormatXLM(result.Target.Balance))
	fmt.Printf("Amount: %s\n", common.FormatXLM(result.Amount))
	fmt.Printf("Hash:   %s\n", result.Hash)
	common.PrintSeparator("=", common.DefaultWidth)
}
