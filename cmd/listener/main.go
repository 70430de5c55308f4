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
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stellar-tipbot-go/internal/common"
	"stellar-tipbot-go/internal/config"
	"stellar-tipbot-go/internal/listener"

	"go.uber.org/zap"
)

func main() {
	adaptersFlag := flag.String("adapters", "", "Path to adapters.yaml listing adapters allowed in deposit memos (default: ADAPTERS_FILE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting Stellar tipbot deposit listener",
		zap.String("backend", cfg.Settlement.Backend))

	adaptersFile := cfg.Listener.AdaptersFile
	if *adaptersFlag != "" {
		adaptersFile = *adaptersFlag
	}
	adapters, err := common.LoadAdapterNames(adaptersFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		zap.L().Warn("No adapters file, crediting deposits for any adapter", zap.String("file", adaptersFile))
	case err != nil:
		zap.L().Fatal("Failed to load adapters", zap.Error(err))
	default:
		zap.L().Info("Restricting deposits to configured adapters", zap.Strings("adapters", adapters))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	services.DrainEvents()

	l := listener.NewDepositListener(listener.DepositListenerConfig{
		Network:             services.Network,
		ApiService:          services.ApiService,
		DbService:           services.DbService,
		Adapters:            adapters,
		ReconnectDelay:      cfg.Listener.ReconnectDelay,
		SweepInterval:       cfg.Listener.SweepInterval,
		CleanupInterval:     cfg.Listener.CleanupInterval,
		ReservationAlertAge: cfg.Listener.ReservationAlertAge,
	})

	if err := l.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start deposit listener", zap.Error(err))
	}

	zap.L().Info("Deposit listener running",
		zap.String("service_address", services.Network.Address()))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping listener...")
	case <-l.Done():
		zap.L().Warn("Deposit listener exited")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Listener stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
