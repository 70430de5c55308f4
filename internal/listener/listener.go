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

package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stellar-tipbot-go/internal/api"
	"stellar-tipbot-go/internal/network"
	"stellar-tipbot-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultReconnectDelay  = 5 * time.Second
	defaultSweepInterval   = time.Minute
	defaultCleanupInterval = 10 * time.Minute
	sweepBatchSize         = 100
)

// DepositListenerConfig contains configuration for DepositListener
type DepositListenerConfig struct {
	Network    network.Network
	ApiService *api.LedgerService
	DbService  store.LedgerStore

	// Adapters restricts which memo adapters are credited; empty allows all
	Adapters []string

	ReconnectDelay  time.Duration
	SweepInterval   time.Duration
	CleanupInterval time.Duration

	// ReservationAlertAge is how long a withdrawal may stay reserved before it is reported
	ReservationAlertAge time.Duration
}

// DepositListener streams payments to the service wallet and credits them to
// the accounts named in their memos.
type DepositListener struct {
	network    network.Network
	apiService *api.LedgerService
	dbService  store.LedgerStore
	adapters   map[string]bool

	// State management for processed deposits
	processedHashes map[string]time.Time
	mutex           sync.RWMutex

	reconnectDelay      time.Duration
	sweepInterval       time.Duration
	cleanupInterval     time.Duration
	reservationAlertAge time.Duration

	// Control channels
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewDepositListener creates a new deposit listener
func NewDepositListener(cfg DepositListenerConfig) *DepositListener {
	d := &DepositListener{
		network:             cfg.Network,
		apiService:          cfg.ApiService,
		dbService:           cfg.DbService,
		processedHashes:     make(map[string]time.Time),
		reconnectDelay:      orDefault(cfg.ReconnectDelay, defaultReconnectDelay),
		sweepInterval:       orDefault(cfg.SweepInterval, defaultSweepInterval),
		cleanupInterval:     orDefault(cfg.CleanupInterval, defaultCleanupInterval),
		reservationAlertAge: orDefault(cfg.ReservationAlertAge, 10*time.Minute),
		stopChan:            make(chan struct{}),
		doneChan:            make(chan struct{}),
	}

	if len(cfg.Adapters) > 0 {
		d.adapters = make(map[string]bool, len(cfg.Adapters))
		for _, name := range cfg.Adapters {
			d.adapters[name] = true
		}
	}
	return d
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Start credits deposits left over from a previous run and begins streaming.
func (d *DepositListener) Start(ctx context.Context) error {
	zap.L().Info("Starting deposit listener",
		zap.String("service_address", d.network.Address()))

	if err := d.performStartupRecovery(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); d.streamLoop(runCtx) }()
	go func() { defer wg.Done(); d.sweepLoop(runCtx) }()
	go func() { defer wg.Done(); d.cleanupLoop(runCtx) }()
	go func() {
		wg.Wait()
		close(d.doneChan)
	}()

	zap.L().Info("Deposit listener started successfully",
		zap.Duration("sweep_interval", d.sweepInterval),
		zap.Duration("cleanup_interval", d.cleanupInterval))

	return nil
}

// Stop gracefully stops the deposit listener
func (d *DepositListener) Stop() {
	d.stopOnce.Do(func() {
		zap.L().Info("Stopping deposit listener")
		close(d.stopChan)
		if d.cancel != nil {
			d.cancel()
			<-d.doneChan
		}
		zap.L().Info("Deposit listener stopped")
	})
}

// Done is closed once all listener loops have exited.
func (d *DepositListener) Done() <-chan struct{} {
	return d.doneChan
}

// streamLoop keeps a payment stream open, resuming from the newest stored
// deposit after every disconnect.
func (d *DepositListener) streamLoop(ctx context.Context) {
	for {
		cursor, err := d.dbService.LatestDepositCursor(ctx)
		if err != nil {
			zap.L().Error("Failed to load deposit cursor", zap.Error(err))
		} else {
			zap.L().Info("Opening payment stream", zap.String("cursor", cursor))
			err = d.network.StreamPayments(ctx, cursor, d.handlePayment)
			if err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Warn("Payment stream ended",
					zap.String("cursor", cursor),
					zap.Error(err))
			}
		}

		select {
		case <-time.After(d.reconnectDelay):
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweepLoop periodically retries deposits that were stored but not credited
func (d *DepositListener) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweepUncredited(ctx)
			d.reportStaleReservations(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// isProcessed checks if we've already handled this deposit
func (d *DepositListener) isProcessed(hash string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	_, exists := d.processedHashes[hash]
	return exists
}

func (d *DepositListener) markProcessed(hash string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.processedHashes[hash] = time.Now()
}

// cleanupLoop periodically cleans old processed hashes
func (d *DepositListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanupProcessed(time.Now().Add(-d.cleanupInterval))
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *DepositListener) cleanupProcessed(cutoff time.Time) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	cleaned := 0
	for hash, processedAt := range d.processedHashes {
		if processedAt.Before(cutoff) {
			delete(d.processedHashes, hash)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up processed deposit hashes",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(d.processedHashes)))
	}
}
