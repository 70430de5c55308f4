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

package api

import (
	"context"
	"fmt"

	"stellar-tipbot-go/internal/events"
	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/network"
	"stellar-tipbot-go/internal/store"
)

// DefaultWithdrawalMemo is attached to outgoing payments when none is configured
const DefaultWithdrawalMemo = "XLM Tipping bot"

// LedgerServiceConfig contains the dependencies of LedgerService
type LedgerServiceConfig struct {
	Store          store.LedgerStore
	Network        network.Network
	Notifier       events.Notifier
	WithdrawalMemo string
}

// LedgerService runs transfers, deposit crediting and withdrawal settlement
// against a LedgerStore and reports outcomes to a Notifier.
type LedgerService struct {
	db             store.LedgerStore
	network        network.Network
	notifier       events.Notifier
	withdrawalMemo string
}

func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = events.Nop
	}
	memo := cfg.WithdrawalMemo
	if memo == "" {
		memo = DefaultWithdrawalMemo
	}

	return &LedgerService{
		db:             cfg.Store,
		network:        cfg.Network,
		notifier:       notifier,
		withdrawalMemo: memo,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if _, err := s.db.LatestDepositCursor(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (s *LedgerService) notify(ctx context.Context, event models.Event) {
	s.notifier.Notify(ctx, events.Stamp(event))
}
