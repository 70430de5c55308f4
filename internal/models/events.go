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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies a ledger notification delivered to adapters
type EventType string

const (
	EventTransferred       EventType = "transferred"
	EventTransferFailed    EventType = "transfer_failed"
	EventDeposited         EventType = "deposited"
	EventDepositUnroutable EventType = "deposit_unroutable"
	EventUnsupportedAsset  EventType = "unsupported_asset"
	EventWithdrawn         EventType = "withdrawn"
	EventWithdrawalFailed  EventType = "withdrawal_failed"
	EventBalanceRequested  EventType = "balance_requested"
)

// Event is a notification about a ledger outcome. Fields not relevant to the
// event type are left empty.
type Event struct {
	Type    EventType
	Account *Account
	Target  *Account
	Amount  decimal.Decimal
	Hash    string
	Address string
	// Kind is ErrorKind(Err) for failure events
	Kind       string
	Err        error
	OccurredAt time.Time
}

// AdapterName returns the adapter of the account the event concerns, so
// subscribers can route it to the right chat platform.
func (e Event) AdapterName() string {
	if e.Account != nil {
		return e.Account.AdapterName
	}
	return ""
}
