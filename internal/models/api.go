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

// ActionRecord represents a movement in an account's history
type ActionRecord struct {
	Id        string          `json:"id"`
	Type      string          `json:"type"` // "deposit", "transfer", "withdrawal"
	Amount    decimal.Decimal `json:"amount"`
	Hash      string          `json:"hash"`
	Target    string          `json:"target,omitempty"`
	Address   string          `json:"address,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TransferResult is returned by a committed transfer
type TransferResult struct {
	Source *Account        `json:"source"`
	Target *Account        `json:"target"`
	Amount decimal.Decimal `json:"amount"`
	Hash   string          `json:"hash"`
}

// DepositResult represents the result of crediting a deposit
type DepositResult struct {
	Account     *Account        `json:"account"`
	Transaction *Transaction    `json:"transaction"`
	Amount      decimal.Decimal `json:"amount"`
	NewBalance  decimal.Decimal `json:"new_balance"`
	// Credited is false when the deposit had already been applied
	Credited bool `json:"credited"`
}

// WithdrawalResult is returned by a confirmed withdrawal
type WithdrawalResult struct {
	Account     *Account               `json:"account"`
	Transaction *Transaction           `json:"transaction"`
	Reservation *WithdrawalReservation `json:"reservation"`
	NetworkId   string                 `json:"network_id,omitempty"`
}
