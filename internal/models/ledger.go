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
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/strkey"
)

// AccountDefaults are applied only when GetOrCreateAccount inserts a new row
type AccountDefaults struct {
	OpeningBalance decimal.Decimal
	WalletAddress  string
}

// IsValidAddress reports whether address is a Stellar ed25519 public key (G...).
func IsValidAddress(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// NewAccount builds an unsaved account for (adapterName, externalId).
func NewAccount(adapterName, externalId string, defaults *AccountDefaults) (*Account, error) {
	if adapterName == "" || externalId == "" {
		return nil, fmt.Errorf("adapter name and external id are required")
	}

	opening := decimal.Zero
	wallet := ""
	if defaults != nil {
		opening = RoundAmount(defaults.OpeningBalance)
		wallet = defaults.WalletAddress
	}
	if opening.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance %s is negative", ErrInvalidAmount, FormatAmount(opening))
	}
	if wallet != "" && !IsValidAddress(wallet) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, wallet)
	}

	now := time.Now().UTC()
	return &Account{
		Id:             uuid.New().String(),
		AdapterName:    adapterName,
		ExternalId:     externalId,
		Balance:        opening,
		OpeningBalance: opening,
		WalletAddress:  wallet,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NewAction builds an audit record. Transfers need a target account and
// withdrawals need an address.
func NewAction(actionType ActionType, sourceAccountId string, amount decimal.Decimal, hash string) (*Action, error) {
	if sourceAccountId == "" {
		return nil, fmt.Errorf("action requires a source account")
	}
	if hash == "" {
		return nil, fmt.Errorf("action requires a hash")
	}
	amount = RoundAmount(amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, FormatAmount(amount))
	}

	switch actionType {
	case ActionDeposit, ActionTransfer, ActionWithdrawal:
	default:
		return nil, fmt.Errorf("unknown action type %q", actionType)
	}

	return &Action{
		Id:              uuid.New().String(),
		Type:            actionType,
		Amount:          amount,
		Hash:            hash,
		SourceAccountId: sourceAccountId,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// NewDepositTransaction records an inbound payment seen on the network.
func NewDepositTransaction(payment Payment) (*Transaction, error) {
	if payment.Hash == "" {
		return nil, fmt.Errorf("deposit requires a network hash")
	}
	amount := RoundAmount(payment.Amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, FormatAmount(amount))
	}
	createdAt := payment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Transaction{
		Id:        uuid.New().String(),
		Type:      TransactionDeposit,
		Source:    payment.From,
		Target:    payment.To,
		Amount:    amount,
		Asset:     NativeAsset,
		Memo:      payment.Memo,
		Hash:      payment.Hash,
		Cursor:    payment.Cursor,
		Credited:  false,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// NewWithdrawalTransaction records an outbound payment submitted by the service.
func NewWithdrawalTransaction(source, target string, amount decimal.Decimal, hash, memo string) (*Transaction, error) {
	if hash == "" {
		return nil, fmt.Errorf("withdrawal requires a hash")
	}
	if !IsValidAddress(target) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, target)
	}
	amount = RoundAmount(amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, FormatAmount(amount))
	}

	return &Transaction{
		Id:        uuid.New().String(),
		Type:      TransactionWithdrawal,
		Source:    source,
		Target:    target,
		Amount:    amount,
		Asset:     NativeAsset,
		Memo:      memo,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Routing identifies the account a deposit memo points at
type Routing struct {
	AdapterName string
	ExternalId  string
}

// ParseRoutingMemo splits a memo of the form "<adapter>/<externalId>".
// All whitespace is removed first.
func ParseRoutingMemo(memo string) (*Routing, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, memo)

	parts := strings.Split(cleaned, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRoutingInfo, memo)
	}

	return &Routing{AdapterName: parts[0], ExternalId: parts[1]}, nil
}

// Memo renders the deposit memo that routes to this account.
func (r Routing) Memo() string {
	return r.AdapterName + "/" + r.ExternalId
}
