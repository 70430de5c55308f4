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

package formance

import (
	"time"

	"stellar-tipbot-go/internal/models"
)

// Account paths: users:<account id>, settlement:withdrawals. Deposits come
// from @world. User accounts may overdraw because opening balances are not
// mirrored.

const numscriptDeposit = `vars {
  monetary $amount
  account $user
  string $hash
  string $adapter
  string $external_id
}

send $amount (
  source = @world
  destination = @users:$user
)

set_tx_meta("event_type", "deposited")
set_tx_meta("hash", $hash)
set_tx_meta("adapter", $adapter)
set_tx_meta("external_id", $external_id)
`

const numscriptTransfer = `vars {
  monetary $amount
  account $user
  account $target
  string $hash
}

send $amount (
  source = @users:$user allowing unbounded overdraft
  destination = @users:$target
)

set_tx_meta("event_type", "transferred")
set_tx_meta("hash", $hash)
`

const numscriptWithdrawal = `vars {
  monetary $amount
  account $user
  string $hash
  string $address
}

send $amount (
  source = @users:$user allowing unbounded overdraft
  destination = @settlement:withdrawals
)

set_tx_meta("event_type", "withdrawn")
set_tx_meta("hash", $hash)
set_tx_meta("address", $address)
`

type posting struct {
	reference string
	script    string
	vars      map[string]string
	timestamp *time.Time
}

// postingFor maps a ledger event to a Formance transaction. The reference
// makes a replayed event a no-op on the Formance side. Transfer hashes are
// only unique per source account, so their reference carries the account id.
func postingFor(event models.Event) (*posting, bool) {
	if event.Account == nil || event.Hash == "" || !event.Amount.IsPositive() {
		return nil, false
	}

	vars := map[string]string{
		"amount": monetary(event),
		"user":   event.Account.Id,
		"hash":   event.Hash,
	}

	var script string
	switch event.Type {
	case models.EventDeposited:
		script = numscriptDeposit
		vars["adapter"] = event.Account.AdapterName
		vars["external_id"] = event.Account.ExternalId
	case models.EventTransferred:
		if event.Target == nil {
			return nil, false
		}
		script = numscriptTransfer
		vars["target"] = event.Target.Id
	case models.EventWithdrawn:
		script = numscriptWithdrawal
		vars["address"] = event.Address
	default:
		return nil, false
	}

	reference := string(event.Type) + ":" + event.Hash
	if event.Type == models.EventTransferred {
		reference = string(event.Type) + ":" + event.Account.Id + ":" + event.Hash
	}

	p := &posting{
		reference: reference,
		script:    script,
		vars:      vars,
	}
	if !event.OccurredAt.IsZero() {
		ts := event.OccurredAt
		p.timestamp = &ts
	}
	return p, true
}

// monetary renders the amount as a Numscript monetary var, e.g. "XLM/7 12500000".
func monetary(event models.Event) string {
	return xlmAsset + " " + models.ToStroops(event.Amount)
}
