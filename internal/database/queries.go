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

package database

const accountColumns = `id, adapter_name, external_id, balance, opening_balance, wallet_address, version, created_at, updated_at`

// Account queries
const (
	queryInsertAccount = `
		INSERT INTO accounts (id, adapter_name, external_id, balance, opening_balance, wallet_address, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetAccountById = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	queryGetAccountByExternalId = `SELECT ` + accountColumns + ` FROM accounts WHERE adapter_name = ? AND external_id = ?`

	queryGetAccountByWallet = `SELECT ` + accountColumns + ` FROM accounts WHERE wallet_address = ?`

	queryGetAccounts = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`

	queryGetAccountsByAdapter = `SELECT ` + accountColumns + ` FROM accounts WHERE adapter_name = ? ORDER BY created_at, id`

	queryUpdateAccountBalance = `
		UPDATE accounts
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryUpdateWalletAddress = `
		UPDATE accounts
		SET wallet_address = ?, updated_at = ?
		WHERE id = ?`
)

// Action queries
const (
	queryInsertAction = `
		INSERT INTO actions (id, type, amount, hash, source_account_id, target_account_id, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryCheckDuplicateAction = `
		SELECT id FROM actions
		WHERE source_account_id = ? AND type = ? AND hash = ?`

	queryGetActionHistory = `
		SELECT id, type, amount, hash, source_account_id, target_account_id, address, created_at
		FROM actions
		WHERE source_account_id = ? OR target_account_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	queryGetActionsForReconcile = `
		SELECT type, amount, source_account_id, target_account_id
		FROM actions
		WHERE source_account_id = ? OR target_account_id = ?`
)

// Transaction queries
const (
	queryInsertTransaction = `
		INSERT INTO transactions (id, type, source, target, amount, asset, memo, hash, cursor, credited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionByHash = `
		SELECT id, type, source, target, amount, asset, memo, hash, cursor, credited, created_at
		FROM transactions
		WHERE hash = ?`

	queryMarkTransactionCredited = `UPDATE transactions SET credited = 1 WHERE hash = ?`

	queryGetUncreditedDeposits = `
		SELECT id, type, source, target, amount, asset, memo, hash, cursor, credited, created_at
		FROM transactions
		WHERE type = 'deposit' AND credited = 0
		ORDER BY created_at, rowid
		LIMIT ?`

	queryGetLatestDepositCursor = `
		SELECT cursor FROM transactions
		WHERE type = 'deposit' AND cursor != ''
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	queryCheckWithdrawalTransaction = `
		SELECT id FROM transactions
		WHERE type = 'withdrawal' AND hash = ?`
)

// Withdrawal reservation queries
const (
	reservationColumns = `id, account_id, address, amount, hash, status, failure_reason, created_at, updated_at`

	queryInsertReservation = `
		INSERT INTO withdrawal_reservations (id, account_id, address, amount, hash, status, failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`

	queryGetReservation = `SELECT ` + reservationColumns + ` FROM withdrawal_reservations WHERE id = ?`

	queryCheckOpenReservation = `
		SELECT id FROM withdrawal_reservations
		WHERE hash = ? AND status = 'reserved' AND id != ?
		LIMIT 1`

	queryCheckActiveReservation = `
		SELECT id FROM withdrawal_reservations
		WHERE hash = ? AND status IN ('reserved', 'confirmed')
		LIMIT 1`

	queryUpdateReservationStatus = `
		UPDATE withdrawal_reservations
		SET status = ?, failure_reason = ?, network_id = ?, updated_at = ?
		WHERE id = ? AND status = 'reserved'`

	queryGetOpenReservations = `
		SELECT ` + reservationColumns + ` FROM withdrawal_reservations
		WHERE status = 'reserved' AND created_at <= ?
		ORDER BY created_at`

	queryGetOpenReservationsForAccount = `
		SELECT amount FROM withdrawal_reservations
		WHERE account_id = ? AND status = 'reserved'`
)
