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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	// _txlock=immediate takes the write lock at BEGIN, so balance checks and
	// the updates that follow them are serialized across connections.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=%d&_txlock=immediate&_foreign_keys=1",
		cfg.Path, busyTimeout.Milliseconds())

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Accounts (current balances)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		adapter_name TEXT NOT NULL,
		external_id TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0.0000000',
		opening_balance TEXT NOT NULL DEFAULT '0.0000000',
		wallet_address TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(adapter_name, external_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_wallet_address ON accounts(wallet_address) WHERE wallet_address IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_accounts_adapter ON accounts(adapter_name);

	-- Actions (idempotency log and audit trail)
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('deposit', 'transfer', 'withdrawal')),
		amount TEXT NOT NULL,
		hash TEXT NOT NULL,
		source_account_id TEXT NOT NULL REFERENCES accounts(id),
		target_account_id TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_account_id, type, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_actions_target ON actions(target_account_id);
	CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at);

	-- Transactions (external network events)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('deposit', 'withdrawal')),
		source TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		asset TEXT NOT NULL DEFAULT 'native',
		memo TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL UNIQUE,
		cursor TEXT NOT NULL DEFAULT '',
		credited INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_type_created ON transactions(type, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_uncredited ON transactions(type, credited);

	-- Withdrawal reservations (funds held while a submission is in flight)
	CREATE TABLE IF NOT EXISTS withdrawal_reservations (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		address TEXT NOT NULL,
		amount TEXT NOT NULL,
		hash TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('reserved', 'confirmed', 'failed')),
		failure_reason TEXT NOT NULL DEFAULT '',
		network_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_hash ON withdrawal_reservations(hash);
	-- At most one reservation per hash may be in flight or settled
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_hash
		ON withdrawal_reservations(hash) WHERE status IN ('reserved', 'confirmed');
	CREATE INDEX IF NOT EXISTS idx_reservations_status ON withdrawal_reservations(status, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// closeRows closes a result set, logging instead of failing on error.
func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

// rollback aborts tx unless it has already been committed.
func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Warn("Failed to roll back transaction", zap.Error(err))
	}
}
