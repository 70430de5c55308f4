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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stellar-tipbot-go/internal/models"
)

const (
	BackendStellar = "stellar"
	BackendPrime   = "prime"
)

type durationSetting struct {
	key          string
	defaultValue time.Duration
	target       *time.Duration
}

func Load() (*models.Config, error) {
	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:         getEnvString("DATABASE_PATH", "tipbot.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Listener: models.ListenerConfig{
			AdaptersFile: getEnvString("ADAPTERS_FILE", "adapters.yaml"),
		},
		Settlement: models.SettlementConfig{
			Backend:        strings.ToLower(getEnvString("SETTLEMENT_BACKEND", BackendStellar)),
			WithdrawalMemo: getEnvString("STELLAR_WITHDRAWAL_MEMO", "XLM Tipping bot"),
		},
		Stellar: models.StellarConfig{
			HorizonURL: getEnvString("STELLAR_HORIZON_URL", "https://horizon-testnet.stellar.org"),
			Network:    getEnvString("STELLAR_NETWORK", "testnet"),
			SecretSeed: getEnvString("STELLAR_SECRET_SEED", ""),
			BaseFee:    int64(getEnvInt("STELLAR_BASE_FEE", 100)),
		},
		Prime: models.PrimeConfig{
			AccessKey:      getEnvString("PRIME_ACCESS_KEY", ""),
			Passphrase:     getEnvString("PRIME_PASSPHRASE", ""),
			SigningKey:     getEnvString("PRIME_SIGNING_KEY", ""),
			PortfolioId:    getEnvString("PRIME_PORTFOLIO_ID", ""),
			WalletId:       getEnvString("PRIME_WALLET_ID", ""),
			DepositAddress: getEnvString("PRIME_DEPOSIT_ADDRESS", ""),
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			ServerURL:    getEnvString("FORMANCE_SERVER_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			Ledger:       getEnvString("FORMANCE_LEDGER", "stellar-tipbot"),
		},
		Events: models.EventsConfig{
			BufferSize: getEnvInt("EVENT_BUFFER_SIZE", 100),
		},
		HTTP: models.HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
	}

	durations := []durationSetting{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute, &cfg.Database.ConnMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second, &cfg.Database.ConnMaxIdleTime},
		{"DB_PING_TIMEOUT", 5 * time.Second, &cfg.Database.PingTimeout},
		{"DB_BUSY_TIMEOUT", 5 * time.Second, &cfg.Database.BusyTimeout},
		{"STELLAR_TX_TIMEOUT", 5 * time.Minute, &cfg.Stellar.TxTimeout},
		{"LISTENER_POLLING_INTERVAL", 30 * time.Second, &cfg.Listener.PollingInterval},
		{"LISTENER_SWEEP_INTERVAL", time.Minute, &cfg.Listener.SweepInterval},
		{"LISTENER_CLEANUP_INTERVAL", 10 * time.Minute, &cfg.Listener.CleanupInterval},
		{"LISTENER_RECONNECT_DELAY", 5 * time.Second, &cfg.Listener.ReconnectDelay},
		{"LISTENER_RESERVATION_ALERT_AGE", 10 * time.Minute, &cfg.Listener.ReservationAlertAge},
		{"HTTP_READ_TIMEOUT", 15 * time.Second, &cfg.HTTP.ReadTimeout},
		{"HTTP_WRITE_TIMEOUT", 30 * time.Second, &cfg.HTTP.WriteTimeout},
		{"HTTP_IDLE_TIMEOUT", time.Minute, &cfg.HTTP.IdleTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", 30 * time.Second, &cfg.HTTP.ShutdownTimeout},
	}
	for _, d := range durations {
		value, err := getEnvDuration(d.key, d.defaultValue)
		if err != nil {
			return nil, err
		}
		*d.target = value
	}

	switch cfg.Settlement.Backend {
	case BackendStellar, BackendPrime:
	default:
		return nil, fmt.Errorf("invalid SETTLEMENT_BACKEND %q: expected %s or %s",
			cfg.Settlement.Backend, BackendStellar, BackendPrime)
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
