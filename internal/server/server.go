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

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"stellar-tipbot-go/internal/api"
	"stellar-tipbot-go/internal/models"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the part of the ledger service exposed to chat adapters over HTTP
type Ledger interface {
	HealthCheck(ctx context.Context) error
	GetOrCreateAccount(ctx context.Context, adapterName, externalId string) (*models.Account, error)
	RequestBalance(ctx context.Context, adapterName, externalId string) (*models.Account, error)
	RegisterWallet(ctx context.Context, adapterName, externalId, address string) (*models.Account, error)
	GetHistory(ctx context.Context, accountId string, limit, offset int) ([]models.ActionRecord, error)
	Tip(ctx context.Context, adapterName, fromExternalId, toExternalId string, amount decimal.Decimal, hash string) (*models.TransferResult, error)
	Withdraw(ctx context.Context, account *models.Account, address string, amount decimal.Decimal, hash string) (*models.WithdrawalResult, error)
	WithdrawToWallet(ctx context.Context, adapterName, externalId string, amount decimal.Decimal, hash string) (*models.WithdrawalResult, error)
}

var _ Ledger = (*api.LedgerService)(nil)

type Server struct {
	httpServer *http.Server
}

func NewServer(cfg models.HTTPConfig, ledger Ledger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewRouter(ledger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// NewRouter registers the adapter routes on a fresh router.
func NewRouter(ledger Ledger) *mux.Router {
	router := mux.NewRouter()
	h := &handler{ledger: ledger}
	h.registerRoutes(router)
	router.Use(loggingMiddleware)
	return router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	zap.L().Info("Starting HTTP API", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		zap.L().Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
