package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"stellar-tipbot-go/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type handler struct {
	ledger Ledger
}

func (h *handler) registerRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{adapter}/{externalId}", h.getBalance).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{adapter}/{externalId}/history", h.getHistory).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{adapter}/{externalId}/wallet", h.registerWallet).Methods(http.MethodPut)
	router.HandleFunc("/tips", h.tip).Methods(http.MethodPost)
	router.HandleFunc("/withdrawals", h.withdraw).Methods(http.MethodPost)
}

type accountResponse struct {
	Id            string `json:"id"`
	Adapter       string `json:"adapter"`
	ExternalId    string `json:"external_id"`
	Balance       string `json:"balance"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

func toAccountResponse(account *models.Account) accountResponse {
	return accountResponse{
		Id:            account.Id,
		Adapter:       account.AdapterName,
		ExternalId:    account.ExternalId,
		Balance:       models.FormatAmount(account.Balance),
		WalletAddress: account.WalletAddress,
	}
}

type historyEntry struct {
	Id        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Hash      string    `json:"hash"`
	Target    string    `json:"target,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type walletRequest struct {
	Address string `json:"address"`
}

type tipRequest struct {
	Adapter string `json:"adapter"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Hash    string `json:"hash"`
}

type tipResponse struct {
	Source accountResponse `json:"source"`
	Target accountResponse `json:"target"`
	Amount string          `json:"amount"`
	Hash   string          `json:"hash"`
}

type withdrawalRequest struct {
	Adapter    string `json:"adapter"`
	ExternalId string `json:"external_id"`
	Amount     string `json:"amount"`
	// Empty withdraws to the registered wallet
	Address string `json:"address,omitempty"`
	Hash    string `json:"hash"`
}

type withdrawalResponse struct {
	Account   accountResponse `json:"account"`
	Address   string          `json:"address"`
	Amount    string          `json:"amount"`
	Hash      string          `json:"hash"`
	NetworkId string          `json:"network_id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.HealthCheck(r.Context()); err != nil {
		zap.L().Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account, err := h.ledger.RequestBalance(r.Context(), vars["adapter"], vars["externalId"])
	if err != nil {
		writeServiceError(w, err, "request balance")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "offset must be a non-negative integer")
		return
	}

	vars := mux.Vars(r)
	account, err := h.ledger.GetOrCreateAccount(r.Context(), vars["adapter"], vars["externalId"])
	if err != nil {
		writeServiceError(w, err, "resolve account")
		return
	}
	records, err := h.ledger.GetHistory(r.Context(), account.Id, limit, offset)
	if err != nil {
		writeServiceError(w, err, "get history")
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			Id:        rec.Id,
			Type:      rec.Type,
			Amount:    models.FormatAmount(rec.Amount),
			Hash:      rec.Hash,
			Target:    rec.Target,
			Address:   rec.Address,
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) registerWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if !decode(w, r, &req) {
		return
	}

	vars := mux.Vars(r)
	account, err := h.ledger.RegisterWallet(r.Context(), vars["adapter"], vars["externalId"], req.Address)
	if err != nil {
		writeServiceError(w, err, "register wallet")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *handler) tip(w http.ResponseWriter, r *http.Request) {
	var req tipRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Adapter == "" || req.From == "" || req.To == "" || req.Hash == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "adapter, from, to and hash are required")
		return
	}
	amount, err := models.ParsePositiveAmount(req.Amount)
	if err != nil {
		writeServiceError(w, err, "tip")
		return
	}

	result, err := h.ledger.Tip(r.Context(), req.Adapter, req.From, req.To, amount, req.Hash)
	if err != nil {
		writeServiceError(w, err, "tip")
		return
	}
	writeJSON(w, http.StatusCreated, tipResponse{
		Source: toAccountResponse(result.Source),
		Target: toAccountResponse(result.Target),
		Amount: models.FormatAmount(result.Amount),
		Hash:   result.Hash,
	})
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Adapter == "" || req.ExternalId == "" || req.Hash == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "adapter, external_id and hash are required")
		return
	}
	amount, err := models.ParsePositiveAmount(req.Amount)
	if err != nil {
		writeServiceError(w, err, "withdraw")
		return
	}

	var result *models.WithdrawalResult
	if req.Address == "" {
		result, err = h.ledger.WithdrawToWallet(r.Context(), req.Adapter, req.ExternalId, amount, req.Hash)
	} else {
		var account *models.Account
		account, err = h.ledger.GetOrCreateAccount(r.Context(), req.Adapter, req.ExternalId)
		if err == nil {
			result, err = h.ledger.Withdraw(r.Context(), account, req.Address, amount, req.Hash)
		}
	}
	if err != nil {
		writeServiceError(w, err, "withdraw")
		return
	}

	writeJSON(w, http.StatusCreated, withdrawalResponse{
		Account:   toAccountResponse(result.Account),
		Address:   result.Transaction.Target,
		Amount:    models.FormatAmount(result.Transaction.Amount),
		Hash:      result.Transaction.Hash,
		NetworkId: result.NetworkId,
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request payload: %v", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidAddress),
		errors.Is(err, models.ErrSelfReference),
		errors.Is(err, models.ErrMalformedRoutingInfo):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateAction),
		errors.Is(err, models.ErrDuplicateSubmission),
		errors.Is(err, models.ErrAddressInUse),
		errors.Is(err, models.ErrConcurrentModification),
		errors.Is(err, models.ErrReservationNotOpen):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrDestinationMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSubmissionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error, operation string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.String("operation", operation), zap.Error(err))
		writeError(w, status, models.ErrorKind(err), "")
		return
	}
	writeError(w, status, models.ErrorKind(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}
