package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	vaultledger "vaultd/contexts/custody-core/vault-ledger"
	vaultdomainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	vaulthttp "vaultd/contexts/custody-core/vault-ledger/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "vaultd/internal/platform/httpserver/docs"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	vault  vaultledger.Module
}

func New(vault vaultledger.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		vault:  vault,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/vault/deposits", s.handleDeposit)
	s.mux.HandleFunc("POST /v1/vault/withdrawals", s.handleWithdraw)
	s.mux.HandleFunc("POST /v1/vault/policy", s.handleSetPolicy)
	s.mux.HandleFunc("POST /v1/vault/administrator/propose", s.handleProposeAdministrator)
	s.mux.HandleFunc("POST /v1/vault/administrator/accept", s.handleAcceptAdministrator)
	s.mux.HandleFunc("GET /v1/vault/balances/{user_id}", s.handleBalance)
	s.mux.HandleFunc("POST /v1/vault/balances/{user_id}/query", s.handleBatchBalances)
	s.mux.HandleFunc("GET /v1/vault/entries/{user_id}", s.handleListEntries)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeVaultError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req vaulthttp.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.vault.Handler.DepositHandler(r.Context(), userID, r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeVaultError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req vaulthttp.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.vault.Handler.WithdrawHandler(r.Context(), userID, r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	adminID := resolveAdminID(r)
	if adminID == "" {
		writeVaultError(w, http.StatusUnauthorized, "missing_admin", "X-Admin-Id header is required")
		return
	}

	var req vaulthttp.SetPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.vault.Handler.SetPolicyHandler(r.Context(), adminID, req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProposeAdministrator(w http.ResponseWriter, r *http.Request) {
	adminID := resolveAdminID(r)
	if adminID == "" {
		writeVaultError(w, http.StatusUnauthorized, "missing_admin", "X-Admin-Id header is required")
		return
	}

	var req vaulthttp.ProposeAdministratorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.vault.Handler.ProposeAdministratorHandler(r.Context(), adminID, req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcceptAdministrator(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeVaultError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.vault.Handler.AcceptAdministratorHandler(r.Context(), userID)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	asset := r.URL.Query().Get("asset")

	resp, err := s.vault.Handler.BalanceHandler(r.Context(), userID, asset)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatchBalances(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var req vaulthttp.BatchBalancesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeVaultError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.vault.Handler.BatchBalancesHandler(r.Context(), userID, req)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeVaultError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeVaultError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}
		offset = parsed
	}

	resp, err := s.vault.Handler.ListEntriesHandler(r.Context(), userID, limit, offset)
	if err != nil {
		writeVaultDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeVaultDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vaultdomainerrors.ErrInvalidInput):
		writeVaultError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrIdempotencyKeyMissing):
		writeVaultError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrIncorrectValue):
		writeVaultError(w, http.StatusUnprocessableEntity, "incorrect_value", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrAmountOverflow):
		writeVaultError(w, http.StatusUnprocessableEntity, "amount_overflow", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrInvalidPolicy),
		errors.Is(err, vaultdomainerrors.ErrInvalidTimeRange):
		writeVaultError(w, http.StatusUnprocessableEntity, "invalid_policy", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrInsufficientBalance):
		writeVaultError(w, http.StatusConflict, "insufficient_balance", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrWithdrawalDenied):
		writeVaultError(w, http.StatusForbidden, "withdrawal_denied", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrNotAdministrator),
		errors.Is(err, vaultdomainerrors.ErrNotPendingAdministrator):
		writeVaultError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrReentrancyBlocked):
		writeVaultError(w, http.StatusConflict, "operation_in_progress", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrIdempotencyConflict):
		writeVaultError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrTransferFailed),
		errors.Is(err, vaultdomainerrors.ErrNativeTransferFailed):
		writeVaultError(w, http.StatusBadGateway, "transfer_failed", err.Error())
	case errors.Is(err, vaultdomainerrors.ErrNotFound):
		writeVaultError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeVaultError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVaultError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, vaulthttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveAdminID(r *http.Request) string {
	if adminID := strings.TrimSpace(r.Header.Get("X-Admin-Id")); adminID != "" {
		return adminID
	}
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}
