package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"vaultledger/internal/core"
	"vaultledger/internal/ledger"
	"vaultledger/internal/queue"
)

// buildRoutes wires the JSON API onto a gateway mux. Amounts cross the wire
// as decimal strings; timestamps are assigned here so the core never reads
// the wall clock itself.
func (s *Server) buildRoutes() (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		// Commands
		{"POST", "/v1/deposits/spot", s.instrument("deposit_spot", s.handleDepositSpot)},
		{"POST", "/v1/deposits/perp", s.instrument("deposit_perp", s.handleDepositPerp)},
		{"POST", "/v1/withdrawals/spot", s.instrument("withdraw_spot", s.handleWithdrawSpot)},
		{"POST", "/v1/withdrawals/perp", s.instrument("withdraw_perp", s.handleWithdrawPerp)},
		{"POST", "/v1/claims", s.instrument("claim", s.handleClaim)},

		// Queries
		{"GET", "/v1/pools/{pool_id}/balances/{token}/{user_id}", s.instrument("balance", s.handleGetBalance)},
		{"GET", "/v1/users/{user_id}/balances", s.instrument("user_balances", s.handleUserBalances)},
		{"GET", "/v1/users/{user_id}/activity", s.instrument("activity", s.handleActivity)},
		{"GET", "/v1/queue/status", s.instrument("queue_status", s.handleQueueStatus)},
		{"GET", "/v1/queue/entries/{entry_id}", s.instrument("queue_entry", s.handleQueueEntry)},
		{"GET", "/v1/queue/pending", s.instrument("queue_pending", s.handleQueuePending)},
		{"GET", "/v1/status", s.instrument("status", s.handleStatus)},

		// Admin
		{"POST", "/v1/admin/pools", s.instrument("add_pool", s.handleAddPool)},
		{"POST", "/v1/admin/pools/{pool_id}/tokens", s.instrument("add_tokens", s.handleAddTokens)},
		{"PUT", "/v1/admin/pools/{pool_id}/hardcaps", s.instrument("update_hardcaps", s.handleUpdateHardcaps)},
		{"PUT", "/v1/admin/instruments/{token}", s.instrument("bind_instrument", s.handleBindInstrument)},
		{"POST", "/v1/admin/pauses", s.instrument("set_pauses", s.handleSetPauses)},
		{"POST", "/v1/admin/snapshot", s.instrument("snapshot", s.handleSnapshot)},
		{"GET", "/v1/admin/integrity", s.instrument("integrity", s.handleIntegrity)},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return mux, nil
}

// instrument wraps a handler with request counting and latency metrics.
func (s *Server) instrument(endpoint string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r, pathParams)
		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ================================
// Command handlers
// ================================

type depositSpotRequest struct {
	Sender     string `json:"sender"`
	PoolID     uint64 `json:"pool_id"`
	BaseToken  string `json:"base_token"`
	QuoteToken string `json:"quote_token"`
	BaseAmount string `json:"base_amount"`
	MinQuote   string `json:"min_quote"`
	MaxQuote   string `json:"max_quote"`
	Receiver   string `json:"receiver"`
}

type enqueueResponse struct {
	EntryID uint64 `json:"entry_id"`
}

func (s *Server) handleDepositSpot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req depositSpotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sender, err := uuid.Parse(req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("sender: %w", err))
		return
	}
	receiver, err := uuid.Parse(req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("receiver: %w", err))
		return
	}
	baseAmount, err := parseAmount(req.BaseAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("base_amount: %w", err))
		return
	}
	minQuote, err := parseAmount(req.MinQuote)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("min_quote: %w", err))
		return
	}
	maxQuote, err := parseAmount(req.MaxQuote)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("max_quote: %w", err))
		return
	}

	entryID, err := s.deps.Engine.DepositSpot(r.Context(), core.DepositSpotParams{
		Sender:     sender,
		PoolID:     req.PoolID,
		BaseToken:  req.BaseToken,
		QuoteToken: req.QuoteToken,
		BaseAmount: baseAmount,
		MinQuote:   minQuote,
		MaxQuote:   maxQuote,
		Receiver:   receiver,
	}, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{EntryID: entryID})
}

type depositPerpRequest struct {
	Sender   string `json:"sender"`
	PoolID   uint64 `json:"pool_id"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Receiver string `json:"receiver"`
}

func (s *Server) handleDepositPerp(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req depositPerpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sender, err := uuid.Parse(req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("sender: %w", err))
		return
	}
	receiver, err := uuid.Parse(req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("receiver: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount: %w", err))
		return
	}

	entryID, err := s.deps.Engine.DepositPerp(r.Context(), core.DepositPerpParams{
		Sender:   sender,
		PoolID:   req.PoolID,
		Token:    req.Token,
		Amount:   amount,
		Receiver: receiver,
	}, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{EntryID: entryID})
}

type withdrawSpotRequest struct {
	Sender      string `json:"sender"`
	PoolID      uint64 `json:"pool_id"`
	BaseToken   string `json:"base_token"`
	QuoteToken  string `json:"quote_token"`
	BaseShares  string `json:"base_shares"`
	QuoteShares string `json:"quote_shares"`
	Receiver    string `json:"receiver"`
}

func (s *Server) handleWithdrawSpot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req withdrawSpotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sender, err := uuid.Parse(req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("sender: %w", err))
		return
	}
	receiver, err := uuid.Parse(req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("receiver: %w", err))
		return
	}
	baseShares, err := parseAmount(req.BaseShares)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("base_shares: %w", err))
		return
	}
	quoteShares, err := parseAmount(req.QuoteShares)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("quote_shares: %w", err))
		return
	}

	entryID, err := s.deps.Engine.WithdrawSpot(r.Context(), core.WithdrawSpotParams{
		Sender:      sender,
		PoolID:      req.PoolID,
		BaseToken:   req.BaseToken,
		QuoteToken:  req.QuoteToken,
		BaseShares:  baseShares,
		QuoteShares: quoteShares,
		Receiver:    receiver,
	}, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{EntryID: entryID})
}

type withdrawPerpRequest struct {
	Sender   string `json:"sender"`
	PoolID   uint64 `json:"pool_id"`
	Token    string `json:"token"`
	Shares   string `json:"shares"`
	Receiver string `json:"receiver"`
}

func (s *Server) handleWithdrawPerp(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req withdrawPerpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sender, err := uuid.Parse(req.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("sender: %w", err))
		return
	}
	receiver, err := uuid.Parse(req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("receiver: %w", err))
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("shares: %w", err))
		return
	}

	entryID, err := s.deps.Engine.WithdrawPerp(r.Context(), core.WithdrawPerpParams{
		Sender:   sender,
		PoolID:   req.PoolID,
		Token:    req.Token,
		Shares:   shares,
		Receiver: receiver,
	}, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{EntryID: entryID})
}

type claimRequest struct {
	PoolID uint64 `json:"pool_id"`
	Token  string `json:"token"`
	User   string `json:"user"`
}

type claimResponse struct {
	FeePart  string `json:"fee_part"`
	UserPart string `json:"user_part"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := uuid.Parse(req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user: %w", err))
		return
	}

	feePart, userPart, err := s.deps.Engine.Claim(r.Context(), core.ClaimParams{
		PoolID: req.PoolID,
		Token:  req.Token,
		User:   user,
	}, time.Now().UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		FeePart:  feePart.String(),
		UserPart: userPart.String(),
	})
}

// ================================
// Query handlers
// ================================

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := strconv.ParseUint(pathParams["pool_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("pool_id: %w", err))
		return
	}
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user_id: %w", err))
		return
	}
	resp, err := s.deps.Query.GetBalance(r.Context(), poolID, pathParams["token"], userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserBalances(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user_id: %w", err))
		return
	}
	balances, err := s.deps.Query.GetUserBalances(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user_id: %w", err))
		return
	}
	limit := queryLimit(r, 50)
	entries := s.deps.Query.GetActivity(userID, limit)
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.deps.Query.GetQueueStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueueEntry(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	entryID, err := strconv.ParseUint(pathParams["entry_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("entry_id: %w", err))
		return
	}
	resp, err := s.deps.Query.GetQueueEntry(r.Context(), entryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if resp == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("entry %d not found", entryID))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueuePending(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := queryLimit(r, 100)
	entries, err := s.deps.Query.ListPendingEntries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	hash := s.deps.Engine.StateHash()
	upTo, pending := s.deps.Engine.QueueStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"sequence":       s.deps.Engine.Sequence(),
		"state_hash":     fmt.Sprintf("%x", hash[:]),
		"queue_up_to":    upTo,
		"queue_pending":  pending,
		"started_at":     s.deps.StartTime.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
	})
}

// ================================
// Admin handlers
// ================================

type addPoolRequest struct {
	PoolID uint64 `json:"pool_id"`
	Kind   string `json:"kind"`
	Tokens []struct {
		Token    string `json:"token"`
		Hardcap  string `json:"hardcap"`
		Decimals uint8  `json:"decimals"`
	} `json:"tokens"`
}

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req addPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kind, err := ledger.ParsePoolKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokens := make([]string, 0, len(req.Tokens))
	hardcaps := make([]sdkmath.Int, 0, len(req.Tokens))
	decimals := make([]uint8, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		hc, err := parseAmount(t.Hardcap)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("hardcap for %s: %w", t.Token, err))
			return
		}
		tokens = append(tokens, t.Token)
		hardcaps = append(hardcaps, hc)
		decimals = append(decimals, t.Decimals)
	}
	if err := s.deps.Engine.AddPool(r.Context(), req.PoolID, kind, tokens, hardcaps, decimals, time.Now().UTC()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": req.PoolID, "tokens": tokens})
}

type addTokensRequest struct {
	Tokens []struct {
		Token    string `json:"token"`
		Hardcap  string `json:"hardcap"`
		Decimals uint8  `json:"decimals"`
	} `json:"tokens"`
}

func (s *Server) handleAddTokens(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := strconv.ParseUint(pathParams["pool_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("pool_id: %w", err))
		return
	}
	var req addTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tokens := make([]string, 0, len(req.Tokens))
	hardcaps := make([]sdkmath.Int, 0, len(req.Tokens))
	decimals := make([]uint8, 0, len(req.Tokens))
	for _, t := range req.Tokens {
		hc, err := parseAmount(t.Hardcap)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("hardcap for %s: %w", t.Token, err))
			return
		}
		tokens = append(tokens, t.Token)
		hardcaps = append(hardcaps, hc)
		decimals = append(decimals, t.Decimals)
	}
	if err := s.deps.Engine.AddPoolTokens(r.Context(), poolID, tokens, hardcaps, decimals, time.Now().UTC()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": poolID, "tokens": tokens})
}

type updateHardcapsRequest struct {
	Tokens   []string `json:"tokens"`
	Hardcaps []string `json:"hardcaps"`
}

func (s *Server) handleUpdateHardcaps(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := strconv.ParseUint(pathParams["pool_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("pool_id: %w", err))
		return
	}
	var req updateHardcapsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	hardcaps := make([]sdkmath.Int, 0, len(req.Hardcaps))
	for i, h := range req.Hardcaps {
		hc, err := parseAmount(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("hardcaps[%d]: %w", i, err))
			return
		}
		hardcaps = append(hardcaps, hc)
	}
	if err := s.deps.Engine.UpdateHardcaps(poolID, req.Tokens, hardcaps, time.Now().UTC()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": poolID})
}

type bindInstrumentRequest struct {
	InstrumentID uint32 `json:"instrument_id"`
}

func (s *Server) handleBindInstrument(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req bindInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token := pathParams["token"]
	if err := s.deps.Engine.UpdateInstrumentID(token, req.InstrumentID, time.Now().UTC()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "instrument_id": req.InstrumentID})
}

type setPausesRequest struct {
	Deposits    bool `json:"deposits"`
	Withdrawals bool `json:"withdrawals"`
	Claims      bool `json:"claims"`
}

func (s *Server) handleSetPauses(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req setPausesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.deps.Engine.SetPauses(req.Deposits, req.Withdrawals, req.Claims, time.Now().UTC())
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.deps.SnapshotMgr == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("snapshots not configured"))
		return
	}
	snap := s.deps.Engine.CreateSnapshotState()
	size, err := s.deps.SnapshotMgr.SaveSnapshot(r.Context(), snap, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sequence":   snap.Sequence,
		"size_bytes": size,
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ================================
// Helpers
// ================================

func parseAmount(s string) (sdkmath.Int, error) {
	if s == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeEngineError maps core and ledger errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnknownPool),
		errors.Is(err, ledger.ErrUnknownToken),
		errors.Is(err, ledger.ErrUnknownInstrument):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ledger.ErrDuplicatePool),
		errors.Is(err, ledger.ErrAlreadySupported):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, core.ErrDepositsPaused),
		errors.Is(err, core.ErrWithdrawalsPaused),
		errors.Is(err, core.ErrClaimsPaused):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, core.ErrSlippageTooHigh),
		errors.Is(err, core.ErrZeroAmount),
		errors.Is(err, core.ErrNilReceiver),
		errors.Is(err, core.ErrSameToken),
		errors.Is(err, ledger.ErrWrongPoolKind),
		errors.Is(err, ledger.ErrUnsupportedDecimals),
		errors.Is(err, ledger.ErrLengthMismatch):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrHardcapReached),
		errors.Is(err, ledger.ErrTokenNotActive),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, queue.ErrStaleEntry),
		errors.Is(err, queue.ErrEmptyQueue):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
