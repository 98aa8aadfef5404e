package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"swaplimit/native/limitorder"
	"swaplimit/observability"
	"swaplimit/router"
)

type errorPayload struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, reason string) {
	writeJSON(w, status, errorPayload{
		Error:     http.StatusText(status),
		Reason:    reason,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// fail maps engine and builder errors onto the HTTP status taxonomy: auth
// failures 403, unknown orders 404, malformed input 400, lifecycle and gate
// conflicts 409, exchange reverts 502.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, statusForError(err), err.Error())
}

func statusForError(err error) int {
	var verr *router.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, limitorder.ErrNotAuthorized), errors.Is(err, limitorder.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, limitorder.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, limitorder.ErrInvalidExpiration), errors.Is(err, limitorder.ErrInsufficientDeposit):
		return http.StatusBadRequest
	case errors.Is(err, limitorder.ErrOrderExecuted),
		errors.Is(err, limitorder.ErrOrderNotActive),
		errors.Is(err, limitorder.ErrOrderExpired),
		errors.Is(err, limitorder.ErrPriceBelowTrigger):
		return http.StatusConflict
	case errors.Is(err, limitorder.ErrExecutionReverted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseHexAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

func parsePositiveAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}

func orderIDFromRequest(r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type orderPayload struct {
	ID           uint64 `json:"id"`
	Owner        string `json:"owner"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	TriggerPrice string `json:"trigger_price"`
	CreatedAt    uint64 `json:"created_at"`
	ExpiresAt    uint64 `json:"expires_at"`
	Active       bool   `json:"active"`
	Executed     bool   `json:"executed"`
}

func orderToPayload(order *limitorder.Order) orderPayload {
	return orderPayload{
		ID:           order.ID,
		Owner:        order.Owner.Hex(),
		TokenOut:     order.TokenOut.Hex(),
		AmountIn:     order.AmountIn.String(),
		MinAmountOut: order.MinAmountOut.String(),
		TriggerPrice: order.TriggerPrice.String(),
		CreatedAt:    order.CreatedAt,
		ExpiresAt:    order.ExpiresAt,
		Active:       order.Active,
		Executed:     order.Executed,
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner        string `json:"owner"`
		TokenOut     string `json:"token_out"`
		MinAmountOut string `json:"min_amount_out"`
		TriggerPrice string `json:"trigger_price"`
		ExpiresAt    uint64 `json:"expires_at"`
		Deposit      string `json:"deposit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	owner, ok := parseHexAddress(req.Owner)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "owner must be a hex address")
		return
	}
	tokenOut, ok := parseHexAddress(req.TokenOut)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "token_out must be a hex address")
		return
	}
	minOut, ok := parsePositiveAmount(req.MinAmountOut)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "min_amount_out must be a positive decimal amount")
		return
	}
	trigger, ok := parsePositiveAmount(req.TriggerPrice)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "trigger_price must be a positive decimal amount")
		return
	}
	deposit, ok := parsePositiveAmount(req.Deposit)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "deposit must be a positive decimal amount")
		return
	}
	expiresAt := req.ExpiresAt
	if expiresAt == 0 {
		expiresAt = uint64(s.nowFn().Add(s.cfg.DefaultExpiry).Unix())
	}

	id, err := s.engine.CreateOrder(owner, tokenOut, minOut, trigger, expiresAt, deposit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order_id": id, "expires_at": expiresAt})
}

func (s *Server) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(r)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "order id must be a positive integer")
		return
	}
	order, err := s.engine.OrderDetails(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderToPayload(order))
}

func (s *Server) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseHexAddress(r.URL.Query().Get("owner"))
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "owner query parameter must be a hex address")
		return
	}
	ids, err := s.engine.UserOrders(owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner.Hex(), "order_ids": ids})
}

func (s *Server) handleEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(r)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "order id must be a positive integer")
		return
	}
	executable, reason := s.engine.CanExecute(id)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "executable": executable, "reason": reason})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(r)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "order id must be a positive integer")
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	caller, ok := parseHexAddress(req.Caller)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "caller must be a hex address")
		return
	}
	if err := s.engine.CancelOrder(r.Context(), id, caller); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": "cancelled"})
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDFromRequest(r)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "order id must be a positive integer")
		return
	}
	var req struct {
		Caller        string `json:"caller"`
		AttestedPrice string `json:"attested_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	caller, ok := parseHexAddress(req.Caller)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "caller must be a hex address")
		return
	}
	price, ok := parsePositiveAmount(req.AttestedPrice)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "attested_price must be a positive decimal amount")
		return
	}
	start := time.Now()
	err := s.engine.ExecuteOrder(r.Context(), id, price, caller)
	observability.Orders().ObserveExecution(time.Since(start), err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if balances, berr := s.engine.Balances(); berr == nil {
		observability.Orders().RecordBalances(balances.Escrowed, balances.FeesAccrued)
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": "executed"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Config()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_fee":    cfg.ExecutionFee.String(),
		"min_order_amount": cfg.MinOrderAmount.String(),
		"executor":         cfg.Executor.Hex(),
		"next_order_id":    cfg.NextOrderID,
		"public_execution": cfg.PublicExecution,
	})
}

func (s *Server) handleRouterInfo(w http.ResponseWriter, r *http.Request) {
	info := s.engine.RouterInfo()
	threshold := "0"
	if info.DirectPathThreshold != nil {
		threshold = info.DirectPathThreshold.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"router":                info.Router.Hex(),
		"wrapped_native":        info.WrappedNative.Hex(),
		"factory":               info.Factory.Hex(),
		"intermediate":          info.Intermediate.Hex(),
		"direct_path_threshold": threshold,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := s.engine.Balances()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"escrowed":     balances.Escrowed.String(),
		"fees_accrued": balances.FeesAccrued.String(),
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	tokenOut, ok := parseHexAddress(r.URL.Query().Get("token_out"))
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "token_out query parameter must be a hex address")
		return
	}
	amountIn, ok := parsePositiveAmount(r.URL.Query().Get("amount_in"))
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "amount_in query parameter must be a positive decimal amount")
		return
	}
	path, description := s.engine.OptimalPath(tokenOut, amountIn)
	estimate, _ := s.engine.EstimatedAmountOut(r.Context(), tokenOut, amountIn)
	hops := make([]string, len(path))
	for i, hop := range path {
		hops[i] = hop.Hex()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"amount_in":   amountIn.String(),
		"amount_out":  estimate.String(),
		"path":        hops,
		"description": description,
	})
}

func (s *Server) handleBuildSwap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operation        string   `json:"operation"`
		AmountIn         string   `json:"amount_in"`
		AmountOut        string   `json:"amount_out"`
		TokenPath        []string `json:"token_path"`
		SlippagePercent  float64  `json:"slippage_percent"`
		Deadline         uint64   `json:"deadline"`
		RecipientAccount string   `json:"recipient_account"`
		Recipient        string   `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	build := router.Request{
		Operation:        router.Operation(strings.TrimSpace(req.Operation)),
		SlippagePercent:  req.SlippagePercent,
		Deadline:         req.Deadline,
		RecipientAccount: strings.TrimSpace(req.RecipientAccount),
	}
	if strings.TrimSpace(req.AmountIn) != "" {
		amount, ok := parsePositiveAmount(req.AmountIn)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, "amount_in must be a positive decimal amount")
			return
		}
		build.AmountIn = amount
	}
	if strings.TrimSpace(req.AmountOut) != "" {
		amount, ok := parsePositiveAmount(req.AmountOut)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, "amount_out must be a positive decimal amount")
			return
		}
		build.AmountOut = amount
	}
	for _, hop := range req.TokenPath {
		addr, ok := parseHexAddress(hop)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, "token_path entries must be hex addresses")
			return
		}
		build.TokenPath = append(build.TokenPath, addr)
	}
	if strings.TrimSpace(req.Recipient) != "" {
		addr, ok := parseHexAddress(req.Recipient)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, "recipient must be a hex address")
			return
		}
		build.Recipient = addr
	}

	prepared, err := s.builder.Prepare(r.Context(), build)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	hops := make([]string, len(prepared.Path))
	for i, hop := range prepared.Path {
		hops[i] = hop.Hex()
	}
	bounds := map[string]string{}
	if prepared.Bounds.In != nil {
		bounds["amount_in"] = prepared.Bounds.In.String()
	}
	if prepared.Bounds.OutMin != nil {
		bounds["amount_out_min"] = prepared.Bounds.OutMin.String()
	}
	if prepared.Bounds.Out != nil {
		bounds["amount_out"] = prepared.Bounds.Out.String()
	}
	if prepared.Bounds.InMax != nil {
		bounds["amount_in_max"] = prepared.Bounds.InMax.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operation": string(prepared.Operation),
		"method":    prepared.Call.Method,
		"to":        prepared.Call.To.Hex(),
		"data":      hexutil.Encode(prepared.Call.Data),
		"value":     prepared.Call.Value.String(),
		"bounds":    bounds,
		"path":      hops,
		"quote": map[string]string{
			"amount_in":  prepared.Quote.AmountIn.String(),
			"amount_out": prepared.Quote.AmountOut.String(),
			"source":     string(prepared.Quote.Source),
		},
		"recipient": map[string]string{
			"account": prepared.Recipient.Account,
			"address": prepared.Recipient.Address.Hex(),
			"source":  string(prepared.Recipient.Source),
		},
		"deadline":         prepared.Deadline,
		"slippage_percent": prepared.Slippage,
	})
}
