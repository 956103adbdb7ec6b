// Package api is the merchant-facing HTTP entry point: it deserializes
// a payment request, drives it through the orchestrator, and
// serializes the response. This is explicitly an external collaborator
// of the routing core — HTTP deserialization is not part of the
// core's tested invariants — but it's the ambient surface every
// service in this codebase carries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/payrouter/engine/internal/ledger"
	"github.com/payrouter/engine/internal/middleware"
	"github.com/payrouter/engine/internal/orchestrator"
)

type paymentRequest struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
	MerchantID    string  `json:"merchant_id"`
}

type paymentResponse struct {
	TransactionID    string                         `json:"transaction_id"`
	Success          bool                           `json:"success"`
	RouteDecision    string                         `json:"route_decision"`
	InterventionPlan string                         `json:"intervention_plan"`
	LastError        string                         `json:"last_error"`
	AttemptCount     int                            `json:"attempt_count"`
	History          []historyEntryView             `json:"history"`
}

type historyEntryView struct {
	Step          string `json:"step"`
	Gateway       string `json:"gateway,omitempty"`
	BreakerStatus string `json:"breaker_status,omitempty"`
	Success       bool   `json:"success,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Summary       string `json:"summary,omitempty"`
}

// Handler wraps an Orchestrator as the /payments entry point. ledger is
// optional — a nil ledger allows every attempt through unthrottled.
type Handler struct {
	orch    *orchestrator.Orchestrator
	ledger  ledger.Ledger
	log     *zap.SugaredLogger
	timeout time.Duration
}

func NewHandler(orch *orchestrator.Orchestrator, led ledger.Ledger, log *zap.SugaredLogger, requestTimeout time.Duration) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Handler{orch: orch, ledger: led, log: log, timeout: requestTimeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if len(req.Currency) != 3 {
		http.Error(w, "currency must be a 3-letter code", http.StatusBadRequest)
		return
	}
	if req.TransactionID == "" {
		req.TransactionID = middleware.RequestIDFrom(r)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.ledger != nil && req.MerchantID != "" {
		if err := h.ledger.Allow(ctx, req.MerchantID); err != nil {
			var throttled *ledger.ErrThrottled
			if errors.As(err, &throttled) {
				w.Header().Set("Retry-After", throttled.RetryAfter.Round(time.Second).String())
				http.Error(w, "merchant attempt budget exceeded", http.StatusTooManyRequests)
				return
			}
		}
	}

	resp := h.orch.Process(ctx, orchestrator.Request{
		TransactionID: req.TransactionID,
		Context: orchestrator.PaymentContext{
			Amount:     req.Amount,
			Currency:   req.Currency,
			Method:     req.PaymentMethod,
			MerchantID: req.MerchantID,
		},
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toView(resp))
}

func toView(resp orchestrator.Response) paymentResponse {
	history := make([]historyEntryView, 0, len(resp.History))
	for _, h := range resp.History {
		v := historyEntryView{
			Step:          string(h.Step),
			Gateway:       h.Gateway,
			BreakerStatus: h.BreakerStatus,
			Success:       h.ExecuteSuccess,
			ErrorKind:     string(h.ErrorKind),
		}
		if h.Decision != nil {
			v.Summary = h.Decision.Summary
		}
		history = append(history, v)
	}
	return paymentResponse{
		TransactionID:    resp.TransactionID,
		Success:          resp.Success,
		RouteDecision:    resp.RouteDecision,
		InterventionPlan: string(resp.InterventionPlan),
		LastError:        string(resp.LastError),
		AttemptCount:     resp.AttemptCount,
		History:          history,
	}
}
