// Package orchestrator wires the router, sentinel, recovery analyzer,
// and gateway effect into the transaction state machine: ROUTE ->
// EXECUTE -> RECOVER -> {ROUTE | END}. It owns transaction-scoped state
// exclusively; the router and sentinel are shared process-wide
// services it coordinates but does not own.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/payrouter/engine/internal/gateway"
	"github.com/payrouter/engine/internal/recovery"
	"github.com/payrouter/engine/internal/router"
	"github.com/payrouter/engine/internal/sentinel"
)

const defaultMaxAttempts = 3

// Step names the kind of a HistoryEntry record.
type Step string

const (
	StepRoute     Step = "route"
	StepExecute   Step = "execute"
	StepRecovery  Step = "recovery"
	StepCancelled Step = "cancelled"
)

// HistoryEntry is one tagged audit-trail record. Fields outside a
// record's Step are left zero.
type HistoryEntry struct {
	Step           Step
	Gateway        string
	BreakerStatus  string
	ExecuteSuccess bool
	ErrorKind      gateway.ErrorKind
	Decision       *recovery.Decision
}

// PaymentContext is the immutable input to one transaction.
type PaymentContext struct {
	Amount     float64
	Currency   string
	Method     string
	MerchantID string
}

// Request is the orchestrator entry-point payload.
type Request struct {
	TransactionID string
	Context       PaymentContext
}

// Response is the orchestrator entry-point result.
type Response struct {
	TransactionID      string
	Success            bool
	RouteDecision      string
	InterventionPlan   recovery.Action
	LastError          gateway.ErrorKind
	AttemptCount       int
	History            []HistoryEntry
}

// transactionState is mutated only by Orchestrator steps and discarded
// once Process returns.
type transactionState struct {
	transactionID    string
	context          PaymentContext
	routeDecision    string
	attemptCount     int
	lastError        gateway.ErrorKind
	success          bool
	interventionPlan recovery.Action
	history          []HistoryEntry
}

// Orchestrator drives one transaction at a time through the state
// machine. A single Orchestrator is safe for concurrent use across
// many transactions: it holds no transaction-scoped state itself, and
// the router/sentinel it depends on are safe for concurrent use.
type Orchestrator struct {
	router      *router.Router
	sentinel    *sentinel.Sentinel
	effect      gateway.Effect
	maxAttempts int
	gateways    []string // fixed scan order for the OPEN-avoidance fallback
	log         *zap.SugaredLogger
	recent      *RecentBuffer // optional; nil is fine
}

// New builds an Orchestrator. gateways fixes the deterministic scan
// order used by the ROUTE step's OPEN-avoidance fallback.
func New(r *router.Router, s *sentinel.Sentinel, effect gateway.Effect, gateways []string, maxAttempts int, log *zap.SugaredLogger) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Orchestrator{
		router:      r,
		sentinel:    s,
		effect:      effect,
		maxAttempts: maxAttempts,
		gateways:    gateways,
		log:         log,
	}
}

// WithRecentBuffer attaches a bounded recent-transactions feed; every
// completed Response is appended to it. Used by the dashboard endpoint.
func (o *Orchestrator) WithRecentBuffer(rb *RecentBuffer) *Orchestrator {
	o.recent = rb
	return o
}

// Process runs a transaction to completion: at most maxAttempts calls
// to the gateway effect, terminating in END with a final Response.
func (o *Orchestrator) Process(ctx context.Context, req Request) Response {
	st := &transactionState{
		transactionID: req.TransactionID,
		context:       req.Context,
	}

	for {
		if err := ctx.Err(); err != nil {
			st.success = false
			st.lastError = gateway.ErrorCancelled
			st.history = append(st.history, HistoryEntry{Step: StepCancelled})
			break
		}

		o.routeStep(st)
		o.executeStep(ctx, st)
		o.recoverStep(st)

		if o.shouldEnd(st) {
			break
		}
		st.attemptCount++
	}

	resp := Response{
		TransactionID:    st.transactionID,
		Success:          st.success,
		RouteDecision:    st.routeDecision,
		InterventionPlan: st.interventionPlan,
		LastError:        st.lastError,
		AttemptCount:     st.attemptCount,
		History:          st.history,
	}
	if o.recent != nil {
		o.recent.Add(resp)
	}
	return resp
}

// routeStep selects a gateway: a Thompson sample from the router, then
// an OPEN-avoidance pass via the sentinel, then — if the last
// intervention was retry_alternate — an exclusion of the previously
// failing gateway when a non-OPEN alternative exists.
func (o *Orchestrator) routeStep(st *transactionState) {
	g0, err := o.router.Select()
	if err != nil {
		// Empty gateway set is a configuration error; there is nothing
		// sensible to route to. Record it and let EXECUTE surface a
		// not-found-shaped terminal failure.
		st.routeDecision = ""
		st.history = append(st.history, HistoryEntry{Step: StepRoute, Gateway: "", BreakerStatus: "n/a"})
		return
	}

	selected := g0
	if o.sentinel.Status(selected) == sentinel.Open {
		for _, g := range o.gateways {
			if o.sentinel.Status(g) != sentinel.Open {
				selected = g
				break
			}
		}
		// If every gateway is OPEN, keep g0 — the failure path below
		// exercises the breaker, as specified.
	}

	if st.interventionPlan == recovery.ActionRetryAlternate && st.routeDecision != "" {
		selected = o.excludePrior(selected, st.routeDecision)
	}

	st.routeDecision = selected
	st.history = append(st.history, HistoryEntry{
		Step:          StepRoute,
		Gateway:       selected,
		BreakerStatus: o.sentinel.Status(selected).String(),
	})
}

// excludePrior implements the stronger retry_alternate semantics (see
// DESIGN.md open question 1): exclude the previous attempt's gateway
// from eligibility, falling back to it only if it is the sole
// non-OPEN option.
func (o *Orchestrator) excludePrior(current, prior string) string {
	if current != prior {
		return current
	}
	for _, g := range o.gateways {
		if g == prior {
			continue
		}
		if o.sentinel.Status(g) != sentinel.Open {
			return g
		}
	}
	// prior is the only non-OPEN option available.
	return current
}

// executeStep invokes the gateway effect exactly once, recovering any
// panic as a normalized TIMEOUT failure, then updates the router and
// sentinel exactly once for this attempt.
func (o *Orchestrator) executeStep(ctx context.Context, st *transactionState) {
	if st.routeDecision == "" {
		// Configuration error path: nothing to execute against.
		st.success = false
		st.lastError = gateway.ErrorNotFound
		st.history = append(st.history, HistoryEntry{Step: StepExecute, ErrorKind: gateway.ErrorNotFound})
		return
	}

	start := time.Now()
	outcome := o.safeExecute(ctx, st.routeDecision, st.context.Amount, st.context.Currency)
	elapsed := time.Since(start)
	observeAttempt(st.routeDecision, string(outcome.Status), elapsed)

	switch outcome.Status {
	case gateway.StatusSuccess:
		st.success = true
		st.lastError = gateway.ErrorNone
		o.router.Update(st.routeDecision, true)
		o.sentinel.Record(st.routeDecision, true)
		st.history = append(st.history, HistoryEntry{Step: StepExecute, Gateway: st.routeDecision, ExecuteSuccess: true})

	case gateway.StatusNotFound:
		// Configuration error: the label doesn't exist. Treated as a
		// terminal failure, never retried, and never fed back into the
		// router or sentinel (there is no posterior for a gateway that
		// doesn't exist).
		st.success = false
		st.lastError = gateway.ErrorNotFound
		st.history = append(st.history, HistoryEntry{Step: StepExecute, Gateway: st.routeDecision, ErrorKind: gateway.ErrorNotFound})

	default: // StatusFailure
		st.success = false
		st.lastError = outcome.ErrorKind
		o.router.Update(st.routeDecision, false)
		o.sentinel.Record(st.routeDecision, false)
		st.history = append(st.history, HistoryEntry{Step: StepExecute, Gateway: st.routeDecision, ErrorKind: outcome.ErrorKind})
	}
}

// safeExecute invokes the gateway effect, converting a panic into a
// Failure{TIMEOUT} outcome rather than propagating it — C1 is data,
// not an exception boundary, from the orchestrator's point of view.
func (o *Orchestrator) safeExecute(ctx context.Context, gatewayLabel string, amount float64, currency string) (outcome gateway.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			if o.log != nil {
				o.log.Warnw("gateway effect panicked; normalizing to TIMEOUT", "gateway", gatewayLabel, "panic", fmt.Sprint(r))
			}
			outcome = gateway.Outcome{Status: gateway.StatusFailure, Gateway: gatewayLabel, ErrorKind: gateway.ErrorTimeout}
		}
	}()
	return o.effect.Execute(ctx, gatewayLabel, amount, currency)
}

// recoverStep analyzes the last error (none, on success) and records
// the resulting intervention plan.
func (o *Orchestrator) recoverStep(st *transactionState) {
	if st.lastError == gateway.ErrorNotFound {
		// NotFound is non-retriable by construction; the transition
		// predicate's attempt-count/intervention checks never see a
		// retry-shaped plan for it.
		decision := recovery.Decision{Action: recovery.ActionBlock, Confidence: 1.0, Summary: "Unknown gateway; configuration error.", Reason: "gateway label not found in configured set"}
		st.interventionPlan = decision.Action
		st.history = append(st.history, HistoryEntry{Step: StepRecovery, Decision: &decision})
		return
	}

	history := make([]recovery.HistoryEntry, 0, len(st.history))
	for _, h := range st.history {
		history = append(history, recovery.HistoryEntry{Step: string(h.Step), Data: fmt.Sprintf("%+v", h)})
	}

	decision := recovery.Analyze(st.lastError, history)
	st.interventionPlan = decision.Action
	st.history = append(st.history, HistoryEntry{Step: StepRecovery, Decision: &decision})
}

// shouldEnd implements the transition predicate after RECOVER.
//
// attemptCount is the 0-based index of the call just made; it is
// incremented only when the loop goes round again. Ending at attemptCount >=
// maxAttempts-1 means this was the maxAttempts-th call — the hard cap
// on C1 invocations per transaction.
func (o *Orchestrator) shouldEnd(st *transactionState) bool {
	if st.success {
		return true
	}
	if st.attemptCount >= o.maxAttempts-1 {
		return true
	}
	if st.interventionPlan == recovery.ActionRetry || st.interventionPlan == recovery.ActionRetryAlternate {
		return false
	}
	return true
}
