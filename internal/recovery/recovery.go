// Package recovery implements the pure, stateless mapping from a
// gateway error kind (plus transaction history, for the audit trail)
// to an intervention decision. No randomness, no clock reads: the same
// inputs always yield the same outputs.
package recovery

import (
	"fmt"
	"strings"

	"github.com/payrouter/engine/internal/gateway"
)

// Action is the intervention category the orchestrator acts on.
type Action string

const (
	ActionNone           Action = "none"
	ActionRetry          Action = "retry"
	ActionRetryAlternate Action = "retry_alternate"
	ActionBlock          Action = "block"
	ActionEscalate       Action = "escalate"
)

// Decision is the full output of Analyze: the action to take, a
// confidence score, a one-line summary for UI display, and a longer
// reasoning narrative for audit/dashboard consumption.
type Decision struct {
	Action     Action
	Confidence float64
	Summary    string
	Reason     string
}

// HistoryEntry is one step record from the transaction's audit trail.
// Analyze only reads it to build the Reason narrative; it never
// affects the Action chosen — the decision table is keyed solely on
// error kind.
type HistoryEntry struct {
	Step string
	Data string
}

// Analyze maps an error kind to an intervention decision.
func Analyze(errorKind gateway.ErrorKind, history []HistoryEntry) Decision {
	var b strings.Builder
	fmt.Fprintf(&b, "ANALYSIS OF FAILURE: %s\n", string(errorKind))
	fmt.Fprintf(&b, "Observation: gateway returned %q.\n", string(errorKind))
	fmt.Fprintf(&b, "History depth: %d prior step(s).\n", len(history))

	switch errorKind {
	case gateway.ErrorNone:
		b.WriteString("No error: transaction succeeded, no intervention needed.")
		return Decision{
			Action:     ActionNone,
			Confidence: 1.0,
			Summary:    "Transaction successful; no intervention needed.",
			Reason:     b.String(),
		}
	case gateway.ErrorTimeout:
		b.WriteString("Transient network condition; same routing policy is likely to succeed on retry.")
		return Decision{
			Action:     ActionRetry,
			Confidence: 0.9,
			Summary:    "Transient timeout detected; retrying.",
			Reason:     b.String(),
		}
	case gateway.ErrorInsufficientFunds:
		b.WriteString("Permanent user-side condition; retrying wastes gateway capacity and will not succeed.")
		return Decision{
			Action:     ActionBlock,
			Confidence: 0.95,
			Summary:    "Insufficient funds; blocking further attempts.",
			Reason:     b.String(),
		}
	case gateway.ErrorBankDecline:
		b.WriteString("Generic decline; a different gateway may have better acceptance for this instrument.")
		return Decision{
			Action:     ActionRetryAlternate,
			Confidence: 0.6,
			Summary:    "Bank declined; retrying on an alternate gateway.",
			Reason:     b.String(),
		}
	case gateway.ErrorFraudBlock:
		b.WriteString("Risk-side block; stopping to avoid a chargeback or repeated fraud signal.")
		return Decision{
			Action:     ActionBlock,
			Confidence: 0.99,
			Summary:    "Fraud risk detected; blocking.",
			Reason:     b.String(),
		}
	default:
		b.WriteString("Unrecognized error code; requires operator review.")
		return Decision{
			Action:     ActionEscalate,
			Confidence: 0.5,
			Summary:    "Unknown error; escalated to operator.",
			Reason:     b.String(),
		}
	}
}
