// Package gateway implements the sole I/O boundary of the routing core:
// a side-effecting call to a named payment gateway that returns an
// outcome or an error kind. No retry or logging happens here — retries
// are the orchestrator's job. The only timeout applied here is
// HTTPFleet's per-call HTTP client timeout.
package gateway

import (
	"context"
)

// ErrorKind classifies a failed gateway call.
type ErrorKind string

const (
	ErrorNone               ErrorKind = ""
	ErrorTimeout            ErrorKind = "TIMEOUT"
	ErrorInsufficientFunds  ErrorKind = "INSUFFICIENT_FUNDS"
	ErrorBankDecline        ErrorKind = "BANK_DECLINE"
	ErrorFraudBlock         ErrorKind = "FRAUD_BLOCK"
	ErrorNotFound           ErrorKind = "NOT_FOUND"
	ErrorCancelled          ErrorKind = "CANCELLED"
)

// Status tags the three possible shapes of an Outcome.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusNotFound Status = "not_found"
)

// Outcome is the tagged variant returned by Execute.
type Outcome struct {
	Status    Status
	Gateway   string
	LatencyMS float64
	ErrorKind ErrorKind
}

func (o Outcome) Success() bool { return o.Status == StatusSuccess }

// Effect is the pluggable boundary the core depends on. It must be
// replaceable by a scripted test double — see Scripted.
//
// Execute may panic to signal a transient infrastructure fault; the
// orchestrator recovers and normalizes the panic to ErrorTimeout. It
// must never panic to signal a business outcome — use Outcome.Status
// for that.
type Effect interface {
	Execute(ctx context.Context, gatewayLabel string, amount float64, currency string) Outcome
}

