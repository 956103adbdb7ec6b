package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// HTTPFleet proxies Execute calls to real per-gateway backend URLs over
// HTTP. The transport uses reverse-proxy-style dial/timeout tuning for
// outbound upstream calls: short dial timeout, bounded idle connections,
// no TLS surprises.
type HTTPFleet struct {
	backends map[string]string // label -> base URL
	client   *http.Client
}

// NewHTTPFleet builds a fleet that POSTs {amount, currency} as JSON to
// "<base-url>/charge" and expects {status, error_code, latency_ms}.
func NewHTTPFleet(backends map[string]string, timeout time.Duration) *HTTPFleet {
	return &HTTPFleet{
		backends: backends,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

type chargeRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type chargeResponse struct {
	Status    string  `json:"status"`
	ErrorCode string  `json:"error_code"`
	LatencyMS float64 `json:"latency_ms"`
}

func (f *HTTPFleet) Execute(ctx context.Context, gatewayLabel string, amount float64, currency string) Outcome {
	base, ok := f.backends[gatewayLabel]
	if !ok {
		return Outcome{Status: StatusNotFound, Gateway: gatewayLabel}
	}

	body, _ := json.Marshal(chargeRequest{Amount: amount, Currency: currency})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/charge", bytes.NewReader(body))
	if err != nil {
		return Outcome{Status: StatusFailure, Gateway: gatewayLabel, ErrorKind: ErrorTimeout}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{Status: StatusFailure, Gateway: gatewayLabel, ErrorKind: ErrorTimeout, LatencyMS: float64(time.Since(start).Milliseconds())}
	}
	defer resp.Body.Close()

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Outcome{Status: StatusFailure, Gateway: gatewayLabel, ErrorKind: ErrorTimeout}
	}

	if out.Status == "success" {
		return Outcome{Status: StatusSuccess, Gateway: gatewayLabel, LatencyMS: out.LatencyMS}
	}
	return Outcome{Status: StatusFailure, Gateway: gatewayLabel, LatencyMS: out.LatencyMS, ErrorKind: ErrorKind(out.ErrorCode)}
}
