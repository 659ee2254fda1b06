package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRestricted is returned for HTTP 451; the location is blocked and
	// retrying cannot help.
	ErrRestricted = errors.New("binance: service unavailable from a restricted location")
	// ErrRetriesExhausted wraps the last failure after the attempt bound.
	ErrRetriesExhausted = errors.New("binance: retries exhausted")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("binance: circuit breaker open")
)

// APIError is a non-2xx exchange response.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error: status=%d code=%d msg=%s", e.StatusCode, e.Code, e.Message)
}

// Outcome classifies a single attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeRetryable
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Result is what one attempt produced. The request loop only looks at
// Outcome to decide whether to continue.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Err        error
	RetryAfter time.Duration
}

// Binance error codes the client reacts to.
const (
	codeDisconnected    = -1001
	codeTooManyRequests = -1003
	codeServiceShutdown = -1016
)

// classify maps a response to an attempt Result.
func classify(status int, body []byte, header http.Header) Result {
	res := Result{StatusCode: status, Body: body}

	if status >= 200 && status < 300 {
		res.Outcome = OutcomeSuccess
		return res
	}

	apiErr := &APIError{StatusCode: status}
	_ = json.Unmarshal(body, apiErr)
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	res.Err = apiErr

	switch {
	case status == http.StatusUnavailableForLegalReasons:
		res.Outcome = OutcomePermanent
		res.Err = fmt.Errorf("%w: %v", ErrRestricted, apiErr)
	case status == http.StatusTooManyRequests || status == http.StatusTeapot || apiErr.Code == codeTooManyRequests:
		res.Outcome = OutcomeRateLimited
		res.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	case status >= 500 || apiErr.Code == codeDisconnected || apiErr.Code == codeServiceShutdown:
		res.Outcome = OutcomeRetryable
	default:
		res.Outcome = OutcomePermanent
	}
	return res
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
