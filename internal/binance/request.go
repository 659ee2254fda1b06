package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sony/gobreaker"
)

// ErrMissingCredentials is returned by signed calls on a keyless client.
var ErrMissingCredentials = errors.New("binance: api key and secret required for signed endpoint")

func (c *Client) publicGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.call(ctx, http.MethodGet, endpoint, params, false)
}

func (c *Client) signedGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.call(ctx, http.MethodGet, endpoint, params, true)
}

func (c *Client) signedPost(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.call(ctx, http.MethodPost, endpoint, params, true)
}

// call runs the bounded retry loop behind the circuit breaker.
func (c *Client) call(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if signed && !c.HasCredentials() {
		return nil, ErrMissingCredentials
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.retryLoop(ctx, method, endpoint, params, signed)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s %s", ErrCircuitOpen, method, endpoint)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) retryLoop(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	b := &backoff.Backoff{
		Min:    c.backoffMin,
		Max:    c.backoffMax,
		Factor: c.backoffFactor,
		Jitter: true,
	}

	var last Result
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		last = c.attempt(ctx, method, endpoint, params, signed)
		switch last.Outcome {
		case OutcomeSuccess:
			return last.Body, nil
		case OutcomePermanent:
			return nil, last.Err
		}

		if attempt == c.maxAttempts {
			break
		}

		delay := b.Duration()
		if last.RetryAfter > delay {
			delay = last.RetryAfter
		}
		if c.observer != nil {
			c.observer.ObserveRetry(endpoint, last.Outcome.String())
		}
		c.logger.Warn("request failed, backing off",
			"endpoint", endpoint,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"outcome", last.Outcome.String(),
			"status", last.StatusCode,
			"delay", delay.String(),
			"error", last.Err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w after %d attempts (%s %s): %w", ErrRetriesExhausted, c.maxAttempts, method, endpoint, last.Err)
}

// attempt performs exactly one HTTP exchange and classifies it.
func (c *Client) attempt(ctx context.Context, method, endpoint string, params url.Values, signed bool) Result {
	query := c.encode(params, signed)

	reqURL := c.baseURL + endpoint
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return Result{Outcome: OutcomePermanent, Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return Result{Outcome: OutcomePermanent, Err: ctx.Err()}
		}
		return Result{Outcome: OutcomeRetryable, Err: err}
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.observe(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return Result{Outcome: OutcomeRetryable, StatusCode: resp.StatusCode, Err: err}
	}

	return classify(resp.StatusCode, body, resp.Header)
}

// encode builds the query string; signed requests get timestamp, recvWindow
// and an HMAC-SHA256 signature over the exact encoded string.
func (c *Client) encode(params url.Values, signed bool) string {
	values := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			values.Add(k, v)
		}
	}
	if !signed {
		return values.Encode()
	}

	values.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
	values.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	query := values.Encode()
	return query + "&signature=" + c.sign(query)
}

// sign creates a signature for the given query string
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, status, d)
	}
}

// breakerSuccess keeps client-side rejections and cancellations from
// tripping the breaker; only exchange-side trouble counts.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrRestricted) || errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 500
	}
	return false
}
