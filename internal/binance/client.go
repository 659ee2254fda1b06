package binance

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"binance-ats/config"
	"binance-ats/internal/logging"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// FuturesBaseURL is the production Binance Futures API URL
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL
	FuturesTestnetURL = "https://testnet.binancefuture.com"
)

// Observer receives per-request telemetry. internal/metrics implements it.
type Observer interface {
	ObserveRequest(endpoint string, status int, d time.Duration)
	ObserveRetry(endpoint string, outcome string)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	APIKey            string
	SecretKey         string
	RecvWindow        time.Duration
	Timeout           time.Duration
	MaxAttempts       int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	BackoffFactor     float64
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Observer          Observer
	Logger            *logging.Logger
}

// OptionsFromConfig maps the binance config section onto Options.
func OptionsFromConfig(cfg config.BinanceConfig) Options {
	base := cfg.BaseURL
	if cfg.TestNet {
		base = FuturesTestnetURL
	}
	return Options{
		BaseURL:           base,
		APIKey:            cfg.APIKey,
		SecretKey:         cfg.SecretKey,
		RecvWindow:        cfg.RecvWindow,
		Timeout:           cfg.Timeout,
		MaxAttempts:       cfg.MaxAttempts,
		BackoffMin:        cfg.BackoffMin,
		BackoffMax:        cfg.BackoffMax,
		BackoffFactor:     cfg.BackoffFactor,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// Client is a REST client for USDT-margined futures.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	recvWindow time.Duration
	httpClient *http.Client

	maxAttempts   int
	backoffMin    time.Duration
	backoffMax    time.Duration
	backoffFactor float64

	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	observer Observer
	logger   *logging.Logger

	// server time minus local time, in milliseconds
	timeOffset atomic.Int64
	now        func() time.Time
}

// NewClient creates a new Client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = FuturesBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RecvWindow <= 0 {
		opts.RecvWindow = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 6
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = 400 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 16 * time.Second
	}
	if opts.BackoffFactor <= 1 {
		opts.BackoffFactor = 1.6
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("binance")
	}

	c := &Client{
		// Trim any whitespace from keys - critical for signature generation
		apiKey:        strings.TrimSpace(opts.APIKey),
		secretKey:     strings.TrimSpace(opts.SecretKey),
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		recvWindow:    opts.RecvWindow,
		httpClient:    opts.HTTPClient,
		maxAttempts:   opts.MaxAttempts,
		backoffMin:    opts.BackoffMin,
		backoffMax:    opts.BackoffMax,
		backoffFactor: opts.BackoffFactor,
		limiter:       rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		observer:      opts.Observer,
		logger:        opts.Logger,
		now:           time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-futures",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

// HasCredentials reports whether signed endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.secretKey != ""
}

// BreakerState exposes the breaker state for status reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// timestamp returns the server-aligned time in milliseconds.
func (c *Client) timestamp() int64 {
	return c.now().UnixMilli() + c.timeOffset.Load()
}
