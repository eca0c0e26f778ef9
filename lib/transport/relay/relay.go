// Package relay delivers API requests through the tunnel daemon, which sends
// them from inside the tunnel on the caller's behalf.
package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-i2p/go-apitransport/lib/jsonrpc"
	"github.com/go-i2p/go-apitransport/lib/transport"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

var log = logger.GetGoI2PLogger()

// Name identifies the relay transport in logs and metrics.
const Name = "relay"

// Method is the daemon method that performs a relayed request.
const Method = "send_api_request"

const (
	// DefaultTimeout bounds one relayed round trip.
	DefaultTimeout = 15 * time.Second
	// DefaultRateLimit is the sustained number of relayed requests per second.
	DefaultRateLimit = 20
	// DefaultBurst is the number of requests allowed above the sustained rate.
	DefaultBurst = 5
)

// ErrRateLimited is delivered when no send token becomes available before
// the caller's deadline. It is local back-pressure, not a relay timeout.
var ErrRateLimited = oops.New("relay: rate limited before deadline")

// Compile-time check that Transport implements transport.Transport
var _ transport.Transport = (*Transport)(nil)

// Config holds the relay transport settings.
type Config struct {
	// Timeout per relayed round trip. Zero means DefaultTimeout.
	Timeout time.Duration
	// RateLimit in requests per second. Negative disables limiting, zero
	// means DefaultRateLimit.
	RateLimit float64
	// Burst above RateLimit. Zero means DefaultBurst.
	Burst int
}

// apiRequest is the params object of send_api_request.
type apiRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
}

// apiResponse is the result object of send_api_request.
type apiResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// Transport relays requests over the daemon's JSON-RPC endpoint, one
// connection per request.
type Transport struct {
	client  *jsonrpc.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// New creates a relay transport using client. A nil cfg uses the defaults.
func New(client *jsonrpc.Client, cfg *Config) (*Transport, error) {
	if client == nil {
		return nil, oops.Errorf("relay: nil IPC client")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	limit := rate.Limit(c.RateLimit)
	if c.RateLimit < 0 {
		limit = rate.Inf
	}

	log.WithFields(logger.Fields{
		"at":         "relay.New",
		"reason":     "initialization",
		"url":        client.URL(),
		"timeout_ms": c.Timeout.Milliseconds(),
		"rate_limit": c.RateLimit,
		"burst":      c.Burst,
	}).Debug("created relay transport")

	return &Transport{
		client:  client,
		timeout: c.Timeout,
		limiter: rate.NewLimiter(limit, c.Burst),
	}, nil
}

func (t *Transport) Name() string {
	return Name
}

// Send relays req on its own goroutine.
func (t *Transport) Send(ctx context.Context, req *transport.Request, done transport.Completion) transport.Cancellable {
	return transport.Go(ctx, func(ctx context.Context) (*transport.Response, error) {
		return t.relay(ctx, req)
	}, done)
}

func (t *Transport) relay(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req == nil {
		return nil, transport.ErrNilRequest
	}
	// the limiter wait is local back-pressure and does not count against
	// the round trip timeout
	if err := t.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		log.WithFields(logger.Fields{
			"at":     "(Transport) Send",
			"reason": "rate_limited",
			"method": req.Method,
			"error":  err.Error(),
		}).Debug("no relay token before deadline")
		return nil, ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	params := apiRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Header,
		Body:    req.Body,
	}
	var result apiResponse
	start := time.Now()
	if err := t.client.Call(ctx, Method, params, &result); err != nil {
		return nil, t.classify(ctx, err, start)
	}

	log.WithFields(logger.Fields{
		"at":          "(Transport) Send",
		"reason":      "response_received",
		"method":      req.Method,
		"status_code": result.StatusCode,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	}).Debug("relayed request completed")

	return &transport.Response{
		StatusCode: result.StatusCode,
		Header:     result.Headers,
		Body:       result.Body,
	}, nil
}

func (t *Transport) classify(ctx context.Context, err error, start time.Time) error {
	if transport.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.WithFields(logger.Fields{
			"at":         "(Transport) Send",
			"reason":     "timeout",
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Debug("relayed request timed out")
		return transport.WrapTimeout(err, Name)
	}
	log.WithFields(logger.Fields{
		"at":     "(Transport) Send",
		"reason": "relay_failed",
		"error":  err.Error(),
	}).Debug("relayed request failed")
	return err
}
