// Package direct delivers API requests through the operating system's HTTP stack.
package direct

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-i2p/go-apitransport/lib/transport"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Name identifies the direct transport in logs and metrics.
const Name = "direct"

// DefaultTimeout bounds a single round trip when no deadline is set by the caller.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps response bodies read into memory.
const maxBodySize = 16 << 20

// Compile-time check that Transport implements transport.Transport
var _ transport.Transport = (*Transport)(nil)

// Config holds the direct transport settings.
type Config struct {
	// Timeout per round trip. Zero means DefaultTimeout.
	Timeout time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Transport sends requests straight to the API server.
type Transport struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a direct transport. A nil cfg uses the defaults.
func New(cfg *Config) *Transport {
	t := &Transport{
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
	}
	if cfg != nil {
		if cfg.Client != nil {
			t.client = cfg.Client
		}
		if cfg.Timeout > 0 {
			t.timeout = cfg.Timeout
		}
	}
	log.WithFields(logger.Fields{
		"at":         "direct.New",
		"reason":     "initialization",
		"timeout_ms": t.timeout.Milliseconds(),
	}).Debug("created direct transport")
	return t
}

func (t *Transport) Name() string {
	return Name
}

// Send performs the round trip on its own goroutine.
func (t *Transport) Send(ctx context.Context, req *transport.Request, done transport.Completion) transport.Cancellable {
	return transport.Go(ctx, func(ctx context.Context) (*transport.Response, error) {
		return t.roundTrip(ctx, req)
	}, done)
}

func (t *Transport) roundTrip(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req == nil {
		return nil, transport.ErrNilRequest
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, oops.Wrapf(err, "direct: invalid request")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classify(ctx, err, start)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize+1))
	if err != nil {
		return nil, t.classify(ctx, err, start)
	}
	if len(body) > maxBodySize {
		log.WithFields(logger.Fields{
			"at":       "(Transport) Send",
			"reason":   "response_too_large",
			"method":   req.Method,
			"limit":    maxBodySize,
			"received": len(body),
		}).Warn("discarding oversized response")
		return nil, transport.ErrResponseTooLarge
	}

	log.WithFields(logger.Fields{
		"at":          "(Transport) Send",
		"reason":      "response_received",
		"method":      req.Method,
		"status_code": httpResp.StatusCode,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	}).Debug("direct request completed")

	return &transport.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       body,
	}, nil
}

// classify turns deadline expiry into a transport timeout and leaves other
// failures untouched.
func (t *Transport) classify(ctx context.Context, err error, start time.Time) error {
	if transport.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.WithFields(logger.Fields{
			"at":         "(Transport) Send",
			"reason":     "timeout",
			"elapsed_ms": time.Since(start).Milliseconds(),
		}).Debug("direct request timed out")
		return transport.WrapTimeout(err, Name)
	}
	log.WithFields(logger.Fields{
		"at":     "(Transport) Send",
		"reason": "send_failed",
		"error":  err.Error(),
	}).Debug("direct request failed")
	return err
}
