// Package apiclient is the boundary between REST calls and transport selection.
// Every call goes through the currently preferred transport and its outcome
// is reported back so repeated timeouts move traffic to the next path.
package apiclient

import (
	"context"
	"time"

	"github.com/go-i2p/go-apitransport/lib/transport"
	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var log = logger.GetGoI2PLogger()

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "apitransport_requests_total",
	Help: "API requests by transport and outcome.",
}, []string{"transport", "outcome"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "apitransport_request_duration_seconds",
	Help:    "Time until an API request completed, by transport.",
	Buckets: prometheus.DefBuckets,
}, []string{"transport"})

// Router hands out the preferred transport and receives outcome reports.
// Both *transport.Registry and *monitor.Monitor satisfy it.
type Router interface {
	GetTransport() *transport.Candidate
	TransportDidTimeout(c *transport.Candidate)
	TransportDidFinishLoad(c *transport.Candidate)
}

// Client sends API requests through a Router.
type Client struct {
	router Router
}

// New creates a client routing through r.
func New(r Router) *Client {
	return &Client{router: r}
}

// Do sends req through the preferred transport and waits for the outcome.
// It returns transport.ErrNoTransportAvailable when no transport is
// registered. Timeouts and responses are reported against the candidate
// that carried the request; other failures are returned without a report.
func (c *Client) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	candidate := c.router.GetTransport()
	if candidate == nil {
		log.WithFields(logger.Fields{
			"at":     "(Client) Do",
			"reason": "no_transport",
		}).Warn("no transport available for API request")
		requestsTotal.WithLabelValues("none", "no_transport").Inc()
		return nil, transport.ErrNoTransportAvailable
	}

	start := time.Now()
	resp, err := transport.Do(ctx, candidate, req)
	requestDuration.WithLabelValues(candidate.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.router.TransportDidFinishLoad(candidate)
		requestsTotal.WithLabelValues(candidate.Name(), "success").Inc()
		return resp, nil
	case transport.IsTimeout(err):
		log.WithFields(logger.Fields{
			"at":        "(Client) Do",
			"reason":    "timeout",
			"transport": candidate.String(),
			"error":     err.Error(),
		}).Debug("API request timed out")
		c.router.TransportDidTimeout(candidate)
		requestsTotal.WithLabelValues(candidate.Name(), "timeout").Inc()
		return nil, err
	default:
		log.WithFields(logger.Fields{
			"at":        "(Client) Do",
			"reason":    "send_failed",
			"transport": candidate.String(),
			"error":     err.Error(),
		}).Debug("API request failed")
		requestsTotal.WithLabelValues(candidate.Name(), "error").Inc()
		return nil, err
	}
}
