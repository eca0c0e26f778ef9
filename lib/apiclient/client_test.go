package apiclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/go-apitransport/lib/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport completes every send with a fixed outcome
type scriptedTransport struct {
	name  string
	resp  *transport.Response
	err   error
	calls int
	mu    sync.Mutex
}

func (s *scriptedTransport) Name() string { return s.name }

func (s *scriptedTransport) Send(ctx context.Context, req *transport.Request, done transport.Completion) transport.Cancellable {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return transport.Go(ctx, func(context.Context) (*transport.Response, error) {
		return s.resp, s.err
	}, done)
}

// recordingRouter records every report it receives
type recordingRouter struct {
	candidate *transport.Candidate
	timeouts  []*transport.Candidate
	loads     []*transport.Candidate
}

func (r *recordingRouter) GetTransport() *transport.Candidate { return r.candidate }

func (r *recordingRouter) TransportDidTimeout(c *transport.Candidate) {
	r.timeouts = append(r.timeouts, c)
}

func (r *recordingRouter) TransportDidFinishLoad(c *transport.Candidate) {
	r.loads = append(r.loads, c)
}

var getRoot = &transport.Request{Method: "GET", URL: "https://api.example.net/"}

// TestDoNoTransport tests the empty registry path
func TestDoNoTransport(t *testing.T) {
	resp, err := New(&recordingRouter{}).Do(context.Background(), getRoot)

	assert.Nil(t, resp)
	assert.Equal(t, transport.ErrNoTransportAvailable, err)
}

// TestDoSuccessReportsFinishLoad tests that responses forgive timeouts
func TestDoSuccessReportsFinishLoad(t *testing.T) {
	st := &scriptedTransport{name: "direct", resp: &transport.Response{StatusCode: http.StatusOK}}
	router := &recordingRouter{candidate: transport.NewCandidate(st)}

	resp, err := New(router).Do(context.Background(), getRoot)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, router.loads, 1)
	assert.True(t, router.candidate.Is(router.loads[0]))
	assert.Empty(t, router.timeouts)
}

// TestDoHTTPErrorCountsAsLoad tests that an error status is still a completed load
func TestDoHTTPErrorCountsAsLoad(t *testing.T) {
	st := &scriptedTransport{name: "direct", resp: &transport.Response{StatusCode: http.StatusBadGateway}}
	router := &recordingRouter{candidate: transport.NewCandidate(st)}

	resp, err := New(router).Do(context.Background(), getRoot)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Len(t, router.loads, 1)
}

// TestDoTimeoutReportsTimeout tests that timeouts are reported against the carrying candidate
func TestDoTimeoutReportsTimeout(t *testing.T) {
	st := &scriptedTransport{name: "relay", err: transport.WrapTimeout(context.DeadlineExceeded, "relay")}
	router := &recordingRouter{candidate: transport.NewCandidate(st)}

	_, err := New(router).Do(context.Background(), getRoot)

	require.Error(t, err)
	assert.True(t, transport.IsTimeout(err))
	require.Len(t, router.timeouts, 1)
	assert.True(t, router.candidate.Is(router.timeouts[0]))
	assert.Empty(t, router.loads)
}

// TestDoOtherFailureNotReported tests that ordinary failures have no registry effect
func TestDoOtherFailureNotReported(t *testing.T) {
	failure := errors.New("connection refused")
	st := &scriptedTransport{name: "direct", err: failure}
	router := &recordingRouter{candidate: transport.NewCandidate(st)}

	_, err := New(router).Do(context.Background(), getRoot)

	assert.ErrorIs(t, err, failure)
	assert.Empty(t, router.timeouts)
	assert.Empty(t, router.loads)
}

// TestDoFailsOverThroughRegistry tests end to end demotion through a real registry
func TestDoFailsOverThroughRegistry(t *testing.T) {
	slow := &scriptedTransport{name: "direct", err: transport.WrapTimeout(nil, "direct")}
	fast := &scriptedTransport{name: "relay", resp: &transport.Response{StatusCode: http.StatusOK}}
	a := transport.NewCandidate(slow)
	b := transport.NewCandidate(fast)

	registry := transport.NewRegistry()
	registry.SetTransports([]*transport.Candidate{a, b})
	client := New(registry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i <= transport.TimeoutThreshold; i++ {
		_, err := client.Do(ctx, getRoot)
		require.Error(t, err)
	}
	assert.True(t, b.Is(registry.GetTransport()))
	assert.Equal(t, 0, registry.TimeoutCount())

	resp, err := client.Do(ctx, getRoot)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, transport.TimeoutThreshold+1, slow.calls)
	assert.Equal(t, 1, fast.calls)
}

// TestDoOversizedResponseNotReported tests that a rejected body is neither a load nor a timeout
func TestDoOversizedResponseNotReported(t *testing.T) {
	st := &scriptedTransport{name: "direct", err: transport.ErrResponseTooLarge}
	router := &recordingRouter{candidate: transport.NewCandidate(st)}

	resp, err := New(router).Do(context.Background(), getRoot)

	assert.Nil(t, resp)
	assert.Equal(t, transport.ErrResponseTooLarge, err)
	assert.Empty(t, router.loads)
	assert.Empty(t, router.timeouts)
}
