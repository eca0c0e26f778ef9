package transport

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type netTimeoutErr struct{}

func (netTimeoutErr) Error() string   { return "i/o timeout" }
func (netTimeoutErr) Timeout() bool   { return true }
func (netTimeoutErr) Temporary() bool { return true }

var _ net.Error = netTimeoutErr{}

// TestIsTimeout tests failure classification
func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped timeout", WrapTimeout(errors.New("slow"), "direct"), true},
		{"bare timeout", WrapTimeout(nil, "relay"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", &net.OpError{Op: "read", Err: netTimeoutErr{}}, true},
		{"cancelled", ErrCancelled, false},
		{"context cancelled", context.Canceled, false},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTimeout(tt.err))
		})
	}
}

// TestTimeoutErrorMessage tests that the transport name is part of the message
func TestTimeoutErrorMessage(t *testing.T) {
	err := WrapTimeout(errors.New("no reply"), "relay")
	assert.Contains(t, err.Error(), "relay")
	assert.Contains(t, err.Error(), "no reply")
}

// TestCandidateIdentity tests identity comparison
func TestCandidateIdentity(t *testing.T) {
	m := &mockTransport{name: "m"}
	a := NewCandidate(m)
	b := NewCandidate(m)

	assert.True(t, a.Is(a))
	assert.False(t, a.Is(b))
	assert.False(t, a.Is(nil))
	assert.Equal(t, "m", a.Name())
	assert.Contains(t, a.String(), "m#")

	var none *Candidate
	assert.True(t, none.Is(nil))
	assert.Equal(t, "<none>", none.String())
}

// TestDoSuccess tests the blocking helper
func TestDoSuccess(t *testing.T) {
	c := NewCandidate(&mockTransport{name: "ok", resp: &Response{StatusCode: 204}})

	resp, err := Do(context.Background(), c, &Request{Method: "GET", URL: "http://example.invalid"})

	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}

// TestDoDeadlineIsTimeout tests that an expired deadline is classified as timeout
func TestDoDeadlineIsTimeout(t *testing.T) {
	c := NewCandidate(&mockTransport{name: "slow", delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := Do(ctx, c, &Request{})

	assert.Nil(t, resp)
	assert.True(t, IsTimeout(err))
}

// TestTaskCancel tests that an explicit cancel completes with ErrCancelled exactly once
func TestTaskCancel(t *testing.T) {
	var calls atomic.Int32
	errCh := make(chan error, 2)
	task := Go(context.Background(), func(ctx context.Context) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, func(resp *Response, err error) {
		calls.Add(1)
		errCh <- err
	})

	task.Cancel()
	task.Cancel()

	select {
	case err := <-errCh:
		assert.Equal(t, ErrCancelled, err)
	case <-time.After(time.Second):
		t.Fatal("completion not delivered after cancel")
	}
	<-task.Done()
	assert.Equal(t, int32(1), calls.Load())
}

// TestTaskCancelAfterCompletion tests that a late cancel does not change the outcome
func TestTaskCancelAfterCompletion(t *testing.T) {
	got := make(chan *Response, 1)
	task := Go(context.Background(), func(ctx context.Context) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	}, func(resp *Response, err error) {
		assert.NoError(t, err)
		got <- resp
	})
	<-task.Done()
	task.Cancel()

	resp := <-got
	assert.Equal(t, 200, resp.StatusCode)
}

// TestTaskEmptyResponse tests the neither-response-nor-error guard
func TestTaskEmptyResponse(t *testing.T) {
	errCh := make(chan error, 1)
	task := Go(context.Background(), func(ctx context.Context) (*Response, error) {
		return nil, nil
	}, func(resp *Response, err error) {
		errCh <- err
	})
	<-task.Done()
	assert.Equal(t, ErrEmptyResponse, <-errCh)
}
