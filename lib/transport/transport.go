package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
)

// Request is an HTTP-like API request. Transports move it to the server
// without interpreting the body.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the server's answer to a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Completion receives the outcome of a Send exactly once.
// Either resp is non-nil or err is non-nil, never both.
type Completion func(resp *Response, err error)

// Cancellable is returned by Send to abort an in-flight request.
// Cancel is idempotent and safe to call after completion.
type Cancellable interface {
	Cancel()
}

// Transport is one concrete way of delivering a Request.
type Transport interface {
	// Name is a short human readable identifier used in logs and metrics.
	Name() string

	// Send starts delivering req and returns immediately. done is invoked
	// exactly once from another goroutine. Failures that ran out of time are
	// reported as errors for which IsTimeout returns true.
	Send(ctx context.Context, req *Request, done Completion) Cancellable
}

var nextCandidateID atomic.Uint64

// Candidate is a registrable handle around a Transport.
// Candidates compare by ID only; the wrapped Transport may be shared.
type Candidate struct {
	Transport
	id uint64
}

// NewCandidate wraps t with a fresh identity.
func NewCandidate(t Transport) *Candidate {
	return &Candidate{
		Transport: t,
		id:        nextCandidateID.Add(1),
	}
}

// ID returns the opaque identity of the candidate.
func (c *Candidate) ID() uint64 {
	return c.id
}

// Is reports whether c and other are the same registration.
func (c *Candidate) Is(other *Candidate) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.id == other.id
}

// Name returns the wrapped transport's name.
func (c *Candidate) Name() string {
	if c == nil || c.Transport == nil {
		return "unknown"
	}
	return c.Transport.Name()
}

func (c *Candidate) String() string {
	if c == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s#%d", c.Name(), c.id)
}

// Do sends req over t and blocks until the completion fires.
// Transports observe ctx themselves, so an expired deadline surfaces as a
// timeout error rather than a cancellation.
func Do(ctx context.Context, t Transport, req *Request) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}
	ch := make(chan result, 1)
	t.Send(ctx, req, func(resp *Response, err error) {
		ch <- result{resp: resp, err: err}
	})
	r := <-ch
	return r.resp, r.err
}

// Task is the Cancellable used by transports that run a blocking round trip
// on its own goroutine.
type Task struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Go runs fn on a new goroutine with a child of ctx and delivers its outcome
// to done exactly once. After Cancel, done receives ErrCancelled unless the
// round trip had already finished.
func Go(ctx context.Context, fn func(ctx context.Context) (*Response, error), done Completion) *Task {
	ctx, cancel := context.WithCancel(ctx)
	var cancelled atomic.Bool
	t := &Task{
		cancel: func() {
			cancelled.Store(true)
			cancel()
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer cancel()
		resp, err := fn(ctx)
		if err != nil && cancelled.Load() {
			err = ErrCancelled
		}
		if err != nil {
			resp = nil
		} else if resp == nil {
			err = ErrEmptyResponse
		}
		done(resp, err)
	}()
	return t
}

// Cancel aborts the round trip.
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
}

// Done is closed after the completion has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
