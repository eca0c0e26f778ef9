// Package jsonrpctest provides an in-process tunnel daemon endpoint for tests.
package jsonrpctest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-i2p/go-apitransport/lib/jsonrpc"
	"nhooyr.io/websocket"
)

// HandlerFunc answers one method call. ctx is cancelled when the server closes.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, *jsonrpc.RPCError)

// Server is a WebSocket JSON-RPC endpoint backed by httptest.
type Server struct {
	// URL is the ws:// address of the endpoint
	URL string

	http     *httptest.Server
	ctx      context.Context
	cancel   context.CancelFunc
	handlers map[string]HandlerFunc

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	calls map[string]int
}

// NewServer starts an endpoint serving handlers.
func NewServer(handlers map[string]HandlerFunc) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:      ctx,
		cancel:   cancel,
		handlers: handlers,
		conns:    make(map[*websocket.Conn]struct{}),
		calls:    make(map[string]int),
	}
	s.http = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.http.URL, "http")
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[ws] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, ws)
		s.mu.Unlock()
		ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := ws.Read(s.ctx)
		if err != nil {
			return
		}
		var req jsonrpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		s.mu.Unlock()

		resp := jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID}
		handler, ok := s.handlers[req.Method]
		if !ok {
			resp.Error = jsonrpc.NewRPCError(jsonrpc.ErrCodeMethodNotFound, "method not found")
		} else {
			result, rpcErr := handler(s.ctx, req.Params)
			if rpcErr != nil {
				resp.Error = rpcErr
			} else {
				raw, err := json.Marshal(result)
				if err != nil {
					resp.Error = jsonrpc.NewRPCError(jsonrpc.ErrCodeInternalError, err.Error())
				} else {
					resp.Result = raw
				}
			}
		}
		if s.ctx.Err() != nil {
			return
		}
		if req.ID == nil {
			continue
		}
		out, _ := json.Marshal(resp)
		if err := ws.Write(s.ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

// Notify pushes a notification to every open connection.
func (s *Server) Notify(ctx context.Context, method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	out, err := json.Marshal(jsonrpc.Message{JSONRPC: jsonrpc.Version, Method: method, Params: raw})
	if err != nil {
		return err
	}
	for _, ws := range s.snapshot() {
		if err := ws.Write(ctx, websocket.MessageText, out); err != nil {
			return err
		}
	}
	return nil
}

// WriteRaw sends data verbatim to every open connection.
func (s *Server) WriteRaw(ctx context.Context, data []byte) error {
	for _, ws := range s.snapshot() {
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			return err
		}
	}
	return nil
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Calls returns how often method was invoked.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// DropConnections closes every open connection abnormally.
func (s *Server) DropConnections() {
	for _, ws := range s.snapshot() {
		ws.Close(websocket.StatusGoingAway, "dropped by test")
	}
}

// Close stops the endpoint and releases blocked handlers.
func (s *Server) Close() {
	s.cancel()
	s.DropConnections()
	s.http.Close()
}

func (s *Server) snapshot() []*websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for ws := range s.conns {
		conns = append(conns, ws)
	}
	return conns
}
