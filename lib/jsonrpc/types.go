// Package jsonrpc speaks JSON-RPC 2.0 with the tunnel daemon over a WebSocket.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes
// Reference: https://www.jsonrpc.org/specification
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Request is a call sent to the tunnel daemon.
// A request without an ID is a notification and gets no reply.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is the daemon's reply to a Request.
// Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. It doubles as a Go error.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// NewRPCError creates an RPCError with the given code and message.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// Message is any frame read from the daemon: either a response (ID set) or a
// server-initiated notification (Method set, no ID).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsNotification reports whether m was pushed by the daemon unprompted.
func (m *Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// NewRequest builds a request with params marshalled to JSON.
func NewRequest(id int64, method string, params interface{}) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, NewRPCError(ErrCodeInvalidParams, err.Error())
		}
		req.Params = raw
	}
	return req, nil
}

// ParseMessage decodes one frame from the daemon and validates the envelope.
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, NewRPCError(ErrCodeParseError, "empty message")
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &RPCError{Code: ErrCodeParseError, Message: "invalid JSON"}
	}
	if msg.JSONRPC != Version {
		return nil, NewRPCError(ErrCodeInvalidRequest, fmt.Sprintf("invalid JSON-RPC version %q", msg.JSONRPC))
	}
	if msg.ID == nil && msg.Method == "" {
		return nil, NewRPCError(ErrCodeInvalidRequest, "message has neither id nor method")
	}
	return &msg, nil
}
