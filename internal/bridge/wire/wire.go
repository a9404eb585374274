// Package wire defines the request/response envelope carried across the
// isolation boundary and the broadcast channel both sides attach to.
//
// Every message on the channel is visible to every peer, including the peer
// that sent it. Receivers identify messages by shape: a Request carries
// "__request": true, a Response carries "__response": true. Anything else is
// ignored.
package wire

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// RegistryTarget is the reserved target for handle registry administration.
// It never collides with a fixture path because fixture names are plain
// identifiers.
const RegistryTarget = "__registry"

// Request asks the host to invoke a method on a target. Target is either a
// dotted path into the root context ("page.keyboard") or a handle id.
type Request struct {
	Request bool   `json:"__request"`
	ID      int64  `json:"id"`
	Target  string `json:"target"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

// Response carries the result for exactly one Request, matched by ID.
type Response struct {
	Response bool   `json:"__response"`
	ID       int64  `json:"id"`
	Result   Result `json:"result"`
}

// Result represents a dispatch outcome
type Result struct {
	Success bool    `json:"success"`
	Data    any     `json:"data,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// Ok builds a success result.
func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail builds a failure result.
func Fail(msg string) Result {
	return Result{Success: false, Error: &msg}
}

// Failf builds a failure result from a format string.
func Failf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// Message returns the carried error message, or "" for a success result.
func (r Result) Message() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// NewRequest builds a request envelope with the shape marker set.
func NewRequest(id int64, target, method string, args []any) Request {
	return Request{Request: true, ID: id, Target: target, Method: method, Args: args}
}

// NewResponse builds a response envelope with the shape marker set.
func NewResponse(id int64, result Result) Response {
	return Response{Response: true, ID: id, Result: result}
}

// EncodeRequest serializes a request for transport.
func EncodeRequest(req Request) ([]byte, error) {
	req.Request = true
	return sonic.Marshal(req)
}

// EncodeResponse serializes a response for transport.
func EncodeResponse(resp Response) ([]byte, error) {
	resp.Response = true
	return sonic.Marshal(resp)
}

// DecodeRequest parses a channel message as a request. Returns false for
// messages that are not request-shaped, including responses and garbage.
func DecodeRequest(data []byte) (Request, bool) {
	var req Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		return Request{}, false
	}
	if !req.Request {
		return Request{}, false
	}
	return req, true
}

// DecodeResponse parses a channel message as a response. Returns false for
// messages that are not response-shaped.
func DecodeResponse(data []byte) (Response, bool) {
	var resp Response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return Response{}, false
	}
	if !resp.Response {
		return Response{}, false
	}
	return resp, true
}
