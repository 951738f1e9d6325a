// Package protocol defines the JSON-RPC 2.0 message types and error codes
// that relay dispatches.
//
// The kernel treats requests and responses as opaque values; this package
// gives transports and middleware a concrete shape to work with.
//
// # Request and Response Types
//
//	type Request struct {
//	    JSONRPC string          `json:"jsonrpc"`
//	    ID      json.RawMessage `json:"id,omitempty"`
//	    Method  string          `json:"method"`
//	    Params  json.RawMessage `json:"params,omitempty"`
//	}
//
//	type Response struct {
//	    JSONRPC string          `json:"jsonrpc"`
//	    ID      json.RawMessage `json:"id,omitempty"`
//	    Result  any             `json:"result,omitempty"`
//	    Error   *Error          `json:"error,omitempty"`
//	}
//
// # Error Codes
//
// Standard JSON-RPC 2.0 error codes are defined as constants:
//
//	CodeParseError     = -32700  // Invalid JSON
//	CodeInvalidRequest = -32600  // Invalid Request object
//	CodeMethodNotFound = -32601  // Method not found
//	CodeInvalidParams  = -32602  // Invalid method parameters
//	CodeInternalError  = -32603  // Internal server error
//
// Relay adds server error codes for its middleware:
//
//	CodeNotFound     = -32001
//	CodeUnauthorized = -32002
//	CodeRateLimited  = -32003
//	CodeUnavailable  = -32004
//
// # Request Metadata
//
// Transports attach selected headers to the context as RequestMeta:
//
//	ctx = protocol.SetRequestMeta(ctx, protocol.MetaAuthorization, "Bearer abc")
//	auth := protocol.GetRequestMeta(ctx, protocol.MetaAuthorization)
package protocol
