package ethereum

import "fmt"

// Call failures are split into four kinds so callers can pick a retry policy:
// auth and transport failures may heal on their own, protocol failures mean
// the two sides disagree about the API shape, and RPC errors are the engine
// telling us the request itself was bad.

// AuthError reports that the engine rejected our bearer token.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("engine rejected credentials (HTTP %d)", e.StatusCode)
}

// TransportError reports that no usable HTTP response was obtained.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("engine transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response that does not match the expected shape for
// the call made.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC error object returned by the engine.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error: %d %s", e.Code, e.Message)
}
