// Package edge is the RPC surface: it turns pool/dispatch errors into
// HTTP status codes, JSON-RPC error envelopes, and gRPC status codes, and
// never the other way around — internal/dispatch has no knowledge of
// internal/edge.
package edge

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/pool"
)

// mapping is one row of the error-mapping table: HTTP status, JSON-RPC
// error code, JSON-RPC error type string, and gRPC status code.
type mapping struct {
	HTTPStatus int
	RPCCode    int
	RPCType    string
	GRPCCode   codes.Code
}

// errInvalidArgs wraps malformed per-op argument JSON, classified the
// same as pool.ErrInvalidRequest.
var errInvalidArgs = errors.New("invalid arguments for this operation")

// errRateLimited is the edge's own rejection, outside the dispatch
// taxonomy — the pool never rate-limits, only the ingress does.
var errRateLimited = errors.New("rate limit exceeded")

var (
	mapShuttingDown     = mapping{http.StatusServiceUnavailable, -32000, "server_error", codes.Unavailable}
	mapCircuitOpen      = mapping{http.StatusServiceUnavailable, -32001, "server_error", codes.Unavailable}
	mapNoWorkers        = mapping{http.StatusServiceUnavailable, -32002, "server_error", codes.Unavailable}
	mapMemoryExhausted  = mapping{http.StatusServiceUnavailable, -32003, "server_error", codes.ResourceExhausted}
	mapTimeout          = mapping{http.StatusGatewayTimeout, -32004, "timeout", codes.DeadlineExceeded}
	mapTransportError   = mapping{http.StatusBadGateway, -32005, "server_error", codes.Internal}
	mapModelError       = mapping{http.StatusInternalServerError, -32006, "internal_error", codes.Internal}
	mapInvalidRequest   = mapping{http.StatusBadRequest, -32602, "invalid_request_error", codes.InvalidArgument}
	mapRateLimited      = mapping{http.StatusTooManyRequests, -32007, "rate_limit_error", codes.ResourceExhausted}
	mapSendBackpressure = mapping{http.StatusServiceUnavailable, -32008, "backpressure_error", codes.ResourceExhausted}
)

// classify maps any error returned by dispatch.Dispatcher or pool.Pool
// methods to its RPC envelope. Unrecognized errors fall back to
// ModelError's 500/internal_error row so every failure mode lands in
// exactly one named bucket.
func classify(err error) mapping {
	switch {
	case err == nil:
		return mapping{}
	case errors.Is(err, pool.ErrShuttingDown):
		return mapShuttingDown
	case errors.Is(err, breaker.ErrCircuitOpen):
		return mapCircuitOpen
	case errors.Is(err, pool.ErrNoWorkers):
		return mapNoWorkers
	case errors.Is(err, pool.ErrMemoryExhausted):
		return mapMemoryExhausted
	case errors.Is(err, pool.ErrTimeout):
		return mapTimeout
	case errors.Is(err, pool.ErrSendBackpressure):
		return mapSendBackpressure
	case errors.Is(err, pool.ErrRecvError):
		return mapTransportError
	case errors.Is(err, pool.ErrInvalidRequest),
		errors.Is(err, dispatch.ErrUnknownModel),
		errors.Is(err, dispatch.ErrCapabilityMismatch),
		errors.Is(err, errInvalidArgs):
		return mapInvalidRequest
	case errors.Is(err, errRateLimited):
		return mapRateLimited
	default:
		var modelErr *pool.ModelError
		if errors.As(err, &modelErr) {
			return mapModelError
		}
		return mapModelError
	}
}

// RPCError is the JSON-RPC 2.0 error envelope returned to HTTP/JSON-RPC
// clients.
type RPCError struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToRPCError converts a dispatch/pool error into its JSON-RPC envelope
// plus the HTTP status code it should be served under.
func ToRPCError(err error) (httpStatus int, body RPCError) {
	m := classify(err)
	return m.HTTPStatus, RPCError{Code: m.RPCCode, Type: m.RPCType, Message: err.Error()}
}

// ToGRPCCode converts a dispatch/pool error into the gRPC status code the
// unary/streaming interceptor should return.
func ToGRPCCode(err error) codes.Code {
	return classify(err).GRPCCode
}
