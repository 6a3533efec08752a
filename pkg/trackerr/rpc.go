package trackerr

import (
	"encoding/json"
	"fmt"
)

// RPCError is the structured error object of a JSON-RPC response
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Rejected wraps a remote RPC error as RPCRejected
func Rejected(op string, rpcErr *RPCError) *Error {
	return &Error{Kind: RPCRejected, Op: op, Message: "request rejected", Cause: rpcErr}
}
