package voting

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

const (
	msgRejectedByPaymaster = "Transaction rejected by Paymaster."
	msgTimedOut            = "Transaction timed out."
)

// FriendlyError returns the message shown to the user for a failed action.
// The short message of a JSON-RPC error in the chain is preferred to the full
// wrapped text; known paymaster and timeout failures are replaced by a fixed
// message.
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.Error() != "" {
		msg = rpcErr.Error()
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok && data != "" && !strings.HasPrefix(data, "0x") {
			msg = data
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rejected by paymaster"),
		strings.Contains(lower, "paymaster validation failed"):
		return msgRejectedByPaymaster
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "timeout"):
		return msgTimedOut
	}
	return msg
}
