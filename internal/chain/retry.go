package chain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

const maxRetryDelay = 10 * time.Second

// JSON-RPC codes for requests that fail the same way on every attempt.
const (
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

// withRetry runs fn until it succeeds, fails permanently or maxRetries extra
// attempts are used up. The delay doubles per attempt up to maxRetryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code != rpcMethodNotFound && rpcErr.Code != rpcInvalidParams
	}
	return true
}
