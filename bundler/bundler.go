// Package bundler is a client of the ERC-4337 bundler JSON-RPC API, including
// the ZeroDev gas price extension.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/userop"
)

const (
	// DefaultReceiptTimeout is how long WaitForReceipt waits by default.
	DefaultReceiptTimeout = 60 * time.Second
	// DefaultPollInterval is the receipt polling period.
	DefaultPollInterval = 2 * time.Second
)

// ErrReceiptTimeout is returned when a user operation is not included before
// the wait timeout.
var ErrReceiptTimeout = errors.New("timeout waiting for user operation receipt")

// Client talks to a bundler endpoint.
type Client struct {
	rpc          *rpc.Client
	PollInterval time.Duration
}

// Dial connects to the bundler at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot dial bundler %s: %w", url, err)
	}
	return NewClient(c), nil
}

// NewClient wraps an existing RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c, PollInterval: DefaultPollInterval}
}

// RPC returns the underlying RPC client, shared with the paymaster client
// when both services live on the same endpoint.
func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

// Close closes the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// SendUserOperation submits the operation and returns its hash.
func (c *Client) SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation: %w", err)
	}
	log.Debugw("user operation sent", "hash", hash.Hex(), "sender", op.Sender.Hex())
	return hash, nil
}

// EstimateUserOperationGas returns the gas limits the bundler estimates for
// the operation. The operation should carry a dummy signature.
func (c *Client) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*userop.GasEstimate, error) {
	est := &userop.GasEstimate{}
	if err := c.rpc.CallContext(ctx, est, "eth_estimateUserOperationGas", op, entryPoint); err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: %w", err)
	}
	return est, nil
}

// UserOperationReceipt returns the receipt of the operation, or nil if it is
// not included yet.
func (c *Client) UserOperationReceipt(ctx context.Context, hash common.Hash) (*userop.Receipt, error) {
	var receipt *userop.Receipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getUserOperationReceipt: %w", err)
	}
	return receipt, nil
}

// gasPriceTiers is the zd_getUserOperationGasPrice response.
type gasPriceTiers struct {
	Slow     userop.GasPrice `json:"slow"`
	Standard userop.GasPrice `json:"standard"`
	Fast     userop.GasPrice `json:"fast"`
}

// UserOperationGasPrice returns the standard fee tier suggested by the
// bundler.
func (c *Client) UserOperationGasPrice(ctx context.Context) (*userop.GasPrice, error) {
	var tiers gasPriceTiers
	if err := c.rpc.CallContext(ctx, &tiers, "zd_getUserOperationGasPrice"); err != nil {
		return nil, fmt.Errorf("zd_getUserOperationGasPrice: %w", err)
	}
	if tiers.Standard.MaxFeePerGas == nil || tiers.Standard.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("zd_getUserOperationGasPrice: missing standard tier")
	}
	return &tiers.Standard, nil
}

// WaitForReceipt polls the bundler until the operation is included or the
// timeout expires. A zero timeout means DefaultReceiptTimeout.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*userop.Receipt, error) {
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := c.UserOperationReceipt(ctx, hash)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warnw("cannot fetch user operation receipt", "hash", hash.Hex(), "error", err)
		case receipt != nil:
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
