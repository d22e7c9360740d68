package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/semaphore-aa-vote/log"
)

var _ bind.ContractBackend = (*Client)(nil)

// Client is a bind.ContractBackend over the endpoints of one chain of a
// Web3Pool. Every call is tried on the next available endpoint; endpoints
// that fail with a transport error are disabled and the call is retried on
// another one, up to DefaultMaxWeb3ClientRetries times.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

// ChainIDUint64 returns the chain of the client without a network call.
func (c *Client) ChainIDUint64() uint64 {
	return c.chainID
}

// isResultError reports whether err comes from the node executing the call,
// as a revert, so another endpoint would return the same.
func isResultError(err error) bool {
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func retry[T any](ctx context.Context, c *Client, method string, fn func(*ethclient.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < DefaultMaxWeb3ClientRetries; i++ {
		endpoint, err := c.w3p.Endpoint(c.chainID)
		if err != nil {
			return zero, err
		}
		res, err := fn(endpoint.client)
		if err == nil {
			return res, nil
		}
		if isResultError(err) || errors.Is(err, ethereum.NotFound) || ctx.Err() != nil {
			return zero, err
		}
		log.Warnw("web3 endpoint failed, disabling it", "chainID", c.chainID, "uri", endpoint.URI,
			"method", method, "error", err)
		c.w3p.DisableEndpoint(c.chainID, endpoint.URI)
		lastErr = err
	}
	return zero, fmt.Errorf("%s failed after %d retries: %w", method, DefaultMaxWeb3ClientRetries, lastErr)
}

// CodeAt implements bind.ContractCaller.
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return retry(ctx, c, "CodeAt", func(cli *ethclient.Client) ([]byte, error) {
		return cli.CodeAt(ctx, account, blockNumber)
	})
}

// CallContract implements bind.ContractCaller.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return retry(ctx, c, "CallContract", func(cli *ethclient.Client) ([]byte, error) {
		return cli.CallContract(ctx, call, blockNumber)
	})
}

// HeaderByNumber implements bind.ContractTransactor.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return retry(ctx, c, "HeaderByNumber", func(cli *ethclient.Client) (*types.Header, error) {
		return cli.HeaderByNumber(ctx, number)
	})
}

// PendingCodeAt implements bind.ContractTransactor.
func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return retry(ctx, c, "PendingCodeAt", func(cli *ethclient.Client) ([]byte, error) {
		return cli.PendingCodeAt(ctx, account)
	})
}

// PendingNonceAt implements bind.ContractTransactor.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return retry(ctx, c, "PendingNonceAt", func(cli *ethclient.Client) (uint64, error) {
		return cli.PendingNonceAt(ctx, account)
	})
}

// SuggestGasPrice implements bind.ContractTransactor.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return retry(ctx, c, "SuggestGasPrice", func(cli *ethclient.Client) (*big.Int, error) {
		return cli.SuggestGasPrice(ctx)
	})
}

// SuggestGasTipCap implements bind.ContractTransactor.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return retry(ctx, c, "SuggestGasTipCap", func(cli *ethclient.Client) (*big.Int, error) {
		return cli.SuggestGasTipCap(ctx)
	})
}

// EstimateGas implements bind.ContractTransactor.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return retry(ctx, c, "EstimateGas", func(cli *ethclient.Client) (uint64, error) {
		return cli.EstimateGas(ctx, call)
	})
}

// SendTransaction implements bind.ContractTransactor.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := retry(ctx, c, "SendTransaction", func(cli *ethclient.Client) (struct{}, error) {
		return struct{}{}, cli.SendTransaction(ctx, tx)
	})
	return err
}

// FilterLogs implements bind.ContractFilterer.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return retry(ctx, c, "FilterLogs", func(cli *ethclient.Client) ([]types.Log, error) {
		return cli.FilterLogs(ctx, query)
	})
}

// SubscribeFilterLogs implements bind.ContractFilterer. Subscriptions are
// bound to one endpoint and are not retried.
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	endpoint, err := c.w3p.Endpoint(c.chainID)
	if err != nil {
		return nil, err
	}
	return endpoint.client.SubscribeFilterLogs(ctx, query, ch)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return retry(ctx, c, "BlockNumber", func(cli *ethclient.Client) (uint64, error) {
		return cli.BlockNumber(ctx)
	})
}

// BalanceAt returns the balance of an account at a block, or the latest one
// if blockNumber is nil.
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return retry(ctx, c, "BalanceAt", func(cli *ethclient.Client) (*big.Int, error) {
		return cli.BalanceAt(ctx, account, blockNumber)
	})
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return retry(ctx, c, "TransactionReceipt", func(cli *ethclient.Client) (*types.Receipt, error) {
		return cli.TransactionReceipt(ctx, txHash)
	})
}
