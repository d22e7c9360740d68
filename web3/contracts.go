// Package web3 binds the contracts of the voting system: the Semaphore
// paymaster, the voting and gatekeeper contracts, the ERC-4337 EntryPoint and
// the Kernel factory. Calls go through a pool of web3 endpoints.
package web3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/web3/rpc"
)

const (
	web3QueryTimeout = 10 * time.Second
	// web3LogsTimeout is longer since member scans may cover the whole chain.
	web3LogsTimeout = 60 * time.Second
)

// Backend is what the bound contracts need from the chain.
type Backend interface {
	bind.ContractBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// Contracts contains the bindings to the deployed contracts.
type Contracts struct {
	ChainID   uint64
	Addresses config.Addresses

	paymaster     *bind.BoundContract
	voting        *bind.BoundContract
	gatekeeper    *bind.BoundContract
	entryPoint    *bind.BoundContract
	kernelFactory *bind.BoundContract
	web3pool      *rpc.Web3Pool
	cli           Backend
}

// NewContracts creates a new Contracts instance on the given web3 endpoints.
// The first one determines the chain; the rest are added to the same pool.
func NewContracts(addresses config.Addresses, web3rpcs ...string) (*Contracts, error) {
	if len(web3rpcs) == 0 {
		return nil, fmt.Errorf("no web3 endpoint provided")
	}
	w3pool := rpc.NewWeb3Pool()
	chainID, err := w3pool.AddEndpoint(web3rpcs[0])
	if err != nil {
		return nil, fmt.Errorf("failed to add web3 endpoint: %w", err)
	}
	cli, err := w3pool.Client(chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c := NewContractsWithBackend(addresses, chainID, cli)
	c.web3pool = w3pool
	for _, uri := range web3rpcs[1:] {
		if err := c.AddWeb3Endpoint(uri); err != nil {
			log.Warnw("failed to add web3 endpoint", "rpc", uri, "error", err)
		}
	}
	return c, nil
}

// NewContractsWithBackend binds the contracts on an existing backend, such as
// a simulated one.
func NewContractsWithBackend(addresses config.Addresses, chainID uint64, backend Backend) *Contracts {
	bound := func(addr common.Address, a abi.ABI) *bind.BoundContract {
		return bind.NewBoundContract(addr, a, backend, backend, backend)
	}
	return &Contracts{
		ChainID:       chainID,
		Addresses:     addresses,
		paymaster:     bound(addresses.Paymaster, SemaphorePaymasterABI),
		voting:        bound(addresses.Voting, VotingABI),
		gatekeeper:    bound(addresses.Gatekeeper, GatekeeperABI),
		entryPoint:    bound(addresses.EntryPoint, EntryPointABI),
		kernelFactory: bound(addresses.KernelFactory, KernelFactoryABI),
		cli:           backend,
	}
}

// AddWeb3Endpoint adds a new web3 endpoint to the pool.
func (c *Contracts) AddWeb3Endpoint(web3rpc string) error {
	if c.web3pool == nil {
		return fmt.Errorf("contracts not backed by a web3 pool")
	}
	chainID, err := c.web3pool.AddEndpoint(web3rpc)
	if err != nil {
		return err
	}
	if chainID != c.ChainID {
		c.web3pool.DisableEndpoint(chainID, web3rpc)
		return fmt.Errorf("endpoint %s is on chain %d, expected %d", web3rpc, chainID, c.ChainID)
	}
	return nil
}

// ChainIDBig returns the chain ID as a big number, as user operation hashes
// take it.
func (c *Contracts) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// Backend returns the chain backend.
func (c *Contracts) Backend() Backend {
	return c.cli
}

// call runs a view method and returns its single output.
func call[T any](ctx context.Context, contract *bind.BoundContract, method string, args ...any) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%s: no output", method)
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

// CodeAt returns the code deployed at addr.
func (c *Contracts) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	return c.cli.CodeAt(ctx, addr, nil)
}

// IsDeployed reports whether there is code at addr.
func (c *Contracts) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.CodeAt(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("failed to get code: %w", err)
	}
	return len(code) > 0, nil
}
