package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GetNonce returns the EntryPoint nonce of the sender for the key.
func (c *Contracts) GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = new(big.Int)
	}
	return call[*big.Int](ctx, c.entryPoint, "getNonce", sender, key)
}

// BalanceOf returns the EntryPoint deposit of an account.
func (c *Contracts) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return call[*big.Int](ctx, c.entryPoint, "balanceOf", account)
}

// KernelAddress returns the counterfactual address of a Kernel account for
// its initialization data and salt.
func (c *Contracts) KernelAddress(ctx context.Context, initData []byte, salt [32]byte) (common.Address, error) {
	return call[common.Address](ctx, c.kernelFactory, "getAddress", initData, salt)
}
