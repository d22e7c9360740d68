package paymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/semaphore-aa-vote/userop"
)

// ZeroDev is a client of the ZeroDev paymaster endpoint.
type ZeroDev struct {
	rpc     *rpc.Client
	chainID *big.Int
}

// DialZeroDev connects to the ZeroDev paymaster for the chain.
func DialZeroDev(ctx context.Context, url string, chainID *big.Int) (*ZeroDev, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cannot dial paymaster %s: %w", url, err)
	}
	return NewZeroDev(c, chainID), nil
}

// NewZeroDev wraps an existing RPC client.
func NewZeroDev(c *rpc.Client, chainID *big.Int) *ZeroDev {
	return &ZeroDev{rpc: c, chainID: chainID}
}

// Close closes the connection.
func (z *ZeroDev) Close() {
	z.rpc.Close()
}

type sponsorParams struct {
	ChainID             hexutil.Uint64        `json:"chainId"`
	UserOp              *userop.UserOperation `json:"userOp"`
	EntryPointAddress   common.Address        `json:"entryPointAddress"`
	GasTokenData        any                   `json:"gasTokenData"`
	ShouldOverrideFee   bool                  `json:"shouldOverrideFee"`
	ManualGasEstimation bool                  `json:"manualGasEstimation"`
	ShouldConsume       bool                  `json:"shouldConsume"`
}

// sponsorResult is the zd_sponsorUserOperation response. Fee fields are only
// present when the paymaster overrides them.
type sponsorResult struct {
	Paymaster                     common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes  `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big   `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big   `json:"paymasterPostOpGasLimit"`
	PreVerificationGas            *hexutil.Big   `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big   `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big   `json:"callGasLimit"`
	MaxFeePerGas                  *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big   `json:"maxPriorityFeePerGas"`
}

// SponsorUserOperation asks ZeroDev to sponsor the operation and returns a
// copy with the paymaster fields and gas limits filled.
func (z *ZeroDev) SponsorUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*userop.UserOperation, error) {
	params := sponsorParams{
		ChainID:           hexutil.Uint64(z.chainID.Uint64()),
		UserOp:            op,
		EntryPointAddress: entryPoint,
		ShouldConsume:     true,
	}
	var res sponsorResult
	if err := z.rpc.CallContext(ctx, &res, "zd_sponsorUserOperation", params); err != nil {
		return nil, fmt.Errorf("zd_sponsorUserOperation: %w", err)
	}
	if res.Paymaster == (common.Address{}) {
		return nil, fmt.Errorf("zd_sponsorUserOperation: empty paymaster in response")
	}
	sponsored := op.Copy()
	paymaster := res.Paymaster
	sponsored.Paymaster = &paymaster
	sponsored.PaymasterData = res.PaymasterData
	sponsored.Merge(&userop.GasEstimate{
		PreVerificationGas:            res.PreVerificationGas,
		VerificationGasLimit:          res.VerificationGasLimit,
		CallGasLimit:                  res.CallGasLimit,
		PaymasterVerificationGasLimit: res.PaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       res.PaymasterPostOpGasLimit,
	})
	if res.MaxFeePerGas != nil {
		sponsored.MaxFeePerGas = res.MaxFeePerGas.ToInt()
	}
	if res.MaxPriorityFeePerGas != nil {
		sponsored.MaxPriorityFeePerGas = res.MaxPriorityFeePerGas.ToInt()
	}
	return sponsored, nil
}
