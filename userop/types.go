package userop

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GasEstimate is the result of eth_estimateUserOperationGas. Paymaster limits
// are only returned by some bundlers.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// Merge copies the fields set in the estimate into the operation.
func (op *UserOperation) Merge(est *GasEstimate) {
	if est == nil {
		return
	}
	if est.PreVerificationGas != nil {
		op.PreVerificationGas = est.PreVerificationGas.ToInt()
	}
	if est.VerificationGasLimit != nil {
		op.VerificationGasLimit = est.VerificationGasLimit.ToInt()
	}
	if est.CallGasLimit != nil {
		op.CallGasLimit = est.CallGasLimit.ToInt()
	}
	if est.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = est.PaymasterVerificationGasLimit.ToInt()
	}
	if est.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = est.PaymasterPostOpGasLimit.ToInt()
	}
}

// GasPrice holds the fees of one gas price tier.
type GasPrice struct {
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

// TransactionReceipt is the bundle transaction receipt embedded in a user
// operation receipt.
type TransactionReceipt struct {
	TransactionHash common.Hash    `json:"transactionHash"`
	BlockHash       common.Hash    `json:"blockHash"`
	BlockNumber     *hexutil.Big   `json:"blockNumber"`
	From            common.Address `json:"from"`
	To              common.Address `json:"to"`
	GasUsed         *hexutil.Big   `json:"gasUsed"`
	Status          hexutil.Uint64 `json:"status"`
}

// Receipt is the result of eth_getUserOperationReceipt.
type Receipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	EntryPoint    common.Address     `json:"entryPoint"`
	Sender        common.Address     `json:"sender"`
	Nonce         *hexutil.Big       `json:"nonce"`
	Paymaster     common.Address     `json:"paymaster"`
	ActualGasCost *hexutil.Big       `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big       `json:"actualGasUsed"`
	Success       bool               `json:"success"`
	Reason        string             `json:"reason"`
	Receipt       TransactionReceipt `json:"receipt"`
}
