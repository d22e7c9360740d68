// Package userop implements the ERC-4337 v0.7 user operation: its JSON-RPC
// form, the packed fields and the hash signed by the account owner.
package userop

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an unpacked v0.7 user operation. Big integer fields are
// never nil once the operation is built; nil is marshaled as 0x0.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

type jsonUserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(v)
}

func optHexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(v)
}

func fromHexBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return (*big.Int)(v)
}

// MarshalJSON encodes the operation as the bundler RPC methods take it.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	j := jsonUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             hexutil.Bytes(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            hexutil.Bytes(op.Signature),
	}
	if j.CallData == nil {
		j.CallData = hexutil.Bytes{}
	}
	if j.Signature == nil {
		j.Signature = hexutil.Bytes{}
	}
	if op.Factory != nil {
		j.Factory = op.Factory
		j.FactoryData = hexutil.Bytes(op.FactoryData)
	}
	if op.Paymaster != nil {
		j.Paymaster = op.Paymaster
		j.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		j.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		// paymasterData is required whenever paymaster is set
		data := hexutil.Bytes(op.PaymasterData)
		if data == nil {
			data = hexutil.Bytes{}
		}
		j.PaymasterData = &data
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes the bundler RPC form.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var j jsonUserOperation
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:                        j.Sender,
		Nonce:                         fromHexBig(j.Nonce),
		Factory:                       j.Factory,
		FactoryData:                   j.FactoryData,
		CallData:                      j.CallData,
		CallGasLimit:                  fromHexBig(j.CallGasLimit),
		VerificationGasLimit:          fromHexBig(j.VerificationGasLimit),
		PreVerificationGas:            fromHexBig(j.PreVerificationGas),
		MaxFeePerGas:                  fromHexBig(j.MaxFeePerGas),
		MaxPriorityFeePerGas:          fromHexBig(j.MaxPriorityFeePerGas),
		Paymaster:                     j.Paymaster,
		PaymasterVerificationGasLimit: fromHexBig(j.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       fromHexBig(j.PaymasterPostOpGasLimit),
		Signature:                     j.Signature,
	}
	if j.PaymasterData != nil {
		op.PaymasterData = *j.PaymasterData
	}
	return nil
}

// HasFactory reports whether the operation deploys the account.
func (op *UserOperation) HasFactory() bool {
	return op.Factory != nil && len(op.FactoryData) > 0
}

// InitCode returns factory ++ factoryData, empty without factory.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return []byte{}
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData returns paymaster ++ uint128(verificationGas) ++
// uint128(postOpGas) ++ paymasterData, empty without paymaster.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return []byte{}
	}
	out := make([]byte, 0, 52+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, uint128Bytes(op.PaymasterVerificationGasLimit)...)
	out = append(out, uint128Bytes(op.PaymasterPostOpGasLimit)...)
	return append(out, op.PaymasterData...)
}

// AccountGasLimits packs verificationGasLimit (high) and callGasLimit (low).
func (op *UserOperation) AccountGasLimits() [32]byte {
	return packUint128Pair(op.VerificationGasLimit, op.CallGasLimit)
}

// GasFees packs maxPriorityFeePerGas (high) and maxFeePerGas (low).
func (op *UserOperation) GasFees() [32]byte {
	return packUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
}

func uint128Bytes(v *big.Int) []byte {
	b := make([]byte, 16)
	if v != nil {
		v.FillBytes(b)
	}
	return b
}

func packUint128Pair(high, low *big.Int) [32]byte {
	var out [32]byte
	copy(out[:16], uint128Bytes(high))
	copy(out[16:], uint128Bytes(low))
	return out
}

var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)

	packArgs = abi.Arguments{
		{Type: addressType}, // sender
		{Type: uint256Type}, // nonce
		{Type: bytes32Type}, // keccak(initCode)
		{Type: bytes32Type}, // keccak(callData)
		{Type: bytes32Type}, // accountGasLimits
		{Type: uint256Type}, // preVerificationGas
		{Type: bytes32Type}, // gasFees
		{Type: bytes32Type}, // keccak(paymasterAndData)
	}
	hashArgs = abi.Arguments{
		{Type: bytes32Type},
		{Type: addressType},
		{Type: uint256Type},
	}
)

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Pack encodes the operation as EntryPoint v0.7 does before hashing it. The
// signature is not part of it.
func (op *UserOperation) Pack() ([]byte, error) {
	return packArgs.Pack(
		op.Sender,
		nonNil(op.Nonce),
		crypto.Keccak256Hash(op.InitCode()),
		crypto.Keccak256Hash(op.CallData),
		op.AccountGasLimits(),
		nonNil(op.PreVerificationGas),
		op.GasFees(),
		crypto.Keccak256Hash(op.PaymasterAndData()),
	)
}

// Hash returns the user operation hash for an EntryPoint and chain, the value
// the account owner signs.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, nonNil(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyAddr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// Copy returns a deep copy of the operation.
func (op *UserOperation) Copy() *UserOperation {
	return &UserOperation{
		Sender:                        op.Sender,
		Nonce:                         copyBig(op.Nonce),
		Factory:                       copyAddr(op.Factory),
		FactoryData:                   copyBytes(op.FactoryData),
		CallData:                      copyBytes(op.CallData),
		CallGasLimit:                  copyBig(op.CallGasLimit),
		VerificationGasLimit:          copyBig(op.VerificationGasLimit),
		PreVerificationGas:            copyBig(op.PreVerificationGas),
		MaxFeePerGas:                  copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          copyBig(op.MaxPriorityFeePerGas),
		Paymaster:                     copyAddr(op.Paymaster),
		PaymasterVerificationGasLimit: copyBig(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       copyBig(op.PaymasterPostOpGasLimit),
		PaymasterData:                 copyBytes(op.PaymasterData),
		Signature:                     copyBytes(op.Signature),
	}
}
