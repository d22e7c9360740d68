// Package account implements Kernel v3.1 smart accounts whose root validator
// is the ECDSA validator, owned by a server-held key.
package account

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/userop"
	"github.com/vocdoni/semaphore-aa-vote/web3"
)

// validationTypeValidator prefixes a validator module address in a Kernel
// validation identifier.
const validationTypeValidator = 0x01

// dummySignature is a well-formed ECDSA signature accepted by the validator
// during gas estimation.
var dummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// Signer owns the account.
type Signer interface {
	Address() common.Address
	SignPersonal(message []byte) ([]byte, error)
}

// ChainReader provides the on-chain state needed to build user operations.
type ChainReader interface {
	GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error)
	KernelAddress(ctx context.Context, initData []byte, salt [32]byte) (common.Address, error)
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
}

// GasPricer suggests user operation fees.
type GasPricer interface {
	UserOperationGasPrice(ctx context.Context) (*userop.GasPrice, error)
}

// Kernel is a Kernel v3.1 account.
type Kernel struct {
	Owner         Signer
	FactoryStaker common.Address
	KernelFactory common.Address
	Validator     common.Address
	EntryPoint    common.Address
	Index         uint64

	Chain ChainReader
	Gas   GasPricer

	mu      sync.Mutex
	address *common.Address
}

// Salt returns the CREATE2 salt, the account index as bytes32.
func (k *Kernel) Salt() [32]byte {
	var salt [32]byte
	new(big.Int).SetUint64(k.Index).FillBytes(salt[:])
	return salt
}

// InitializeData encodes the Kernel initialize call with the ECDSA validator
// as root validator and the owner address as its data.
func (k *Kernel) InitializeData() ([]byte, error) {
	var rootValidator [21]byte
	rootValidator[0] = validationTypeValidator
	copy(rootValidator[1:], k.Validator.Bytes())
	return web3.KernelABI.Pack("initialize",
		rootValidator,
		common.Address{},
		k.Owner.Address().Bytes(),
		[]byte{},
		[][]byte{},
	)
}

// FactoryData encodes the FactoryStaker deployWithFactory call that deploys
// the account.
func (k *Kernel) FactoryData() ([]byte, error) {
	initData, err := k.InitializeData()
	if err != nil {
		return nil, err
	}
	return web3.FactoryStakerABI.Pack("deployWithFactory", k.KernelFactory, initData, k.Salt())
}

// Address returns the counterfactual account address, read once from the
// Kernel factory.
func (k *Kernel) Address(ctx context.Context) (common.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.address != nil {
		return *k.address, nil
	}
	initData, err := k.InitializeData()
	if err != nil {
		return common.Address{}, err
	}
	addr, err := k.Chain.KernelAddress(ctx, initData, k.Salt())
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot get kernel address: %w", err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("kernel factory returned the zero address")
	}
	k.address = &addr
	return addr, nil
}

// IsDeployed reports whether the account has code.
func (k *Kernel) IsDeployed(ctx context.Context) (bool, error) {
	addr, err := k.Address(ctx)
	if err != nil {
		return false, err
	}
	return k.Chain.IsDeployed(ctx, addr)
}

// EncodeCallData wraps a single call in Kernel execute with the default
// single call mode.
func (k *Kernel) EncodeCallData(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	execution := make([]byte, 0, 52+len(data))
	execution = append(execution, to.Bytes()...)
	execution = append(execution, common.BigToHash(value).Bytes()...)
	execution = append(execution, data...)
	return web3.KernelABI.Pack("execute", [32]byte{}, execution)
}

// DummySignature returns the signature used to estimate gas.
func (k *Kernel) DummySignature() []byte {
	return append([]byte{}, dummySignature...)
}

// SignUserOperation signs the user operation hash as a personal message.
func (k *Kernel) SignUserOperation(hash common.Hash) ([]byte, error) {
	return k.Owner.SignPersonal(hash.Bytes())
}

// Sign computes the hash of the operation for the chain and sets its
// signature.
func (k *Kernel) Sign(op *userop.UserOperation, chainID *big.Int) error {
	hash, err := op.Hash(k.EntryPoint, chainID)
	if err != nil {
		return fmt.Errorf("cannot hash user operation: %w", err)
	}
	sig, err := k.SignUserOperation(hash)
	if err != nil {
		return fmt.Errorf("cannot sign user operation: %w", err)
	}
	op.Signature = sig
	return nil
}

// BuildUserOperation prepares an unsponsored, unsigned operation calling to
// with value and data from the account. It returns whether the account is
// already deployed; if not, the operation deploys it.
func (k *Kernel) BuildUserOperation(ctx context.Context, to common.Address, value *big.Int, data []byte) (*userop.UserOperation, bool, error) {
	sender, err := k.Address(ctx)
	if err != nil {
		return nil, false, err
	}
	deployed, err := k.Chain.IsDeployed(ctx, sender)
	if err != nil {
		return nil, false, err
	}
	nonce, err := k.Chain.GetNonce(ctx, sender, new(big.Int))
	if err != nil {
		return nil, false, fmt.Errorf("cannot get account nonce: %w", err)
	}
	callData, err := k.EncodeCallData(to, value, data)
	if err != nil {
		return nil, false, err
	}
	fees, err := k.Gas.UserOperationGasPrice(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("cannot get gas price: %w", err)
	}
	op := &userop.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		CallData:             callData,
		CallGasLimit:         new(big.Int),
		VerificationGasLimit: new(big.Int),
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         fees.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas.ToInt(),
		Signature:            k.DummySignature(),
	}
	if !deployed {
		factoryData, err := k.FactoryData()
		if err != nil {
			return nil, false, err
		}
		factory := k.FactoryStaker
		op.Factory = &factory
		op.FactoryData = factoryData
	}
	log.Debugw("user operation built", "sender", sender.Hex(), "nonce", nonce.String(),
		"deployed", deployed, "to", to.Hex())
	return op, deployed, nil
}
