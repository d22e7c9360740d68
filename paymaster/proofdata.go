package paymaster

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
)

// ProofDataSize is the length of the encoded proof: thirteen static words.
const ProofDataSize = 13 * 32

var proofDataArgs = func() abi.Arguments {
	uint256Type, _ := abi.NewType("uint256", "", nil)
	pointsType, _ := abi.NewType("uint256[8]", "", nil)
	return abi.Arguments{
		{Name: "merkleTreeDepth", Type: uint256Type},
		{Name: "merkleTreeRoot", Type: uint256Type},
		{Name: "nullifier", Type: uint256Type},
		{Name: "message", Type: uint256Type},
		{Name: "scope", Type: uint256Type},
		{Name: "points", Type: pointsType},
	}
}()

// EncodeProofData ABI encodes the proof as the Semaphore paymaster expects
// it in paymasterData.
func EncodeProofData(p *semaphore.Proof) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil proof")
	}
	for i, pt := range p.Points {
		if pt == nil {
			return nil, fmt.Errorf("missing proof point %d", i)
		}
	}
	return proofDataArgs.Pack(
		new(big.Int).SetUint64(p.MerkleTreeDepth),
		p.MerkleTreeRoot,
		p.Nullifier,
		p.Message,
		p.Scope,
		p.Points,
	)
}

// DecodeProofData is the inverse of EncodeProofData.
func DecodeProofData(data []byte) (*semaphore.Proof, error) {
	if len(data) != ProofDataSize {
		return nil, fmt.Errorf("invalid proof data length %d, expected %d", len(data), ProofDataSize)
	}
	values, err := proofDataArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("cannot decode proof data: %w", err)
	}
	depth := values[0].(*big.Int)
	if !depth.IsUint64() {
		return nil, fmt.Errorf("invalid merkle tree depth %s", depth)
	}
	return &semaphore.Proof{
		MerkleTreeDepth: depth.Uint64(),
		MerkleTreeRoot:  values[1].(*big.Int),
		Nullifier:       values[2].(*big.Int),
		Message:         values[3].(*big.Int),
		Scope:           values[4].(*big.Int),
		Points:          values[5].([8]*big.Int),
	}, nil
}
