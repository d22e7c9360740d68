package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vocdoni/semaphore-aa-vote/semaphore"
)

// semaphoreProof mirrors the SemaphoreProof struct of the contract.
type semaphoreProof struct {
	MerkleTreeDepth *big.Int
	MerkleTreeRoot  *big.Int
	Nullifier       *big.Int
	Message         *big.Int
	Scope           *big.Int
	Points          [8]*big.Int
}

// HasMember reports whether the commitment is in the group.
func (c *Contracts) HasMember(ctx context.Context, groupID, commitment *big.Int) (bool, error) {
	return call[bool](ctx, c.paymaster, "hasMember", groupID, commitment)
}

// MerkleTreeSize returns the number of members of the group.
func (c *Contracts) MerkleTreeSize(ctx context.Context, groupID *big.Int) (*big.Int, error) {
	return call[*big.Int](ctx, c.paymaster, "getMerkleTreeSize", groupID)
}

// MerkleTreeRoot returns the current root of the group.
func (c *Contracts) MerkleTreeRoot(ctx context.Context, groupID *big.Int) (*big.Int, error) {
	return call[*big.Int](ctx, c.paymaster, "getMerkleTreeRoot", groupID)
}

// VerifyProof runs the on-chain verifier with the proof.
func (c *Contracts) VerifyProof(ctx context.Context, groupID *big.Int, p *semaphore.Proof) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("nil proof")
	}
	return call[bool](ctx, c.paymaster, "verifyProof", groupID, semaphoreProof{
		MerkleTreeDepth: new(big.Int).SetUint64(p.MerkleTreeDepth),
		MerkleTreeRoot:  p.MerkleTreeRoot,
		Nullifier:       p.Nullifier,
		Message:         p.Message,
		Scope:           p.Scope,
		Points:          p.Points,
	})
}

// GroupDeposits returns the funds deposited in the paymaster for the group.
func (c *Contracts) GroupDeposits(ctx context.Context, groupID *big.Int) (*big.Int, error) {
	return call[*big.Int](ctx, c.paymaster, "groupDeposits", groupID)
}

// PaymasterDeposit returns the paymaster deposit as the paymaster reports it.
func (c *Contracts) PaymasterDeposit(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, c.paymaster, "getDeposit")
}

// AddMemberCallData encodes addMember(groupId, commitment).
func AddMemberCallData(groupID, commitment *big.Int) ([]byte, error) {
	return SemaphorePaymasterABI.Pack("addMember", groupID, commitment)
}
