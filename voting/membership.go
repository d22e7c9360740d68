package voting

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/types"
)

// Membership is the result of a group membership check.
type Membership struct {
	Address    common.Address `json:"address"`
	GroupID    *types.BigInt  `json:"groupId"`
	Commitment *types.BigInt  `json:"commitment"`
	GroupSize  *types.BigInt  `json:"groupSize"`
	IsMember   bool           `json:"isMember"`
	// Inconsistent is set when the commitment is in the MemberAdded events
	// but the contract does not report it as a member.
	Inconsistent bool `json:"inconsistent,omitempty"`
	// AddMemberHint is the call that would add the account to the group.
	AddMemberHint string `json:"addMemberHint,omitempty"`
}

// CheckMembership reports whether the identity derived from the session
// account is a member of the group.
func (s *Service) CheckMembership(ctx context.Context, ss *Session) (*Membership, error) {
	membershipChecked.Inc()
	addr, err := ss.Address(ctx)
	if err != nil {
		return nil, err
	}
	return s.CheckAddressMembership(ctx, addr)
}

// CheckAddressMembership is CheckMembership for any address.
func (s *Service) CheckAddressMembership(ctx context.Context, addr common.Address) (*Membership, error) {
	commitment, err := s.Commitment(addr)
	if err != nil {
		return nil, err
	}
	groupID := s.conf.GroupID
	m := &Membership{
		Address:    addr,
		GroupID:    types.NewBigInt(groupID),
		Commitment: types.NewBigInt(commitment),
	}
	size, err := s.contracts.MerkleTreeSize(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s size, group might not exist: %w", groupID, err)
	}
	m.GroupSize = types.NewBigInt(size)
	if size.Sign() == 0 {
		log.Warnw("group has no members", "groupId", groupID.String())
		m.AddMemberHint = addMemberHint(groupID, commitment)
		return m, nil
	}
	isMember, err := s.contracts.HasMember(ctx, groupID, commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to check group membership: %w", err)
	}
	m.IsMember = isMember
	if isMember {
		return m, nil
	}
	m.AddMemberHint = addMemberHint(groupID, commitment)

	// events are only read to explain a negative answer
	commitments, err := s.contracts.GroupCommitments(ctx, groupID)
	if err != nil {
		log.Warnw("cannot fetch member events", "groupId", groupID.String(), "error", err)
		return m, nil
	}
	for i, c := range commitments {
		if c.Cmp(commitment) == 0 {
			m.Inconsistent = true
			log.Warnw("commitment found in member events but hasMember returned false",
				"groupId", groupID.String(), "index", i, "commitment", commitment.String())
			break
		}
	}
	log.Debugw("account is not a group member", "address", addr.Hex(),
		"members", len(commitments), "hint", m.AddMemberHint)
	return m, nil
}

func addMemberHint(groupID, commitment *big.Int) string {
	return fmt.Sprintf("addMember(%s, %s)", groupID, commitment)
}
