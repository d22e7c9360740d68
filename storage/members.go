package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/semaphore-aa-vote/types"
)

// Member is a cached MemberAdded event of a Semaphore group.
type Member struct {
	GroupID     *types.BigInt  `cbor:"groupId"`
	Index       uint64         `cbor:"index"`
	Commitment  *types.BigInt  `cbor:"commitment"`
	Root        *types.BigInt  `cbor:"root"`
	BlockNumber uint64         `cbor:"block"`
	TxHash      types.HexBytes `cbor:"tx"`
}

func memberKey(groupID *big.Int, index uint64) []byte {
	return append(groupKey(groupID), uint64Key(index)...)
}

// AddMember stores a member unless one with the same group and index is
// already there. It returns whether it was added.
func (s *Storage) AddMember(m *Member) (bool, error) {
	if m == nil || m.GroupID == nil || m.Commitment == nil {
		return false, fmt.Errorf("invalid member")
	}
	s.membersLock.Lock()
	defer s.membersLock.Unlock()
	key := memberKey(m.GroupID.MathBigInt(), m.Index)
	existing := &Member{}
	err := s.getArtifact(memberPrefix, key, existing)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}
	if err := s.setArtifact(memberPrefix, key, m); err != nil {
		return false, fmt.Errorf("could not store member: %w", err)
	}
	return true, nil
}

// Members returns the cached members of the group sorted by index.
func (s *Storage) Members(groupID *big.Int) ([]*Member, error) {
	var members []*Member
	var decodeErr error
	prefix := append(append([]byte{}, memberPrefix...), groupKey(groupID)...)
	if err := s.iterateArtifacts(prefix, func(_, value []byte) bool {
		m := &Member{}
		if err := decodeArtifact(value, m); err != nil {
			decodeErr = err
			return false
		}
		members = append(members, m)
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode member: %w", decodeErr)
	}
	return members, nil
}

// MemberByCommitment returns the cached member with the commitment or
// ErrNotFound.
func (s *Storage) MemberByCommitment(groupID, commitment *big.Int) (*Member, error) {
	members, err := s.Members(groupID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Commitment.MathBigInt().Cmp(commitment) == 0 {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// LastSyncedBlock returns the block up to which the group was mirrored, zero
// if never synced.
func (s *Storage) LastSyncedBlock(groupID *big.Int) (uint64, error) {
	var raw []byte
	if err := s.getArtifact(syncPrefix, groupKey(groupID), &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("malformed sync cursor")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetLastSyncedBlock advances the sync cursor of the group.
func (s *Storage) SetLastSyncedBlock(groupID *big.Int, block uint64) error {
	return s.setArtifact(syncPrefix, groupKey(groupID), uint64Key(block))
}
