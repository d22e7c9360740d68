package voting

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/web3"
)

// JoinMode selects how the account enters the group.
type JoinMode string

const (
	// JoinGatekeeper calls enter on the POAP gatekeeper with the commitment
	// derived from the account address.
	JoinGatekeeper JoinMode = "gatekeeper"
	// JoinDirect calls addMember on the paymaster with the commitment derived
	// from the account address.
	JoinDirect JoinMode = "direct"
	// JoinRandom enters through the gatekeeper with a fresh random identity
	// that is returned to the caller.
	JoinRandom JoinMode = "random"
)

// JoinResult is returned after a confirmed join.
type JoinResult struct {
	Mode        JoinMode      `json:"mode"`
	Commitment  *types.BigInt `json:"commitment"`
	UserOpHash  common.Hash   `json:"userOpHash"`
	TxHash      common.Hash   `json:"txHash"`
	ExplorerURL string        `json:"explorerUrl,omitempty"`
	// IdentityPrivateKey is only set for random identities, the node keeps
	// no copy of it.
	IdentityPrivateKey string `json:"identityPrivateKey,omitempty"`
}

// JoinGroup adds an identity of the session account to the group through a
// user operation sponsored by ZeroDev.
func (s *Service) JoinGroup(ctx context.Context, ss *Session, mode JoinMode) (*JoinResult, error) {
	if mode == "" {
		mode = JoinDirect
	}
	if err := ss.lock(); err != nil {
		return nil, err
	}
	defer ss.mu.Unlock()

	res, err := s.join(ctx, ss, mode)
	if err != nil {
		joinsFailed.Inc()
		log.Warnw("group join failed", "user", ss.User.ID, "mode", string(mode), "error", err)
		return nil, fmt.Errorf("failed to join group: %w", err)
	}
	joinsSent.Inc()
	return res, nil
}

func (s *Service) join(ctx context.Context, ss *Session, mode JoinMode) (*JoinResult, error) {
	addr, err := ss.Address(ctx)
	if err != nil {
		return nil, err
	}
	res := &JoinResult{Mode: mode}
	var id *semaphore.Identity
	switch mode {
	case JoinGatekeeper, JoinDirect:
		if id, err = s.identity(addr); err != nil {
			return nil, err
		}
	case JoinRandom:
		if id, err = semaphore.NewRandomIdentity(); err != nil {
			return nil, err
		}
		res.IdentityPrivateKey = id.PrivateKey()
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidJoinMode, mode)
	}
	commitment := id.Commitment()
	res.Commitment = types.NewBigInt(commitment)

	var to common.Address
	var callData []byte
	if mode == JoinDirect {
		to = s.conf.Addresses.Paymaster
		callData, err = web3.AddMemberCallData(s.conf.GroupID, commitment)
	} else {
		if s.conf.Addresses.Gatekeeper == (common.Address{}) {
			return nil, ErrGatekeeperNotSet
		}
		to = s.conf.Addresses.Gatekeeper
		callData, err = web3.EnterCallData(new(big.Int), commitment)
	}
	if err != nil {
		return nil, err
	}
	receipt, err := s.submit(ctx, ss, to, callData, nil)
	if err != nil {
		return nil, err
	}
	res.UserOpHash = receipt.UserOpHash
	res.TxHash = receipt.Receipt.TransactionHash
	res.ExplorerURL = s.explorerURL(res.TxHash)
	log.Infow("group joined", "user", ss.User.ID, "mode", string(mode),
		"commitment", commitment.String(), "tx", res.TxHash.Hex())
	return res, nil
}
