package voting

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/web3"
)

var (
	// estimatedVoteGas and estimatedGasPrice give the cost a sponsored vote
	// is expected to take from the paymaster deposit.
	estimatedVoteGas  = big.NewInt(1200000)
	estimatedGasPrice = big.NewInt(200000000000)
)

// VoteResult is returned after a confirmed vote.
type VoteResult struct {
	Choice      types.VoteChoice `json:"choice"`
	UserOpHash  common.Hash      `json:"userOpHash"`
	TxHash      common.Hash      `json:"txHash"`
	ExplorerURL string           `json:"explorerUrl,omitempty"`
	Nullifier   *types.BigInt    `json:"nullifier"`
	Tally       *types.Tally     `json:"tally,omitempty"`
}

// Vote proves the membership of the session account in the group and casts
// the choice through a user operation sponsored by the Semaphore paymaster.
// The proof is only kept for the duration of the call.
func (s *Service) Vote(ctx context.Context, ss *Session, choice types.VoteChoice) (*VoteResult, error) {
	if choice != types.ChoiceA && choice != types.ChoiceB {
		return nil, fmt.Errorf("invalid vote choice %d", choice)
	}
	if err := ss.lock(); err != nil {
		return nil, err
	}
	defer ss.mu.Unlock()

	res, err := s.vote(ctx, ss, choice)
	if err != nil {
		votesFailed.Inc()
		log.Warnw("vote failed", "user", ss.User.ID, "choice", choice.String(), "error", err)
		return nil, fmt.Errorf("failed to submit vote: %w", err)
	}
	votesSent.Inc()
	return res, nil
}

func (s *Service) vote(ctx context.Context, ss *Session, choice types.VoteChoice) (*VoteResult, error) {
	groupID := s.conf.GroupID
	addr, err := ss.Address(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.identity(addr)
	if err != nil {
		return nil, err
	}

	commitments, err := s.contracts.GroupCommitments(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch group members: %w", err)
	}
	group, err := semaphore.NewGroup(commitments...)
	if err != nil {
		return nil, fmt.Errorf("cannot build group: %w", err)
	}
	if group.IndexOf(id.Commitment()) < 0 {
		return nil, ErrNotMember
	}
	log.Debugw("group rebuilt from member events", "groupId", groupID.String(),
		"size", group.Size(), "root", group.Root().String())

	message := new(big.Int).SetBytes(addr.Bytes())
	start := time.Now()
	proof, err := s.prover.GenerateProof(ctx, id, group, message, groupID, 0)
	proofGenTime.UpdateDuration(start)
	if err != nil {
		return nil, fmt.Errorf("cannot generate proof: %w", err)
	}
	s.checkProof(ctx, proof)

	if err := s.preflight(ctx); err != nil {
		return nil, err
	}

	callData, err := web3.VoteCallData(choice)
	if err != nil {
		return nil, err
	}
	receipt, err := s.submit(ctx, ss, s.conf.Addresses.Voting, callData, proof)
	if err != nil {
		return nil, err
	}
	res := &VoteResult{
		Choice:      choice,
		UserOpHash:  receipt.UserOpHash,
		TxHash:      receipt.Receipt.TransactionHash,
		ExplorerURL: s.explorerURL(receipt.Receipt.TransactionHash),
		Nullifier:   types.NewBigInt(proof.Nullifier),
	}
	log.Infow("vote confirmed", "user", ss.User.ID, "choice", choice.String(),
		"tx", res.TxHash.Hex(), "nullifier", proof.Nullifier.String())

	tally, err := s.contracts.Tally(ctx)
	if err != nil {
		log.Warnw("cannot refresh tally", "error", err)
	} else {
		res.Tally = tally
	}
	return res, nil
}

// checkProof verifies the proof against the paymaster and, when enabled,
// with the local verification key. Failures are only logged, the paymaster
// validation is authoritative.
func (s *Service) checkProof(ctx context.Context, proof *semaphore.Proof) {
	valid, err := s.contracts.VerifyProof(ctx, s.conf.GroupID, proof)
	switch {
	case err != nil:
		log.Warnw("cannot verify proof on the paymaster", "error", err)
	case !valid:
		log.Warnw("proof rejected by the paymaster verifyProof", "error", ErrProofVerification)
	default:
		log.Debugw("proof verified on the paymaster", "nullifier", proof.Nullifier.String())
	}
	if !s.conf.LocalVerify {
		return
	}
	if err := s.prover.VerifyProof(ctx, proof); err != nil {
		log.Warnw("local proof verification failed", "error", err)
	}
}

// preflight checks the deposits that pay for the vote. Only an empty group
// deposit stops the vote.
func (s *Service) preflight(ctx context.Context) error {
	groupID := s.conf.GroupID
	groupBalance, err := s.contracts.GroupDeposits(ctx, groupID)
	if err != nil {
		return fmt.Errorf("cannot read group deposit: %w", err)
	}
	if groupBalance.Sign() == 0 {
		return fmt.Errorf("%w: group %s, deposit funds with depositForGroup first", ErrGroupNotFunded, groupID)
	}
	paymasterBalance, err := s.contracts.PaymasterDeposit(ctx)
	if err != nil {
		return fmt.Errorf("cannot read paymaster deposit: %w", err)
	}
	estimatedCost := new(big.Int).Mul(estimatedVoteGas, estimatedGasPrice)
	if paymasterBalance.Cmp(estimatedCost) < 0 {
		log.Warnw("paymaster deposit might be insufficient", "deposit", paymasterBalance.String(),
			"estimatedCost", estimatedCost.String())
	}
	entryPointBalance, err := s.contracts.BalanceOf(ctx, s.conf.Addresses.Paymaster)
	if err != nil {
		log.Warnw("cannot read entrypoint balance of the paymaster", "error", err)
		return nil
	}
	if entryPointBalance.Cmp(paymasterBalance) != 0 {
		log.Warnw("getDeposit and EntryPoint balanceOf differ", "getDeposit", paymasterBalance.String(),
			"balanceOf", entryPointBalance.String())
	}
	log.Debugw("paymaster deposits", "group", groupBalance.String(), "paymaster", paymasterBalance.String())
	return nil
}
