package web3

import (
	"context"
	"math/big"

	"github.com/vocdoni/semaphore-aa-vote/types"
)

// VoteCallData encodes vote(choice).
func VoteCallData(choice types.VoteChoice) ([]byte, error) {
	return VotingABI.Pack("vote", big.NewInt(int64(choice)))
}

// EnterCallData encodes the gatekeeper enter(tokenIndex, commitment).
func EnterCallData(tokenIndex, commitment *big.Int) ([]byte, error) {
	return GatekeeperABI.Pack("enter", tokenIndex, commitment)
}

// VotesA returns the votes for option A.
func (c *Contracts) VotesA(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, c.voting, "votesA")
}

// VotesB returns the votes for option B.
func (c *Contracts) VotesB(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, c.voting, "votesB")
}

// Tally reads both counters.
func (c *Contracts) Tally(ctx context.Context) (*types.Tally, error) {
	a, err := c.VotesA(ctx)
	if err != nil {
		return nil, err
	}
	b, err := c.VotesB(ctx)
	if err != nil {
		return nil, err
	}
	return &types.Tally{VotesA: types.NewBigInt(a), VotesB: types.NewBigInt(b)}, nil
}
