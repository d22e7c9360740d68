package api

import (
	"errors"
	"net/http"

	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

// vote
// POST /votes
// Casts the vote of the session account with a Semaphore proof, sponsored
// by the Semaphore paymaster. Blocks until the user operation is included.
func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	req := &VoteRequest{}
	if err := httpReadJSON(r, req); err != nil {
		ErrInvalidVoteChoice.WithErr(err).Write(w)
		return
	}
	if req.Choice == nil {
		ErrInvalidVoteChoice.With("choice is required").Write(w)
		return
	}
	ss := session(r)
	res, err := a.voting.Vote(r.Context(), ss, *req.Choice)
	if err != nil {
		if errors.Is(err, voting.ErrOperationInProgress) {
			ErrOperationInProgress.Write(w)
			return
		}
		ErrVoteFailed.Friendly(err).Write(w)
		return
	}
	log.Infow("vote accepted", "user", ss.User.ID, "choice", res.Choice.String(), "tx", res.TxHash.Hex())
	httpWriteJSON(w, res)
}
