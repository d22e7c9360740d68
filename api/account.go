package api

import (
	"errors"
	"net/http"

	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

// account
// GET /account
// Returns the smart account of the session and its identity commitment.
func (a *API) account(w http.ResponseWriter, r *http.Request) {
	ss := session(r)
	addr, err := ss.Address(r.Context())
	if err != nil {
		ErrChainUnavailable.Friendly(err).Write(w)
		return
	}
	commitment, err := a.voting.Commitment(addr)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &AccountInfo{
		User:       userInfo(ss.User),
		Address:    addr,
		Owner:      ss.Signer.Address(),
		Commitment: types.NewBigInt(commitment),
	})
}

// membership
// GET /account/membership
// Checks whether the commitment of the session account is in the group.
func (a *API) membership(w http.ResponseWriter, r *http.Request) {
	m, err := a.voting.CheckMembership(r.Context(), session(r))
	if err != nil {
		ErrChainUnavailable.Friendly(err).Write(w)
		return
	}
	httpWriteJSON(w, m)
}

// whitelist
// POST /account/whitelist
// Verifies the session account against the configured whitelist.
func (a *API) whitelist(w http.ResponseWriter, r *http.Request) {
	ss := session(r)
	err := a.voting.VerifyWhitelist(r.Context(), ss)
	switch {
	case err == nil:
	case errors.Is(err, voting.ErrNotWhitelisted):
		ErrNotWhitelisted.Friendly(err).Write(w)
		return
	case errors.Is(err, voting.ErrOperationInProgress):
		ErrOperationInProgress.Write(w)
		return
	default:
		ErrWhitelistUnavailable.Friendly(err).Write(w)
		return
	}
	addr, err := ss.Address(r.Context())
	if err != nil {
		ErrChainUnavailable.Friendly(err).Write(w)
		return
	}
	httpWriteJSON(w, &WhitelistResponse{Address: addr, Whitelisted: true})
}

// joinGroup
// POST /groups/join
// Adds the identity of the session account to the group. The body selects
// the join mode.
func (a *API) joinGroup(w http.ResponseWriter, r *http.Request) {
	req := &JoinRequest{}
	if err := httpReadJSON(r, req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	switch req.Mode {
	case "", voting.JoinDirect, voting.JoinGatekeeper, voting.JoinRandom:
	default:
		ErrInvalidJoinMode.Withf("%q", req.Mode).Write(w)
		return
	}
	res, err := a.voting.JoinGroup(r.Context(), session(r), req.Mode)
	if err != nil {
		if errors.Is(err, voting.ErrOperationInProgress) {
			ErrOperationInProgress.Write(w)
			return
		}
		ErrJoinFailed.Friendly(err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}
