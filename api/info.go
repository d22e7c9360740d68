package api

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/semaphore-aa-vote/types"
)

// nodeInfo
// GET /info
func (a *API) nodeInfo(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, &a.info)
}

// metrics
// GET /metrics
func (a *API) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

// tally
// GET /tally
// Returns the counters of the voting contract.
func (a *API) tally(w http.ResponseWriter, r *http.Request) {
	tally, err := a.voting.Tally(r.Context())
	if err != nil {
		ErrChainUnavailable.Friendly(err).Write(w)
		return
	}
	httpWriteJSON(w, tally)
}

// members
// GET /members
// Lists the members of the group synced from the MemberAdded events.
func (a *API) members(w http.ResponseWriter, r *http.Request) {
	groupID := a.voting.GroupID()
	members, err := a.storage.Members(groupID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	res := &MembersResponse{
		GroupID: types.NewBigInt(groupID),
		Members: make([]*MemberInfo, 0, len(members)),
	}
	for _, m := range members {
		res.Members = append(res.Members, &MemberInfo{
			Index:       m.Index,
			Commitment:  m.Commitment,
			Root:        m.Root,
			BlockNumber: m.BlockNumber,
			TxHash:      m.TxHash,
		})
	}
	httpWriteJSON(w, res)
}

// commitment
// GET /commitments/{address}
// Returns the identity commitment derived from any address.
func (a *API) commitment(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(param) {
		ErrMalformedAddress.Withf("%q", param).Write(w)
		return
	}
	addr := common.HexToAddress(param)
	commitment, err := a.voting.Commitment(addr)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &CommitmentResponse{
		UserAddress:        addr,
		IdentityCommitment: types.NewBigInt(commitment),
	})
}
