package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vocdoni/semaphore-aa-vote/api"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

// APIError is a non 200 response of the node.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %d: %s (code %d)", errCodeNot200, e.Status, e.Message, e.Code)
}

// call performs the request and decodes a 200 response into out.
func (c *HTTPclient) call(method string, body, out any, urlPath ...string) error {
	data, status, err := c.Request(method, body, nil, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &APIError{Status: status}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = string(data)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Info returns the chain and contracts of the node.
func (c *HTTPclient) Info() (*api.NodeInfo, error) {
	info := &api.NodeInfo{}
	return info, c.call(HTTPGET, nil, info, api.InfoEndpoint)
}

// Tally returns the vote counters.
func (c *HTTPclient) Tally() (*types.Tally, error) {
	tally := &types.Tally{}
	return tally, c.call(HTTPGET, nil, tally, api.TallyEndpoint)
}

// Commitment returns the identity commitment of the address.
func (c *HTTPclient) Commitment(address string) (*api.CommitmentResponse, error) {
	res := &api.CommitmentResponse{}
	return res, c.call(HTTPGET, nil, res, "commitments", address)
}

// Members lists the group members synced by the node.
func (c *HTTPclient) Members() (*api.MembersResponse, error) {
	res := &api.MembersResponse{}
	return res, c.call(HTTPGET, nil, res, api.MembersEndpoint)
}

// Account returns the smart account of the session. Requires a token.
func (c *HTTPclient) Account() (*api.AccountInfo, error) {
	res := &api.AccountInfo{}
	return res, c.call(HTTPGET, nil, res, api.AccountEndpoint)
}

// Membership checks the group membership of the session account.
func (c *HTTPclient) Membership() (*voting.Membership, error) {
	res := &voting.Membership{}
	return res, c.call(HTTPGET, nil, res, api.MembershipEndpoint)
}

// Join adds the session account to the group.
func (c *HTTPclient) Join(mode voting.JoinMode) (*voting.JoinResult, error) {
	res := &voting.JoinResult{}
	return res, c.call(HTTPPOST, &api.JoinRequest{Mode: mode}, res, api.JoinEndpoint)
}

// Vote casts the vote of the session account.
func (c *HTTPclient) Vote(choice types.VoteChoice) (*voting.VoteResult, error) {
	res := &voting.VoteResult{}
	return res, c.call(HTTPPOST, &api.VoteRequest{Choice: &choice}, res, api.VotesEndpoint)
}
