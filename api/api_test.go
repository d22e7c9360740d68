package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/semaphore-aa-vote/account"
	"github.com/vocdoni/semaphore-aa-vote/api"
	"github.com/vocdoni/semaphore-aa-vote/api/client"
	"github.com/vocdoni/semaphore-aa-vote/crypto/ethereum"
	"github.com/vocdoni/semaphore-aa-vote/passkey"
	"github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

var (
	testGroupID = big.NewInt(42)
	testAccount = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
)

// fakePasskeys accepts any credential and registers a user per ceremony.
type fakePasskeys struct {
	stg   *storage.Storage
	mu    sync.Mutex
	names map[string]string
}

func (p *fakePasskeys) BeginRegistration(name string) (*protocol.CredentialCreation, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", passkey.ErrInvalidName
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.NewString()
	p.names[id] = name
	return &protocol.CredentialCreation{}, id, nil
}

func (p *fakePasskeys) FinishRegistration(ceremonyID string, _ []byte) (*storage.User, error) {
	p.mu.Lock()
	name, ok := p.names[ceremonyID]
	delete(p.names, ceremonyID)
	p.mu.Unlock()
	if !ok {
		return nil, passkey.ErrCeremonyNotFound
	}
	signer := ethereum.NewSignKeys()
	if err := signer.Generate(); err != nil {
		return nil, err
	}
	user := &storage.User{
		ID:         uuid.NewString(),
		Name:       name,
		SessionKey: signer.PrivateKeyBytes(),
		Created:    time.Now(),
	}
	return user, p.stg.SetUser(user)
}

func (p *fakePasskeys) BeginLogin() (*protocol.CredentialAssertion, string, error) {
	return &protocol.CredentialAssertion{}, uuid.NewString(), nil
}

func (p *fakePasskeys) FinishLogin(string, []byte) (*storage.User, error) {
	return nil, passkey.ErrCeremonyNotFound
}

// fakeChain resolves every Kernel account to testAccount.
type fakeChain struct{}

func (fakeChain) GetNonce(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int), nil
}

func (fakeChain) KernelAddress(context.Context, []byte, [32]byte) (common.Address, error) {
	return testAccount, nil
}

func (fakeChain) IsDeployed(context.Context, common.Address) (bool, error) {
	return true, nil
}

type fakeVoting struct {
	mu       sync.Mutex
	votes    []types.VoteChoice
	voteErr  error
	joinErr  error
	listErr  error
	joinMode voting.JoinMode
}

func (v *fakeVoting) setErrors(vote, join, list error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.voteErr, v.joinErr, v.listErr = vote, join, list
}

func (v *fakeVoting) lastJoinMode() voting.JoinMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.joinMode
}

func (v *fakeVoting) GroupID() *big.Int { return new(big.Int).Set(testGroupID) }

func (v *fakeVoting) NewSession(user *storage.User) (*voting.Session, error) {
	signer := ethereum.NewSignKeys()
	if err := signer.AddHexKey(fmt.Sprintf("%x", user.SessionKey)); err != nil {
		return nil, err
	}
	return &voting.Session{
		User:    user,
		Signer:  signer,
		Account: &account.Kernel{Owner: signer, Chain: fakeChain{}},
	}, nil
}

func (v *fakeVoting) Commitment(addr common.Address) (*big.Int, error) {
	return new(big.Int).SetBytes(addr.Bytes()), nil
}

func (v *fakeVoting) CheckMembership(ctx context.Context, ss *voting.Session) (*voting.Membership, error) {
	addr, err := ss.Address(ctx)
	if err != nil {
		return nil, err
	}
	return &voting.Membership{
		Address:    addr,
		GroupID:    types.NewBigInt(testGroupID),
		Commitment: types.NewBigInt(new(big.Int).SetBytes(addr.Bytes())),
		GroupSize:  types.NewInt(1),
		IsMember:   true,
	}, nil
}

func (v *fakeVoting) VerifyWhitelist(context.Context, *voting.Session) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.listErr
}

func (v *fakeVoting) JoinGroup(_ context.Context, _ *voting.Session, mode voting.JoinMode) (*voting.JoinResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.joinErr != nil {
		return nil, v.joinErr
	}
	v.joinMode = mode
	return &voting.JoinResult{Mode: mode, Commitment: types.NewInt(7)}, nil
}

func (v *fakeVoting) Vote(_ context.Context, _ *voting.Session, choice types.VoteChoice) (*voting.VoteResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.voteErr != nil {
		return nil, v.voteErr
	}
	v.votes = append(v.votes, choice)
	return &voting.VoteResult{
		Choice:    choice,
		TxHash:    common.HexToHash("0x01"),
		Nullifier: types.NewInt(99),
	}, nil
}

func (v *fakeVoting) Tally(context.Context) (*types.Tally, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	tally := &types.Tally{VotesA: types.NewInt(0), VotesB: types.NewInt(0)}
	for _, choice := range v.votes {
		if choice == types.ChoiceA {
			tally.VotesA = types.NewInt(tally.VotesA.MathBigInt().Int64() + 1)
		} else {
			tally.VotesB = types.NewInt(tally.VotesB.MathBigInt().Int64() + 1)
		}
	}
	return tally, nil
}

type testNode struct {
	api    *api.API
	cli    *client.HTTPclient
	stg    *storage.Storage
	voting *fakeVoting
}

func newTestNode(c *qt.C) *testNode {
	stg := storage.New(memdb.New())
	tokens, err := passkey.NewTokens("", time.Hour)
	c.Assert(err, qt.IsNil)
	fv := &fakeVoting{}
	a, err := api.New(&api.APIConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Storage:  stg,
		Passkeys: &fakePasskeys{stg: stg, names: map[string]string{}},
		Tokens:   tokens,
		Voting:   fv,
		Info:     api.NodeInfo{ChainID: 8453},
	})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	cli, err := client.New("http://" + a.Addr().String())
	c.Assert(err, qt.IsNil)
	return &testNode{api: a, cli: cli, stg: stg, voting: fv}
}

// register runs the registration ceremony and sets the session token on the
// client.
func (n *testNode) register(c *qt.C, name string) *api.SessionResponse {
	data, status, err := n.cli.Request(client.HTTPPOST, &api.RegisterBeginRequest{Name: name}, nil, api.RegisterBeginEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%s", data))
	begin := &api.RegisterBeginResponse{}
	c.Assert(json.Unmarshal(data, begin), qt.IsNil)
	c.Assert(begin.CeremonyID, qt.Not(qt.Equals), "")

	data, status, err = n.cli.Request(client.HTTPPOST, &api.CeremonyFinishRequest{
		CeremonyID: begin.CeremonyID,
		Credential: json.RawMessage(`{"id":"AQID"}`),
	}, nil, api.RegisterFinishEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%s", data))
	session := &api.SessionResponse{}
	c.Assert(json.Unmarshal(data, session), qt.IsNil)
	c.Assert(session.Token, qt.Not(qt.Equals), "")
	c.Assert(session.User.Name, qt.Equals, name)
	n.cli.SetToken(session.Token)
	return session
}

func apiErrorCode(c *qt.C, err error) int {
	var apiErr *client.APIError
	c.Assert(errors.As(err, &apiErr), qt.IsTrue, qt.Commentf("%v", err))
	return apiErr.Code
}

func TestInfo(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)

	info, err := node.cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.ChainID, qt.Equals, uint64(8453))
	c.Assert(info.GroupID.MathBigInt().Cmp(testGroupID), qt.Equals, 0)

	data, status, err := node.cli.Request(client.HTTPGET, nil, nil, api.MetricsEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(data, qt.Not(qt.HasLen), 0)
}

func TestRegistration(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)

	_, status, err := node.cli.Request(client.HTTPPOST, &api.RegisterBeginRequest{}, nil, api.RegisterBeginEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	_, status, err = node.cli.Request(client.HTTPPOST, &api.CeremonyFinishRequest{
		CeremonyID: "unknown",
		Credential: json.RawMessage(`{}`),
	}, nil, api.RegisterFinishEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)

	session := node.register(c, "alice")
	acc, err := node.cli.Account()
	c.Assert(err, qt.IsNil)
	c.Assert(acc.Address, qt.Equals, testAccount)
	c.Assert(acc.User.ID, qt.Equals, session.User.ID)
	c.Assert(acc.Commitment.MathBigInt().Cmp(new(big.Int).SetBytes(testAccount.Bytes())), qt.Equals, 0)
}

func TestAuthentication(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)

	_, err := node.cli.Account()
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrUnauthorized.Code)

	node.cli.SetToken("not-a-token")
	_, err = node.cli.Vote(types.ChoiceA)
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrUnauthorized.Code)

	// a valid token of a user the node does not know
	other, err := passkey.NewTokens("", time.Hour)
	c.Assert(err, qt.IsNil)
	token, err := other.IssueToken("someone")
	c.Assert(err, qt.IsNil)
	node.cli.SetToken(token)
	_, err = node.cli.Membership()
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrUnauthorized.Code)
}

func TestVote(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)
	node.register(c, "bob")

	m, err := node.cli.Membership()
	c.Assert(err, qt.IsNil)
	c.Assert(m.IsMember, qt.IsTrue)
	c.Assert(m.Address, qt.Equals, testAccount)

	res, err := node.cli.Vote(types.ChoiceB)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Choice, qt.Equals, types.ChoiceB)
	c.Assert(res.Nullifier.MathBigInt().Int64(), qt.Equals, int64(99))

	tally, err := node.cli.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(tally.VotesA.MathBigInt().Int64(), qt.Equals, int64(0))
	c.Assert(tally.VotesB.MathBigInt().Int64(), qt.Equals, int64(1))

	data, status, err := node.cli.Request(client.HTTPPOST, map[string]string{"choice": "C"}, nil, api.VotesEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(string(data), qt.Contains, fmt.Sprint(api.ErrInvalidVoteChoice.Code))

	_, status, err = node.cli.Request(client.HTTPPOST, map[string]string{}, nil, api.VotesEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
}

func TestVoteErrors(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)
	node.register(c, "carol")

	node.voting.setErrors(fmt.Errorf("failed to submit vote: %w", voting.ErrOperationInProgress), nil, nil)
	_, err := node.cli.Vote(types.ChoiceA)
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrOperationInProgress.Code)

	node.voting.setErrors(fmt.Errorf("failed to submit vote: sponsor: paymaster validation failed"), nil, nil)
	_, err = node.cli.Vote(types.ChoiceA)
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrVoteFailed.Code)
	var apiErr *client.APIError
	c.Assert(errors.As(err, &apiErr), qt.IsTrue)
	c.Assert(apiErr.Message, qt.Equals, "Transaction rejected by Paymaster.")
}

func TestJoinAndWhitelist(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)
	node.register(c, "dave")

	res, err := node.cli.Join("")
	c.Assert(err, qt.IsNil)
	c.Assert(node.voting.lastJoinMode(), qt.Equals, voting.JoinMode(""))
	c.Assert(res.Commitment.MathBigInt().Int64(), qt.Equals, int64(7))

	_, err = node.cli.Join(voting.JoinRandom)
	c.Assert(err, qt.IsNil)
	c.Assert(node.voting.lastJoinMode(), qt.Equals, voting.JoinRandom)

	_, err = node.cli.Join("sideways")
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrInvalidJoinMode.Code)

	data, status, err := node.cli.Request(client.HTTPPOST, nil, nil, api.WhitelistEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusOK)
	wl := &api.WhitelistResponse{}
	c.Assert(json.Unmarshal(data, wl), qt.IsNil)
	c.Assert(wl.Whitelisted, qt.IsTrue)
	c.Assert(wl.Address, qt.Equals, testAccount)

	node.voting.setErrors(nil, nil, fmt.Errorf("%w: %s", voting.ErrNotWhitelisted, testAccount.Hex()))
	_, status, err = node.cli.Request(client.HTTPPOST, nil, nil, api.WhitelistEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusForbidden)

	node.voting.setErrors(nil, nil, voting.ErrWhitelistURLNotSet)
	_, status, err = node.cli.Request(client.HTTPPOST, nil, nil, api.WhitelistEndpoint)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusServiceUnavailable)
}

func TestCommitmentAndMembers(t *testing.T) {
	c := qt.New(t)
	node := newTestNode(c)

	res, err := node.cli.Commitment(testAccount.Hex())
	c.Assert(err, qt.IsNil)
	c.Assert(res.UserAddress, qt.Equals, testAccount)
	c.Assert(res.IdentityCommitment.MathBigInt().Cmp(new(big.Int).SetBytes(testAccount.Bytes())), qt.Equals, 0)

	_, err = node.cli.Commitment("0x1234")
	c.Assert(apiErrorCode(c, err), qt.Equals, api.ErrMalformedAddress.Code)

	for i, commitment := range []int64{11, 22} {
		added, err := node.stg.AddMember(&storage.Member{
			GroupID:     types.NewBigInt(testGroupID),
			Index:       uint64(i),
			Commitment:  types.NewInt(commitment),
			Root:        types.NewInt(commitment * 100),
			BlockNumber: uint64(1000 + i),
		})
		c.Assert(err, qt.IsNil)
		c.Assert(added, qt.IsTrue)
	}
	members, err := node.cli.Members()
	c.Assert(err, qt.IsNil)
	c.Assert(members.Members, qt.HasLen, 2)
	c.Assert(members.Members[1].Commitment.MathBigInt().Int64(), qt.Equals, int64(22))
	c.Assert(members.Members[1].BlockNumber, qt.Equals, uint64(1001))
}
