package api

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

// NodeInfo describes the network and contracts the node is bound to.
type NodeInfo struct {
	ChainID       uint64           `json:"chainId"`
	GroupID       *types.BigInt    `json:"groupId"`
	Addresses     config.Addresses `json:"addresses"`
	ExplorerTxURL string           `json:"explorerTxUrl,omitempty"`
}

// RegisterBeginRequest starts the registration of a new passkey user.
type RegisterBeginRequest struct {
	Name string `json:"name"`
}

// RegisterBeginResponse carries the WebAuthn creation options and the
// ceremony the finish request must refer to.
type RegisterBeginResponse struct {
	CeremonyID string                       `json:"ceremonyId"`
	Options    *protocol.CredentialCreation `json:"options"`
}

// LoginBeginResponse carries the WebAuthn assertion options and the ceremony
// the finish request must refer to.
type LoginBeginResponse struct {
	CeremonyID string                        `json:"ceremonyId"`
	Options    *protocol.CredentialAssertion `json:"options"`
}

// CeremonyFinishRequest completes a registration or login ceremony with the
// credential returned by the authenticator.
type CeremonyFinishRequest struct {
	CeremonyID string          `json:"ceremonyId"`
	Credential json.RawMessage `json:"credential"`
}

// SessionResponse is returned by a finished ceremony.
type SessionResponse struct {
	Token string    `json:"token"`
	User  *UserInfo `json:"user"`
}

// UserInfo is the public view of a passkey user.
type UserInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// AccountInfo describes the smart account of the session.
type AccountInfo struct {
	User       *UserInfo      `json:"user"`
	Address    common.Address `json:"address"`
	Owner      common.Address `json:"owner"`
	Commitment *types.BigInt  `json:"commitment"`
}

// WhitelistResponse is returned when the account is whitelisted.
type WhitelistResponse struct {
	Address     common.Address `json:"address"`
	Whitelisted bool           `json:"whitelisted"`
}

// JoinRequest selects how the account joins the group. An empty mode means
// direct.
type JoinRequest struct {
	Mode voting.JoinMode `json:"mode,omitempty"`
}

// VoteRequest casts a vote for option A or B.
type VoteRequest struct {
	Choice *types.VoteChoice `json:"choice"`
}

// CommitmentResponse maps an address to its identity commitment.
type CommitmentResponse struct {
	UserAddress        common.Address `json:"userAddress"`
	IdentityCommitment *types.BigInt  `json:"identityCommitment"`
}

// MembersResponse lists the group members known by the node.
type MembersResponse struct {
	GroupID *types.BigInt `json:"groupId"`
	Members []*MemberInfo `json:"members"`
}

// MemberInfo is a MemberAdded event of the group.
type MemberInfo struct {
	Index       uint64         `json:"index"`
	Commitment  *types.BigInt  `json:"commitment"`
	Root        *types.BigInt  `json:"root"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      types.HexBytes `json:"txHash"`
}
