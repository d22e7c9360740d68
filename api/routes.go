package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint returns the chain, contracts and group the node works with
	InfoEndpoint = "/info"
	// MetricsEndpoint exposes the node metrics in the Prometheus format
	MetricsEndpoint = "/metrics"

	// RegisterBeginEndpoint and RegisterFinishEndpoint run the passkey
	// registration ceremony
	RegisterBeginEndpoint  = "/passkeys/register/begin"
	RegisterFinishEndpoint = "/passkeys/register/finish"
	// LoginBeginEndpoint and LoginFinishEndpoint run the passkey login
	// ceremony, the finish step returns a session token
	LoginBeginEndpoint  = "/passkeys/login/begin"
	LoginFinishEndpoint = "/passkeys/login/finish"

	// AccountEndpoint returns the smart account of the session
	AccountEndpoint = "/account"
	// MembershipEndpoint checks the group membership of the session account
	MembershipEndpoint = "/account/membership"
	// WhitelistEndpoint checks the session account against the whitelist
	WhitelistEndpoint = "/account/whitelist"
	// JoinEndpoint adds the session account identity to the group
	JoinEndpoint = "/groups/join"
	// VotesEndpoint is the endpoint for submitting a vote
	VotesEndpoint = "/votes"

	// TallyEndpoint returns the vote counters
	TallyEndpoint = "/tally"
	// MembersEndpoint lists the group members synced by the node
	MembersEndpoint = "/members"
	// CommitmentEndpoint returns the identity commitment of any address
	AddressURLParam    = "address"
	CommitmentEndpoint = "/commitments/{" + AddressURLParam + "}"
)
