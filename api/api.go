package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/passkey"
	stg "github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/voting"
)

// Passkeys runs the WebAuthn ceremonies. Implemented by
// *passkey.RelyingParty.
type Passkeys interface {
	BeginRegistration(name string) (*protocol.CredentialCreation, string, error)
	FinishRegistration(ceremonyID string, body []byte) (*stg.User, error)
	BeginLogin() (*protocol.CredentialAssertion, string, error)
	FinishLogin(ceremonyID string, body []byte) (*stg.User, error)
}

// Voting holds the account, membership and vote operations. Implemented by
// *voting.Service.
type Voting interface {
	GroupID() *big.Int
	NewSession(user *stg.User) (*voting.Session, error)
	Commitment(addr common.Address) (*big.Int, error)
	CheckMembership(ctx context.Context, ss *voting.Session) (*voting.Membership, error)
	VerifyWhitelist(ctx context.Context, ss *voting.Session) error
	JoinGroup(ctx context.Context, ss *voting.Session, mode voting.JoinMode) (*voting.JoinResult, error)
	Vote(ctx context.Context, ss *voting.Session, choice types.VoteChoice) (*voting.VoteResult, error)
	Tally(ctx context.Context) (*types.Tally, error)
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	Storage  *stg.Storage
	Passkeys Passkeys
	Tokens   *passkey.Tokens
	Voting   Voting
	Info     NodeInfo
}

// API type represents the API HTTP server with token authentication
// capabilities.
type API struct {
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	storage  *stg.Storage
	passkeys Passkeys
	tokens   *passkey.Tokens
	voting   Voting
	info     NodeInfo
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Passkeys == nil || conf.Tokens == nil {
		return nil, fmt.Errorf("missing passkey relying party or token issuer")
	}
	if conf.Voting == nil {
		return nil, fmt.Errorf("missing voting service")
	}
	a := &API{
		storage:  conf.Storage,
		passkeys: conf.Passkeys,
		tokens:   conf.Tokens,
		voting:   conf.Voting,
		info:     conf.Info,
	}
	if a.info.GroupID == nil {
		a.info.GroupID = types.NewBigInt(conf.Voting.GroupID())
	}

	// Initialize router
	a.initRouter()

	listener, err := net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s:%d: %w", conf.Host, conf.Port, err)
	}
	a.listener = listener
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", listener.Addr().String())
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on.
func (a *API) Addr() net.Addr {
	return a.listener.Addr()
}

// Shutdown stops the HTTP server, waiting for the running requests until ctx
// is done.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.nodeInfo)
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Get(MetricsEndpoint, a.metrics)

	log.Infow("register handler", "endpoint", RegisterBeginEndpoint, "method", "POST")
	a.router.Post(RegisterBeginEndpoint, a.registerBegin)
	log.Infow("register handler", "endpoint", RegisterFinishEndpoint, "method", "POST")
	a.router.Post(RegisterFinishEndpoint, a.registerFinish)
	log.Infow("register handler", "endpoint", LoginBeginEndpoint, "method", "POST")
	a.router.Post(LoginBeginEndpoint, a.loginBegin)
	log.Infow("register handler", "endpoint", LoginFinishEndpoint, "method", "POST")
	a.router.Post(LoginFinishEndpoint, a.loginFinish)

	log.Infow("register handler", "endpoint", TallyEndpoint, "method", "GET")
	a.router.Get(TallyEndpoint, a.tally)
	log.Infow("register handler", "endpoint", MembersEndpoint, "method", "GET")
	a.router.Get(MembersEndpoint, a.members)
	log.Infow("register handler", "endpoint", CommitmentEndpoint, "method", "GET")
	a.router.Get(CommitmentEndpoint, a.commitment)

	a.router.Group(func(r chi.Router) {
		r.Use(a.authenticate)
		log.Infow("register handler", "endpoint", AccountEndpoint, "method", "GET", "auth", true)
		r.Get(AccountEndpoint, a.account)
		log.Infow("register handler", "endpoint", MembershipEndpoint, "method", "GET", "auth", true)
		r.Get(MembershipEndpoint, a.membership)
		log.Infow("register handler", "endpoint", WhitelistEndpoint, "method", "POST", "auth", true)
		r.Post(WhitelistEndpoint, a.whitelist)
		log.Infow("register handler", "endpoint", JoinEndpoint, "method", "POST", "auth", true)
		r.Post(JoinEndpoint, a.joinGroup)
		log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST", "auth", true)
		r.Post(VotesEndpoint, a.vote)
	})
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	// votes and joins wait for the user operation receipt
	a.router.Use(middleware.Timeout(3 * time.Minute))

	// Register the API handlers
	a.registerHandlers()
}
