// Package voting orchestrates the actions of a logged in user: checking and
// joining the Semaphore group, and sending an anonymous vote through a user
// operation sponsored by the Semaphore paymaster.
package voting

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vocdoni/semaphore-aa-vote/account"
	"github.com/vocdoni/semaphore-aa-vote/config"
	"github.com/vocdoni/semaphore-aa-vote/crypto/ethereum"
	"github.com/vocdoni/semaphore-aa-vote/paymaster"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/userop"
)

const (
	// DefaultReceiptTimeout bounds the wait for a user operation receipt.
	DefaultReceiptTimeout = 60 * time.Second
	// DefaultSessionTTL is how long an idle session is kept in memory.
	DefaultSessionTTL = 30 * time.Minute

	sessionCacheSize  = 1024
	identityCacheSize = 4096
)

var (
	ErrGroupNotFunded       = errors.New("group has no funds deposited in the paymaster")
	ErrNotMember            = errors.New("account is not a member of the group")
	ErrOperationInProgress  = errors.New("another operation of the account is in progress")
	ErrUserOperationFailed  = errors.New("user operation failed")
	ErrWhitelistURLNotSet   = errors.New("smart account whitelist URL not configured")
	ErrNotWhitelisted       = errors.New("smart account address is not whitelisted")
	ErrGatekeeperNotSet     = errors.New("gatekeeper contract not configured")
	ErrInvalidSessionKey    = errors.New("user has no valid session key")
	ErrInvalidJoinMode      = errors.New("invalid join mode")
	ErrProofVerification    = errors.New("proof verification failed")
	errMissingConfiguration = errors.New("missing voting configuration")
)

var (
	votesSent         = metrics.NewCounter(`votes_total{result="success"}`)
	votesFailed       = metrics.NewCounter(`votes_total{result="error"}`)
	joinsSent         = metrics.NewCounter(`group_joins_total{result="success"}`)
	joinsFailed       = metrics.NewCounter(`group_joins_total{result="error"}`)
	proofGenTime      = metrics.NewHistogram(`semaphore_proof_generation_seconds`)
	receiptWaitTime   = metrics.NewHistogram(`userop_receipt_wait_seconds`)
	membershipChecked = metrics.NewCounter(`membership_checks_total`)
)

// Contracts is the on-chain state the service reads.
type Contracts interface {
	account.ChainReader
	HasMember(ctx context.Context, groupID, commitment *big.Int) (bool, error)
	MerkleTreeSize(ctx context.Context, groupID *big.Int) (*big.Int, error)
	VerifyProof(ctx context.Context, groupID *big.Int, p *semaphore.Proof) (bool, error)
	GroupDeposits(ctx context.Context, groupID *big.Int) (*big.Int, error)
	PaymasterDeposit(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	GroupCommitments(ctx context.Context, groupID *big.Int) ([]*big.Int, error)
	Tally(ctx context.Context) (*types.Tally, error)
}

// Bundler sends user operations and reports their receipts.
type Bundler interface {
	account.GasPricer
	SendUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*userop.Receipt, error)
}

// Sponsor fills the paymaster fields of a user operation.
type Sponsor interface {
	Sponsor(ctx context.Context, req paymaster.Request) (*userop.UserOperation, error)
}

// Prover generates and verifies Semaphore proofs.
type Prover interface {
	GenerateProof(ctx context.Context, id *semaphore.Identity, group *semaphore.Group, message, scope *big.Int, depth int) (*semaphore.Proof, error)
	VerifyProof(ctx context.Context, p *semaphore.Proof) error
}

// Config holds the static parameters of the service.
type Config struct {
	ChainID        *big.Int
	GroupID        *big.Int
	Addresses      config.Addresses
	ExplorerTxURL  string
	WhitelistURL   string
	ReceiptTimeout time.Duration
	SessionTTL     time.Duration
	// LocalVerify also verifies the proofs with the verification key before
	// they are sent.
	LocalVerify bool
}

// Service runs the user actions. It is safe for concurrent use; actions of
// the same session are serialized.
type Service struct {
	conf       Config
	contracts  Contracts
	bundler    Bundler
	sponsor    Sponsor
	prover     Prover
	httpClient *http.Client

	sessions   *lru.LRU[string, *Session]
	identities *lru.LRU[common.Address, *semaphore.Identity]
}

// New creates the service.
func New(conf Config, contracts Contracts, bundler Bundler, sponsor Sponsor, prover Prover) (*Service, error) {
	if conf.ChainID == nil || conf.GroupID == nil {
		return nil, fmt.Errorf("%w: chain and group IDs are required", errMissingConfiguration)
	}
	if contracts == nil || bundler == nil || sponsor == nil || prover == nil {
		return nil, fmt.Errorf("%w: contracts, bundler, sponsor and prover are required", errMissingConfiguration)
	}
	if conf.ReceiptTimeout <= 0 {
		conf.ReceiptTimeout = DefaultReceiptTimeout
	}
	if conf.SessionTTL <= 0 {
		conf.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		conf:       conf,
		contracts:  contracts,
		bundler:    bundler,
		sponsor:    sponsor,
		prover:     prover,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		sessions:   lru.NewLRU[string, *Session](sessionCacheSize, nil, conf.SessionTTL),
		identities: lru.NewLRU[common.Address, *semaphore.Identity](identityCacheSize, nil, time.Hour),
	}, nil
}

// GroupID returns the Semaphore group the service votes in.
func (s *Service) GroupID() *big.Int {
	return new(big.Int).Set(s.conf.GroupID)
}

// Session is the live state of a logged in user: its session key and the
// Kernel account it owns.
type Session struct {
	User    *storage.User
	Signer  *ethereum.SignKeys
	Account *account.Kernel

	mu sync.Mutex
}

// Address returns the smart account address of the session.
func (ss *Session) Address(ctx context.Context) (common.Address, error) {
	return ss.Account.Address(ctx)
}

// NewSession returns the session of the user, creating it if it is not
// cached.
func (s *Service) NewSession(user *storage.User) (*Session, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("invalid user")
	}
	if ss, ok := s.sessions.Get(user.ID); ok {
		return ss, nil
	}
	if len(user.SessionKey) == 0 {
		return nil, ErrInvalidSessionKey
	}
	signer := ethereum.NewSignKeys()
	if err := signer.AddHexKey(hex.EncodeToString(user.SessionKey)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionKey, err)
	}
	ss := &Session{
		User:   user,
		Signer: signer,
		Account: &account.Kernel{
			Owner:         signer,
			FactoryStaker: s.conf.Addresses.KernelFactoryStaker,
			KernelFactory: s.conf.Addresses.KernelFactory,
			Validator:     s.conf.Addresses.ECDSAValidator,
			EntryPoint:    s.conf.Addresses.EntryPoint,
			Chain:         s.contracts,
			Gas:           s.bundler,
		},
	}
	s.sessions.Add(user.ID, ss)
	return ss, nil
}

// DropSession forgets the session of the user.
func (s *Service) DropSession(userID string) {
	s.sessions.Remove(userID)
}

// identity returns the Semaphore identity derived from the address.
func (s *Service) identity(addr common.Address) (*semaphore.Identity, error) {
	if id, ok := s.identities.Get(addr); ok {
		return id, nil
	}
	id, err := semaphore.IdentityFromAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("cannot derive identity: %w", err)
	}
	s.identities.Add(addr, id)
	return id, nil
}

// Commitment returns the identity commitment derived from the address.
func (s *Service) Commitment(addr common.Address) (*big.Int, error) {
	id, err := s.identity(addr)
	if err != nil {
		return nil, err
	}
	return id.Commitment(), nil
}

// Tally reads the current vote counters.
func (s *Service) Tally(ctx context.Context) (*types.Tally, error) {
	return s.contracts.Tally(ctx)
}

// lock acquires the session for one operation, failing if another one is
// already running.
func (ss *Session) lock() error {
	if !ss.mu.TryLock() {
		return ErrOperationInProgress
	}
	return nil
}

// submit builds, sponsors, signs and sends a call from the session account
// and waits for its receipt. proof is only used for the sponsorship.
func (s *Service) submit(ctx context.Context, ss *Session, to common.Address, data []byte, proof *semaphore.Proof) (*userop.Receipt, error) {
	op, deployed, err := ss.Account.BuildUserOperation(ctx, to, nil, data)
	if err != nil {
		return nil, fmt.Errorf("cannot build user operation: %w", err)
	}
	sponsored, err := s.sponsor.Sponsor(ctx, paymaster.Request{Op: op, Proof: proof, Deployed: deployed})
	if err != nil {
		return nil, fmt.Errorf("cannot sponsor user operation: %w", err)
	}
	if err := ss.Account.Sign(sponsored, s.conf.ChainID); err != nil {
		return nil, err
	}
	hash, err := s.bundler.SendUserOperation(ctx, sponsored, s.conf.Addresses.EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("cannot send user operation: %w", err)
	}
	start := time.Now()
	receipt, err := s.bundler.WaitForReceipt(ctx, hash, s.conf.ReceiptTimeout)
	receiptWaitTime.UpdateDuration(start)
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		if receipt.Reason != "" {
			return receipt, fmt.Errorf("%w: %s", ErrUserOperationFailed, receipt.Reason)
		}
		return receipt, ErrUserOperationFailed
	}
	return receipt, nil
}

// explorerURL returns the block explorer link of the transaction.
func (s *Service) explorerURL(tx common.Hash) string {
	if s.conf.ExplorerTxURL == "" {
		return ""
	}
	return s.conf.ExplorerTxURL + tx.Hex()
}
