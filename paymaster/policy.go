// Package paymaster decides how a user operation gets its gas sponsored:
// through the ZeroDev paymaster for deployments and group joins, or through
// the Semaphore paymaster when a membership proof is attached.
package paymaster

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/userop"
	"github.com/vocdoni/semaphore-aa-vote/util"
)

const (
	// PaymasterVerificationGasLimit is the verification gas reserved for the
	// Semaphore paymaster, which verifies the proof on-chain.
	PaymasterVerificationGasLimit = 200000
	// PaymasterPostOpGasLimit is the postOp gas reserved for the Semaphore
	// paymaster.
	PaymasterPostOpGasLimit = 100000
	// AddMemberSelector is the selector of addMember(uint256,uint256).
	AddMemberSelector = "1783efc3"
)

var (
	// ErrNotEligible is returned when no sponsorship branch accepts the
	// operation.
	ErrNotEligible = errors.New("Paymaster: UserOperation not eligible for sponsorship by this policy.")
	// ErrUndeployedNoFactory is returned for an undeployed account whose
	// operation does not deploy it.
	ErrUndeployedNoFactory = errors.New("account not deployed and user operation has no factory data")
)

var (
	sponsorZeroDevDeploy = metrics.NewCounter(`paymaster_sponsorships_total{branch="zerodev_deploy"}`)
	sponsorZeroDevJoin   = metrics.NewCounter(`paymaster_sponsorships_total{branch="zerodev_add_member"}`)
	sponsorSemaphore     = metrics.NewCounter(`paymaster_sponsorships_total{branch="semaphore"}`)
	sponsorRejected      = metrics.NewCounter(`paymaster_sponsorships_rejected_total`)
)

// Estimator estimates user operation gas, usually the bundler.
type Estimator interface {
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*userop.GasEstimate, error)
}

// Sponsor fills the paymaster fields of a user operation, usually ZeroDev.
type Sponsor interface {
	SponsorUserOperation(ctx context.Context, op *userop.UserOperation, entryPoint common.Address) (*userop.UserOperation, error)
}

// Request is one sponsorship request. Proof is the membership proof of the
// vote being sent, if any; it is owned by the caller and not retained.
type Request struct {
	Op       *userop.UserOperation
	Proof    *semaphore.Proof
	Deployed bool
}

// Policy dispatches sponsorship requests.
type Policy struct {
	EntryPoint         common.Address
	SemaphorePaymaster common.Address
	Estimator          Estimator
	ZeroDev            Sponsor
}

// Sponsor returns a copy of the operation with the paymaster fields set, or
// an error when the operation cannot be sponsored.
func (p *Policy) Sponsor(ctx context.Context, req Request) (*userop.UserOperation, error) {
	op := req.Op
	if op == nil {
		return nil, errors.New("nil user operation")
	}
	switch {
	case op.HasFactory():
		log.Debugw("sponsoring user operation", "branch", "zerodev", "sender", op.Sender.Hex(), "deploy", true)
		sponsorZeroDevDeploy.Inc()
		return p.ZeroDev.SponsorUserOperation(ctx, op, p.EntryPoint)
	case !req.Deployed:
		sponsorRejected.Inc()
		return nil, ErrUndeployedNoFactory
	case req.Proof != nil:
		log.Debugw("sponsoring user operation", "branch", "semaphore", "sender", op.Sender.Hex(),
			"nullifier", req.Proof.Nullifier.String())
		sponsorSemaphore.Inc()
		return p.sponsorWithProof(ctx, op, req.Proof)
	case util.HexContains(op.CallData, AddMemberSelector):
		log.Debugw("sponsoring user operation", "branch", "zerodev", "sender", op.Sender.Hex(), "addMember", true)
		sponsorZeroDevJoin.Inc()
		return p.ZeroDev.SponsorUserOperation(ctx, op, p.EntryPoint)
	default:
		log.Warnw("user operation not eligible for sponsorship", "sender", op.Sender.Hex())
		sponsorRejected.Inc()
		return nil, ErrNotEligible
	}
}

func (p *Policy) sponsorWithProof(ctx context.Context, op *userop.UserOperation, proof *semaphore.Proof) (*userop.UserOperation, error) {
	data, err := EncodeProofData(proof)
	if err != nil {
		return nil, err
	}
	// estimate without paymaster fields, the bundler would otherwise run the
	// paymaster validation with a dummy signature
	estimateOp := op.Copy()
	estimateOp.Paymaster = nil
	estimateOp.PaymasterVerificationGasLimit = nil
	estimateOp.PaymasterPostOpGasLimit = nil
	estimateOp.PaymasterData = nil
	est, err := p.Estimator.EstimateUserOperationGas(ctx, estimateOp, p.EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("cannot estimate user operation gas: %w", err)
	}
	sponsored := op.Copy()
	sponsored.Merge(est)
	pm := p.SemaphorePaymaster
	sponsored.Paymaster = &pm
	sponsored.PaymasterVerificationGasLimit = big.NewInt(PaymasterVerificationGasLimit)
	sponsored.PaymasterPostOpGasLimit = big.NewInt(PaymasterPostOpGasLimit)
	sponsored.PaymasterData = data
	return sponsored, nil
}
