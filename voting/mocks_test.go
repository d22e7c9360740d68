package voting

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/vocdoni/semaphore-aa-vote/paymaster"
	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/userop"
)

var (
	testAccount    = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	testPaymaster  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testGatekeeper = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testVoting     = common.HexToAddress("0xB64ad1D84d59290d2C207bc4a66670CCA8431E43")
	testEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	testTxHash     = common.HexToHash("0xabcdef")
	testOpHash     = common.HexToHash("0x123456")
)

type mockContracts struct {
	mu               sync.Mutex
	deployed         bool
	size             *big.Int
	hasMember        bool
	commitments      []*big.Int
	groupDeposit     *big.Int
	paymasterDeposit *big.Int
	entryPointDepo   *big.Int
	verifyResult     bool
	tally            *types.Tally
	verifyCalls      int
}

func newMockContracts() *mockContracts {
	return &mockContracts{
		deployed:         true,
		size:             big.NewInt(0),
		groupDeposit:     big.NewInt(1e18),
		paymasterDeposit: big.NewInt(1e18),
		entryPointDepo:   big.NewInt(1e18),
		verifyResult:     true,
		tally:            &types.Tally{VotesA: types.NewInt(3), VotesB: types.NewInt(1)},
	}
}

func (m *mockContracts) GetNonce(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (m *mockContracts) KernelAddress(context.Context, []byte, [32]byte) (common.Address, error) {
	return testAccount, nil
}

func (m *mockContracts) IsDeployed(context.Context, common.Address) (bool, error) {
	return m.deployed, nil
}

func (m *mockContracts) HasMember(context.Context, *big.Int, *big.Int) (bool, error) {
	return m.hasMember, nil
}

func (m *mockContracts) MerkleTreeSize(context.Context, *big.Int) (*big.Int, error) {
	return m.size, nil
}

func (m *mockContracts) VerifyProof(context.Context, *big.Int, *semaphore.Proof) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	return m.verifyResult, nil
}

func (m *mockContracts) GroupDeposits(context.Context, *big.Int) (*big.Int, error) {
	return m.groupDeposit, nil
}

func (m *mockContracts) PaymasterDeposit(context.Context) (*big.Int, error) {
	return m.paymasterDeposit, nil
}

func (m *mockContracts) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return m.entryPointDepo, nil
}

func (m *mockContracts) GroupCommitments(context.Context, *big.Int) ([]*big.Int, error) {
	return m.commitments, nil
}

func (m *mockContracts) Tally(context.Context) (*types.Tally, error) {
	return m.tally, nil
}

type mockBundler struct {
	mu      sync.Mutex
	sent    []*userop.UserOperation
	receipt *userop.Receipt
	sendErr error
	block   chan struct{}
}

func newMockBundler() *mockBundler {
	return &mockBundler{receipt: &userop.Receipt{
		UserOpHash: testOpHash,
		Success:    true,
		Receipt:    userop.TransactionReceipt{TransactionHash: testTxHash},
	}}
}

func (b *mockBundler) UserOperationGasPrice(context.Context) (*userop.GasPrice, error) {
	return &userop.GasPrice{
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(2000000)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1000000)),
	}, nil
}

func (b *mockBundler) SendUserOperation(_ context.Context, op *userop.UserOperation, _ common.Address) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sent = append(b.sent, op)
	return testOpHash, nil
}

func (b *mockBundler) WaitForReceipt(ctx context.Context, _ common.Hash, _ time.Duration) (*userop.Receipt, error) {
	if b.block != nil {
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.receipt, nil
}

func (b *mockBundler) sentOps() []*userop.UserOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*userop.UserOperation{}, b.sent...)
}

type mockSponsor struct {
	mu       sync.Mutex
	requests []paymaster.Request
	err      error
}

func (s *mockSponsor) Sponsor(_ context.Context, req paymaster.Request) (*userop.UserOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	op := req.Op.Copy()
	op.Paymaster = &testPaymaster
	op.PaymasterVerificationGasLimit = big.NewInt(paymaster.PaymasterVerificationGasLimit)
	op.PaymasterPostOpGasLimit = big.NewInt(paymaster.PaymasterPostOpGasLimit)
	return op, nil
}

func (s *mockSponsor) lastRequest() paymaster.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type proverCall struct {
	message, scope *big.Int
	groupSize      int
}

type mockProver struct {
	mu        sync.Mutex
	calls     []proverCall
	verifyErr error
}

func (p *mockProver) GenerateProof(_ context.Context, id *semaphore.Identity, group *semaphore.Group, message, scope *big.Int, _ int) (*semaphore.Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, proverCall{message: message, scope: scope, groupSize: group.Size()})
	if group.IndexOf(id.Commitment()) < 0 {
		return nil, semaphore.ErrMemberNotFound
	}
	nullifier, err := semaphore.Nullifier(scope, id.SecretScalar())
	if err != nil {
		return nil, err
	}
	proof := &semaphore.Proof{
		MerkleTreeDepth: 1,
		MerkleTreeRoot:  group.Root(),
		Nullifier:       nullifier,
		Message:         message,
		Scope:           scope,
	}
	for i := range proof.Points {
		proof.Points[i] = big.NewInt(int64(i + 1))
	}
	return proof, nil
}

func (p *mockProver) VerifyProof(context.Context, *semaphore.Proof) error {
	return p.verifyErr
}
