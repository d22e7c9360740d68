package bundler

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/semaphore-aa-vote/userop"
)

var testEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

type ethService struct {
	sent         atomic.Int32
	pendingPolls int32
	polls        atomic.Int32
	lastOp       *userop.UserOperation
}

func (s *ethService) SendUserOperation(op *userop.UserOperation, entryPoint common.Address) (common.Hash, error) {
	if entryPoint != testEntryPoint {
		return common.Hash{}, errors.New("unsupported entrypoint")
	}
	s.sent.Add(1)
	s.lastOp = op
	return common.HexToHash("0x01"), nil
}

func (s *ethService) EstimateUserOperationGas(op *userop.UserOperation, entryPoint common.Address) (*userop.GasEstimate, error) {
	return &userop.GasEstimate{
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(1)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(2)),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(3)),
	}, nil
}

func (s *ethService) GetUserOperationReceipt(hash common.Hash) (*userop.Receipt, error) {
	if s.polls.Add(1) <= s.pendingPolls {
		return nil, nil
	}
	return &userop.Receipt{
		UserOpHash: hash,
		Success:    true,
		Receipt:    userop.TransactionReceipt{TransactionHash: common.HexToHash("0xbeef")},
	}, nil
}

type zdService struct{}

func (zdService) GetUserOperationGasPrice() (map[string]userop.GasPrice, error) {
	tier := func(fee, prio int64) userop.GasPrice {
		return userop.GasPrice{
			MaxFeePerGas:         (*hexutil.Big)(big.NewInt(fee)),
			MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(prio)),
		}
	}
	return map[string]userop.GasPrice{
		"slow":     tier(1, 1),
		"standard": tier(20, 2),
		"fast":     tier(30, 3),
	}, nil
}

func testBundler(t *testing.T, eth *ethService) *Client {
	srv := rpc.NewServer()
	qt.Assert(t, srv.RegisterName("eth", eth), qt.IsNil)
	qt.Assert(t, srv.RegisterName("zd", zdService{}), qt.IsNil)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		srv.Stop()
	})
	c, err := Dial(context.Background(), hs.URL)
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(c.Close)
	c.PollInterval = 10 * time.Millisecond
	return c
}

func TestSendAndEstimate(t *testing.T) {
	c := qt.New(t)
	eth := &ethService{}
	b := testBundler(t, eth)
	ctx := context.Background()

	op := &userop.UserOperation{
		Sender:   common.HexToAddress("0x1234"),
		Nonce:    big.NewInt(1),
		CallData: []byte{0x01},
	}
	est, err := b.EstimateUserOperationGas(ctx, op, testEntryPoint)
	c.Assert(err, qt.IsNil)
	op.Merge(est)
	c.Assert(op.CallGasLimit.Int64(), qt.Equals, int64(3))

	hash, err := b.SendUserOperation(ctx, op, testEntryPoint)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Equals, common.HexToHash("0x01"))
	c.Assert(eth.sent.Load(), qt.Equals, int32(1))
	c.Assert(eth.lastOp.Sender, qt.Equals, op.Sender)

	_, err = b.SendUserOperation(ctx, op, common.Address{})
	c.Assert(err, qt.ErrorMatches, "eth_sendUserOperation: unsupported entrypoint")
}

func TestGasPrice(t *testing.T) {
	c := qt.New(t)
	b := testBundler(t, &ethService{})
	price, err := b.UserOperationGasPrice(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(price.MaxFeePerGas.ToInt().Int64(), qt.Equals, int64(20))
	c.Assert(price.MaxPriorityFeePerGas.ToInt().Int64(), qt.Equals, int64(2))
}

func TestWaitForReceipt(t *testing.T) {
	c := qt.New(t)
	eth := &ethService{pendingPolls: 2}
	b := testBundler(t, eth)

	receipt, err := b.WaitForReceipt(context.Background(), common.HexToHash("0x01"), time.Second)
	c.Assert(err, qt.IsNil)
	c.Assert(receipt.Success, qt.IsTrue)
	c.Assert(receipt.Receipt.TransactionHash, qt.Equals, common.HexToHash("0xbeef"))
	c.Assert(eth.polls.Load(), qt.Equals, int32(3))
}

func TestWaitForReceiptTimeout(t *testing.T) {
	c := qt.New(t)
	b := testBundler(t, &ethService{pendingPolls: 1 << 30})

	_, err := b.WaitForReceipt(context.Background(), common.HexToHash("0x01"), 50*time.Millisecond)
	c.Assert(err, qt.ErrorIs, ErrReceiptTimeout)
	c.Assert(err, qt.ErrorMatches, "timeout .*")
}
