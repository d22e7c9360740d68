package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/web3"
	"go.vocdoni.io/dvote/db/metadb"
)

// mockMembers streams the pushed events and records the block every
// monitoring started from.
type mockMembers struct {
	mu         sync.Mutex
	fromBlocks []uint64
	events     chan *web3.MemberAddedEvent
	err        error
}

func newMockMembers() *mockMembers {
	return &mockMembers{events: make(chan *web3.MemberAddedEvent, 16)}
}

func (m *mockMembers) MonitorMembersByPolling(ctx context.Context, _ *big.Int, fromBlock uint64, _ time.Duration) (<-chan *web3.MemberAddedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.fromBlocks = append(m.fromBlocks, fromBlock)
	return m.events, nil
}

func (m *mockMembers) starts() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.fromBlocks...)
}

func memberEvent(index int64, block uint64) *web3.MemberAddedEvent {
	return &web3.MemberAddedEvent{
		GroupID:     big.NewInt(7),
		Index:       big.NewInt(index),
		Commitment:  big.NewInt(1000 + index),
		Root:        big.NewInt(5000 + index),
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(index + 1)),
	}
}

func TestMemberMonitor(t *testing.T) {
	c := qt.New(t)
	store := storage.New(metadb.NewTest(t))
	groupID := big.NewInt(7)

	source := newMockMembers()
	monitor := NewMemberMonitor(source, store, groupID, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Assert(monitor.Start(ctx), qt.IsNil)
	c.Assert(monitor.Start(ctx), qt.ErrorMatches, "service already running")

	source.events <- memberEvent(0, 100)
	source.events <- memberEvent(1, 105)
	source.events <- memberEvent(1, 105)
	source.events <- memberEvent(2, 110)

	c.Assert(waitFor(func() bool {
		block, err := store.LastSyncedBlock(groupID)
		return err == nil && block == 110
	}), qt.IsTrue)
	members, err := store.Members(groupID)
	c.Assert(err, qt.IsNil)
	c.Assert(members, qt.HasLen, 3)
	c.Assert(members[2].Commitment.MathBigInt().Int64(), qt.Equals, int64(1002))
	c.Assert(members[2].BlockNumber, qt.Equals, uint64(110))
	c.Assert(common.BytesToHash(members[0].TxHash), qt.Equals, common.BigToHash(big.NewInt(1)))

	// restarting resumes from the stored cursor
	monitor.Stop()
	c.Assert(monitor.Start(ctx), qt.IsNil)
	defer monitor.Stop()
	c.Assert(source.starts(), qt.DeepEquals, []uint64{0, 110})
}

func TestMemberMonitorSourceError(t *testing.T) {
	c := qt.New(t)
	source := newMockMembers()
	source.err = errors.New("no rpc endpoint")

	monitor := NewMemberMonitor(source, nil, big.NewInt(1), 0)
	err := monitor.Start(context.Background())
	c.Assert(err, qt.ErrorMatches, "failed to start member monitoring: no rpc endpoint")

	// a failed start leaves the service stopped
	source.err = nil
	c.Assert(monitor.Start(context.Background()), qt.IsNil)
	monitor.Stop()
}
