package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/semaphore-aa-vote/log"
	"github.com/vocdoni/semaphore-aa-vote/storage"
	"github.com/vocdoni/semaphore-aa-vote/types"
	"github.com/vocdoni/semaphore-aa-vote/web3"
)

// DefaultMonitorInterval is the log polling interval used when none is set.
const DefaultMonitorInterval = 15 * time.Second

// MembersSource streams the MemberAdded events of a group. Implemented by
// *web3.Contracts.
type MembersSource interface {
	MonitorMembersByPolling(ctx context.Context, groupID *big.Int, fromBlock uint64, interval time.Duration) (<-chan *web3.MemberAddedEvent, error)
}

// MemberMonitor represents a service that follows the members added to the
// group and stores them, together with the last synced block.
type MemberMonitor struct {
	source   MembersSource
	storage  *storage.Storage
	groupID  *big.Int
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
}

// NewMemberMonitor creates a new MemberMonitor service. If storage is nil, it
// uses a memory storage.
func NewMemberMonitor(source MembersSource, stg *storage.Storage, groupID *big.Int, interval time.Duration) *MemberMonitor {
	if stg == nil {
		stg = storage.New(memdb.New())
	}
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &MemberMonitor{
		source:   source,
		storage:  stg,
		groupID:  new(big.Int).Set(groupID),
		interval: interval,
	}
}

// Start begins monitoring the group from the last synced block. It returns an
// error if the service is already running or if it fails to start monitoring.
func (mm *MemberMonitor) Start(ctx context.Context) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	fromBlock, err := mm.storage.LastSyncedBlock(mm.groupID)
	if err != nil {
		return fmt.Errorf("failed to read last synced block: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	mm.cancel = cancel

	events, err := mm.source.MonitorMembersByPolling(ctx, mm.groupID, fromBlock, mm.interval)
	if err != nil {
		mm.cancel()
		mm.cancel = nil
		return fmt.Errorf("failed to start member monitoring: %w", err)
	}
	log.Infow("monitoring group members", "groupId", mm.groupID.String(), "fromBlock", fromBlock)
	go mm.monitorMembers(ctx, events, fromBlock)
	return nil
}

// Stop halts the monitoring service.
func (mm *MemberMonitor) Stop() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.cancel != nil {
		mm.cancel()
		mm.cancel = nil
	}
}

func (mm *MemberMonitor) monitorMembers(ctx context.Context, events <-chan *web3.MemberAddedEvent, lastBlock uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			added, err := mm.storage.AddMember(&storage.Member{
				GroupID:     types.NewBigInt(ev.GroupID),
				Index:       ev.Index.Uint64(),
				Commitment:  types.NewBigInt(ev.Commitment),
				Root:        types.NewBigInt(ev.Root),
				BlockNumber: ev.BlockNumber,
				TxHash:      ev.TxHash.Bytes(),
			})
			if err != nil {
				log.Warnw("failed to store member", "index", ev.Index.String(), "error", err.Error())
				continue
			}
			if !added {
				log.Debugw("member already stored", "index", ev.Index.String())
			} else {
				log.Debugw("new member found", "index", ev.Index.String(), "commitment", ev.Commitment.String())
			}
			if ev.BlockNumber > lastBlock {
				lastBlock = ev.BlockNumber
				if err := mm.storage.SetLastSyncedBlock(mm.groupID, lastBlock); err != nil {
					log.Warnw("failed to store last synced block", "block", lastBlock, "error", err.Error())
				}
			}
		}
	}
}
