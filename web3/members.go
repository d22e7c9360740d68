package web3

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/semaphore-aa-vote/log"
)

// MemberAddedEvent is a MemberAdded log of the Semaphore paymaster.
type MemberAddedEvent struct {
	GroupID     *big.Int
	Index       *big.Int
	Commitment  *big.Int
	Root        *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

func (c *Contracts) memberAddedQuery(groupID *big.Int, fromBlock uint64, toBlock *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   toBlock,
		Addresses: []common.Address{c.Addresses.Paymaster},
		Topics: [][]common.Hash{
			{SemaphorePaymasterABI.Events["MemberAdded"].ID},
			{common.BigToHash(groupID)},
		},
	}
}

// ParseMemberAdded decodes a MemberAdded log.
func ParseMemberAdded(l types.Log) (*MemberAddedEvent, error) {
	event := SemaphorePaymasterABI.Events["MemberAdded"]
	if len(l.Topics) != 2 || l.Topics[0] != event.ID {
		return nil, fmt.Errorf("log is not a MemberAdded event")
	}
	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("cannot decode MemberAdded: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected MemberAdded fields: %d", len(values))
	}
	return &MemberAddedEvent{
		GroupID:     l.Topics[1].Big(),
		Index:       values[0].(*big.Int),
		Commitment:  values[1].(*big.Int),
		Root:        values[2].(*big.Int),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}, nil
}

// MemberAddedEvents returns the MemberAdded events of the group since
// fromBlock, sorted by member index.
func (c *Contracts) MemberAddedEvents(ctx context.Context, groupID *big.Int, fromBlock uint64) ([]*MemberAddedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, web3LogsTimeout)
	defer cancel()
	logs, err := c.cli.FilterLogs(ctx, c.memberAddedQuery(groupID, fromBlock, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to filter member added logs: %w", err)
	}
	events := make([]*MemberAddedEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := ParseMemberAdded(l)
		if err != nil {
			log.Warnw("skipping malformed member added log", "tx", l.TxHash.Hex(), "error", err)
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Index.Cmp(events[j].Index) < 0
	})
	return events, nil
}

// GroupCommitments returns the commitments of the group members in
// insertion order.
func (c *Contracts) GroupCommitments(ctx context.Context, groupID *big.Int) ([]*big.Int, error) {
	events, err := c.MemberAddedEvents(ctx, groupID, 0)
	if err != nil {
		return nil, err
	}
	commitments := make([]*big.Int, len(events))
	for i, ev := range events {
		commitments[i] = ev.Commitment
	}
	return commitments, nil
}

// MonitorMembersByPolling monitors the members added to a group by polling
// the paymaster logs every interval, starting at fromBlock. Events are sent in
// index order and never twice.
func (c *Contracts) MonitorMembersByPolling(ctx context.Context, groupID *big.Int, fromBlock uint64, interval time.Duration) (<-chan *MemberAddedEvent, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid polling interval %s", interval)
	}
	ch := make(chan *MemberAddedEvent)
	go func() {
		defer close(ch)
		knownMembers := make(map[string]struct{})
		lastWatchBlock := fromBlock
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Warnw("exiting monitor members added", "groupId", groupID.String())
				return
			case <-ticker.C:
				events, err := c.MemberAddedEvents(ctx, groupID, lastWatchBlock)
				if err != nil {
					log.Warnw("failed to filter members added, retrying", "error", err)
					continue
				}
				for _, ev := range events {
					key := ev.Index.String()
					if _, exists := knownMembers[key]; exists {
						continue
					}
					knownMembers[key] = struct{}{}
					if ev.BlockNumber > lastWatchBlock {
						lastWatchBlock = ev.BlockNumber
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}
