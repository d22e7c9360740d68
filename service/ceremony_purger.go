package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/semaphore-aa-vote/log"
)

// CeremonyPurger deletes the expired passkey ceremonies. Implemented by
// *passkey.RelyingParty.
type CeremonyPurger interface {
	PurgeCeremonies() (int, error)
}

// PurgeService periodically removes the expired passkey ceremonies.
type PurgeService struct {
	purger   CeremonyPurger
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
}

// NewPurgeService creates a new PurgeService running every interval.
func NewPurgeService(purger CeremonyPurger, interval time.Duration) *PurgeService {
	return &PurgeService{purger: purger, interval: interval}
}

// Start begins the purge loop. It returns an error if the service is already
// running.
func (ps *PurgeService) Start(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if ps.interval <= 0 {
		return fmt.Errorf("invalid purge interval %s", ps.interval)
	}
	ctx, ps.cancel = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(ps.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := ps.purger.PurgeCeremonies()
				if err != nil {
					log.Warnw("failed to purge ceremonies", "error", err)
					continue
				}
				if n > 0 {
					log.Debugw("expired ceremonies purged", "count", n)
				}
			}
		}
	}()
	return nil
}

// Stop halts the purge loop.
func (ps *PurgeService) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.cancel != nil {
		ps.cancel()
		ps.cancel = nil
	}
}
