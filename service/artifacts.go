package service

import (
	"context"
	"time"

	"github.com/vocdoni/semaphore-aa-vote/semaphore"
	"golang.org/x/sync/errgroup"
)

// DownloadArtifacts downloads the circuit artifacts of the given tree depths
// concurrently. The verification key is only fetched when withVerifying is
// set.
func DownloadArtifacts(timeout time.Duration, prover *semaphore.Prover, withVerifying bool, depths ...int) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, depth := range depths {
		ca := prover.Artifacts(depth)
		g.Go(func() error {
			return ca.LoadProving(ctx)
		})
		if withVerifying {
			g.Go(func() error {
				return ca.LoadVerifying(ctx)
			})
		}
	}
	return g.Wait()
}
