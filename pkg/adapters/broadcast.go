package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// Broadcast invokes every adapter concurrently and returns one envelope per
// adapter name. It never fails. When ctx ends first, adapters that have not
// answered are reported as timed out and left to finish in the background.
func Broadcast(ctx context.Context, pool []Adapter, prompt string) map[string]*contracts.AdapterResponse {
	start := time.Now()
	var (
		mu      sync.Mutex
		results = make([]*contracts.AdapterResponse, len(pool))
		g       errgroup.Group
	)
	for i, a := range pool {
		g.Go(func() error {
			resp := SafeInvoke(ctx, a, prompt)
			mu.Lock()
			results[i] = resp
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]*contracts.AdapterResponse, len(pool))
	for i, a := range pool {
		resp := results[i]
		if resp == nil {
			resp = Failure(a.Name(), fmt.Errorf("%s: timeout: %w", a.Name(), ctx.Err()), time.Since(start))
		}
		out[a.Name()] = resp
	}
	return out
}
