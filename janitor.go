package jgit

import (
	"context"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/metrics"
)

// Run removes the working copies the cache has let go until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.cache.Notify():
			s.Sweep()
		}
	}
}

// Sweep deletes the working copies of evicted cache keys and returns how many
// it removed. A key used again since its eviction is skipped.
func (s *Server) Sweep() int {
	keys := s.cache.Evicted()
	if len(keys) == 0 {
		return 0
	}

	var removed atomic.Int64
	p := pool.New().WithMaxGoroutines(s.opts.Concurrency)
	for _, k := range keys {
		p.Go(func() {
			lock := k.String()
			s.locks.Lock(lock)
			defer func() { _ = s.locks.Unlock(lock) }()

			if s.cache.Contains(k) {
				return
			}
			exists, err := s.local.Exists(k)
			if err != nil || !exists {
				return
			}
			if err := s.local.Remove(k); err != nil {
				s.logger.Warn("failed to remove working copy", zap.Stringer("repo", k), zap.Error(err))
				return
			}
			removed.Add(1)
			metrics.Evictions.Inc()
			s.logger.Debug("removed working copy", zap.Stringer("repo", k))
		})
	}
	p.Wait()

	metrics.LocalCopies.Set(float64(s.cache.Len()))
	return int(removed.Load())
}
