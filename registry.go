package jgit

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/aweris/jgit/internal/metrics"
)

// Registry hands out one Adapter per address, creating it on first use.
// The least recently used adapters are dropped once size is exceeded; a
// dropped adapter is recreated on demand.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *Adapter]
	factory func(address string) *Adapter
	logger  *zap.Logger
}

func NewRegistry(size int, factory func(address string) *Adapter, logger *zap.Logger) (*Registry, error) {
	r := &Registry{factory: factory, logger: logger}
	cache, err := lru.NewWithEvict(size, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create adapter registry: %w", err)
	}
	r.cache = cache
	return r, nil
}

func (r *Registry) onEvict(address string, _ *Adapter) {
	r.logger.Debug("evicted adapter", zap.String("address", address))
}

// Resolve returns the adapter for address.
func (r *Registry) Resolve(address string) *Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.cache.Get(address); ok {
		return a
	}

	a := r.factory(address)
	r.cache.Add(address, a)
	metrics.RegistryAdapters.Set(float64(r.cache.Len()))
	r.logger.Debug("created adapter", zap.String("address", address))
	return a
}

func (r *Registry) Len() int { return r.cache.Len() }
