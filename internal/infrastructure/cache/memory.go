package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
	"github.com/abushana-oss/mithran-sub003/internal/infrastructure/memory"
)

type localEntry struct {
	expires time.Time
	calc    *entity.Calculator
}

// localCache implements repository.CalculatorCache in process memory.
type localCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]localEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewLocalCache creates an in-process calculator cache with a fixed TTL
func NewLocalCache(ttl time.Duration) repository.CalculatorCache {
	return &localCache{
		entries: make(map[uuid.UUID]localEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *localCache) Get(_ context.Context, id uuid.UUID) (*entity.Calculator, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return nil, false, nil
	}
	return memory.CloneCalculator(entry.calc), true, nil
}

func (c *localCache) Set(_ context.Context, calc *entity.Calculator) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[calc.ID] = localEntry{expires: c.now().Add(c.ttl), calc: memory.CloneCalculator(calc)}
	return nil
}

func (c *localCache) Invalidate(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}
