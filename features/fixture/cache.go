package fixture

import (
	"context"
	"sync"

	"esdata/features/loader"
)

// Factory builds the loader used by one suite.
type Factory func(ctx context.Context, suite string) (*loader.Loader, error)

// Cache keeps one loader per suite so cases reuse it. Entries live until
// Remove is called at the end of the suite.
type Cache struct {
	mu      sync.Mutex
	factory Factory
	loaders map[string]*loader.Loader
}

func NewCache(factory Factory) *Cache {
	return &Cache{factory: factory, loaders: make(map[string]*loader.Loader)}
}

func (c *Cache) Get(ctx context.Context, suite string) (*loader.Loader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.loaders[suite]; ok {
		return l, nil
	}
	l, err := c.factory(ctx, suite)
	if err != nil {
		return nil, err
	}
	c.loaders[suite] = l
	return l, nil
}

func (c *Cache) Remove(suite string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loaders, suite)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loaders)
}
