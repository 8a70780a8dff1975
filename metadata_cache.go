package modguard

import (
	"context"
	"log/slog"
	"sync"
)

// MetadataCache maps mod ids to resolved descriptors.
// Entries are never evicted and never replaced.
type MetadataCache struct {
	mu sync.RWMutex
	m  map[ModID]ModDescriptor

	store  DescriptorStore
	index  ModIndex
	logger *slog.Logger
}

// MetadataCacheOption configures a MetadataCache. All fields are optional.
type MetadataCacheOption struct {
	// Store persists descriptors so a restart does not ask for them again.
	Store DescriptorStore

	// Index enables Search.
	Index ModIndex

	Logger *slog.Logger
}

// NewMetadataCache creates an empty cache.
func NewMetadataCache(opt *MetadataCacheOption) *MetadataCache {
	c := &MetadataCache{m: make(map[ModID]ModDescriptor)}
	if opt == nil {
		opt = &MetadataCacheOption{}
	}
	c.store = opt.Store
	c.index = opt.Index
	c.logger = loggerOrDiscard(opt.Logger)
	return c
}

// Warm loads every persisted descriptor. It returns how many were added.
func (c *MetadataCache) Warm(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	ds, err := c.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range ds {
		if c.insert(d) {
			n++
			c.indexDescriptor(ctx, d)
		}
	}
	return n, nil
}

// Record inserts d unless its id is already known.
// It reports whether d was added.
func (c *MetadataCache) Record(ctx context.Context, d ModDescriptor) bool {
	if !c.insert(d) {
		return false
	}

	if c.store != nil {
		if err := c.store.Put(ctx, d); err != nil {
			c.logger.WarnContext(ctx, "failed to persist mod descriptor", "modID", d.ID, "error", err)
		}
	}
	c.indexDescriptor(ctx, d)
	return true
}

func (c *MetadataCache) insert(d ModDescriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.m[d.ID]; ok {
		return false
	}
	c.m[d.ID] = d
	return true
}

func (c *MetadataCache) indexDescriptor(ctx context.Context, d ModDescriptor) {
	if c.index == nil {
		return
	}
	if err := c.index.Index(ctx, d); err != nil {
		c.logger.WarnContext(ctx, "failed to index mod descriptor", "modID", d.ID, "error", err)
	}
}

// Get returns the descriptor for modID.
func (c *MetadataCache) Get(modID ModID) (ModDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.m[modID]
	return d, ok
}

// Has reports whether modID is resolved.
func (c *MetadataCache) Has(modID ModID) bool {
	_, ok := c.Get(modID)
	return ok
}

// ResolveOrID returns the mod's title, or its id when the title is unknown.
func (c *MetadataCache) ResolveOrID(modID ModID) string {
	if d, ok := c.Get(modID); ok && d.Title != "" {
		return d.Title
	}
	return modID.String()
}

// Len returns the number of cached descriptors.
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Search looks descriptors up by title and description.
// Without an index it returns nothing.
func (c *MetadataCache) Search(ctx context.Context, query string, limit int) ([]ModDescriptor, error) {
	if c.index == nil {
		return nil, nil
	}
	ids, err := c.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]ModDescriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := c.Get(id); ok {
			out = append(out, d)
		}
	}
	return out, nil
}
