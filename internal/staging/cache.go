// Package staging holds uploaded files in memory until they are consumed.
//
// The cache is bounded by entry count. When an insert pushes it over capacity
// the entry that was inserted first is dropped, regardless of how recently it
// was looked at. Take is the only read path and it removes the entry, so every
// staged file is handed out at most once.
package staging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"filerelay/internal/models"
)

// ErrHandleExists is returned by Put when the handle is already staged.
var ErrHandleExists = errors.New("handle already staged")

// EvictFunc observes entries dropped by the capacity policy.
type EvictFunc func(file *models.StagedFile)

type Option func(*Cache)

// WithEvictHook registers fn to run for every evicted entry.
// It runs after the cache lock has been released.
func WithEvictHook(fn EvictFunc) Option {
	return func(c *Cache) {
		if fn != nil {
			c.onEvict = append(c.onEvict, fn)
		}
	}
}

// Cache is a bounded, insertion-ordered store of staged files.
// The list never sees Get, so recency order is insertion order.
type Cache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *models.StagedFile]
	max     int
	onEvict []EvictFunc
}

// New builds a cache holding at most maxEntries files.
func New(maxEntries int, opts ...Option) (*Cache, error) {
	if maxEntries < 1 {
		return nil, fmt.Errorf("staging: max entries must be positive, got %d", maxEntries)
	}
	entries, err := simplelru.NewLRU[string, *models.StagedFile](maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	c := &Cache{entries: entries, max: maxEntries}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Put stages file under its handle, evicting the oldest entries while the
// cache would otherwise exceed its capacity.
func (c *Cache) Put(file *models.StagedFile) error {
	if file == nil || file.Handle == "" {
		return errors.New("staging: file with handle required")
	}
	var evicted []*models.StagedFile

	c.mu.Lock()
	if c.entries.Contains(file.Handle) {
		c.mu.Unlock()
		return ErrHandleExists
	}
	// make room first so Add never evicts on its own
	for c.entries.Len() >= c.max {
		_, old, ok := c.entries.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, old)
	}
	c.entries.Add(file.Handle, file)
	c.mu.Unlock()

	for _, old := range evicted {
		for _, fn := range c.onEvict {
			fn(old)
		}
	}
	return nil
}

// Take removes and returns the file staged under handle.
func (c *Cache) Take(handle string) (*models.StagedFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	file, ok := c.entries.Peek(handle)
	if !ok {
		return nil, false
	}
	c.entries.Remove(handle)
	return file, true
}

// Len reports how many files are staged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity reports the configured maximum number of entries.
func (c *Cache) Capacity() int {
	return c.max
}
