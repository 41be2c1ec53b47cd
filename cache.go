// cache.go
//
// Optional per-view caches for the extract path. The decoder itself never
// memoizes plaintext; when a caller opts in through Options, the facade
// keeps *recently decoded reset intervals* → *plaintext* in a bounded LRU so
// that clustered random-access reads skip redundant interval decodes, and
// whole extracted files in a small ARC. Both caches belong to one Archive
// and die with it; there is no process-wide cache.

package chm

import (
	arc "github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// intervalCache maps a reset-interval index to its decoded plaintext.
type intervalCache struct {
	entries *lru.Cache[int, []byte]
}

func newIntervalCache(size int) (*intervalCache, error) {
	c, err := lru.New[int, []byte](size)
	if err != nil {
		return nil, err
	}
	return &intervalCache{entries: c}, nil
}

// lookup returns the decoded bytes of interval i, if cached. Callers must
// treat the slice as immutable.
func (c *intervalCache) lookup(i int) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(i)
}

func (c *intervalCache) add(i int, data []byte) {
	if c == nil {
		return
	}
	c.entries.Add(i, data)
}

// fileCache maps an exact stored entry name to its extracted bytes. ARC
// adapts between recency and frequency, which suits the typical pattern of
// a few hot entries (stylesheets, index pages) amid sequential sweeps.
type fileCache struct {
	entries *arc.ARCCache[string, []byte]
}

func newFileCache(size int) (*fileCache, error) {
	c, err := arc.NewARC[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &fileCache{entries: c}, nil
}

func (c *fileCache) lookup(name string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(name)
}

func (c *fileCache) add(name string, data []byte) {
	if c == nil {
		return
	}
	c.entries.Add(name, data)
}
