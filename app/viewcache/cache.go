// Package viewcache holds computed views of open tables (pages, sorted or
// filtered projections) so repaints after scrolling do not recompute them.
// Entries are invalidated whenever a write for their table is persisted.
package viewcache

import (
	"container/list"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freesam77/airtable-clone-sub001/app/interfaces"
)

// DefaultMaxSize is the default cache size limit (50MB)
const DefaultMaxSize = 50 * 1024 * 1024

// Entry is one cached computed view.
type Entry struct {
	Columns    []interfaces.Column
	Rows       []interfaces.Row
	TotalRows  int // row count of the whole table, not just this page
	Size       int64
	AccessTime int64
	CreateTime time.Time
}

// Stats reports cache usage.
type Stats struct {
	TotalEntries int
	TotalSize    int64
	MaxSize      int64
	UsagePercent float64
	Hits         int64
	Misses       int64
	HitRate      float64
}

// Cache is an LRU cache of computed views, keyed by table id plus a hash of
// the view parameters.
type Cache struct {
	storage     map[string]*Entry
	maxSize     int64
	currentSize int64
	// Recency order: front is most recently used, back is next to evict.
	// Element values are cache keys.
	order *list.List
	elems map[string]*list.Element
	mutex sync.RWMutex

	logger interfaces.Logger

	hits   int64
	misses int64
}

// NewCache creates a cache with the given size limit in bytes.
func NewCache(maxSize int64) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		storage: make(map[string]*Entry),
		maxSize: maxSize,
		order:   list.New(),
		elems:   make(map[string]*list.Element),
	}
}

// SetLogger sets the logger for the cache
func (c *Cache) SetLogger(logger interfaces.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.logger = logger
}

// Get retrieves a cache entry and marks it as recently used.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.storage[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		c.log("debug", fmt.Sprintf("[VIEWCACHE_MISS] Key: %s", key))
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	c.log("debug", fmt.Sprintf("[VIEWCACHE_HIT] Key: %s, Rows: %d, Size: %d bytes", key, len(entry.Rows), entry.Size))

	entry.AccessTime = time.Now().Unix()
	if el, ok := c.elems[key]; ok {
		c.order.MoveToFront(el)
	}
	return entry, true
}

// Store adds or replaces a computed view.
func (c *Cache) Store(key string, columns []interfaces.Column, rows []interfaces.Row, totalRows int) {
	size := calculateEntrySize(columns, rows)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removeLocked(key)

	if !c.evictToMakeSpace(size) {
		c.log("warning", fmt.Sprintf("[VIEWCACHE_SKIP] Entry too large to cache: %s (%d bytes, limit %d)", key, size, c.maxSize))
		return
	}

	c.storage[key] = &Entry{
		Columns:    columns,
		Rows:       rows,
		TotalRows:  totalRows,
		Size:       size,
		AccessTime: time.Now().Unix(),
		CreateTime: time.Now(),
	}
	c.currentSize += size
	c.elems[key] = c.order.PushFront(key)
	c.log("debug", fmt.Sprintf("[VIEWCACHE_STORE] Key: %s, Rows: %d, Size: %d bytes, Cache: %d/%d bytes",
		key, len(rows), size, c.currentSize, c.maxSize))
}

// InvalidateTable removes every cached view of a table. Called after each
// persisted write and after structural commits and rollbacks. Returns the
// number of entries removed.
func (c *Cache) InvalidateTable(tableID string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	prefix := tablePrefix(tableID)
	var keysToRemove []string
	for key := range c.storage {
		if strings.HasPrefix(key, prefix) {
			keysToRemove = append(keysToRemove, key)
		}
	}
	for _, key := range keysToRemove {
		c.removeLocked(key)
	}
	if len(keysToRemove) > 0 {
		c.log("debug", fmt.Sprintf("[VIEWCACHE_INVALIDATE] Table: %s, Entries removed: %d", tableID, len(keysToRemove)))
	}
	return len(keysToRemove)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.storage = make(map[string]*Entry)
	c.order = list.New()
	c.elems = make(map[string]*list.Element)
	c.currentSize = 0
	c.log("info", "[VIEWCACHE_CLEAR] All entries removed")
}

// UpdateMaxSize changes the size limit, evicting as needed.
func (c *Cache) UpdateMaxSize(newMaxSize int64) {
	if newMaxSize <= 0 {
		newMaxSize = DefaultMaxSize
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.maxSize = newMaxSize
	for c.currentSize > c.maxSize {
		if _, ok := c.evictOldestLocked(); !ok {
			break
		}
	}
}

// GetStats returns usage statistics.
func (c *Cache) GetStats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	stats := Stats{
		TotalEntries: len(c.storage),
		TotalSize:    c.currentSize,
		MaxSize:      c.maxSize,
		Hits:         hits,
		Misses:       misses,
	}
	if c.maxSize > 0 {
		stats.UsagePercent = float64(c.currentSize) / float64(c.maxSize) * 100
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// evictToMakeSpace evicts least recently used entries until neededSize fits.
// Caller holds the mutex. Returns false when the entry can never fit.
func (c *Cache) evictToMakeSpace(neededSize int64) bool {
	if neededSize > c.maxSize {
		return false
	}
	for c.currentSize+neededSize > c.maxSize {
		if _, ok := c.evictOldestLocked(); !ok {
			return c.currentSize+neededSize <= c.maxSize
		}
	}
	return true
}

// removeLocked drops one entry and its recency record. Caller holds the
// mutex. No-op for unknown keys.
func (c *Cache) removeLocked(key string) {
	entry, exists := c.storage[key]
	if !exists {
		return
	}
	delete(c.storage, key)
	c.currentSize -= entry.Size
	if el, ok := c.elems[key]; ok {
		c.order.Remove(el)
		delete(c.elems, key)
	}
}

// evictOldestLocked removes the least recently used entry. Caller holds the
// mutex. Returns false when the cache is empty.
func (c *Cache) evictOldestLocked() (string, bool) {
	el := c.order.Back()
	if el == nil {
		return "", false
	}
	key := el.Value.(string)
	size := int64(0)
	if entry, exists := c.storage[key]; exists {
		size = entry.Size
	}
	c.removeLocked(key)
	c.log("debug", fmt.Sprintf("[VIEWCACHE_EVICT] Table: %s, Key: %s, Size: %d bytes, Remaining Cache: %d/%d bytes",
		keyTableID(key), key, size, c.currentSize, c.maxSize))
	return key, true
}

// calculateEntrySize estimates the memory footprint of a cached view.
func calculateEntrySize(columns []interfaces.Column, rows []interfaces.Row) int64 {
	size := int64(0)
	for _, col := range columns {
		size += int64(len(col.ID) + len(col.Name) + len(col.Type))
		size += 16 // struct overhead
	}
	for i := range rows {
		size += int64(len(rows[i].ID)) + 48
		for j := range rows[i].Cells {
			cell := &rows[i].Cells[j]
			size += int64(len(cell.ID) + len(cell.RowID) + len(cell.ColumnID))
			if cell.Value != nil {
				size += int64(len(*cell.Value))
			}
			size += 64 // struct plus column snapshot overhead
		}
	}
	return size
}

func (c *Cache) log(level, message string) {
	if c.logger != nil {
		c.logger.Log(level, message)
		return
	}
	log.Printf("[%s] %s", level, message)
}
