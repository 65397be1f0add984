// Package cache holds the prepared-statement cache used by the database/sql
// driver adapter. Compiled SQL text is never cached; only the driver-side
// prepared handles keyed by their final SQL string.
package cache

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultStmtCacheCapacity is the default maximum number of cached prepared statements.
const DefaultStmtCacheCapacity = 1000

// StmtCache stores prepared statements with LRU eviction. Statements handed
// out by Get and Set are in use until Release; one evicted or purged while
// in use is closed by its last Release, any other immediately.
type StmtCache struct {
	capacity int

	mu      sync.Mutex
	items   *simplelru.LRU[string, *sql.Stmt]
	refs    map[*sql.Stmt]int
	retired map[*sql.Stmt]bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewStmtCache creates a cache with DefaultStmtCacheCapacity.
func NewStmtCache() *StmtCache {
	return NewStmtCacheWithCapacity(DefaultStmtCacheCapacity)
}

// NewStmtCacheWithCapacity creates a cache holding at most capacity statements.
// Non-positive capacities fall back to the default.
func NewStmtCacheWithCapacity(capacity int) *StmtCache {
	if capacity <= 0 {
		capacity = DefaultStmtCacheCapacity
	}
	sc := &StmtCache{
		capacity: capacity,
		refs:     make(map[*sql.Stmt]int),
		retired:  make(map[*sql.Stmt]bool),
	}
	// NewLRU only fails for a non-positive size.
	sc.items, _ = simplelru.NewLRU[string, *sql.Stmt](capacity, sc.evicted)
	return sc
}

// evicted runs with mu held.
func (sc *StmtCache) evicted(_ string, stmt *sql.Stmt) {
	sc.evictions.Add(1)
	if sc.refs[stmt] > 0 {
		sc.retired[stmt] = true
		return
	}
	_ = stmt.Close()
}

// Get returns the statement prepared for query, marking it recently used
// and in use.
func (sc *StmtCache) Get(query string) (*sql.Stmt, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	stmt, ok := sc.items.Get(query)
	if !ok {
		sc.misses.Add(1)
		return nil, false
	}
	sc.hits.Add(1)
	sc.refs[stmt]++
	return stmt, true
}

// Set stores stmt for query and returns the statement callers should use,
// marked in use. When another caller cached the same query first, stmt is
// closed and the cached statement is returned instead.
func (sc *StmtCache) Set(query string, stmt *sql.Stmt) *sql.Stmt {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.items.Peek(query); ok {
		if existing != stmt {
			_ = stmt.Close()
		}
		sc.refs[existing]++
		return existing
	}
	sc.refs[stmt]++
	sc.items.Add(query, stmt)
	return stmt
}

// Release ends one use of a statement returned by Get or Set.
func (sc *StmtCache) Release(stmt *sql.Stmt) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if n := sc.refs[stmt] - 1; n > 0 {
		sc.refs[stmt] = n
		return
	}
	delete(sc.refs, stmt)
	if sc.retired[stmt] {
		delete(sc.retired, stmt)
		_ = stmt.Close()
	}
}

// Len returns the number of cached statements.
func (sc *StmtCache) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.items.Len()
}

// Clear removes all cached statements, closing those not in use.
func (sc *StmtCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.items.Purge()
}

// Stats holds cache performance metrics.
type Stats struct {
	Size      int     // Current number of cached statements.
	Capacity  int     // Maximum capacity.
	Hits      uint64  // Successful lookups.
	Misses    uint64  // Failed lookups.
	Evictions uint64  // Statements evicted or cleared.
	HitRate   float64 // hits / (hits + misses).
}

// Stats returns cache statistics.
func (sc *StmtCache) Stats() Stats {
	hits := sc.hits.Load()
	misses := sc.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Size:      sc.Len(),
		Capacity:  sc.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: sc.evictions.Load(),
		HitRate:   rate,
	}
}
