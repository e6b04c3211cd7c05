package session

import (
	"sync"
	"sync/atomic"
)

// Entry pairs a valid session with its owner.
type Entry struct {
	SessionID string
	UserID    string
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Size     int
	Hits     uint64
	Misses   uint64
	Adds     uint64
	Removes  uint64
	Rebuilds uint64
}

// Cache is the in-process index of valid session ids.
//
// All methods are safe for concurrent use. Add and Remove are idempotent, so
// concurrent add/remove of the same id converges to whichever ran last.
type Cache struct {
	mu     sync.RWMutex
	owner  map[string]string              // session id -> user id
	byUser map[string]map[string]struct{} // user id -> session ids

	hits     atomic.Uint64
	misses   atomic.Uint64
	adds     atomic.Uint64
	removes  atomic.Uint64
	rebuilds atomic.Uint64
}

// NewCache returns an empty cache. It must be rebuilt from the store before use.
func NewCache() *Cache {
	return &Cache{
		owner:  make(map[string]string),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Add marks sessionID as active for userID.
func (c *Cache) Add(sessionID, userID string) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.owner[sessionID]; ok {
		if prev == userID {
			return
		}
		c.unlinkLocked(sessionID, prev)
	}
	c.linkLocked(sessionID, userID)
	c.adds.Add(1)
}

// Remove evicts sessionID and reports whether it was present.
func (c *Cache) Remove(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(sessionID)
}

// RemoveMany evicts every id in sessionIDs and returns how many were present.
func (c *Cache) RemoveMany(sessionIDs []string) int {
	if len(sessionIDs) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, id := range sessionIDs {
		if c.removeLocked(id) {
			n++
		}
	}
	return n
}

// RemoveUser evicts every cached session owned by userID and returns their ids.
func (c *Cache) RemoveUser(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	for _, id := range ids {
		c.removeLocked(id)
	}
	return ids
}

// IsActive reports whether sessionID is currently valid.
func (c *Cache) IsActive(sessionID string) bool {
	c.mu.RLock()
	_, ok := c.owner[sessionID]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return ok
}

// Rebuild replaces the whole index with entries.
func (c *Cache) Rebuild(entries []Entry) {
	owner := make(map[string]string, len(entries))
	byUser := make(map[string]map[string]struct{})
	for _, e := range entries {
		if e.SessionID == "" {
			continue
		}
		owner[e.SessionID] = e.UserID
		set := byUser[e.UserID]
		if set == nil {
			set = make(map[string]struct{})
			byUser[e.UserID] = set
		}
		set[e.SessionID] = struct{}{}
	}

	c.mu.Lock()
	c.owner = owner
	c.byUser = byUser
	c.mu.Unlock()

	c.rebuilds.Add(1)
}

// Len returns the number of active sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.owner)
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Size:     c.Len(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Adds:     c.adds.Load(),
		Removes:  c.removes.Load(),
		Rebuilds: c.rebuilds.Load(),
	}
}

func (c *Cache) linkLocked(sessionID, userID string) {
	c.owner[sessionID] = userID
	set := c.byUser[userID]
	if set == nil {
		set = make(map[string]struct{})
		c.byUser[userID] = set
	}
	set[sessionID] = struct{}{}
}

func (c *Cache) unlinkLocked(sessionID, userID string) {
	delete(c.owner, sessionID)
	if set := c.byUser[userID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(c.byUser, userID)
		}
	}
}

func (c *Cache) removeLocked(sessionID string) bool {
	userID, ok := c.owner[sessionID]
	if !ok {
		return false
	}
	c.unlinkLocked(sessionID, userID)
	c.removes.Add(1)
	return true
}
