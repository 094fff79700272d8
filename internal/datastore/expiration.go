package datastore

import (
	"container/heap"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ttlEntry is one (key, expiry) pair tracked by the TTL min-heap.
type ttlEntry struct {
	key    string
	expiry time.Time
	index  int
}

// ttlHeap is a min-heap ordered by expiry, giving O(log N) insert and
// O(log N + k) retrieval of the k keys expired as of a given instant —
// the ordered-map-of-expiry-to-key-set behavior from the original design,
// expressed with container/heap since no pack dependency offers an ordered
// map and the stdlib heap is the idiomatic Go substitute.
type ttlHeap []*ttlEntry

func (h ttlHeap) Len() int            { return len(h) }
func (h ttlHeap) Less(i, j int) bool  { return h[i].expiry.Before(h[j].expiry) }
func (h ttlHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *ttlHeap) Push(x interface{}) { e := x.(*ttlEntry); e.index = len(*h); *h = append(*h, e) }
func (h *ttlHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// ExpirationManager implements the two independent eviction mechanisms from
// §4.2/§3: a TTL index and an LRU index. Hot keys are never registered here.
type ExpirationManager struct {
	mu sync.Mutex

	ttlHeap    ttlHeap
	keyToEntry map[string]*ttlEntry

	lruCapacity int
	lru         *lru.Cache[string, struct{}]
	lastEvicted string
}

// NewExpirationManager creates a manager with the given LRU capacity (the
// original's default is 1000).
func NewExpirationManager(lruCapacity int) *ExpirationManager {
	if lruCapacity <= 0 {
		lruCapacity = 1000
	}
	em := &ExpirationManager{
		keyToEntry:  make(map[string]*ttlEntry),
		lruCapacity: lruCapacity,
	}
	heap.Init(&em.ttlHeap)
	c, _ := lru.NewWithEvict[string, struct{}](lruCapacity, func(key string, _ struct{}) {
		em.lastEvicted = key
	})
	em.lru = c
	return em
}

// ApplyTTLPolicy schedules key to expire at now+ttl, replacing any existing
// TTL for the key.
func (em *ExpirationManager) ApplyTTLPolicy(key string, ttl time.Duration) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.removeTTLLocked(key)
	e := &ttlEntry{key: key, expiry: time.Now().Add(ttl)}
	em.keyToEntry[key] = e
	heap.Push(&em.ttlHeap, e)
}

// RemoveTTLPolicy cancels any TTL scheduled for key.
func (em *ExpirationManager) RemoveTTLPolicy(key string) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.removeTTLLocked(key)
}

func (em *ExpirationManager) removeTTLLocked(key string) {
	e, ok := em.keyToEntry[key]
	if !ok {
		return
	}
	heap.Remove(&em.ttlHeap, e.index)
	delete(em.keyToEntry, key)
}

// HasTTLPolicy reports whether key has a scheduled TTL.
func (em *ExpirationManager) HasTTLPolicy(key string) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	_, ok := em.keyToEntry[key]
	return ok
}

// TTLPolicyCount returns the number of keys with a scheduled TTL.
func (em *ExpirationManager) TTLPolicyCount() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.keyToEntry)
}

// ExpiredKeys drains and returns all keys whose TTL has elapsed as of now.
func (em *ExpirationManager) ExpiredKeys(now time.Time) []string {
	em.mu.Lock()
	defer em.mu.Unlock()
	var expired []string
	for em.ttlHeap.Len() > 0 && !em.ttlHeap[0].expiry.After(now) {
		e := heap.Pop(&em.ttlHeap).(*ttlEntry)
		delete(em.keyToEntry, e.key)
		expired = append(expired, e.key)
	}
	return expired
}

// RecordAccess marks key as most-recently-used, possibly evicting the
// least-recently-used key if capacity is exceeded. Returns the evicted key,
// if any.
func (em *ExpirationManager) RecordAccess(key string) (evicted string, didEvict bool) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.lastEvicted = ""
	em.lru.Add(key, struct{}{})
	if em.lastEvicted != "" && em.lastEvicted != key {
		return em.lastEvicted, true
	}
	return "", false
}

// HasLRUPolicy reports whether key is currently tracked by the LRU index.
func (em *ExpirationManager) HasLRUPolicy(key string) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.lru.Contains(key)
}

// RemoveLRUPolicy stops tracking key in the LRU index.
func (em *ExpirationManager) RemoveLRUPolicy(key string) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.lru.Remove(key)
}

func (em *ExpirationManager) LRUCapacity() int { return em.lruCapacity }

func (em *ExpirationManager) LRUSize() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.lru.Len()
}
