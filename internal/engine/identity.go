package engine

import (
	"hash/fnv"
	"sync"
	"time"
)

const identityShards = 64

// identityState is the mutable per-identity record shared by the rate
// and failure trackers. Its mutex is held for the whole of one
// evaluation so the three signals observed are mutually consistent.
type identityState struct {
	mu       sync.Mutex
	rate     *slidingWindow
	failures *slidingWindow
	lastSeen time.Time
}

type identityShard struct {
	mu      sync.Mutex
	entries map[string]*identityState
}

// identityTable is a sharded map of per-identity state. Events for
// different identities proceed in parallel; only events for the same
// identity serialize on the entry mutex.
type identityTable struct {
	shards [identityShards]*identityShard
}

func newIdentityTable() *identityTable {
	t := &identityTable{}
	for i := range t.shards {
		t.shards[i] = &identityShard{entries: make(map[string]*identityState)}
	}
	return t
}

func (t *identityTable) shard(identity string) *identityShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return t.shards[h.Sum32()%identityShards]
}

// acquire returns the identity's state with its mutex held. The caller
// must call release when the evaluation is done.
func (t *identityTable) acquire(identity string, now time.Time) *identityState {
	s := t.shard(identity)
	s.mu.Lock()
	entry, ok := s.entries[identity]
	if !ok {
		entry = &identityState{
			rate:     newSlidingWindow(),
			failures: newSlidingWindow(),
		}
		s.entries[identity] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	entry.lastSeen = now
	return entry
}

func (t *identityTable) release(entry *identityState) {
	entry.mu.Unlock()
}

// sweep drops identities idle past the retention horizon. Entries busy
// in an evaluation are skipped; their lastSeen is fresh anyway.
func (t *identityTable) sweep(now time.Time, retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := now.Add(-retention)
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for identity, entry := range s.entries {
			if !entry.mu.TryLock() {
				continue
			}
			idle := entry.lastSeen.Before(cutoff)
			entry.mu.Unlock()
			if idle {
				delete(s.entries, identity)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (t *identityTable) size() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
