package corpus

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const internShards = 256

// Interner deduplicates the heavily repeated strings of a capture corpus
// (hostnames, methods, header names, server IPs) so every visit shares one
// backing copy. Shards are distributed by xxhash to keep lock contention
// low during concurrent loading.
type Interner struct {
	shards [internShards]*internShard
}

type internShard struct {
	mu    sync.RWMutex
	table map[string]string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	in := &Interner{}
	for i := range in.shards {
		in.shards[i] = &internShard{table: make(map[string]string)}
	}
	return in
}

// Intern returns the canonical copy of s, storing it on first sight.
func (in *Interner) Intern(s string) string {
	if s == "" {
		return ""
	}

	shard := in.shards[xxhash.Sum64String(s)%internShards]

	shard.mu.RLock()
	if canonical, ok := shard.table[s]; ok {
		shard.mu.RUnlock()
		return canonical
	}
	shard.mu.RUnlock()

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if canonical, ok := shard.table[s]; ok {
		return canonical
	}
	shard.table[s] = s
	return s
}

// Size returns the number of distinct interned strings.
func (in *Interner) Size() int {
	total := 0
	for _, shard := range in.shards {
		shard.mu.RLock()
		total += len(shard.table)
		shard.mu.RUnlock()
	}
	return total
}
