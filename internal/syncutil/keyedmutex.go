// Package syncutil carries the small concurrency primitives the engine
// shares: keyed mutexes with bounded memory. Both types hash keys onto a
// fixed shard table, so unrelated keys rarely contend and memory never
// grows with the key space.
package syncutil

import (
	"context"
	"sync"
)

const shardCount = 128

// FNV-1a, inlined so taking a lock does not allocate a hasher.
const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

func shardIndex(key string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return h % shardCount
}

// KeyedMutex serializes callers that present the same key. The zero value
// is ready to use. Two keys that land on the same shard also serialize;
// with short critical sections that collision cost is noise.
type KeyedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock blocks until the shard for key is held and returns the release
// function. Callers should defer it immediately.
func (m *KeyedMutex) Lock(key string) func() {
	mu := &m.shards[shardIndex(key)]
	mu.Lock()
	return mu.Unlock
}

// KeyedContextMutex is a keyed lock whose acquisition can be abandoned
// when a context ends. Each shard is a one-slot channel: locking sends
// into the slot, unlocking drains it, and a waiter selects between the
// slot and ctx.Done.
type KeyedContextMutex struct {
	slots []chan struct{}
}

// NewKeyedContextMutex returns a mutex with every slot free.
func NewKeyedContextMutex() *KeyedContextMutex {
	m := &KeyedContextMutex{slots: make([]chan struct{}, shardCount)}
	for i := range m.slots {
		m.slots[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the shard for key, or gives up when ctx ends first. On
// success the returned function releases the shard and must be called
// exactly once.
func (m *KeyedContextMutex) Lock(ctx context.Context, key string) (func(), error) {
	slot := m.slots[shardIndex(key)]
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
