package service

import (
	"hash/fnv"
	"sync"
)

const defaultLockStripes = 64

// keyedMutex serializes work per key using a fixed set of stripes. Distinct
// keys may share a stripe; the same key always maps to the same stripe.
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(stripes int) *keyedMutex {
	if stripes <= 0 {
		stripes = defaultLockStripes
	}
	return &keyedMutex{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for key and returns its release func.
func (m *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &m.stripes[h.Sum32()%uint32(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
