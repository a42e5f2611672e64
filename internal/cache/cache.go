// Package cache implements the process-wide key-value cache exposed to
// RJS scripts through cacheSet/cacheGet/cacheDel/cacheClear.
//
// Values live in a fastcache.Cache holding byte slices, looked up by a
// fixed-size digest of the caller's key rather than the key itself.
// Cache keys are arbitrary strings, so the digest is taken with xxhash
// rather than a cryptographic hash — the cache is in-memory-only and
// never needs to survive a process restart.
package cache

import (
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/cespare/xxhash/v2"

	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
)

// Store is a process-wide cache of JSON values keyed by arbitrary strings.
// It satisfies rjs.CacheStore.
type Store struct {
	mu     sync.RWMutex
	cache  *fastcache.Cache
	keys   map[uint64]string // digest -> original key, for Len's count
}

// New returns a Store backed by a fastcache.Cache with the given memory
// budget.
func New(maxBytes int) *Store {
	return &Store{
		cache: fastcache.New(maxBytes),
		keys:  map[uint64]string{},
	}
}

func digest(key string) uint64 {
	return xxhash.Sum64String(key)
}

func digestBytes(d uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(d >> (8 * uint(i)))
	}
	return b
}

// Set stores v under key, overwriting any previous value.
func (s *Store) Set(key string, v jsonval.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := digest(key)
	s.keys[d] = key
	s.cache.Set(digestBytes(d), jsonval.Encode(v))
}

// Get returns the value stored under key, if present.
func (s *Store) Get(key string) (jsonval.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d := digest(key)
	raw := s.cache.Get(nil, digestBytes(d))
	if len(raw) == 0 {
		return jsonval.Value{}, false
	}
	v, err := jsonval.Decode(raw)
	if err != nil {
		return jsonval.Value{}, false
	}
	return v, true
}

// Del removes key from the cache, if present.
func (s *Store) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := digest(key)
	delete(s.keys, d)
	s.cache.Del(digestBytes(d))
}

// Clear empties the cache.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Reset()
	s.keys = map[uint64]string{}
}

// Len reports the number of entries currently tracked. Used by /healthz
// style diagnostics, not by scripts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
