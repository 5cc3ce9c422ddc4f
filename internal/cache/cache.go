// Package cache is a small key-value abstraction so in-process caches can
// later be swapped for a shared backend without touching call sites.
package cache

// Cache stores values by string key. Implementations are safe for
// concurrent use.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	Len() int
}
