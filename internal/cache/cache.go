// Package cache provides response caching for idempotent JSON-RPC methods.
package cache

// Cache defines the interface for method result caching
type Cache interface {
	// Get retrieves a cached result by key
	Get(key string) ([]byte, bool)

	// Set stores a result under key
	Set(key string, value []byte)

	// Len returns the number of live entries
	Len() int

	// Close releases any resources held by the cache
	Close()
}
