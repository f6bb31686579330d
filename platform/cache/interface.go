package cache

import "time"

// CacheService is the layered (L1 memory + L2 redis) cache surface.
type CacheService interface {
	GetCache(key string) (interface{}, bool)
	SetCache(key string, value interface{}, expiration time.Duration) error
	DelCache(key string) error
}
