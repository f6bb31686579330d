package cache

import (
	"time"

	"github.com/wjixiang/aikb/pkg/logging"
	"github.com/wjixiang/aikb/platform/redis"
)

type Service struct {
	l1 *L1CacheService
	l2 *redis.Service
}

func NewCacheService(l1 *L1CacheService, l2 *redis.Service) CacheService {
	return &Service{l1: l1, l2: l2}
}

func (cs *Service) GetCache(key string) (interface{}, bool) {
	if data, ok := cs.l1.Get(key); ok {
		return data, ok
	}
	if data, ok := cs.l2.GetCache(key); ok {
		return data, ok
	}
	return nil, false
}

func (cs *Service) SetCache(key string, value interface{}, expiration time.Duration) error {
	err := cs.l2.SetCache(key, value, expiration)
	if err != nil {
		logging.Logger.Error("l2 fail SetCache", "error", err, "key", key)
		return err
	}
	// L1 expires earlier so a stale local entry falls back to L2
	cs.l1.Set(key, value, time.Duration(float64(expiration)*0.3))
	return nil
}

func (cs *Service) DelCache(key string) error {
	cs.l1.Del(key)
	if err := cs.l2.DelCache(key); err != nil {
		logging.Logger.Error("l2 fail DelCache", "error", err, "key", key)
		return err
	}
	return nil
}
