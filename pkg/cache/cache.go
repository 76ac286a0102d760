package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 本地和 Redis 都没有命中
var ErrCacheMiss = errors.New("cache miss")

// CacheManager 缓存管理器，本地缓存 + 可选的 Redis 二级缓存
type CacheManager struct {
	redis   *redis.Client
	local   *LocalCache
	enabled bool
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// LocalCache 本地缓存
type LocalCache struct {
	data map[string]*CacheItem
	mu   sync.RWMutex
}

// CacheItem 缓存项
type CacheItem struct {
	Value     []byte
	ExpiresAt time.Time
}

// NewCacheManager 创建缓存管理器，redisClient 可以为 nil
func NewCacheManager(redisClient *redis.Client) *CacheManager {
	cm := &CacheManager{
		redis: redisClient,
		local: &LocalCache{
			data: make(map[string]*CacheItem),
		},
		enabled: true,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	// 启动本地缓存清理协程
	go cm.cleanupLocalCache()

	return cm
}

// WithClock 替换时钟，测试里用来控制过期
func (cm *CacheManager) WithClock(now func() time.Time) *CacheManager {
	cm.now = now
	return cm
}

// Get 获取缓存值，优先本地缓存，然后Redis
func (cm *CacheManager) Get(ctx context.Context, key string, dest interface{}) error {
	if !cm.enabled {
		return ErrCacheMiss
	}

	if value, found := cm.getFromLocal(key); found {
		return json.Unmarshal(value, dest)
	}

	if cm.redis != nil {
		data, err := cm.redis.Get(ctx, key).Bytes()
		if err == nil {
			// 回填本地缓存（较短TTL）
			cm.setToLocal(key, data, time.Minute)
			return json.Unmarshal(data, dest)
		}
		if !errors.Is(err, redis.Nil) {
			log.Printf("读取Redis缓存失败 key=%s: %v", key, err)
		}
	}

	return ErrCacheMiss
}

// Set 设置缓存值，同时存储到本地和Redis
func (cm *CacheManager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !cm.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	localTTL := ttl
	if localTTL > 10*time.Minute {
		localTTL = 10 * time.Minute
	}
	cm.setToLocal(key, data, localTTL)

	if cm.redis != nil {
		if err := cm.redis.Set(ctx, key, data, ttl).Err(); err != nil {
			log.Printf("写入Redis缓存失败 key=%s: %v", key, err)
		}
	}

	return nil
}

// Delete 删除缓存
func (cm *CacheManager) Delete(ctx context.Context, key string) error {
	cm.deleteFromLocal(key)

	if cm.redis != nil {
		return cm.redis.Del(ctx, key).Err()
	}

	return nil
}

func (cm *CacheManager) getFromLocal(key string) ([]byte, bool) {
	cm.local.mu.RLock()
	defer cm.local.mu.RUnlock()

	item, exists := cm.local.data[key]
	if !exists || !cm.now().Before(item.ExpiresAt) {
		return nil, false
	}
	return item.Value, true
}

func (cm *CacheManager) setToLocal(key string, value []byte, ttl time.Duration) {
	cm.local.mu.Lock()
	defer cm.local.mu.Unlock()

	cm.local.data[key] = &CacheItem{
		Value:     value,
		ExpiresAt: cm.now().Add(ttl),
	}
}

func (cm *CacheManager) deleteFromLocal(key string) {
	cm.local.mu.Lock()
	defer cm.local.mu.Unlock()

	delete(cm.local.data, key)
}

// cleanupLocalCache 清理过期的本地缓存
func (cm *CacheManager) cleanupLocalCache() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.local.mu.Lock()
			now := cm.now()
			for key, item := range cm.local.data {
				if !now.Before(item.ExpiresAt) {
					delete(cm.local.data, key)
				}
			}
			cm.local.mu.Unlock()
		case <-cm.stopCh:
			return
		}
	}
}

// Stop 停止后台清理
func (cm *CacheManager) Stop() {
	cm.once.Do(func() { close(cm.stopCh) })
}

// GetStats 获取缓存统计信息
func (cm *CacheManager) GetStats() map[string]interface{} {
	cm.local.mu.RLock()
	localItemCount := len(cm.local.data)
	cm.local.mu.RUnlock()

	return map[string]interface{}{
		"enabled":         cm.enabled,
		"local_items":     localItemCount,
		"redis_connected": cm.redis != nil,
	}
}

// Enable/Disable 启用/禁用缓存
func (cm *CacheManager) Enable() {
	cm.enabled = true
}

func (cm *CacheManager) Disable() {
	cm.enabled = false
}
