package affiliate_service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"nasa-go-affiliate/pkg/monitoring"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout 等待锁超时
var ErrLockTimeout = errors.New("acquire lock timeout")

// Locker 按 key 互斥，返回的 unlock 必须调用
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

var (
	renewScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)
)

// RedisLocker 基于 SET NX 的分布式锁，持有期间自动续期
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisLocker 创建分布式锁
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 20 * time.Millisecond,
	}
}

// Lock 获取锁，持有者之外的调用方轮询等待，直到 ctx 结束
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	value := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("获取锁失败: %w", err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(l.retryInterval):
		}
	}
	monitoring.ObserveLockWait("redis", time.Since(start))

	stopCh := make(chan struct{})
	var renewalWg sync.WaitGroup
	renewalWg.Add(1)
	go l.renew(key, value, stopCh, &renewalWg)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			renewalWg.Wait()

			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, value).Err(); err != nil {
				log.Printf("释放锁失败 %s: %v", key, err)
			}
		})
	}, nil
}

// renew 每 1/3 过期时间续期一次
func (l *RedisLocker) renew(key, value string, stopCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := renewScript.Run(context.Background(), l.client,
				[]string{key}, value, l.ttl.Milliseconds()).Int64()
			if err != nil {
				log.Printf("锁续期失败 %s: %v", key, err)
				return
			}
			if result == 0 {
				log.Printf("锁已被其他进程获取，停止续期: %s", key)
				return
			}
		case <-stopCh:
			return
		}
	}
}

// LocalLocker 进程内按 key 互斥，Redis 不可用或单实例部署时使用
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	start := time.Now()
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
	monitoring.ObserveLockWait("local", time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}
