package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// LocalCache 进程内缓存
//
// 服务于套餐目录这类低频变更、高频读取的小数据集：
// sync.Map 保证读路径无锁，TTL 过期 + 定期清理控制内存。
// 容量超限时不再接受新条目，等待清理回收（目录数据量有上限，
// 正常运行不会触达）。
type LocalCache struct {
	data    sync.Map
	size    atomic.Int64
	maxSize int64
	ttl     time.Duration
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存，maxSize 为最大条目数，ttl 为默认过期时间。
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	c := &LocalCache{
		maxSize: int64(maxSize),
		ttl:     ttl,
	}

	go c.cleanupLoop()

	return c
}

// Get 读取缓存值，过期条目按未命中处理并顺手删除。
func (c *LocalCache) Get(key string) (interface{}, bool) {
	val, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.remove(key)
		return nil, false
	}

	return entry.value, true
}

// Set 写入缓存值，ttl 为 0 时使用默认过期时间。
func (c *LocalCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	entry := &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	if _, loaded := c.data.Load(key); !loaded {
		if c.size.Load() >= c.maxSize {
			return
		}
		c.size.Add(1)
	}
	c.data.Store(key, entry)
}

// Delete 删除缓存值。
func (c *LocalCache) Delete(key string) {
	c.remove(key)
}

// Len 返回当前条目数（含尚未清理的过期条目）。
func (c *LocalCache) Len() int {
	return int(c.size.Load())
}

func (c *LocalCache) remove(key string) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// cleanupLoop 定期清理过期条目。
func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.data.Range(func(key, value interface{}) bool {
			if now.After(value.(*cacheEntry).expiresAt) {
				c.remove(key.(string))
			}
			return true
		})
	}
}
