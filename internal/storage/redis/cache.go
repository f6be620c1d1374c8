package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"licensegate/backend/internal/domain"
)

// Cache Redis 缓存实现
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// ========== 密钥缓存 ==========

// CacheLicenseKey 缓存授权密钥
func (c *Cache) CacheLicenseKey(key *domain.LicenseKey, ttl time.Duration) error {
	cacheKey := fmt.Sprintf("license:%s", key.Key)
	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, cacheKey, data, ttl).Err()
}

// GetCachedLicenseKey 获取缓存的授权密钥
func (c *Cache) GetCachedLicenseKey(keyString string) (*domain.LicenseKey, error) {
	cacheKey := fmt.Sprintf("license:%s", keyString)
	data, err := c.client.Get(c.ctx, cacheKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("license key not found in cache")
		}
		return nil, err
	}

	var key domain.LicenseKey
	if err := json.Unmarshal([]byte(data), &key); err != nil {
		return nil, err
	}

	return &key, nil
}

// DeleteCachedLicenseKey 删除缓存的授权密钥
func (c *Cache) DeleteCachedLicenseKey(keyString string) error {
	cacheKey := fmt.Sprintf("license:%s", keyString)
	return c.client.Del(c.ctx, cacheKey).Err()
}

// ========== 经销商缓存 ==========

// CacheResellerByHash 缓存 API 密钥哈希到经销商 ID 的映射
func (c *Cache) CacheResellerByHash(hash, resellerID string, ttl time.Duration) error {
	key := fmt.Sprintf("reseller:hash:%s", hash)
	return c.client.Set(c.ctx, key, resellerID, ttl).Err()
}

// GetCachedResellerByHash 获取缓存的经销商映射
func (c *Cache) GetCachedResellerByHash(hash string) (string, error) {
	key := fmt.Sprintf("reseller:hash:%s", hash)
	resellerID, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("reseller not found in cache")
		}
		return "", err
	}
	return resellerID, nil
}

// DeleteCachedReseller 删除经销商相关缓存
func (c *Cache) DeleteCachedReseller(hash string) error {
	key := fmt.Sprintf("reseller:hash:%s", hash)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 统计缓存 ==========

// CacheStatistics 缓存系统统计信息
func (c *Cache) CacheStatistics(stats *domain.SystemStatistics, ttl time.Duration) error {
	key := "system:statistics"
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetCachedStatistics 获取缓存的系统统计信息
func (c *Cache) GetCachedStatistics() (*domain.SystemStatistics, error) {
	key := "system:statistics"
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("statistics not found in cache")
		}
		return nil, err
	}

	var stats domain.SystemStatistics
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// ========== JWT 黑名单 ==========

// AddToBlacklist 将 JWT 添加到黑名单
func (c *Cache) AddToBlacklist(jti string, ttl time.Duration) error {
	key := fmt.Sprintf("blacklist:%s", jti)
	return c.client.Set(c.ctx, key, "1", ttl).Err()
}

// IsBlacklisted 检查 JWT 是否在黑名单中
func (c *Cache) IsBlacklisted(jti string) (bool, error) {
	key := fmt.Sprintf("blacklist:%s", jti)
	_, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ========== 限流缓存 ==========

// IncrementRateLimit 增加限流计数
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()

	// 增加计数
	incr := pipe.Incr(c.ctx, key)

	// 设置过期时间（如果是新键）
	pipe.Expire(c.ctx, key, window)

	_, err := pipe.Exec(c.ctx)
	if err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// GetRateLimit 获取限流计数
func (c *Cache) GetRateLimit(key string) (int64, error) {
	count, err := c.client.Get(c.ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// ========== 会话缓存 ==========

// CacheSession 缓存用户会话
func (c *Cache) CacheSession(sessionID string, userID string, ttl time.Duration) error {
	key := fmt.Sprintf("session:%s", sessionID)
	return c.client.Set(c.ctx, key, userID, ttl).Err()
}

// GetCachedSession 获取缓存的会话
func (c *Cache) GetCachedSession(sessionID string) (string, error) {
	key := fmt.Sprintf("session:%s", sessionID)
	userID, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("session not found in cache")
		}
		return "", err
	}
	return userID, nil
}

// DeleteCachedSession 删除缓存的会话
func (c *Cache) DeleteCachedSession(sessionID string) error {
	key := fmt.Sprintf("session:%s", sessionID)
	return c.client.Del(c.ctx, key).Err()
}

// ========== 发布订阅 ==========

// PublishLicenseEvent 发布授权事件通知
func (c *Cache) PublishLicenseEvent(event *domain.LicenseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.client.Publish(c.ctx, "license_events", data).Err()
}

// SubscribeLicenseEvents 订阅授权事件通知
func (c *Cache) SubscribeLicenseEvents() *redis.PubSub {
	return c.client.Subscribe(c.ctx, "license_events")
}

// ========== 工具方法 ==========

// Delete 删除键
func (c *Cache) Delete(key string) error {
	return c.client.Del(c.ctx, key).Err()
}

// Exists 检查键是否存在
func (c *Cache) Exists(key string) (bool, error) {
	count, err := c.client.Exists(c.ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ping 测试 Redis 连接
func (c *Cache) Ping() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
