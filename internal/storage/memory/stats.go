package memory

import (
	"time"

	"licensegate/backend/internal/domain"
)

// GetSystemStatistics 返回管理后台聚合统计。
//
// 过期判定用调用方注入的 now，与激活/心跳路径共用同一套时钟规则。
func (s *Store) GetSystemStatistics(now time.Time) (*domain.SystemStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.SystemStatistics{
		TotalResellers: len(s.resellers),
		TotalUsers:     len(s.users),
		GeneratedAt:    now,
	}

	for _, key := range s.keys {
		stats.TotalKeys++
		switch key.EffectiveStatus(now) {
		case domain.KeyStatusActive:
			stats.ActiveKeys++
		case domain.KeyStatusExpired:
			stats.ExpiredKeys++
		case domain.KeyStatusRevoked:
			stats.RevokedKeys++
		}
	}

	stats.TotalActivations = len(s.activations)
	for _, active := range s.activeByKey {
		stats.ActiveActivations += len(active)
	}

	return stats, nil
}

// IncrementRateLimit 自增限流计数器，首个请求设置时间窗口。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		s.rateLimits[key] = &rateLimitEntry{Count: 1, ExpiresAt: now.Add(window)}
		return 1, nil
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 获取当前限流计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// CacheSession 缓存会话。
func (s *Store) CacheSession(sessionID string, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = &sessionEntry{UserID: userID, ExpiresAt: time.Now().Add(ttl)}
	return nil
}

// GetCachedSession 获取缓存的会话。
func (s *Store) GetCachedSession(sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return "", nil
	}
	return entry.UserID, nil
}

// DeleteCachedSession 删除缓存的会话。
func (s *Store) DeleteCachedSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// AddToBlacklist 将 JWT 添加到黑名单。
func (s *Store) AddToBlacklist(jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blacklist[jti] = time.Now().Add(ttl)
	return nil
}

// IsBlacklisted 检查 JWT 是否在黑名单中。
func (s *Store) IsBlacklisted(jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.blacklist[jti]
	return ok && time.Now().Before(expiresAt), nil
}
