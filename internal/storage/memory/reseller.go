package memory

import (
	"sort"
	"time"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

// CreateReseller 创建经销商。
func (s *Store) CreateReseller(reseller *domain.Reseller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *reseller
	s.resellers[reseller.ID] = &cp
	s.byAPIKeyHash[reseller.APIKeyHash] = reseller.ID
	return nil
}

// GetReseller 根据 ID 获取经销商。
func (s *Store) GetReseller(id string) (*domain.Reseller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reseller, ok := s.resellers[id]
	if !ok {
		return nil, storage.ErrResellerNotFound
	}
	cp := *reseller
	return &cp, nil
}

// GetResellerByAPIKeyHash 根据 API 密钥哈希获取经销商。
func (s *Store) GetResellerByAPIKeyHash(hash string) (*domain.Reseller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAPIKeyHash[hash]
	if !ok {
		return nil, storage.ErrResellerNotFound
	}
	cp := *s.resellers[id]
	return &cp, nil
}

// ListResellers 返回全部经销商。
func (s *Store) ListResellers() ([]domain.Reseller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Reseller, 0, len(s.resellers))
	for _, reseller := range s.resellers {
		out = append(out, *reseller)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateReseller 更新经销商信息。
func (s *Store) UpdateReseller(reseller *domain.Reseller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.resellers[reseller.ID]
	if !ok {
		return storage.ErrResellerNotFound
	}
	if existing.APIKeyHash != reseller.APIKeyHash {
		delete(s.byAPIKeyHash, existing.APIKeyHash)
		s.byAPIKeyHash[reseller.APIKeyHash] = reseller.ID
	}

	reseller.UpdatedAt = time.Now()
	cp := *reseller
	s.resellers[reseller.ID] = &cp
	return nil
}

// IssueLicenseKey 经销商签发密钥：配额自增与密钥创建原子完成。
//
// 密钥字符串冲突在配额消耗之前检查，任何失败路径都不会留下
// 已消耗的配额或未创建的密钥。
func (s *Store) IssueLicenseKey(resellerID string, key *domain.LicenseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reseller, ok := s.resellers[resellerID]
	if !ok {
		return storage.ErrResellerNotFound
	}

	if _, exists := s.byKeyString[key.Key]; exists {
		return storage.ErrKeyExists
	}

	if reseller.QuotaUsed >= reseller.Quota {
		return storage.ErrQuotaExceeded
	}

	reseller.QuotaUsed++

	cp := *key
	s.keys[key.ID] = &cp
	s.byKeyString[key.Key] = key.ID
	return nil
}

// CountKeysByReseller 统计经销商实际签发的密钥数量。
func (s *Store) CountKeysByReseller(resellerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, key := range s.keys {
		if key.IssuedByResellerID != nil && *key.IssuedByResellerID == resellerID {
			count++
		}
	}
	return count, nil
}
