package memory

import (
	"sort"
	"sync"
	"time"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

// Store 使用内存保存授权数据，主要用于开发验证和单元测试。
//
// 所有写操作都在同一把写锁下执行，设备配额和经销商配额的
// 检查-写入序列因此天然串行化，与 SQL 实现的事务语义等价。
type Store struct {
	mu sync.RWMutex

	keys        map[string]*domain.LicenseKey // keyID -> key
	byKeyString map[string]string             // 密钥字符串 -> keyID

	activations  map[string]*domain.Activation // activationID -> activation
	activeByKey  map[string]map[string]string  // keyID -> hwid -> activationID（仅 ACTIVE）
	byLicenseKey map[string][]string           // keyID -> 全部 activationID（含已解绑）

	plans map[string]*domain.Plan // planID -> plan

	resellers    map[string]*domain.Reseller // resellerID -> reseller
	byAPIKeyHash map[string]string           // apiKeyHash -> resellerID

	users      map[string]*domain.User // userID -> user
	byEmail    map[string]string       // email -> userID
	byUsername map[string]string       // username -> userID

	// 速率限制相关
	rateLimits map[string]*rateLimitEntry
	sessions   map[string]*sessionEntry
	blacklist  map[string]time.Time // jti -> 过期时间
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// sessionEntry 会话缓存条目
type sessionEntry struct {
	UserID    string
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		keys:         make(map[string]*domain.LicenseKey),
		byKeyString:  make(map[string]string),
		activations:  make(map[string]*domain.Activation),
		activeByKey:  make(map[string]map[string]string),
		byLicenseKey: make(map[string][]string),
		plans:        make(map[string]*domain.Plan),
		resellers:    make(map[string]*domain.Reseller),
		byAPIKeyHash: make(map[string]string),
		users:        make(map[string]*domain.User),
		byEmail:      make(map[string]string),
		byUsername:   make(map[string]string),
		rateLimits:   make(map[string]*rateLimitEntry),
		sessions:     make(map[string]*sessionEntry),
		blacklist:    make(map[string]time.Time),
	}
}

// ========== LicenseKey Repository ==========

// SaveLicenseKey 保存授权密钥。
func (s *Store) SaveLicenseKey(key *domain.LicenseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byKeyString[key.Key]; ok && existingID != key.ID {
		return storage.ErrKeyExists
	}

	cp := *key
	s.keys[key.ID] = &cp
	s.byKeyString[key.Key] = key.ID
	return nil
}

// GetLicenseKeyByID 根据 ID 获取授权密钥。
func (s *Store) GetLicenseKeyByID(id string) (*domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

// GetLicenseKeyByKey 根据密钥字符串获取授权密钥。
func (s *Store) GetLicenseKeyByKey(key string) (*domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKeyString[key]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	cp := *s.keys[id]
	return &cp, nil
}

// KeyExists 判断密钥字符串是否已存在。
func (s *Store) KeyExists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byKeyString[key]
	return ok, nil
}

// ListLicenseKeysByUserID 返回指定用户的全部密钥，按创建时间倒序。
func (s *Store) ListLicenseKeysByUserID(userID string) ([]domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LicenseKey
	for _, key := range s.keys {
		if key.OwnerUserID != nil && *key.OwnerUserID == userID {
			out = append(out, *key)
		}
	}
	sortKeysNewestFirst(out)
	return out, nil
}

// ListLicenseKeysByResellerID 返回指定经销商签发的全部密钥，按创建时间倒序。
func (s *Store) ListLicenseKeysByResellerID(resellerID string) ([]domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LicenseKey
	for _, key := range s.keys {
		if key.IssuedByResellerID != nil && *key.IssuedByResellerID == resellerID {
			out = append(out, *key)
		}
	}
	sortKeysNewestFirst(out)
	return out, nil
}

// ListLicenseKeys 分页返回密钥列表，可按缓存状态过滤。
func (s *Store) ListLicenseKeys(page, pageSize int, status *domain.KeyStatus) ([]domain.LicenseKey, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.LicenseKey
	for _, key := range s.keys {
		if status != nil && key.Status != *status {
			continue
		}
		all = append(all, *key)
	}
	sortKeysNewestFirst(all)

	total := len(all)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.LicenseKey{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// UpdateLicenseKeyStatus 更新密钥的缓存状态。
func (s *Store) UpdateLicenseKeyStatus(id string, status domain.KeyStatus, revokedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return storage.ErrKeyNotFound
	}
	key.Status = status
	if revokedAt != nil {
		key.RevokedAt = revokedAt
	}
	return nil
}

// ClaimLicenseKey 原子认领密钥：仅当 ownerUserId 为空时成功。
//
// 重复认领自己的密钥是幂等操作。
func (s *Store) ClaimLicenseKey(key, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKeyString[key]
	if !ok {
		return storage.ErrKeyNotFound
	}
	record := s.keys[id]
	if record.OwnerUserID != nil {
		if *record.OwnerUserID == userID {
			return nil
		}
		return storage.ErrKeyAlreadyClaimed
	}
	record.OwnerUserID = &userID
	return nil
}

// MarkExpiredKeys 将已过期但缓存状态仍为 ACTIVE 的密钥刷新为 EXPIRED。
func (s *Store) MarkExpiredKeys(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, key := range s.keys {
		if key.Status == domain.KeyStatusActive && key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
			key.Status = domain.KeyStatusExpired
			count++
		}
	}
	return count, nil
}

// ========== Activation Repository ==========

// CreateActivationIfBelowLimit 在配额范围内创建激活记录。
//
// 检查-插入序列在写锁内完成：并发争抢最后一个槽位时，最多只有
// 一个调用成功，其余得到 ErrDeviceLimitReached 且不产生任何写入。
// 同一 (key, hwid) 已有 ACTIVE 记录时，刷新 lastSeenAt 并返回成功，
// 不占用新槽位。
func (s *Store) CreateActivationIfBelowLimit(activation *domain.Activation, maxDevices int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeByKey[activation.LicenseKeyID]
	if existingID, ok := active[activation.HWID]; ok {
		existing := s.activations[existingID]
		existing.LastSeenAt = activation.LastSeenAt
		if activation.LastSeenIP != "" {
			existing.LastSeenIP = activation.LastSeenIP
		}
		*activation = *existing
		return nil
	}

	if len(active) >= maxDevices {
		return storage.ErrDeviceLimitReached
	}

	cp := *activation
	s.activations[activation.ID] = &cp
	if active == nil {
		active = make(map[string]string)
		s.activeByKey[activation.LicenseKeyID] = active
	}
	active[activation.HWID] = activation.ID
	s.byLicenseKey[activation.LicenseKeyID] = append(s.byLicenseKey[activation.LicenseKeyID], activation.ID)
	return nil
}

// GetActiveActivation 获取指定 (key, hwid) 的 ACTIVE 激活记录。
func (s *Store) GetActiveActivation(licenseKeyID, hwid string) (*domain.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeByKey[licenseKeyID][hwid]
	if !ok {
		return nil, storage.ErrActivationNotFound
	}
	cp := *s.activations[id]
	return &cp, nil
}

// CountActiveActivations 统计密钥当前占用的槽位数。
func (s *Store) CountActiveActivations(licenseKeyID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.activeByKey[licenseKeyID]), nil
}

// TouchActivation 刷新激活记录的心跳时间与来源 IP。
func (s *Store) TouchActivation(id, ipAddress string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activation, ok := s.activations[id]
	if !ok {
		return storage.ErrActivationNotFound
	}
	activation.LastSeenAt = seenAt
	if ipAddress != "" {
		activation.LastSeenIP = ipAddress
	}
	return nil
}

// DeactivateActivation 软下线指定 (key, hwid) 的激活记录，释放槽位。
//
// 对不存在或已下线的组合是幂等的空操作。
func (s *Store) DeactivateActivation(licenseKeyID, hwid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeByKey[licenseKeyID]
	id, ok := active[hwid]
	if !ok {
		return nil
	}

	activation := s.activations[id]
	activation.Status = domain.ActivationStatusDeactivated
	activation.DeactivatedAt = &at
	delete(active, hwid)
	return nil
}

// ListActivations 返回密钥的全部激活记录（含已解绑），按激活时间倒序。
func (s *Store) ListActivations(licenseKeyID string) ([]domain.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byLicenseKey[licenseKeyID]
	out := make([]domain.Activation, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.activations[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ActivatedAt.After(out[j].ActivatedAt)
	})
	return out, nil
}

// ========== Plan Repository ==========

// SavePlan 保存套餐。
func (s *Store) SavePlan(plan *domain.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *plan
	s.plans[plan.ID] = &cp
	return nil
}

// GetPlan 根据 ID 获取套餐。
func (s *Store) GetPlan(id string) (*domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, storage.ErrPlanNotFound
	}
	cp := *plan
	return &cp, nil
}

// ListPlans 返回全部套餐。
func (s *Store) ListPlans() ([]domain.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, *plan)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ========== 工具方法 ==========

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error {
	return nil
}

// Health 健康检查（内存实现恒为健康）。
func (s *Store) Health() error {
	return nil
}

// sortKeysNewestFirst 按创建时间倒序排序密钥切片。
func sortKeysNewestFirst(keys []domain.LicenseKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}
