package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

// Store PostgreSQL 存储实现
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn))
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn))
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector) (*Store, error) {
	// 配置 GORM
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent), // 静默模式
		TranslateError: true,                                  // 唯一索引冲突翻译为 gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	// 连接数据库
	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}

	// 自动迁移数据库表
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Plan{},
		&domain.LicenseKey{},
		&domain.Activation{},
		&domain.Reseller{},
	)
}

// ========== LicenseKey Repository ==========

// SaveLicenseKey 保存授权密钥
func (s *Store) SaveLicenseKey(key *domain.LicenseKey) error {
	err := s.db.Save(key).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrKeyExists
	}
	return err
}

// GetLicenseKeyByID 根据 ID 获取授权密钥
func (s *Store) GetLicenseKeyByID(id string) (*domain.LicenseKey, error) {
	var key domain.LicenseKey
	err := s.db.Where("id = ?", id).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}

// GetLicenseKeyByKey 根据密钥字符串获取授权密钥
func (s *Store) GetLicenseKeyByKey(key string) (*domain.LicenseKey, error) {
	var record domain.LicenseKey
	err := s.db.Where("key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, err
	}
	return &record, nil
}

// KeyExists 判断密钥字符串是否已存在
func (s *Store) KeyExists(key string) (bool, error) {
	var count int64
	err := s.db.Model(&domain.LicenseKey{}).Where("key = ?", key).Count(&count).Error
	return count > 0, err
}

// ListLicenseKeysByUserID 返回指定用户的全部密钥，按创建时间倒序
func (s *Store) ListLicenseKeysByUserID(userID string) ([]domain.LicenseKey, error) {
	var keys []domain.LicenseKey
	err := s.db.Where("owner_user_id = ?", userID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// ListLicenseKeysByResellerID 返回指定经销商签发的全部密钥，按创建时间倒序
func (s *Store) ListLicenseKeysByResellerID(resellerID string) ([]domain.LicenseKey, error) {
	var keys []domain.LicenseKey
	err := s.db.Where("issued_by_reseller_id = ?", resellerID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// ListLicenseKeys 分页返回密钥列表，可按缓存状态过滤
func (s *Store) ListLicenseKeys(page, pageSize int, status *domain.KeyStatus) ([]domain.LicenseKey, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.Model(&domain.LicenseKey{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var keys []domain.LicenseKey
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&keys).Error
	return keys, int(total), err
}

// UpdateLicenseKeyStatus 更新密钥的缓存状态
func (s *Store) UpdateLicenseKeyStatus(id string, status domain.KeyStatus, revokedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if revokedAt != nil {
		updates["revoked_at"] = revokedAt
	}

	result := s.db.Model(&domain.LicenseKey{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrKeyNotFound
	}
	return nil
}

// ClaimLicenseKey 原子认领密钥：仅当 owner_user_id 为空时成功
//
// 条件 UPDATE 保证并发认领同一密钥时只有一个请求写入成功。
func (s *Store) ClaimLicenseKey(key, userID string) error {
	result := s.db.Model(&domain.LicenseKey{}).
		Where("key = ? AND owner_user_id IS NULL", key).
		Update("owner_user_id", userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// 未写入：区分密钥不存在 / 自己重复认领 / 已被他人认领
	record, err := s.GetLicenseKeyByKey(key)
	if err != nil {
		return err
	}
	if record.OwnerUserID != nil && *record.OwnerUserID == userID {
		return nil
	}
	return storage.ErrKeyAlreadyClaimed
}

// MarkExpiredKeys 将已过期但缓存状态仍为 ACTIVE 的密钥刷新为 EXPIRED
func (s *Store) MarkExpiredKeys(now time.Time) (int, error) {
	result := s.db.Model(&domain.LicenseKey{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", domain.KeyStatusActive, now).
		Update("status", domain.KeyStatusExpired)
	return int(result.RowsAffected), result.Error
}

// ========== Activation Repository ==========

// CreateActivationIfBelowLimit 在配额范围内创建激活记录
//
// 事务内先对密钥行加 FOR UPDATE 锁，将同一密钥上的并发激活串行化，
// 再统计 ACTIVE 数量决定是否插入。配额满时事务回滚，不留任何写入。
func (s *Store) CreateActivationIfBelowLimit(activation *domain.Activation, maxDevices int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var key domain.LicenseKey
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", activation.LicenseKeyID).
			First(&key).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrKeyNotFound
			}
			return err
		}

		// 同一 (key, hwid) 已有 ACTIVE 记录：幂等刷新，不占新槽位
		var existing domain.Activation
		err = tx.Where("license_key_id = ? AND hwid = ? AND status = ?",
			activation.LicenseKeyID, activation.HWID, domain.ActivationStatusActive).
			First(&existing).Error
		if err == nil {
			updates := map[string]interface{}{"last_seen_at": activation.LastSeenAt}
			if activation.LastSeenIP != "" {
				updates["last_seen_ip"] = activation.LastSeenIP
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			*activation = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&domain.Activation{}).
			Where("license_key_id = ? AND status = ?", activation.LicenseKeyID, domain.ActivationStatusActive).
			Count(&count).Error; err != nil {
			return err
		}
		if int(count) >= maxDevices {
			return storage.ErrDeviceLimitReached
		}

		return tx.Create(activation).Error
	})
}

// GetActiveActivation 获取指定 (key, hwid) 的 ACTIVE 激活记录
func (s *Store) GetActiveActivation(licenseKeyID, hwid string) (*domain.Activation, error) {
	var activation domain.Activation
	err := s.db.Where("license_key_id = ? AND hwid = ? AND status = ?",
		licenseKeyID, hwid, domain.ActivationStatusActive).
		First(&activation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrActivationNotFound
		}
		return nil, err
	}
	return &activation, nil
}

// CountActiveActivations 统计密钥当前占用的槽位数
func (s *Store) CountActiveActivations(licenseKeyID string) (int, error) {
	var count int64
	err := s.db.Model(&domain.Activation{}).
		Where("license_key_id = ? AND status = ?", licenseKeyID, domain.ActivationStatusActive).
		Count(&count).Error
	return int(count), err
}

// TouchActivation 刷新激活记录的心跳时间与来源 IP
func (s *Store) TouchActivation(id, ipAddress string, seenAt time.Time) error {
	updates := map[string]interface{}{"last_seen_at": seenAt}
	if ipAddress != "" {
		updates["last_seen_ip"] = ipAddress
	}

	result := s.db.Model(&domain.Activation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrActivationNotFound
	}
	return nil
}

// DeactivateActivation 软下线指定 (key, hwid) 的激活记录，释放槽位
//
// 对不存在或已下线的组合是幂等的空操作。
func (s *Store) DeactivateActivation(licenseKeyID, hwid string, at time.Time) error {
	return s.db.Model(&domain.Activation{}).
		Where("license_key_id = ? AND hwid = ? AND status = ?",
			licenseKeyID, hwid, domain.ActivationStatusActive).
		Updates(map[string]interface{}{
			"status":         domain.ActivationStatusDeactivated,
			"deactivated_at": at,
		}).Error
}

// ListActivations 返回密钥的全部激活记录（含已解绑），按激活时间倒序
func (s *Store) ListActivations(licenseKeyID string) ([]domain.Activation, error) {
	var activations []domain.Activation
	err := s.db.Where("license_key_id = ?", licenseKeyID).
		Order("activated_at DESC").
		Find(&activations).Error
	return activations, err
}

// ========== Plan Repository ==========

// SavePlan 保存套餐
func (s *Store) SavePlan(plan *domain.Plan) error {
	return s.db.Save(plan).Error
}

// GetPlan 根据 ID 获取套餐
func (s *Store) GetPlan(id string) (*domain.Plan, error) {
	var plan domain.Plan
	err := s.db.Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// ListPlans 返回全部套餐
func (s *Store) ListPlans() ([]domain.Plan, error) {
	var plans []domain.Plan
	err := s.db.Order("created_at ASC").Find(&plans).Error
	return plans, err
}

// ========== Reseller Repository ==========

// CreateReseller 创建经销商
func (s *Store) CreateReseller(reseller *domain.Reseller) error {
	return s.db.Create(reseller).Error
}

// GetReseller 根据 ID 获取经销商
func (s *Store) GetReseller(id string) (*domain.Reseller, error) {
	var reseller domain.Reseller
	err := s.db.Where("id = ?", id).First(&reseller).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrResellerNotFound
		}
		return nil, err
	}
	return &reseller, nil
}

// GetResellerByAPIKeyHash 根据 API 密钥哈希获取经销商
func (s *Store) GetResellerByAPIKeyHash(hash string) (*domain.Reseller, error) {
	var reseller domain.Reseller
	err := s.db.Where("api_key_hash = ?", hash).First(&reseller).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrResellerNotFound
		}
		return nil, err
	}
	return &reseller, nil
}

// ListResellers 返回全部经销商
func (s *Store) ListResellers() ([]domain.Reseller, error) {
	var resellers []domain.Reseller
	err := s.db.Order("created_at ASC").Find(&resellers).Error
	return resellers, err
}

// UpdateReseller 更新经销商信息
func (s *Store) UpdateReseller(reseller *domain.Reseller) error {
	result := s.db.Save(reseller)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrResellerNotFound
	}
	return nil
}

// IssueLicenseKey 经销商签发密钥：配额自增与密钥创建原子完成
//
// 条件 UPDATE（quota_used < quota）保证并发签发不超发；
// 密钥插入失败时事务回滚，已消耗的配额一并撤销。
func (s *Store) IssueLicenseKey(resellerID string, key *domain.LicenseKey) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Reseller{}).
			Where("id = ? AND quota_used < quota", resellerID).
			UpdateColumn("quota_used", gorm.Expr("quota_used + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&domain.Reseller{}).Where("id = ?", resellerID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return storage.ErrResellerNotFound
			}
			return storage.ErrQuotaExceeded
		}

		if err := tx.Create(key).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return storage.ErrKeyExists
			}
			return err
		}
		return nil
	})
}

// CountKeysByReseller 统计经销商实际签发的密钥数量
func (s *Store) CountKeysByReseller(resellerID string) (int, error) {
	var count int64
	err := s.db.Model(&domain.LicenseKey{}).
		Where("issued_by_reseller_id = ?", resellerID).
		Count(&count).Error
	return int(count), err
}

// ========== User Repository ==========

// CreateUser 创建新用户
func (s *Store) CreateUser(user *domain.User) error {
	err := s.db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrEmailExists
	}
	return err
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新用户信息
func (s *Store) UpdateUser(user *domain.User) error {
	result := s.db.Save(user)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin 更新用户最后登录时间
func (s *Store) UpdateLastLogin(userID string) error {
	return s.db.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now()).Error
}

// ========== Admin Repository ==========

// GetSystemStatistics 获取系统统计信息，过期判定用调用方注入的 now
func (s *Store) GetSystemStatistics(now time.Time) (*domain.SystemStatistics, error) {
	stats := &domain.SystemStatistics{GeneratedAt: now}

	var total int64
	if err := s.db.Model(&domain.LicenseKey{}).Count(&total).Error; err != nil {
		return nil, err
	}
	stats.TotalKeys = int(total)

	// 过期判定以 expires_at 为准，不依赖缓存状态字段
	var active int64
	if err := s.db.Model(&domain.LicenseKey{}).
		Where("status != ? AND (expires_at IS NULL OR expires_at > ?)", domain.KeyStatusRevoked, now).
		Count(&active).Error; err != nil {
		return nil, err
	}
	stats.ActiveKeys = int(active)

	var revoked int64
	if err := s.db.Model(&domain.LicenseKey{}).
		Where("status = ?", domain.KeyStatusRevoked).
		Count(&revoked).Error; err != nil {
		return nil, err
	}
	stats.RevokedKeys = int(revoked)
	stats.ExpiredKeys = stats.TotalKeys - stats.ActiveKeys - stats.RevokedKeys

	var totalActivations int64
	if err := s.db.Model(&domain.Activation{}).Count(&totalActivations).Error; err != nil {
		return nil, err
	}
	stats.TotalActivations = int(totalActivations)

	var activeActivations int64
	if err := s.db.Model(&domain.Activation{}).
		Where("status = ?", domain.ActivationStatusActive).
		Count(&activeActivations).Error; err != nil {
		return nil, err
	}
	stats.ActiveActivations = int(activeActivations)

	var resellers int64
	if err := s.db.Model(&domain.Reseller{}).Count(&resellers).Error; err != nil {
		return nil, err
	}
	stats.TotalResellers = int(resellers)

	var users int64
	if err := s.db.Model(&domain.User{}).Count(&users).Error; err != nil {
		return nil, err
	}
	stats.TotalUsers = int(users)

	return stats, nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 健康检查
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
