package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

// AdminService 封装管理后台的查询与运维操作。
type AdminService struct {
	store    storage.Store
	licenses *LicenseService
	log      *zap.Logger
	now      func() time.Time
}

// NewAdminService 创建管理服务。
func NewAdminService(store storage.Store, licenses *LicenseService, log *zap.Logger) *AdminService {
	return &AdminService{
		store:    store,
		licenses: licenses,
		log:      log,
		now:      time.Now,
	}
}

// Statistics 返回系统聚合统计。
func (s *AdminService) Statistics() (*domain.SystemStatistics, error) {
	return s.store.GetSystemStatistics(s.now())
}

// KeyPage 密钥分页结果。
type KeyPage struct {
	Keys     []domain.LicenseKey `json:"keys"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// ListKeys 分页列出密钥，可按缓存状态过滤。
func (s *AdminService) ListKeys(page, pageSize int, status *domain.KeyStatus) (*KeyPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	keys, total, err := s.store.ListLicenseKeys(page, pageSize, status)
	if err != nil {
		return nil, err
	}

	return &KeyPage{
		Keys:     keys,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// KeyDetail 密钥详情，含全部激活记录。
type KeyDetail struct {
	Key         *domain.LicenseKey  `json:"key"`
	Activations []domain.Activation `json:"activations"`
}

// GetKey 返回密钥及其激活历史。
func (s *AdminService) GetKey(keyID string) (*KeyDetail, error) {
	key, err := s.store.GetLicenseKeyByID(keyID)
	if err != nil {
		return nil, err
	}

	activations, err := s.store.ListActivations(keyID)
	if err != nil {
		return nil, err
	}

	return &KeyDetail{Key: key, Activations: activations}, nil
}

// KeysForReseller 返回经销商签发的全部密钥。
func (s *AdminService) KeysForReseller(resellerID string) ([]domain.LicenseKey, error) {
	if _, err := s.store.GetReseller(resellerID); err != nil {
		return nil, err
	}
	return s.store.ListLicenseKeysByResellerID(resellerID)
}

// StartExpirySweeper 启动后台过期扫描任务，直到 ctx 取消。
//
// 扫描只刷新缓存状态字段，过期判定本身是请求时惰性派生的，
// 所以扫描周期可以放得很宽。
func (s *AdminService) StartExpirySweeper(ctx context.Context, interval time.Duration) {
	s.log.Info("expiry sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.licenses.SweepExpired(); err != nil {
				s.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
