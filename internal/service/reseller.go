package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/expiry"
	"licensegate/backend/internal/keycodec"
	"licensegate/backend/internal/storage"
)

var (
	// ErrInvalidAPIKey API 密钥无效或经销商无签发资格
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrResellerSuspended 经销商已停用
	ErrResellerSuspended = errors.New("reseller suspended")
)

// API 密钥格式：lgr_ 前缀 + 32 字节随机数的十六进制编码。
// 前缀用于日志中快速识别密钥类型。
const apiKeyPrefix = "lgr_"

// ResellerService 封装经销商账户与配额签发业务。
type ResellerService struct {
	store        storage.Store
	plans        *PlanService
	events       EventPublisher
	log          *zap.Logger
	defaultQuota int
	now          func() time.Time
}

// NewResellerService 创建经销商服务。
func NewResellerService(store storage.Store, plans *PlanService, events EventPublisher, log *zap.Logger, defaultQuota int) *ResellerService {
	if events == nil {
		events = NopEvents()
	}
	return &ResellerService{
		store:        store,
		plans:        plans,
		events:       events,
		log:          log,
		defaultQuota: defaultQuota,
		now:          time.Now,
	}
}

// CreateResellerInput 定义创建经销商所需的输入。
type CreateResellerInput struct {
	BusinessName string
	ContactEmail string
	Quota        int // 0 表示使用系统默认配额
}

// CreateResellerResult 创建结果，APIKey 明文仅在此处返回一次。
type CreateResellerResult struct {
	Reseller *domain.Reseller `json:"reseller"`
	APIKey   string           `json:"apiKey"`
}

// Create 创建经销商账户并生成 API 密钥。
//
// 明文密钥只在创建响应中出现一次，数据库仅保存 SHA-256 哈希。
// 新账户为 PENDING 状态，审批通过后才能签发。
func (s *ResellerService) Create(input CreateResellerInput) (*CreateResellerResult, error) {
	if input.BusinessName == "" {
		return nil, ErrMissingParams
	}

	quota := input.Quota
	if quota <= 0 {
		quota = s.defaultQuota
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	now := s.now()
	reseller := &domain.Reseller{
		ID:           uuid.NewString(),
		BusinessName: input.BusinessName,
		ContactEmail: input.ContactEmail,
		APIKeyHash:   hashAPIKey(apiKey),
		KeyPrefix:    apiKey[:len(apiKeyPrefix)+8],
		Status:       domain.ResellerStatusPending,
		Quota:        quota,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateReseller(reseller); err != nil {
		return nil, err
	}

	s.log.Info("reseller created",
		zap.String("reseller_id", reseller.ID),
		zap.String("business_name", reseller.BusinessName),
		zap.Int("quota", reseller.Quota),
	)
	return &CreateResellerResult{Reseller: reseller, APIKey: apiKey}, nil
}

// Authenticate 根据 API 密钥明文查找经销商。
//
// 查找键是明文的 SHA-256 哈希，未命中与资格不符返回同一个
// ErrInvalidAPIKey，不向调用方泄漏密钥是否存在。
func (s *ResellerService) Authenticate(apiKey string) (*domain.Reseller, error) {
	if apiKey == "" {
		return nil, ErrInvalidAPIKey
	}

	reseller, err := s.store.GetResellerByAPIKeyHash(hashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, storage.ErrResellerNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}

	switch reseller.Status {
	case domain.ResellerStatusApproved:
		return reseller, nil
	case domain.ResellerStatusSuspended:
		return nil, ErrResellerSuspended
	default:
		return nil, ErrInvalidAPIKey
	}
}

// IssueKey 经销商签发密钥，原子消耗一个配额。
//
// 配额检查与消耗由存储层在同一事务内完成；配额耗尽返回
// storage.ErrQuotaExceeded，签发失败不消耗配额。
func (s *ResellerService) IssueKey(resellerID, planID string) (*domain.LicenseKey, error) {
	reseller, err := s.store.GetReseller(resellerID)
	if err != nil {
		return nil, err
	}
	if !reseller.CanIssue() {
		return nil, ErrInvalidAPIKey
	}

	plan, err := s.plans.Get(planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}

	now := s.now()
	expiresAt, err := expiry.Calculate(plan.DurationType, plan.DurationValue, now)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxKeyGenerationAttempts; attempt++ {
		keyString, err := keycodec.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}

		key := &domain.LicenseKey{
			ID:                 uuid.NewString(),
			Key:                keyString,
			PlanID:             plan.ID,
			IssuedByResellerID: &reseller.ID,
			Status:             domain.KeyStatusActive,
			CreatedAt:          now,
			ExpiresAt:          expiresAt,
		}

		if err := s.store.IssueLicenseKey(reseller.ID, key); err != nil {
			if errors.Is(err, storage.ErrKeyExists) {
				continue
			}
			return nil, err
		}

		s.events.Publish(&domain.LicenseEvent{
			Type:       domain.EventKeyIssued,
			KeyID:      key.ID,
			KeyPrefix:  keyPrefix(key.Key),
			PlanID:     plan.ID,
			ResellerID: reseller.ID,
			OccurredAt: now,
		})
		return key, nil
	}

	return nil, fmt.Errorf("failed to generate unique key after %d attempts", maxKeyGenerationAttempts)
}

// Stats 返回经销商的配额与签发统计。
func (s *ResellerService) Stats(resellerID string) (*domain.ResellerStats, error) {
	reseller, err := s.store.GetReseller(resellerID)
	if err != nil {
		return nil, err
	}

	issued, err := s.store.CountKeysByReseller(resellerID)
	if err != nil {
		return nil, err
	}

	return &domain.ResellerStats{
		Issued:    issued,
		Quota:     reseller.Quota,
		QuotaUsed: reseller.QuotaUsed,
		Remaining: reseller.QuotaRemaining(),
	}, nil
}

// Get 根据 ID 获取经销商。
func (s *ResellerService) Get(resellerID string) (*domain.Reseller, error) {
	return s.store.GetReseller(resellerID)
}

// List 返回全部经销商，按创建时间正序。
func (s *ResellerService) List() ([]domain.Reseller, error) {
	return s.store.ListResellers()
}

// Approve 审批通过经销商（管理操作）。
func (s *ResellerService) Approve(resellerID string) (*domain.Reseller, error) {
	return s.setStatus(resellerID, domain.ResellerStatusApproved)
}

// Suspend 停用经销商（管理操作），已签发的密钥不受影响。
func (s *ResellerService) Suspend(resellerID string) (*domain.Reseller, error) {
	return s.setStatus(resellerID, domain.ResellerStatusSuspended)
}

// SetQuota 调整经销商配额（管理操作）。
//
// 新配额允许低于已用量，此时经销商无法继续签发，直到配额上调。
func (s *ResellerService) SetQuota(resellerID string, quota int) (*domain.Reseller, error) {
	if quota < 0 {
		return nil, fmt.Errorf("quota must be non-negative")
	}

	reseller, err := s.store.GetReseller(resellerID)
	if err != nil {
		return nil, err
	}

	reseller.Quota = quota
	reseller.UpdatedAt = s.now()
	if err := s.store.UpdateReseller(reseller); err != nil {
		return nil, err
	}
	return reseller, nil
}

func (s *ResellerService) setStatus(resellerID string, status domain.ResellerStatus) (*domain.Reseller, error) {
	reseller, err := s.store.GetReseller(resellerID)
	if err != nil {
		return nil, err
	}
	if reseller.Status == status {
		return reseller, nil
	}

	reseller.Status = status
	reseller.UpdatedAt = s.now()
	if err := s.store.UpdateReseller(reseller); err != nil {
		return nil, err
	}

	s.log.Info("reseller status changed",
		zap.String("reseller_id", reseller.ID),
		zap.String("status", string(status)),
	)
	return reseller, nil
}

// generateAPIKey 生成带前缀的随机 API 密钥。
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// hashAPIKey 计算 API 密钥的存储哈希。
func hashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
