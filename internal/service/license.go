package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/expiry"
	"licensegate/backend/internal/keycodec"
	"licensegate/backend/internal/storage"
)

var (
	// ErrInvalidKeyFormat 密钥格式无效
	ErrInvalidKeyFormat = errors.New("invalid license key format")
	// ErrMissingParams 缺少必填参数
	ErrMissingParams = errors.New("missing required parameters")
	// ErrKeyExpired 密钥已过期
	ErrKeyExpired = errors.New("license key expired")
	// ErrKeyRevoked 密钥已被吊销
	ErrKeyRevoked = errors.New("license key revoked")
	// ErrNotActivated 设备未激活
	ErrNotActivated = errors.New("device not activated")
)

// 密钥生成碰撞重试上限。32^20 的密钥空间下碰撞概率可忽略，
// 重试只兜底数据被人工导入的场景。
const maxKeyGenerationAttempts = 5

// LicenseService 封装授权密钥的签发、激活与校验业务。
type LicenseService struct {
	store  storage.Store
	plans  *PlanService
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewLicenseService 创建授权业务服务。
func NewLicenseService(store storage.Store, plans *PlanService, events EventPublisher, log *zap.Logger) *LicenseService {
	if events == nil {
		events = NopEvents()
	}
	return &LicenseService{
		store:  store,
		plans:  plans,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// IssueKeyInput 定义签发密钥所需的输入。
type IssueKeyInput struct {
	PlanID             string
	OwnerUserID        *string // 可选：直接绑定购买用户
	IssuedByResellerID *string // 可选：经销商签发时填写
}

// Issue 签发新的授权密钥。
//
// 过期时间在签发时一次性计算并固化，后续套餐修改不影响已签发
// 的密钥。密钥字符串碰撞时重新生成。
func (s *LicenseService) Issue(input IssueKeyInput) (*domain.LicenseKey, error) {
	plan, err := s.plans.Get(input.PlanID)
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
			OwnerUserID:        input.OwnerUserID,
			IssuedByResellerID: input.IssuedByResellerID,
			Status:             domain.KeyStatusActive,
			CreatedAt:          now,
			ExpiresAt:          expiresAt,
		}

		if err := s.store.SaveLicenseKey(key); err != nil {
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
			OccurredAt: now,
		})
		return key, nil
	}

	return nil, fmt.Errorf("failed to generate unique key after %d attempts", maxKeyGenerationAttempts)
}

// ActivateInput 定义激活设备所需的输入。
type ActivateInput struct {
	Key        string
	HWID       string
	DeviceName string
	IPAddress  string
}

// ActivationResult 激活成功后的返回信息。
type ActivationResult struct {
	Activation *domain.Activation     `json:"activation"`
	License    *domain.LicenseSummary `json:"license"`
}

// Activate 将设备绑定到授权密钥。
//
// 同一 (key, hwid) 的重复激活是幂等刷新；配额满时返回
// storage.ErrDeviceLimitReached 且不产生写入。
func (s *LicenseService) Activate(input ActivateInput) (*ActivationResult, error) {
	if input.Key == "" || input.HWID == "" {
		return nil, ErrMissingParams
	}

	normalized := keycodec.Normalize(input.Key)
	if !keycodec.IsValidFormat(normalized) {
		return nil, ErrInvalidKeyFormat
	}
	if err := domain.ValidateHWID(input.HWID); err != nil {
		return nil, err
	}
	deviceName, err := domain.SanitizeDeviceName(input.DeviceName)
	if err != nil {
		return nil, err
	}

	record, err := s.store.GetLicenseKeyByKey(normalized)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkUsable(record, now); err != nil {
		return nil, err
	}

	plan, err := s.plans.Get(record.PlanID)
	if err != nil {
		return nil, err
	}

	activation := &domain.Activation{
		ID:           uuid.NewString(),
		LicenseKeyID: record.ID,
		HWID:         input.HWID,
		DeviceName:   deviceName,
		Status:       domain.ActivationStatusActive,
		ActivatedAt:  now,
		LastSeenAt:   now,
		LastSeenIP:   input.IPAddress,
	}

	if err := s.store.CreateActivationIfBelowLimit(activation, plan.MaxDevices); err != nil {
		return nil, err
	}

	s.events.Publish(&domain.LicenseEvent{
		Type:       domain.EventDeviceActivated,
		KeyID:      record.ID,
		KeyPrefix:  keyPrefix(record.Key),
		PlanID:     plan.ID,
		HWID:       input.HWID,
		OccurredAt: now,
	})

	summary, err := s.summarize(record, plan, now)
	if err != nil {
		return nil, err
	}

	return &ActivationResult{
		Activation: activation,
		License:    summary,
	}, nil
}

// HeartbeatInput 定义心跳校验所需的输入。
type HeartbeatInput struct {
	Key       string
	HWID      string
	IPAddress string
}

// Heartbeat 设备定期校验授权有效性并刷新在线时间。
//
// 密钥过期或吊销时不刷新 lastSeenAt：失败的心跳不算设备在线。
func (s *LicenseService) Heartbeat(input HeartbeatInput) (*domain.LicenseSummary, error) {
	if input.Key == "" || input.HWID == "" {
		return nil, ErrMissingParams
	}

	normalized := keycodec.Normalize(input.Key)
	if !keycodec.IsValidFormat(normalized) {
		return nil, ErrInvalidKeyFormat
	}

	record, err := s.store.GetLicenseKeyByKey(normalized)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkUsable(record, now); err != nil {
		return nil, err
	}

	activation, err := s.store.GetActiveActivation(record.ID, input.HWID)
	if err != nil {
		if errors.Is(err, storage.ErrActivationNotFound) {
			return nil, ErrNotActivated
		}
		return nil, err
	}

	if err := s.store.TouchActivation(activation.ID, input.IPAddress, now); err != nil {
		return nil, err
	}

	plan, err := s.plans.Get(record.PlanID)
	if err != nil {
		return nil, err
	}
	return s.summarize(record, plan, now)
}

// Deactivate 解绑设备，释放配额槽位。
//
// 对未激活的组合是幂等的空操作；已过期/吊销的密钥也允许解绑。
func (s *LicenseService) Deactivate(keyString, hwid string) error {
	if keyString == "" || hwid == "" {
		return ErrMissingParams
	}

	normalized := keycodec.Normalize(keyString)
	if !keycodec.IsValidFormat(normalized) {
		return ErrInvalidKeyFormat
	}

	record, err := s.store.GetLicenseKeyByKey(normalized)
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.store.DeactivateActivation(record.ID, hwid, now); err != nil {
		return err
	}

	s.events.Publish(&domain.LicenseEvent{
		Type:       domain.EventDeviceDeactivated,
		KeyID:      record.ID,
		KeyPrefix:  keyPrefix(record.Key),
		HWID:       hwid,
		OccurredAt: now,
	})
	return nil
}

// Check 查询密钥当前状态，不要求设备已激活。
func (s *LicenseService) Check(keyString string) (*domain.LicenseSummary, error) {
	if keyString == "" {
		return nil, ErrMissingParams
	}

	normalized := keycodec.Normalize(keyString)
	if !keycodec.IsValidFormat(normalized) {
		return nil, ErrInvalidKeyFormat
	}

	record, err := s.store.GetLicenseKeyByKey(normalized)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.Get(record.PlanID)
	if err != nil {
		return nil, err
	}
	return s.summarize(record, plan, s.now())
}

// Claim 用户认领密钥（绑定到自己的账户）。
//
// 重复认领自己的密钥是幂等操作；认领他人密钥返回
// storage.ErrKeyAlreadyClaimed。
func (s *LicenseService) Claim(keyString, userID string) error {
	if keyString == "" || userID == "" {
		return ErrMissingParams
	}

	normalized := keycodec.Normalize(keyString)
	if !keycodec.IsValidFormat(normalized) {
		return ErrInvalidKeyFormat
	}

	if err := s.store.ClaimLicenseKey(normalized, userID); err != nil {
		return err
	}

	if record, err := s.store.GetLicenseKeyByKey(normalized); err == nil {
		s.events.Publish(&domain.LicenseEvent{
			Type:       domain.EventKeyClaimed,
			KeyID:      record.ID,
			KeyPrefix:  keyPrefix(record.Key),
			PlanID:     record.PlanID,
			OccurredAt: s.now(),
		})
	}
	return nil
}

// Revoke 吊销密钥（管理操作）。
//
// 吊销立即生效：已激活设备的下一次心跳即失败。重复吊销是幂等操作。
func (s *LicenseService) Revoke(keyID string) error {
	record, err := s.store.GetLicenseKeyByID(keyID)
	if err != nil {
		return err
	}
	if record.Status == domain.KeyStatusRevoked {
		return nil
	}

	now := s.now()
	if err := s.store.UpdateLicenseKeyStatus(keyID, domain.KeyStatusRevoked, &now); err != nil {
		return err
	}

	s.events.Publish(&domain.LicenseEvent{
		Type:       domain.EventKeyRevoked,
		KeyID:      record.ID,
		KeyPrefix:  keyPrefix(record.Key),
		PlanID:     record.PlanID,
		OccurredAt: now,
	})
	return nil
}

// ListForUser 返回用户名下全部密钥的摘要，按创建时间倒序。
func (s *LicenseService) ListForUser(userID string) ([]domain.LicenseSummary, error) {
	keys, err := s.store.ListLicenseKeysByUserID(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summaries := make([]domain.LicenseSummary, 0, len(keys))
	for i := range keys {
		plan, err := s.plans.Get(keys[i].PlanID)
		if err != nil {
			return nil, err
		}
		summary, err := s.summarize(&keys[i], plan, now)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// Activations 返回密钥的全部激活记录（含已解绑）。
func (s *LicenseService) Activations(keyID string) ([]domain.Activation, error) {
	if _, err := s.store.GetLicenseKeyByID(keyID); err != nil {
		return nil, err
	}
	return s.store.ListActivations(keyID)
}

// SweepExpired 将已过期的密钥缓存状态刷新为 EXPIRED，返回刷新数量。
//
// 过期判定本身不依赖该任务（EffectiveStatus 惰性派生），
// 刷新只是让列表查询和统计的缓存状态保持准确。
func (s *LicenseService) SweepExpired() (int, error) {
	count, err := s.store.MarkExpiredKeys(s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("swept expired license keys", zap.Int("count", count))
	}
	return count, nil
}

// checkUsable 校验密钥当前可用，吊销优先于过期。
func (s *LicenseService) checkUsable(key *domain.LicenseKey, now time.Time) error {
	switch key.EffectiveStatus(now) {
	case domain.KeyStatusRevoked:
		return ErrKeyRevoked
	case domain.KeyStatusExpired:
		return ErrKeyExpired
	default:
		return nil
	}
}

// summarize 构造密钥状态摘要。
func (s *LicenseService) summarize(key *domain.LicenseKey, plan *domain.Plan, now time.Time) (*domain.LicenseSummary, error) {
	activeDevices, err := s.store.CountActiveActivations(key.ID)
	if err != nil {
		return nil, err
	}

	return &domain.LicenseSummary{
		Key:           key.Key,
		PlanName:      plan.Name,
		Status:        key.EffectiveStatus(now),
		CreatedAt:     key.CreatedAt,
		ExpiresAt:     key.ExpiresAt,
		DaysRemaining: expiry.DaysRemaining(key.ExpiresAt, now),
		ActiveDevices: activeDevices,
		MaxDevices:    plan.MaxDevices,
	}, nil
}

// keyPrefix 返回密钥的首段，用于日志和事件中的脱敏展示。
func keyPrefix(key string) string {
	if i := strings.Index(key, keycodec.Delimiter); i > 0 {
		return key[:i]
	}
	return key
}
