package service

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"licensegate/backend/internal/cache"
	"licensegate/backend/internal/domain"
	"licensegate/backend/internal/storage"
)

var (
	// ErrPlanNotFound 套餐不存在
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanInactive 套餐已下架
	ErrPlanInactive = errors.New("plan is inactive")
)

// PlanService 封装套餐目录业务操作。
//
// 套餐是低频变更、高频读取的目录数据：每次激活/校验都要读
// maxDevices，本地缓存承担这部分热点读。
type PlanService struct {
	repo  storage.PlanRepository
	cache *cache.LocalCache
}

// NewPlanService 创建套餐服务。
func NewPlanService(repo storage.PlanRepository) *PlanService {
	return &PlanService{
		repo:  repo,
		cache: cache.NewLocalCache(256, 5*time.Minute),
	}
}

// CreatePlanInput 定义创建套餐所需的输入。
type CreatePlanInput struct {
	Name          string
	DurationType  domain.DurationType
	DurationValue int
	MaxDevices    int
}

// Create 创建新套餐。
func (s *PlanService) Create(input CreatePlanInput) (*domain.Plan, error) {
	now := time.Now()
	plan := &domain.Plan{
		ID:            uuid.NewString(),
		Name:          input.Name,
		DurationType:  input.DurationType,
		DurationValue: input.DurationValue,
		MaxDevices:    input.MaxDevices,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := domain.ValidatePlan(plan); err != nil {
		return nil, err
	}

	if err := s.repo.SavePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Get 根据 ID 获取套餐，优先命中本地缓存。
func (s *PlanService) Get(id string) (*domain.Plan, error) {
	if cached, ok := s.cache.Get("plan:" + id); ok {
		return cached.(*domain.Plan), nil
	}

	plan, err := s.repo.GetPlan(id)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	s.cache.Set("plan:"+id, plan, 0)
	return plan, nil
}

// List 返回全部套餐。
func (s *PlanService) List() ([]domain.Plan, error) {
	return s.repo.ListPlans()
}

// SetActive 上架/下架套餐。
//
// 下架只影响后续签发，已签发的密钥不受影响。
func (s *PlanService) SetActive(id string, active bool) (*domain.Plan, error) {
	plan, err := s.repo.GetPlan(id)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	plan.IsActive = active
	plan.UpdatedAt = time.Now()
	if err := s.repo.SavePlan(plan); err != nil {
		return nil, err
	}

	s.cache.Delete("plan:" + id)
	return plan, nil
}
