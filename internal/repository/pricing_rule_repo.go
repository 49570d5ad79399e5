package repository

import (
	"context"

	"gorm.io/gorm"

	"resale_sync_v1_202609/internal/model"
)

// ==================== 定价规则仓储 ====================

// PricingRuleRepository 定价规则仓储接口
type PricingRuleRepository interface {
	Create(ctx context.Context, rule *model.PricingRule) error
	GetByID(ctx context.Context, id int64) (*model.PricingRule, error)
	Update(ctx context.Context, rule *model.PricingRule) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, page, pageSize int) ([]model.PricingRule, int64, error)
	ListByIDs(ctx context.Context, ids []int64) ([]model.PricingRule, error)

	// ListActive 返回对指定渠道生效的启用规则，按优先级降序
	// marketplace 为空表示取全部启用规则
	ListActive(ctx context.Context, marketplace model.Marketplace) ([]model.PricingRule, error)

	SetActive(ctx context.Context, id int64, active bool) error
}

type pricingRuleRepo struct {
	db *gorm.DB
}

// NewPricingRuleRepository 创建定价规则仓储
func NewPricingRuleRepository(db *gorm.DB) PricingRuleRepository {
	return &pricingRuleRepo{db: db}
}

func (r *pricingRuleRepo) Create(ctx context.Context, rule *model.PricingRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *pricingRuleRepo) GetByID(ctx context.Context, id int64) (*model.PricingRule, error) {
	var rule model.PricingRule
	err := r.db.WithContext(ctx).First(&rule, id).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *pricingRuleRepo) Update(ctx context.Context, rule *model.PricingRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *pricingRuleRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&model.PricingRule{}, id).Error
}

func (r *pricingRuleRepo) List(ctx context.Context, page, pageSize int) ([]model.PricingRule, int64, error) {
	var rules []model.PricingRule
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PricingRule{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	err := query.
		Order("priority DESC, id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rules).Error
	return rules, total, err
}

func (r *pricingRuleRepo) ListByIDs(ctx context.Context, ids []int64) ([]model.PricingRule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rules []model.PricingRule
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *pricingRuleRepo) ListActive(ctx context.Context, marketplace model.Marketplace) ([]model.PricingRule, error) {
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if marketplace != "" {
		query = query.Where("marketplace = ? OR marketplace = ''", marketplace)
	}
	var rules []model.PricingRule
	err := query.Order("priority DESC, id ASC").Find(&rules).Error
	return rules, err
}

func (r *pricingRuleRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&model.PricingRule{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}
