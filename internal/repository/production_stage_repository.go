package repository

import (
	"errors"

	"github.com/sourcebridge/internal/models"

	"gorm.io/gorm"
)

// ProductionStageRepository 生产阶段数据访问接口
type ProductionStageRepository interface {
	Create(stage *models.ProductionStage) error
	GetByID(id uint) (*models.ProductionStage, error)
	GetByNumber(supplierOrderID uint, stageNumber int) (*models.ProductionStage, error)
	ListBySupplierOrder(supplierOrderID uint) ([]models.ProductionStage, error)
	ListOverdue(filter StageListFilter) ([]models.ProductionStage, error)
	UpdateFields(id uint, updates map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormProductionStageRepository
}

// GormProductionStageRepository GORM 实现
type GormProductionStageRepository struct {
	db *gorm.DB
}

// NewProductionStageRepository 创建生产阶段仓库
func NewProductionStageRepository(db *gorm.DB) *GormProductionStageRepository {
	return &GormProductionStageRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductionStageRepository) WithTx(tx *gorm.DB) *GormProductionStageRepository {
	if tx == nil {
		return r
	}
	return &GormProductionStageRepository{db: tx}
}

// Create 创建阶段记录
func (r *GormProductionStageRepository) Create(stage *models.ProductionStage) error {
	return r.db.Create(stage).Error
}

// GetByID 根据 ID 获取阶段
func (r *GormProductionStageRepository) GetByID(id uint) (*models.ProductionStage, error) {
	var stage models.ProductionStage
	if err := r.db.First(&stage, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

// GetByNumber 根据供应商订单与阶段编号获取阶段
// 编号重复时返回最早创建的记录
func (r *GormProductionStageRepository) GetByNumber(supplierOrderID uint, stageNumber int) (*models.ProductionStage, error) {
	var stage models.ProductionStage
	err := r.db.
		Where("supplier_order_id = ? AND stage_number = ?", supplierOrderID, stageNumber).
		Order("created_at ASC, id ASC").
		First(&stage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

// ListBySupplierOrder 按阶段编号升序返回全部阶段
// 编号相同时按创建时间（再按 ID）排序，时间线取先创建的记录
func (r *GormProductionStageRepository) ListBySupplierOrder(supplierOrderID uint) ([]models.ProductionStage, error) {
	var stages []models.ProductionStage
	err := r.db.
		Where("supplier_order_id = ?", supplierOrderID).
		Order("stage_number ASC, created_at ASC, id ASC").
		Find(&stages).Error
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// ListOverdue 查询已过目标日期且未完成的阶段
func (r *GormProductionStageRepository) ListOverdue(filter StageListFilter) ([]models.ProductionStage, error) {
	query := r.db.Model(&models.ProductionStage{}).
		Where("status <> ?", "completed").
		Where("target_date IS NOT NULL")
	if filter.OverdueBefore != nil {
		query = query.Where("target_date < ?", *filter.OverdueBefore)
	}
	if filter.SupplierOrderID != 0 {
		query = query.Where("supplier_order_id = ?", filter.SupplierOrderID)
	}
	var stages []models.ProductionStage
	if err := query.Order("target_date ASC").Find(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

// UpdateFields 更新阶段字段
func (r *GormProductionStageRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.ProductionStage{}).Where("id = ?", id).Updates(updates).Error
}
