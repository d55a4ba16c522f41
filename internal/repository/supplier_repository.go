package repository

import (
	"errors"

	"github.com/sourcebridge/internal/models"

	"gorm.io/gorm"
)

// SupplierRepository 供应商数据访问接口
type SupplierRepository interface {
	Create(supplier *models.Supplier) error
	GetByID(id uint) (*models.Supplier, error)
	ListVerified() ([]models.Supplier, error)
}

// GormSupplierRepository GORM 实现
type GormSupplierRepository struct {
	db *gorm.DB
}

// NewSupplierRepository 创建供应商仓库
func NewSupplierRepository(db *gorm.DB) *GormSupplierRepository {
	return &GormSupplierRepository{db: db}
}

// Create 创建供应商
func (r *GormSupplierRepository) Create(supplier *models.Supplier) error {
	return r.db.Create(supplier).Error
}

// GetByID 根据 ID 获取供应商
func (r *GormSupplierRepository) GetByID(id uint) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.First(&supplier, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &supplier, nil
}

// ListVerified 列出已验厂供应商
func (r *GormSupplierRepository) ListVerified() ([]models.Supplier, error) {
	var suppliers []models.Supplier
	if err := r.db.Where("verified = ?", true).Order("name ASC").Find(&suppliers).Error; err != nil {
		return nil, err
	}
	return suppliers, nil
}
