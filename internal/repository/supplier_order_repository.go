package repository

import (
	"errors"

	"github.com/sourcebridge/internal/models"

	"gorm.io/gorm"
)

// SupplierOrderRepository 供应商订单数据访问接口
type SupplierOrderRepository interface {
	Create(supplierOrder *models.SupplierOrder) error
	GetByID(id uint) (*models.SupplierOrder, error)
	GetByOrderID(orderID uint) (*models.SupplierOrder, error)
	ListBySupplier(supplierID uint) ([]models.SupplierOrder, error)
	WithTx(tx *gorm.DB) *GormSupplierOrderRepository
}

// GormSupplierOrderRepository GORM 实现
type GormSupplierOrderRepository struct {
	db *gorm.DB
}

// NewSupplierOrderRepository 创建供应商订单仓库
func NewSupplierOrderRepository(db *gorm.DB) *GormSupplierOrderRepository {
	return &GormSupplierOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSupplierOrderRepository) WithTx(tx *gorm.DB) *GormSupplierOrderRepository {
	if tx == nil {
		return r
	}
	return &GormSupplierOrderRepository{db: tx}
}

// Create 创建供应商订单
func (r *GormSupplierOrderRepository) Create(supplierOrder *models.SupplierOrder) error {
	return r.db.Create(supplierOrder).Error
}

// GetByID 根据 ID 获取供应商订单
func (r *GormSupplierOrderRepository) GetByID(id uint) (*models.SupplierOrder, error) {
	var supplierOrder models.SupplierOrder
	if err := r.db.First(&supplierOrder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &supplierOrder, nil
}

// GetByOrderID 根据买家订单 ID 获取供应商订单
func (r *GormSupplierOrderRepository) GetByOrderID(orderID uint) (*models.SupplierOrder, error) {
	var supplierOrder models.SupplierOrder
	if err := r.db.Where("order_id = ?", orderID).First(&supplierOrder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &supplierOrder, nil
}

// ListBySupplier 查询供应商的全部执行订单
func (r *GormSupplierOrderRepository) ListBySupplier(supplierID uint) ([]models.SupplierOrder, error) {
	var supplierOrders []models.SupplierOrder
	if err := r.db.Where("supplier_id = ?", supplierID).Order("created_at DESC").Find(&supplierOrders).Error; err != nil {
		return nil, err
	}
	return supplierOrders, nil
}
