package repository

import (
	"github.com/sourcebridge/internal/models"

	"gorm.io/gorm"
)

// OrderStatusHistoryRepository 状态历史数据访问接口（只追加）
type OrderStatusHistoryRepository interface {
	Append(record *models.OrderStatusHistory) error
	ListByOrder(orderID uint) ([]models.OrderStatusHistory, error)
	WithTx(tx *gorm.DB) *GormOrderStatusHistoryRepository
}

// GormOrderStatusHistoryRepository GORM 实现
type GormOrderStatusHistoryRepository struct {
	db *gorm.DB
}

// NewOrderStatusHistoryRepository 创建状态历史仓库
func NewOrderStatusHistoryRepository(db *gorm.DB) *GormOrderStatusHistoryRepository {
	return &GormOrderStatusHistoryRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderStatusHistoryRepository) WithTx(tx *gorm.DB) *GormOrderStatusHistoryRepository {
	if tx == nil {
		return r
	}
	return &GormOrderStatusHistoryRepository{db: tx}
}

// Append 追加一条历史记录
func (r *GormOrderStatusHistoryRepository) Append(record *models.OrderStatusHistory) error {
	return r.db.Create(record).Error
}

// ListByOrder 按时间升序返回订单的全部历史
func (r *GormOrderStatusHistoryRepository) ListByOrder(orderID uint) ([]models.OrderStatusHistory, error) {
	var records []models.OrderStatusHistory
	err := r.db.
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
