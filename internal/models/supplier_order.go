package models

import "time"

// SupplierOrder 供应商侧订单表
// 买家订单与供应商执行记录的关联实体，生产阶段始终挂在这一层
type SupplierOrder struct {
	ID              uint      `gorm:"primarykey" json:"id"`                           // 主键
	OrderID         uint      `gorm:"uniqueIndex;not null" json:"order_id"`           // 买家订单ID
	SupplierID      uint      `gorm:"index;not null" json:"supplier_id"`              // 供应商ID
	SupplierOrderNo string    `gorm:"uniqueIndex;not null" json:"supplier_order_no"`  // 供应商侧编号
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`               // 备注
	CreatedAt       time.Time `json:"created_at"`                                     // 创建时间
	UpdatedAt       time.Time `json:"updated_at"`                                     // 更新时间

	Stages []ProductionStage `gorm:"foreignKey:SupplierOrderID" json:"stages,omitempty"` // 生产阶段
}

// TableName 指定表名
func (SupplierOrder) TableName() string {
	return "supplier_orders"
}
