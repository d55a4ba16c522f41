package models

import "time"

// OrderStatusHistory 订单状态变更历史表（只追加，不修改）
type OrderStatusHistory struct {
	ID        uint      `gorm:"primarykey" json:"id"`                    // 主键
	OrderID   uint      `gorm:"index;not null" json:"order_id"`          // 订单ID
	OldStatus string    `gorm:"type:varchar(50);not null" json:"old_status"` // 原状态
	NewStatus string    `gorm:"type:varchar(50);not null" json:"new_status"` // 新状态
	ActorRole string    `gorm:"type:varchar(20);not null" json:"actor_role"` // 操作角色
	ActorID   uint      `json:"actor_id,omitempty"`                      // 操作者ID
	Forced    bool      `gorm:"not null;default:false" json:"forced"`    // 是否管理员强制设置
	Note      string    `gorm:"type:text" json:"note,omitempty"`         // 备注
	CreatedAt time.Time `gorm:"index" json:"created_at"`                 // 变更时间
}

// TableName 指定表名
func (OrderStatusHistory) TableName() string {
	return "order_status_histories"
}
