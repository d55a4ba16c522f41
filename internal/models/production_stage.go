package models

import "time"

// ProductionStage 生产阶段表
// 阶段编号在单个供应商订单内约定唯一，唯一性由服务层校验而非数据库约束，
// 时间线渲染只依赖 stage_number 升序
type ProductionStage struct {
	ID              uint        `gorm:"primarykey" json:"id"`                       // 主键
	SupplierOrderID uint        `gorm:"index;not null" json:"supplier_order_id"`    // 供应商订单ID
	StageNumber     int         `gorm:"index;not null" json:"stage_number"`         // 阶段编号（时间线顺序）
	Name            string      `gorm:"type:varchar(100);not null" json:"name"`     // 阶段名称
	Description     string      `gorm:"type:text" json:"description,omitempty"`     // 阶段说明
	Status          string      `gorm:"index;not null" json:"status"`               // 阶段状态
	Percentage      int         `gorm:"not null;default:0" json:"percentage"`       // 完成百分比（0-100）
	StartedAt       *time.Time  `json:"started_at,omitempty"`                       // 开始时间
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`                     // 完成时间
	TargetDate      *time.Time  `gorm:"index" json:"target_date,omitempty"`         // 目标完成日期
	Photos          StringArray `gorm:"type:json" json:"photos,omitempty"`          // 进度照片引用
	Notes           string      `gorm:"type:text" json:"notes,omitempty"`           // 备注
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt       time.Time   `json:"updated_at"`                                 // 更新时间
}

// TableName 指定表名
func (ProductionStage) TableName() string {
	return "production_stages"
}

// Overdue 判断阶段是否已延期
func (s *ProductionStage) Overdue(now time.Time) bool {
	if s.Status == "completed" || s.TargetDate == nil {
		return false
	}
	return now.After(*s.TargetDate)
}
