package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Order 买家订单表
type Order struct {
	ID               uint       `gorm:"primarykey" json:"id"`                    // 主键
	OrderNo          string     `gorm:"uniqueIndex;not null" json:"order_no"`    // 订单编号
	BuyerID          uint       `gorm:"index;not null" json:"buyer_id"`          // 买家ID
	SupplierID       *uint      `gorm:"index" json:"supplier_id,omitempty"`      // 供应商ID（分配后）
	FactoryRef       string     `gorm:"type:varchar(100)" json:"factory_ref,omitempty"` // 工厂引用
	ProductType      string     `gorm:"type:varchar(100);not null" json:"product_type"` // 产品类型
	Quantity         int        `gorm:"not null" json:"quantity"`                // 数量
	BuyerPrice       Money      `gorm:"type:decimal(20,2);not null;default:0" json:"buyer_price"`    // 买家价格
	SupplierPrice    Money      `gorm:"type:decimal(20,2);not null;default:0" json:"supplier_price"` // 供应商价格
	Margin           Money      `gorm:"type:decimal(20,2);not null;default:0" json:"margin"`         // 毛利（买家价 - 供应商价）
	Status           string     `gorm:"index;not null" json:"status"`            // 工作流状态
	CurrentStage     string     `gorm:"type:varchar(100)" json:"current_stage,omitempty"` // 当前生产阶段名
	StageProgress    JSON       `gorm:"type:json" json:"stage_progress,omitempty"`        // 阶段名 -> 完成百分比
	Abandoned        bool       `gorm:"index;not null;default:false" json:"abandoned"`    // 放弃标记（与工作流状态正交）
	TrackingCodeHash string     `gorm:"type:varchar(200)" json:"-"`              // 公开查询口令哈希
	TargetDate       *time.Time `gorm:"index" json:"target_date,omitempty"`      // 目标日期
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`             // 预计交付日期
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`                  // 实际交付时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                 // 创建时间
	UpdatedAt        time.Time  `gorm:"index" json:"updated_at"`                 // 更新时间

	SupplierOrder *SupplierOrder       `gorm:"foreignKey:OrderID" json:"supplier_order,omitempty"` // 供应商侧订单
	History       []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"history,omitempty"`        // 状态变更历史
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// RecalcMargin 重新计算毛利
func (o *Order) RecalcMargin() {
	o.Margin = o.BuyerPrice.Sub(o.SupplierPrice)
}

// SetTrackingCode 设置公开查询口令
func (o *Order) SetTrackingCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		o.TrackingCodeHash = ""
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.TrackingCodeHash = string(hash)
	return nil
}

// CheckTrackingCode 校验公开查询口令
func (o *Order) CheckTrackingCode(code string) bool {
	if o.TrackingCodeHash == "" {
		// 未设置口令视为公开可查
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(o.TrackingCodeHash), []byte(strings.TrimSpace(code))) == nil
}
