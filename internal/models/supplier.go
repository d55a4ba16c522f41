package models

import "time"

// Supplier 供应商表
type Supplier struct {
	ID            uint      `gorm:"primarykey" json:"id"`                          // 主键
	Name          string    `gorm:"type:varchar(200);not null" json:"name"`        // 供应商名称
	ContactPerson string    `gorm:"type:varchar(100)" json:"contact_person,omitempty"` // 联系人
	ContactEmail  string    `gorm:"type:varchar(100)" json:"contact_email,omitempty"`  // 联系邮箱
	Region        string    `gorm:"type:varchar(100)" json:"region,omitempty"`     // 所在地区
	Capabilities  JSON      `gorm:"type:json" json:"capabilities,omitempty"`       // 产能/品类信息
	Verified      bool      `gorm:"index;not null;default:false" json:"verified"`  // 是否已验厂
	CreatedAt     time.Time `json:"created_at"`                                    // 创建时间
	UpdatedAt     time.Time `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (Supplier) TableName() string {
	return "suppliers"
}
