package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	BuyerID     uint
	SupplierID  uint
	Status      string
	OrderNo     string
	Abandoned   *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// StageListFilter 查询生产阶段的过滤条件
type StageListFilter struct {
	SupplierOrderID uint
	Status          string
	OverdueBefore   *time.Time // 目标日期早于该时间且未完成
}
