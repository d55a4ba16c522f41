package constants

// 订单工作流状态常量（线性主链，顺序即合法推进顺序）
const (
	OrderStatusQuoteRequested     = "quote_requested"
	OrderStatusQuoteProvided      = "quote_provided"
	OrderStatusQuoteAccepted      = "quote_accepted"
	OrderStatusAssignedToSupplier = "assigned_to_supplier"
	OrderStatusInProduction       = "in_production"
	OrderStatusQualityCheck       = "quality_check"
	OrderStatusShipped            = "shipped"
	OrderStatusDelivered          = "delivered"
	OrderStatusCompleted          = "completed"
)

// WorkflowChain 工作流主链顺序
var WorkflowChain = []string{
	OrderStatusQuoteRequested,
	OrderStatusQuoteProvided,
	OrderStatusQuoteAccepted,
	OrderStatusAssignedToSupplier,
	OrderStatusInProduction,
	OrderStatusQualityCheck,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
}

// 生产阶段状态常量
const (
	StageStatusNotStarted = "not_started"
	StageStatusInProgress = "in_progress"
	StageStatusCompleted  = "completed"
)

// 操作角色常量
const (
	RoleAdmin    = "admin"
	RoleSupplier = "supplier"
	RoleBuyer    = "buyer"
	RoleSystem   = "system"
)

// 通知类型常量
const (
	NotificationStageStarted = "stage_started"
	NotificationStageUpdated = "stage_updated"
	NotificationStageDelayed = "stage_delayed"
	NotificationOrderStatus  = "order_status"
)

// 变更事件类型常量
const (
	FeedEventInsert = "insert"
	FeedEventUpdate = "update"
	FeedEventDelete = "delete"
)

// 变更订阅表名常量
const (
	FeedTableProductionStages = "production_stages"
	FeedTableOrders           = "orders"
)

// 队列与任务常量
const (
	QueueDefault             = "default"
	TaskOrderAutoAdvance     = "order:auto_advance"
	TaskStageDelayScan       = "stage:delay_scan"
	TaskNotificationDispatch = "notification:dispatch"
)
