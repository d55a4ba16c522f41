package queue

import (
	"encoding/json"

	"github.com/sourcebridge/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TypeOrderAutoAdvance 末阶段完成后自动推进订单状态
	TypeOrderAutoAdvance = constants.TaskOrderAutoAdvance
	// TypeStageDelayScan 扫描已过目标日期的未完成阶段
	TypeStageDelayScan = constants.TaskStageDelayScan
	// TypeNotificationDispatch 投递单条通知
	TypeNotificationDispatch = constants.TaskNotificationDispatch
)

// OrderAutoAdvancePayload 自动推进任务负载
type OrderAutoAdvancePayload struct {
	OrderID   uint   `json:"order_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
	StageName string `json:"stage_name,omitempty"`
}

// StageDelayScanPayload 延期扫描任务负载
type StageDelayScanPayload struct {
	SupplierOrderID uint `json:"supplier_order_id,omitempty"` // 0 表示全量扫描
}

// NotificationDispatchPayload 通知投递任务负载
type NotificationDispatchPayload struct {
	Type      string `json:"type"`
	OrderID   uint   `json:"order_id"`
	StageID   uint   `json:"stage_id,omitempty"`
	StageName string `json:"stage_name,omitempty"`
	Message   string `json:"message"`
}

// NewOrderAutoAdvanceTask 创建自动推进任务
func NewOrderAutoAdvanceTask(payload OrderAutoAdvancePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderAutoAdvance, data), nil
}

// NewStageDelayScanTask 创建延期扫描任务
func NewStageDelayScanTask(payload StageDelayScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStageDelayScan, data), nil
}

// NewNotificationDispatchTask 创建通知投递任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationDispatch, data), nil
}
