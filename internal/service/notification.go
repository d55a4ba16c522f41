package service

import (
	"fmt"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/logger"
)

// Notification 面向用户的通知（短暂对象，核心不落库）
type Notification struct {
	Kind           string `json:"kind"`
	OrderReference uint   `json:"order_reference"` // 供应商订单ID（阶段通知）或订单ID（状态通知）
	StageName      string `json:"stage_name,omitempty"`
	Percentage     int    `json:"percentage,omitempty"`
	Message        string `json:"message"`
}

// NotificationSink 通知出口，展示与投递由外部实现
type NotificationSink interface {
	Notify(notification Notification)
}

// LogSink 把通知写入结构化日志的默认出口
type LogSink struct{}

// Notify 记录通知
func (LogSink) Notify(n Notification) {
	logger.Infow("notification_emitted",
		"kind", n.Kind,
		"order_reference", n.OrderReference,
		"stage_name", n.StageName,
		"percentage", n.Percentage,
		"message", n.Message,
	)
}

// ClassifyStageEvent 把一条阶段变更事件映射为通知
// 纯函数：insert -> stage_started，update -> stage_updated，其余事件不产生通知
func ClassifyStageEvent(event feed.Event) (Notification, bool) {
	if event.Table != constants.FeedTableProductionStages {
		return Notification{}, false
	}
	stage, err := event.DecodeNewStage()
	if err != nil || stage == nil {
		return Notification{}, false
	}
	switch event.Type {
	case constants.FeedEventInsert:
		return Notification{
			Kind:           constants.NotificationStageStarted,
			OrderReference: stage.SupplierOrderID,
			StageName:      stage.Name,
			Percentage:     stage.Percentage,
			Message:        fmt.Sprintf("Production stage %q has started", stage.Name),
		}, true
	case constants.FeedEventUpdate:
		return Notification{
			Kind:           constants.NotificationStageUpdated,
			OrderReference: stage.SupplierOrderID,
			StageName:      stage.Name,
			Percentage:     stage.Percentage,
			Message:        fmt.Sprintf("Production stage %q is now at %d%%", stage.Name, stage.Percentage),
		}, true
	}
	return Notification{}, false
}

// NewDelayNotification 延期扫描命中时的通知
func NewDelayNotification(supplierOrderID uint, stageName string, percentage int) Notification {
	return Notification{
		Kind:           constants.NotificationStageDelayed,
		OrderReference: supplierOrderID,
		StageName:      stageName,
		Percentage:     percentage,
		Message:        fmt.Sprintf("Production stage %q is past its target date at %d%%", stageName, percentage),
	}
}

// FormatOrderStatusMessage 订单状态变更的通知文案
func FormatOrderStatusMessage(orderNo, from, to string) string {
	return fmt.Sprintf("Order %s moved from %s to %s", orderNo, from, to)
}
