package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sourcebridge/internal/cache"
	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/provider"
	"github.com/sourcebridge/internal/queue"
	"github.com/sourcebridge/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TypeOrderAutoAdvance, c.handleOrderAutoAdvance)
	mux.HandleFunc(queue.TypeStageDelayScan, c.handleStageDelayScan)
	mux.HandleFunc(queue.TypeNotificationDispatch, c.handleNotificationDispatch)
}

// handleOrderAutoAdvance 末阶段完成后由系统角色推进订单状态
func (c *Consumer) handleOrderAutoAdvance(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.OrderAutoAdvancePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_auto_advance_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_auto_advance_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	_, err := c.WorkflowService.Transition(ctx, service.TransitionInput{
		OrderID:   payload.OrderID,
		To:        payload.To,
		ActorRole: constants.RoleSystem,
		Note:      payload.Reason,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_auto_advance_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrInvalidTransition):
			// 状态已被他人推进，任务过期
			logger.Debugw("worker_auto_advance_skip_stale", "order_id", payload.OrderID, "error", err)
			return nil
		case errors.Is(err, service.ErrOrderAbandoned):
			logger.Debugw("worker_auto_advance_skip_abandoned", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_auto_advance_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	logger.Infow("worker_auto_advance_done", "order_id", payload.OrderID, "to", payload.To)
	return nil
}

// handleStageDelayScan 扫描延期阶段并投递通知
func (c *Consumer) handleStageDelayScan(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.StageDelayScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_delay_scan_unmarshal_failed", "error", err)
		return err
	}
	return c.scanDelays(ctx)
}

// scanDelays 延期扫描主体，定时循环与任务处理共用
// 每个阶段在去重窗口内只通知一次
func (c *Consumer) scanDelays(ctx context.Context) error {
	now := time.Now()
	stages, err := c.StageService.ListOverdue(now)
	if err != nil {
		logger.Warnw("worker_delay_scan_failed", "error", err)
		return err
	}
	ttl := time.Duration(c.Config.Tracking.DelayNoticeTTLHours) * time.Hour
	for _, stage := range stages {
		if cache.Enabled() {
			fresh, err := cache.SetNX(ctx, cache.DelayNoticeKey(stage.ID), now.Format(time.RFC3339), ttl)
			if err != nil {
				logger.Warnw("worker_delay_dedupe_failed", "stage_id", stage.ID, "error", err)
			} else if !fresh {
				continue
			}
		}
		notification := service.NewDelayNotification(stage.SupplierOrderID, stage.Name, stage.Percentage)
		dispatch := queue.NotificationDispatchPayload{
			Type:      constants.NotificationStageDelayed,
			StageID:   stage.ID,
			StageName: stage.Name,
			Message:   notification.Message,
		}
		if c.QueueClient.Enabled() {
			if err := c.QueueClient.EnqueueNotificationDispatch(dispatch); err != nil {
				logger.Warnw("worker_delay_dispatch_enqueue_failed", "stage_id", stage.ID, "error", err)
			}
			continue
		}
		c.NotificationSink.Notify(notification)
	}
	logger.Infow("worker_delay_scan_done", "overdue_count", len(stages))
	return nil
}

// handleNotificationDispatch 把通知交给出口
func (c *Consumer) handleNotificationDispatch(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.NotificationDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notification_unmarshal_failed", "error", err)
		return err
	}
	if payload.Type == "" {
		logger.Debugw("worker_notification_skip_empty_type")
		return nil
	}
	reference := payload.OrderID
	if reference == 0 {
		reference = payload.StageID
	}
	c.NotificationSink.Notify(service.Notification{
		Kind:           payload.Type,
		OrderReference: reference,
		StageName:      payload.StageName,
		Message:        payload.Message,
	})
	return nil
}
