package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcebridge/internal/authz"
	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/queue"
	"github.com/sourcebridge/internal/repository"

	"gorm.io/gorm"
)

// WorkflowService 订单工作流服务
// 负责状态机推进、管理员强制改状态、放弃标记与状态历史
type WorkflowService struct {
	orderRepo         repository.OrderRepository
	historyRepo       repository.OrderStatusHistoryRepository
	supplierOrderRepo repository.SupplierOrderRepository
	stageRepo         repository.ProductionStageRepository
	authzService      *authz.Service
	changeFeed        feed.Feed
	queueClient       *queue.Client
}

// NewWorkflowService 创建工作流服务
func NewWorkflowService(orderRepo repository.OrderRepository, historyRepo repository.OrderStatusHistoryRepository, supplierOrderRepo repository.SupplierOrderRepository, stageRepo repository.ProductionStageRepository, authzService *authz.Service, changeFeed feed.Feed, queueClient *queue.Client) *WorkflowService {
	return &WorkflowService{
		orderRepo:         orderRepo,
		historyRepo:       historyRepo,
		supplierOrderRepo: supplierOrderRepo,
		stageRepo:         stageRepo,
		authzService:      authzService,
		changeFeed:        changeFeed,
		queueClient:       queueClient,
	}
}

// TransitionInput 状态推进输入
type TransitionInput struct {
	OrderID   uint
	To        string
	ActorRole string
	ActorID   uint
	Note      string
}

// ForceStatusInput 管理员强制改状态输入
type ForceStatusInput struct {
	OrderID   uint
	To        string
	ActorID   uint
	Note      string
}

// statusIndex 返回状态在主链中的位置，未知状态返回 -1
func statusIndex(status string) int {
	for i, s := range constants.WorkflowChain {
		if s == status {
			return i
		}
	}
	return -1
}

// NextStatus 返回主链上的直接后继，终态或未知状态返回空串
func NextStatus(current string) string {
	idx := statusIndex(current)
	if idx < 0 || idx == len(constants.WorkflowChain)-1 {
		return ""
	}
	return constants.WorkflowChain[idx+1]
}

// ValidStatus 判断是否为主链上的已知状态
func ValidStatus(status string) bool {
	return statusIndex(status) >= 0
}

// Transition 沿主链推进订单状态
// 仅允许推进到直接后继；角色必须具备该状态边的权限；
// 放弃中的订单拒绝推进；delivered 及之后要求全部生产阶段已完成
func (s *WorkflowService) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	to := strings.TrimSpace(input.To)
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Abandoned {
		return nil, ErrOrderAbandoned
	}
	if NextStatus(order.Status) != to {
		return nil, fmt.Errorf("%w: %s -> %s is not the next step", ErrInvalidTransition, order.Status, to)
	}

	allowed, err := s.authzService.CanTransition(input.ActorRole, order.Status, to)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: role %s may not perform %s -> %s", ErrInvalidTransition, input.ActorRole, order.Status, to)
	}

	if requiresStagesComplete(to) {
		complete, err := s.stagesComplete(order.ID)
		if err != nil {
			return nil, err
		}
		if !complete {
			return nil, fmt.Errorf("%w: production stages incomplete for %s", ErrInvalidTransition, to)
		}
	}

	from := order.Status
	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		txOrderRepo := s.orderRepo.WithTx(tx)
		current, err := txOrderRepo.GetByID(order.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if current == nil {
			return ErrOrderNotFound
		}
		// 并发守卫：事务内复核状态未被他人改写
		if current.Status != from {
			return fmt.Errorf("%w: status changed concurrently from %s to %s", ErrInvalidTransition, from, current.Status)
		}
		updates := map[string]interface{}{"updated_at": now}
		if to == constants.OrderStatusDelivered {
			updates["delivered_at"] = now
		}
		if err := txOrderRepo.UpdateStatus(order.ID, to, updates); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		record := &models.OrderStatusHistory{
			OrderID:   order.ID,
			OldStatus: from,
			NewStatus: to,
			ActorRole: strings.ToLower(strings.TrimSpace(input.ActorRole)),
			ActorID:   input.ActorID,
			Note:      input.Note,
		}
		return s.historyRepo.WithTx(tx).Append(record)
	})
	if err != nil {
		return nil, err
	}

	order.Status = to
	order.UpdatedAt = now
	if to == constants.OrderStatusDelivered {
		order.DeliveredAt = &now
	}
	s.afterStatusChange(ctx, order, from, to, false)
	return order, nil
}

// ForceStatus 管理员强制设置订单状态
// 不校验后继与阶段一致性，仅审计（history.Forced=true）
func (s *WorkflowService) ForceStatus(ctx context.Context, input ForceStatusInput) (*models.Order, error) {
	to := strings.TrimSpace(input.To)
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	from := order.Status
	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"updated_at": now}
		if to == constants.OrderStatusDelivered && order.DeliveredAt == nil {
			updates["delivered_at"] = now
		}
		if err := s.orderRepo.WithTx(tx).UpdateStatus(order.ID, to, updates); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		record := &models.OrderStatusHistory{
			OrderID:   order.ID,
			OldStatus: from,
			NewStatus: to,
			ActorRole: constants.RoleAdmin,
			ActorID:   input.ActorID,
			Forced:    true,
			Note:      input.Note,
		}
		return s.historyRepo.WithTx(tx).Append(record)
	})
	if err != nil {
		return nil, err
	}

	order.Status = to
	order.UpdatedAt = now
	logger.Warnw("order_status_forced",
		"order_id", order.ID,
		"from", from,
		"to", to,
		"actor_id", input.ActorID,
	)
	s.afterStatusChange(ctx, order, from, to, true)
	return order, nil
}

// Abandon 标记订单为放弃（与工作流状态正交，不改变状态本身）
func (s *WorkflowService) Abandon(ctx context.Context, orderID uint, actorRole string, actorID uint, note string) (*models.Order, error) {
	role := strings.ToLower(strings.TrimSpace(actorRole))
	if role != constants.RoleAdmin && role != constants.RoleBuyer {
		return nil, fmt.Errorf("%w: role %s may not abandon orders", ErrInvalidTransition, actorRole)
	}
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Abandoned {
		return order, nil
	}

	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"abandoned": true, "updated_at": now}
		if err := s.orderRepo.WithTx(tx).UpdateFields(order.ID, updates); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		record := &models.OrderStatusHistory{
			OrderID:   order.ID,
			OldStatus: order.Status,
			NewStatus: order.Status,
			ActorRole: role,
			ActorID:   actorID,
			Note:      strings.TrimSpace("abandoned " + note),
		}
		return s.historyRepo.WithTx(tx).Append(record)
	})
	if err != nil {
		return nil, err
	}

	order.Abandoned = true
	order.UpdatedAt = now
	logger.Infow("order_abandoned", "order_id", order.ID, "actor_role", role, "actor_id", actorID)
	return order, nil
}

// Reinstate 取消放弃标记（仅管理员）
func (s *WorkflowService) Reinstate(ctx context.Context, orderID uint, actorID uint, note string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !order.Abandoned {
		return order, nil
	}

	now := time.Now()
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"abandoned": false, "updated_at": now}
		if err := s.orderRepo.WithTx(tx).UpdateFields(order.ID, updates); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		record := &models.OrderStatusHistory{
			OrderID:   order.ID,
			OldStatus: order.Status,
			NewStatus: order.Status,
			ActorRole: constants.RoleAdmin,
			ActorID:   actorID,
			Note:      strings.TrimSpace("reinstated " + note),
		}
		return s.historyRepo.WithTx(tx).Append(record)
	})
	if err != nil {
		return nil, err
	}

	order.Abandoned = false
	order.UpdatedAt = now
	logger.Infow("order_reinstated", "order_id", order.ID, "actor_id", actorID)
	return order, nil
}

// History 按时间升序返回订单状态历史
func (s *WorkflowService) History(orderID uint) ([]models.OrderStatusHistory, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	records, err := s.historyRepo.ListByOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

// requiresStagesComplete 判断进入该状态是否要求全部生产阶段完成
func requiresStagesComplete(to string) bool {
	return to == constants.OrderStatusDelivered || to == constants.OrderStatusCompleted
}

// stagesComplete 检查订单全部生产阶段是否已完成
// 尚无供应商订单或阶段时视为满足（强制改状态不经过这里）
func (s *WorkflowService) stagesComplete(orderID uint) (bool, error) {
	supplierOrder, err := s.supplierOrderRepo.GetByOrderID(orderID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if supplierOrder == nil {
		return true, nil
	}
	stages, err := s.stageRepo.ListBySupplierOrder(supplierOrder.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, stage := range stages {
		if stage.Status != constants.StageStatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// afterStatusChange 状态落库后的副作用：日志、变更事件、通知任务
// 失败只记日志，不影响已提交的状态变更
func (s *WorkflowService) afterStatusChange(ctx context.Context, order *models.Order, from, to string, forced bool) {
	logger.Infow("order_status_changed",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"from", from,
		"to", to,
		"forced", forced,
	)
	if s.changeFeed != nil {
		event, err := feed.NewOrderEvent(constants.FeedEventUpdate, order)
		if err == nil {
			err = s.changeFeed.Publish(ctx, event)
		}
		if err != nil {
			logger.Warnw("order_feed_publish_failed", "order_id", order.ID, "error", err)
		}
	}
	if s.queueClient.Enabled() {
		payload := queue.NotificationDispatchPayload{
			Type:    constants.NotificationOrderStatus,
			OrderID: order.ID,
			Message: FormatOrderStatusMessage(order.OrderNo, from, to),
		}
		if err := s.queueClient.EnqueueNotificationDispatch(payload); err != nil {
			logger.Warnw("notification_enqueue_failed", "order_id", order.ID, "error", err)
		}
	}
}
