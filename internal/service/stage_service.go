package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcebridge/internal/cache"
	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/feed"
	"github.com/sourcebridge/internal/logger"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/queue"
	"github.com/sourcebridge/internal/repository"

	"gorm.io/gorm"
)

// StageService 生产阶段跟踪服务
// 维护供应商订单下的有序阶段集合，执行完成规则，并维护订单上的进度摘要
type StageService struct {
	stageRepo         repository.ProductionStageRepository
	supplierOrderRepo repository.SupplierOrderRepository
	orderRepo         repository.OrderRepository
	changeFeed        feed.Feed
	queueClient       *queue.Client
	cacheTTL          time.Duration
}

// NewStageService 创建生产阶段服务
func NewStageService(stageRepo repository.ProductionStageRepository, supplierOrderRepo repository.SupplierOrderRepository, orderRepo repository.OrderRepository, changeFeed feed.Feed, queueClient *queue.Client, cacheTTL time.Duration) *StageService {
	return &StageService{
		stageRepo:         stageRepo,
		supplierOrderRepo: supplierOrderRepo,
		orderRepo:         orderRepo,
		changeFeed:        changeFeed,
		queueClient:       queueClient,
		cacheTTL:          cacheTTL,
	}
}

// StartStageInput 开始阶段输入
type StartStageInput struct {
	SupplierOrderID uint
	StageNumber     int
	Name            string
	Description     string
	TargetDate      *time.Time
}

// StageUpdateInput 阶段部分更新输入，nil 字段表示不修改
type StageUpdateInput struct {
	Name        *string
	Description *string
	Status      *string
	Percentage  *int
	TargetDate  *time.Time
	Photos      *models.StringArray
	Notes       *string
}

// StartStage 创建一个进行中的阶段
// 同一供应商订单内阶段编号已存在时返回 ErrDuplicateStage
func (s *StageService) StartStage(ctx context.Context, input StartStageInput) (*models.ProductionStage, error) {
	if input.StageNumber <= 0 || strings.TrimSpace(input.Name) == "" {
		return nil, ErrInvalidStageInput
	}
	supplierOrder, err := s.supplierOrderRepo.GetByID(input.SupplierOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if supplierOrder == nil {
		return nil, ErrSupplierOrderNotFound
	}
	existing, err := s.stageRepo.GetByNumber(supplierOrder.ID, input.StageNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: stage %d already exists", ErrDuplicateStage, input.StageNumber)
	}

	now := time.Now()
	stage := &models.ProductionStage{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     input.StageNumber,
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Status:          constants.StageStatusInProgress,
		Percentage:      0,
		StartedAt:       &now,
		TargetDate:      input.TargetDate,
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.stageRepo.WithTx(tx).Create(stage); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return s.refreshOrderSummary(tx, supplierOrder)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStageCache(ctx, supplierOrder.ID)
	s.publishStageEvent(ctx, constants.FeedEventInsert, nil, stage)
	logger.Infow("stage_started",
		"supplier_order_id", supplierOrder.ID,
		"stage_id", stage.ID,
		"stage_number", stage.StageNumber,
		"name", stage.Name,
	)
	return stage, nil
}

// UpdateStage 部分更新阶段
// 合并后的更新要么全部落库要么全部不落库；完成规则在每条更新路径上显式执行
func (s *StageService) UpdateStage(ctx context.Context, stageID uint, input StageUpdateInput) (*models.ProductionStage, error) {
	stage, err := s.stageRepo.GetByID(stageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if stage == nil {
		return nil, ErrStageNotFound
	}
	before := *stage

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrInvalidStageInput
		}
		stage.Name = name
		updates["name"] = name
	}
	if input.Description != nil {
		stage.Description = *input.Description
		updates["description"] = *input.Description
	}
	if input.Status != nil {
		status := strings.TrimSpace(*input.Status)
		if !validStageStatus(status) {
			return nil, fmt.Errorf("%w: unknown stage status %q", ErrInvalidStageInput, status)
		}
		stage.Status = status
		updates["status"] = status
	}
	if input.Percentage != nil {
		if *input.Percentage < 0 || *input.Percentage > 100 {
			return nil, fmt.Errorf("%w: percentage out of range", ErrInvalidStageInput)
		}
		stage.Percentage = *input.Percentage
		updates["percentage"] = *input.Percentage
	}
	if input.TargetDate != nil {
		stage.TargetDate = input.TargetDate
		updates["target_date"] = *input.TargetDate
	}
	if input.Photos != nil {
		stage.Photos = *input.Photos
		updates["photos"] = *input.Photos
	}
	if input.Notes != nil {
		stage.Notes = *input.Notes
		updates["notes"] = *input.Notes
	}
	if len(updates) == 0 {
		return stage, nil
	}

	now := time.Now()
	applyCompletionRule(stage, updates, now)
	updates["updated_at"] = now

	supplierOrder, err := s.supplierOrderRepo.GetByID(stage.SupplierOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if supplierOrder == nil {
		return nil, ErrSupplierOrderNotFound
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.stageRepo.WithTx(tx).UpdateFields(stage.ID, updates); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return s.refreshOrderSummary(tx, supplierOrder)
	})
	if err != nil {
		return nil, err
	}

	stage.UpdatedAt = now
	s.invalidateStageCache(ctx, supplierOrder.ID)
	s.publishStageEvent(ctx, constants.FeedEventUpdate, &before, stage)
	logger.Infow("stage_updated",
		"supplier_order_id", supplierOrder.ID,
		"stage_id", stage.ID,
		"stage_number", stage.StageNumber,
		"status", stage.Status,
		"percentage", stage.Percentage,
	)

	if before.Status != constants.StageStatusCompleted && stage.Status == constants.StageStatusCompleted {
		s.maybeEnqueueAutoAdvance(supplierOrder, stage)
	}
	return stage, nil
}

// CompleteStage 显式完成阶段，等价于 percentage=100 的更新
// 已完成的阶段重复调用是幂等空操作
func (s *StageService) CompleteStage(ctx context.Context, stageID uint) (*models.ProductionStage, error) {
	stage, err := s.stageRepo.GetByID(stageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if stage == nil {
		return nil, ErrStageNotFound
	}
	if stage.Status == constants.StageStatusCompleted && stage.Percentage == 100 {
		return stage, nil
	}
	full := 100
	completed := constants.StageStatusCompleted
	return s.UpdateStage(ctx, stageID, StageUpdateInput{
		Status:     &completed,
		Percentage: &full,
	})
}

// ListBySupplierOrder 按阶段编号升序返回阶段列表，读穿缓存
func (s *StageService) ListBySupplierOrder(ctx context.Context, supplierOrderID uint) ([]models.ProductionStage, error) {
	if cache.Enabled() {
		var cached []models.ProductionStage
		hit, err := cache.GetJSON(ctx, cache.StageListKey(supplierOrderID), &cached)
		if err != nil {
			logger.Warnw("stage_cache_read_failed", "supplier_order_id", supplierOrderID, "error", err)
		} else if hit {
			return cached, nil
		}
	}
	stages, err := s.stageRepo.ListBySupplierOrder(supplierOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if cache.Enabled() && len(stages) > 0 {
		if err := cache.SetJSON(ctx, cache.StageListKey(supplierOrderID), stages, s.cacheTTL); err != nil {
			logger.Warnw("stage_cache_write_failed", "supplier_order_id", supplierOrderID, "error", err)
		}
	}
	return stages, nil
}

// ListByOrder 解析买家订单到供应商订单再到阶段列表
// 尚无供应商订单时返回空列表而不是错误
func (s *StageService) ListByOrder(ctx context.Context, orderID uint) ([]models.ProductionStage, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	supplierOrder, err := s.supplierOrderRepo.GetByOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if supplierOrder == nil {
		return []models.ProductionStage{}, nil
	}
	return s.ListBySupplierOrder(ctx, supplierOrder.ID)
}

// CurrentStage 返回时间线头部的进行中阶段
// 编号相同时取先创建的记录；没有进行中阶段时返回 nil
func (s *StageService) CurrentStage(ctx context.Context, supplierOrderID uint) (*models.ProductionStage, error) {
	stages, err := s.ListBySupplierOrder(ctx, supplierOrderID)
	if err != nil {
		return nil, err
	}
	return currentInProgress(stages), nil
}

// ListOverdue 返回目标日期早于 before 且未完成的阶段
func (s *StageService) ListOverdue(before time.Time) ([]models.ProductionStage, error) {
	stages, err := s.stageRepo.ListOverdue(repository.StageListFilter{OverdueBefore: &before})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return stages, nil
}

// applyCompletionRule 完成规则
// 百分比达到 100 时补齐 completed 状态与完成时间；反向地，置为 completed 时补齐百分比，
// 使部分更新无法留下 percentage=100 而状态停在 in_progress 的记录
func applyCompletionRule(stage *models.ProductionStage, updates map[string]interface{}, now time.Time) {
	if stage.Percentage == 100 && stage.Status != constants.StageStatusCompleted {
		stage.Status = constants.StageStatusCompleted
		updates["status"] = constants.StageStatusCompleted
	}
	if stage.Status == constants.StageStatusCompleted {
		if stage.Percentage != 100 {
			stage.Percentage = 100
			updates["percentage"] = 100
		}
		if stage.CompletedAt == nil {
			stage.CompletedAt = &now
			updates["completed_at"] = now
		}
	}
	if stage.Status == constants.StageStatusInProgress && stage.StartedAt == nil {
		stage.StartedAt = &now
		updates["started_at"] = now
	}
}

// currentInProgress 从按编号升序的列表里取第一个进行中的阶段
func currentInProgress(stages []models.ProductionStage) *models.ProductionStage {
	for i := range stages {
		if stages[i].Status == constants.StageStatusInProgress {
			return &stages[i]
		}
	}
	return nil
}

func validStageStatus(status string) bool {
	switch status {
	case constants.StageStatusNotStarted, constants.StageStatusInProgress, constants.StageStatusCompleted:
		return true
	}
	return false
}

// refreshOrderSummary 在事务内重算订单上的进度摘要
// current_stage 取时间线头部进行中阶段名，stage_progress 为阶段名到百分比的映射
func (s *StageService) refreshOrderSummary(tx *gorm.DB, supplierOrder *models.SupplierOrder) error {
	stages, err := s.stageRepo.WithTx(tx).ListBySupplierOrder(supplierOrder.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	progress := models.JSON{}
	for _, stage := range stages {
		if _, ok := progress[stage.Name]; ok {
			continue // 重名阶段保留先出现的记录
		}
		progress[stage.Name] = stage.Percentage
	}
	currentName := ""
	if current := currentInProgress(stages); current != nil {
		currentName = current.Name
	}
	updates := map[string]interface{}{
		"current_stage":  currentName,
		"stage_progress": progress,
		"updated_at":     time.Now(),
	}
	return s.orderRepo.WithTx(tx).UpdateFields(supplierOrder.OrderID, updates)
}

// maybeEnqueueAutoAdvance 末阶段完成后把状态推进任务放入队列
// 仅当订单处于 in_production 且全部阶段都已完成时触发
func (s *StageService) maybeEnqueueAutoAdvance(supplierOrder *models.SupplierOrder, stage *models.ProductionStage) {
	if !s.queueClient.Enabled() {
		return
	}
	stages, err := s.stageRepo.ListBySupplierOrder(supplierOrder.ID)
	if err != nil {
		logger.Warnw("auto_advance_check_failed", "supplier_order_id", supplierOrder.ID, "error", err)
		return
	}
	for _, st := range stages {
		if st.Status != constants.StageStatusCompleted {
			return
		}
	}
	order, err := s.orderRepo.GetByID(supplierOrder.OrderID)
	if err != nil || order == nil || order.Status != constants.OrderStatusInProduction {
		return
	}
	payload := queue.OrderAutoAdvancePayload{
		OrderID:   order.ID,
		From:      constants.OrderStatusInProduction,
		To:        constants.OrderStatusQualityCheck,
		Reason:    "all production stages completed",
		StageName: stage.Name,
	}
	if err := s.queueClient.EnqueueOrderAutoAdvance(payload); err != nil {
		logger.Warnw("auto_advance_enqueue_failed", "order_id", order.ID, "error", err)
		return
	}
	logger.Infow("auto_advance_enqueued", "order_id", order.ID, "last_stage", stage.Name)
}

func (s *StageService) invalidateStageCache(ctx context.Context, supplierOrderID uint) {
	if !cache.Enabled() {
		return
	}
	if err := cache.Del(ctx, cache.StageListKey(supplierOrderID)); err != nil {
		logger.Warnw("stage_cache_invalidate_failed", "supplier_order_id", supplierOrderID, "error", err)
	}
}

func (s *StageService) publishStageEvent(ctx context.Context, eventType string, oldRow, newRow *models.ProductionStage) {
	if s.changeFeed == nil {
		return
	}
	event, err := feed.NewStageEvent(eventType, oldRow, newRow)
	if err == nil {
		err = s.changeFeed.Publish(ctx, event)
	}
	if err != nil {
		logger.Warnw("stage_feed_publish_failed", "event_type", eventType, "error", err)
	}
}
