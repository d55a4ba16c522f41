package public

import (
	"context"
	"time"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ListAssignedOrders 供应商查询分配给自己的订单
func (h *Handler) ListAssignedOrders(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	orders, err := h.SupplierService.ListOrders(actorID)
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, orders)
}

// ListSupplierOrderStages 供应商查询自己订单的阶段列表
func (h *Handler) ListSupplierOrderStages(c *gin.Context) {
	supplierOrder, ok := h.loadOwnedSupplierOrder(c)
	if !ok {
		return
	}
	stages, err := h.StageService.ListBySupplierOrder(c.Request.Context(), supplierOrder.ID)
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, stages)
}

// GetCurrentStage 供应商查询当前进行中的阶段
func (h *Handler) GetCurrentStage(c *gin.Context) {
	supplierOrder, ok := h.loadOwnedSupplierOrder(c)
	if !ok {
		return
	}
	stage, err := h.StageService.CurrentStage(c.Request.Context(), supplierOrder.ID)
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, stage)
}

type startStageRequest struct {
	StageNumber int        `json:"stage_number" binding:"required,gt=0"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	TargetDate  *time.Time `json:"target_date"`
}

// StartStage 供应商开始新的生产阶段
func (h *Handler) StartStage(c *gin.Context) {
	supplierOrder, ok := h.loadOwnedSupplierOrder(c)
	if !ok {
		return
	}
	var req startStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	stage, err := h.StageService.StartStage(c.Request.Context(), service.StartStageInput{
		SupplierOrderID: supplierOrder.ID,
		StageNumber:     req.StageNumber,
		Name:            req.Name,
		Description:     req.Description,
		TargetDate:      req.TargetDate,
	})
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, stage)
}

type updateStageRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Percentage  *int       `json:"percentage"`
	TargetDate  *time.Time `json:"target_date"`
	Photos      *[]string  `json:"photos"`
	Notes       *string    `json:"notes"`
}

// UpdateStage 供应商更新阶段进度
// 写入经过乐观视图控制器：先把变更应用到内存视图，提交失败再回滚。
func (h *Handler) UpdateStage(c *gin.Context) {
	stage, supplierOrder, ok := h.loadOwnedStage(c)
	if !ok {
		return
	}
	var req updateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	input := service.StageUpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		Percentage:  req.Percentage,
		TargetDate:  req.TargetDate,
		Notes:       req.Notes,
	}
	if req.Photos != nil {
		photos := models.StringArray(*req.Photos)
		input.Photos = &photos
	}

	var updated *models.ProductionStage
	err := h.ViewController.Mutate(c.Request.Context(), supplierOrder.ID, stage.ID,
		func(s *models.ProductionStage) {
			applyStageRequest(s, req)
		},
		func(ctx context.Context) error {
			result, commitErr := h.StageService.UpdateStage(ctx, stage.ID, input)
			if commitErr != nil {
				return commitErr
			}
			updated = result
			return nil
		},
	)
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, updated)
}

func applyStageRequest(stage *models.ProductionStage, req updateStageRequest) {
	if req.Name != nil {
		stage.Name = *req.Name
	}
	if req.Description != nil {
		stage.Description = *req.Description
	}
	if req.Status != nil {
		stage.Status = *req.Status
	}
	if req.Percentage != nil {
		stage.Percentage = *req.Percentage
	}
	if req.TargetDate != nil {
		stage.TargetDate = req.TargetDate
	}
	if req.Photos != nil {
		stage.Photos = models.StringArray(*req.Photos)
	}
	if req.Notes != nil {
		stage.Notes = *req.Notes
	}
}

// CompleteStage 供应商完成阶段
func (h *Handler) CompleteStage(c *gin.Context) {
	stage, _, ok := h.loadOwnedStage(c)
	if !ok {
		return
	}
	updated, err := h.StageService.CompleteStage(c.Request.Context(), stage.ID)
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, updated)
}

type supplierTransitionRequest struct {
	To   string `json:"to" binding:"required"`
	Note string `json:"note"`
}

// SupplierTransition 供应商推进买家订单的工作流状态
func (h *Handler) SupplierTransition(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	supplierOrder, ok := h.loadOwnedSupplierOrder(c)
	if !ok {
		return
	}
	var req supplierTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.WorkflowService.Transition(c.Request.Context(), service.TransitionInput{
		OrderID:   supplierOrder.OrderID,
		To:        req.To,
		ActorRole: getActorRole(c),
		ActorID:   actorID,
		Note:      req.Note,
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// loadOwnedSupplierOrder 加载供应商订单并校验归属。
func (h *Handler) loadOwnedSupplierOrder(c *gin.Context) (*models.SupplierOrder, bool) {
	actorID, ok := getActorID(c)
	if !ok {
		return nil, false
	}
	supplierOrderID, ok := parseUintParam(c, "id")
	if !ok {
		return nil, false
	}
	supplierOrder, err := h.SupplierOrderRepo.GetByID(supplierOrderID)
	if err != nil {
		respondError(c, response.CodeInternal, "storage unavailable", err)
		return nil, false
	}
	if supplierOrder == nil {
		respondError(c, response.CodeNotFound, "supplier order not found", nil)
		return nil, false
	}
	if getActorRole(c) != constants.RoleAdmin && supplierOrder.SupplierID != actorID {
		respondError(c, response.CodeNotFound, "supplier order not found", nil)
		return nil, false
	}
	return supplierOrder, true
}

// loadOwnedStage 加载阶段并校验其供应商订单归属。
func (h *Handler) loadOwnedStage(c *gin.Context) (*models.ProductionStage, *models.SupplierOrder, bool) {
	actorID, ok := getActorID(c)
	if !ok {
		return nil, nil, false
	}
	stageID, ok := parseUintParam(c, "id")
	if !ok {
		return nil, nil, false
	}
	stage, err := h.StageRepo.GetByID(stageID)
	if err != nil {
		respondError(c, response.CodeInternal, "storage unavailable", err)
		return nil, nil, false
	}
	if stage == nil {
		respondError(c, response.CodeNotFound, "stage not found", nil)
		return nil, nil, false
	}
	supplierOrder, err := h.SupplierOrderRepo.GetByID(stage.SupplierOrderID)
	if err != nil {
		respondError(c, response.CodeInternal, "storage unavailable", err)
		return nil, nil, false
	}
	if supplierOrder == nil {
		respondError(c, response.CodeNotFound, "stage not found", nil)
		return nil, nil, false
	}
	if getActorRole(c) != constants.RoleAdmin && supplierOrder.SupplierID != actorID {
		respondError(c, response.CodeNotFound, "stage not found", nil)
		return nil, nil, false
	}
	return stage, supplierOrder, true
}
