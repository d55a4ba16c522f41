package admin

import (
	"strconv"
	"time"

	handlershared "github.com/sourcebridge/internal/http/handlers/shared"
	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/repository"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ListOrders 按条件查询订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	filter := repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   c.Query("status"),
		OrderNo:  c.Query("order_no"),
	}
	if raw := c.Query("buyer_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.BuyerID = uint(id)
		}
	}
	if raw := c.Query("supplier_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.SupplierID = uint(id)
		}
	}
	if raw := c.Query("abandoned"); raw != "" {
		abandoned := raw == "true" || raw == "1"
		filter.Abandoned = &abandoned
	}

	orders, total, err := h.OrderService.List(filter)
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.SuccessWithPage(c, orders, handlershared.BuildPagination(page, pageSize, total))
}

// GetOrder 查询订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetByID(orderID)
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// GetOrderHistory 查询订单状态变更历史
func (h *Handler) GetOrderHistory(c *gin.Context) {
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	history, err := h.WorkflowService.History(orderID)
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, history)
}

type updateQuoteRequest struct {
	BuyerPrice       models.Money `json:"buyer_price" binding:"required"`
	SupplierPrice    models.Money `json:"supplier_price" binding:"required"`
	ExpectedDelivery *time.Time   `json:"expected_delivery"`
}

// UpdateQuote 提交或修改报价
func (h *Handler) UpdateQuote(c *gin.Context) {
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req updateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.OrderService.UpdateQuote(orderID, service.QuoteInput{
		BuyerPrice:       req.BuyerPrice,
		SupplierPrice:    req.SupplierPrice,
		ExpectedDelivery: req.ExpectedDelivery,
	})
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}

type assignSupplierRequest struct {
	SupplierID uint   `json:"supplier_id" binding:"required"`
	Notes      string `json:"notes"`
}

// AssignSupplier 把订单分配给供应商
func (h *Handler) AssignSupplier(c *gin.Context) {
	actorID, ok := handlershared.GetActorID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req assignSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.OrderService.AssignSupplier(c.Request.Context(), service.AssignSupplierInput{
		OrderID:    orderID,
		SupplierID: req.SupplierID,
		Notes:      req.Notes,
		ActorID:    actorID,
	})
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}

type transitionRequest struct {
	To   string `json:"to" binding:"required"`
	Note string `json:"note"`
}

// Transition 按工作流规则推进订单状态
func (h *Handler) Transition(c *gin.Context) {
	actorID, ok := handlershared.GetActorID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.WorkflowService.Transition(c.Request.Context(), service.TransitionInput{
		OrderID:   orderID,
		To:        req.To,
		ActorRole: handlershared.GetActorRole(c),
		ActorID:   actorID,
		Note:      req.Note,
	})
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// ForceStatus 绕过工作流规则强制设置状态，变更会被审计标记
func (h *Handler) ForceStatus(c *gin.Context) {
	actorID, ok := handlershared.GetActorID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.WorkflowService.ForceStatus(c.Request.Context(), service.ForceStatusInput{
		OrderID: orderID,
		To:      req.To,
		ActorID: actorID,
		Note:    req.Note,
	})
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}

type noteRequest struct {
	Note string `json:"note"`
}

// AbandonOrder 放弃订单
func (h *Handler) AbandonOrder(c *gin.Context) {
	actorID, ok := handlershared.GetActorID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.WorkflowService.Abandon(c.Request.Context(), orderID, handlershared.GetActorRole(c), actorID, req.Note)
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// ReinstateOrder 恢复已放弃的订单
func (h *Handler) ReinstateOrder(c *gin.Context) {
	actorID, ok := handlershared.GetActorID(c)
	if !ok {
		return
	}
	orderID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.WorkflowService.Reinstate(c.Request.Context(), orderID, actorID, req.Note)
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, order)
}
