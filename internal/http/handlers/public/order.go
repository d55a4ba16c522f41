package public

import (
	"time"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/repository"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
)

type createOrderRequest struct {
	ProductType  string     `json:"product_type" binding:"required"`
	Quantity     int        `json:"quantity" binding:"required,gt=0"`
	FactoryRef   string     `json:"factory_ref"`
	TargetDate   *time.Time `json:"target_date"`
	TrackingCode string     `json:"tracking_code"`
}

// CreateOrder 买家创建询价订单
func (h *Handler) CreateOrder(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	order, err := h.OrderService.CreateOrder(service.CreateOrderInput{
		BuyerID:      actorID,
		ProductType:  req.ProductType,
		Quantity:     req.Quantity,
		FactoryRef:   req.FactoryRef,
		TargetDate:   req.TargetDate,
		TrackingCode: req.TrackingCode,
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, order)
}

// ListMyOrders 买家查询自己的订单列表
func (h *Handler) ListMyOrders(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	page, pageSize := listPagination(c)

	orders, total, err := h.OrderService.List(repository.OrderListFilter{
		Page:     page,
		PageSize: pageSize,
		BuyerID:  actorID,
		Status:   c.Query("status"),
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.SuccessWithPage(c, orders, buildPagination(page, pageSize, total))
}

// GetOrder 买家查询订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	response.Success(c, order)
}

// GetOrderStages 买家查询订单的生产阶段时间线
func (h *Handler) GetOrderStages(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	stages, err := h.StageService.ListByOrder(c.Request.Context(), order.ID)
	if err != nil {
		respondStageError(c, err)
		return
	}
	response.Success(c, stages)
}

// GetOrderHistory 买家查询订单状态变更历史
func (h *Handler) GetOrderHistory(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	history, err := h.WorkflowService.History(order.ID)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, history)
}

type transitionNoteRequest struct {
	Note string `json:"note"`
}

// AcceptQuote 买家接受报价
func (h *Handler) AcceptQuote(c *gin.Context) {
	h.buyerTransition(c, constants.OrderStatusQuoteAccepted)
}

// CompleteOrder 买家确认收货完成订单
func (h *Handler) CompleteOrder(c *gin.Context) {
	h.buyerTransition(c, constants.OrderStatusCompleted)
}

func (h *Handler) buyerTransition(c *gin.Context, to string) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	var req transitionNoteRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.WorkflowService.Transition(c.Request.Context(), service.TransitionInput{
		OrderID:   order.ID,
		To:        to,
		ActorRole: getActorRole(c),
		ActorID:   actorID,
		Note:      req.Note,
	})
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, updated)
}

// AbandonOrder 买家放弃订单
func (h *Handler) AbandonOrder(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	var req transitionNoteRequest
	_ = c.ShouldBindJSON(&req)

	updated, err := h.WorkflowService.Abandon(c.Request.Context(), order.ID, getActorRole(c), actorID, req.Note)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	response.Success(c, updated)
}

// loadOwnedOrder 加载订单并校验归属：买家只能访问自己的订单，管理员不受限。
func (h *Handler) loadOwnedOrder(c *gin.Context) (*models.Order, bool) {
	actorID, ok := getActorID(c)
	if !ok {
		return nil, false
	}
	orderID, ok := parseUintParam(c, "id")
	if !ok {
		return nil, false
	}
	order, err := h.OrderService.GetByID(orderID)
	if err != nil {
		respondOrderError(c, err)
		return nil, false
	}
	if getActorRole(c) != constants.RoleAdmin && order.BuyerID != actorID {
		respondError(c, response.CodeNotFound, "order not found", nil)
		return nil, false
	}
	return order, true
}
