package public

import (
	"time"

	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/models"

	"github.com/gin-gonic/gin"
)

// trackOrderView 公开追踪视图，不暴露价格与内部标识。
type trackOrderView struct {
	OrderNo          string      `json:"order_no"`
	Status           string      `json:"status"`
	CurrentStage     string      `json:"current_stage,omitempty"`
	StageProgress    models.JSON `json:"stage_progress,omitempty"`
	Abandoned        bool        `json:"abandoned"`
	TargetDate       *time.Time  `json:"target_date,omitempty"`
	ExpectedDelivery *time.Time  `json:"expected_delivery,omitempty"`
	DeliveredAt      *time.Time  `json:"delivered_at,omitempty"`
}

// TrackOrder 凭订单号 + 查询口令公开查询订单摘要
func (h *Handler) TrackOrder(c *gin.Context) {
	order, ok := h.loadTrackedOrder(c)
	if !ok {
		return
	}
	response.Success(c, trackOrderView{
		OrderNo:          order.OrderNo,
		Status:           order.Status,
		CurrentStage:     order.CurrentStage,
		StageProgress:    order.StageProgress,
		Abandoned:        order.Abandoned,
		TargetDate:       order.TargetDate,
		ExpectedDelivery: order.ExpectedDelivery,
		DeliveredAt:      order.DeliveredAt,
	})
}

// TrackOrderStages 凭订单号 + 查询口令公开查询阶段时间线
func (h *Handler) TrackOrderStages(c *gin.Context) {
	order, ok := h.loadTrackedOrder(c)
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

func (h *Handler) loadTrackedOrder(c *gin.Context) (*models.Order, bool) {
	orderNo := c.Param("order_no")
	code := c.Query("code")

	order, err := h.OrderService.GetByTrackingNo(orderNo, code)
	if err != nil {
		respondTrackError(c, err)
		return nil, false
	}
	return order, true
}
