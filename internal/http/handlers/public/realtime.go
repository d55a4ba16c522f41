package public

import (
	"io"

	"github.com/sourcebridge/internal/constants"
	"github.com/sourcebridge/internal/http/response"

	"github.com/gin-gonic/gin"
)

// WatchSupplierOrder 订阅供应商订单的阶段变更，按 SSE 推送通知
func (h *Handler) WatchSupplierOrder(c *gin.Context) {
	actorID, ok := getActorID(c)
	if !ok {
		return
	}
	supplierOrderID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	supplierOrder, err := h.SupplierOrderRepo.GetByID(supplierOrderID)
	if err != nil {
		respondError(c, response.CodeInternal, "storage unavailable", err)
		return
	}
	if supplierOrder == nil {
		respondError(c, response.CodeNotFound, "supplier order not found", nil)
		return
	}
	if !h.canWatch(c, actorID, supplierOrder.SupplierID, supplierOrder.OrderID) {
		respondError(c, response.CodeNotFound, "supplier order not found", nil)
		return
	}

	observer, err := h.Hub.Watch(c.Request.Context(), supplierOrderID)
	if err != nil {
		respondError(c, response.CodeInternal, "subscription unavailable", err)
		return
	}
	defer h.Hub.Unwatch(observer)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case notification, open := <-observer.Notifications():
			if !open {
				return false
			}
			c.SSEvent("notification", notification)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *Handler) canWatch(c *gin.Context, actorID, supplierID, orderID uint) bool {
	switch getActorRole(c) {
	case constants.RoleAdmin:
		return true
	case constants.RoleSupplier:
		return supplierID == actorID
	case constants.RoleBuyer:
		order, err := h.OrderRepo.GetByID(orderID)
		if err != nil || order == nil {
			return false
		}
		return order.BuyerID == actorID
	default:
		return false
	}
}
