package admin

import (
	handlershared "github.com/sourcebridge/internal/http/handlers/shared"
	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/models"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
)

type createSupplierRequest struct {
	Name          string      `json:"name" binding:"required"`
	ContactPerson string      `json:"contact_person"`
	ContactEmail  string      `json:"contact_email"`
	Region        string      `json:"region"`
	Capabilities  models.JSON `json:"capabilities"`
	Verified      bool        `json:"verified"`
}

// CreateSupplier 创建供应商
func (h *Handler) CreateSupplier(c *gin.Context) {
	var req createSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	supplier, err := h.SupplierService.Create(service.CreateSupplierInput{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		ContactEmail:  req.ContactEmail,
		Region:        req.Region,
		Capabilities:  req.Capabilities,
		Verified:      req.Verified,
	})
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, supplier)
}

// ListSuppliers 列出已验厂供应商
func (h *Handler) ListSuppliers(c *gin.Context) {
	suppliers, err := h.SupplierService.ListVerified()
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, suppliers)
}

// ListSupplierOrders 列出供应商的执行订单
func (h *Handler) ListSupplierOrders(c *gin.Context) {
	supplierID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	supplierOrders, err := h.SupplierService.ListOrders(supplierID)
	if err != nil {
		respondAdminOrderError(c, err)
		return
	}
	response.Success(c, supplierOrders)
}
