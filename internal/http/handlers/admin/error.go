package admin

import (
	"errors"

	handlershared "github.com/sourcebridge/internal/http/handlers/shared"
	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
)

type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

var adminOrderErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrSupplierNotFound, code: response.CodeNotFound, msg: "supplier not found"},
	{target: service.ErrSupplierOrderNotFound, code: response.CodeNotFound, msg: "supplier order not found"},
	{target: service.ErrSupplierAssigned, code: response.CodeBadRequest, msg: "supplier already assigned"},
	{target: service.ErrInvalidOrderInput, code: response.CodeBadRequest, msg: "invalid order input"},
	{target: service.ErrInvalidTransition, code: response.CodeBadRequest, msg: "transition not allowed"},
	{target: service.ErrOrderAbandoned, code: response.CodeBadRequest, msg: "order is abandoned"},
	{target: service.ErrStoreUnavailable, code: response.CodeInternal, msg: "storage unavailable"},
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondAdminOrderError(c *gin.Context, err error) {
	for _, rule := range adminOrderErrorRules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, response.CodeInternal, "order operation failed", err)
}
