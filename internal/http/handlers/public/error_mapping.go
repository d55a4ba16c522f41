package public

import (
	"errors"

	"github.com/sourcebridge/internal/http/response"
	"github.com/sourcebridge/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var orderCommonErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrInvalidOrderInput, code: response.CodeBadRequest, msg: "invalid order input"},
	{target: service.ErrOrderAbandoned, code: response.CodeBadRequest, msg: "order is abandoned"},
	{target: service.ErrInvalidTransition, code: response.CodeBadRequest, msg: "transition not allowed"},
	{target: service.ErrStoreUnavailable, code: response.CodeInternal, msg: "storage unavailable"},
}

var stageCommonErrorRules = []mappedHandlerError{
	{target: service.ErrSupplierOrderNotFound, code: response.CodeNotFound, msg: "supplier order not found"},
	{target: service.ErrStageNotFound, code: response.CodeNotFound, msg: "stage not found"},
	{target: service.ErrDuplicateStage, code: response.CodeBadRequest, msg: "stage number already exists"},
	{target: service.ErrInvalidStageInput, code: response.CodeBadRequest, msg: "invalid stage input"},
	{target: service.ErrStoreUnavailable, code: response.CodeInternal, msg: "storage unavailable"},
}

// 公开追踪口令校验失败时统一返回 404，避免暴露订单是否存在。
var trackErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrTrackingCodeDenied, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrStoreUnavailable, code: response.CodeInternal, msg: "storage unavailable"},
}

func respondOrderError(c *gin.Context, err error) {
	respondWithMappedError(c, err, orderCommonErrorRules, response.CodeInternal, "order operation failed")
}

func respondStageError(c *gin.Context, err error) {
	respondWithMappedError(c, err, stageCommonErrorRules, response.CodeInternal, "stage operation failed")
}

func respondTrackError(c *gin.Context, err error) {
	respondWithMappedError(c, err, trackErrorRules, response.CodeInternal, "tracking lookup failed")
}
