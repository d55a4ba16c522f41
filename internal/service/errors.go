package service

import "errors"

// 工作流与阶段跟踪的确定性业务错误，调用方可直接依赖 errors.Is 判定
var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrSupplierNotFound      = errors.New("supplier not found")
	ErrSupplierOrderNotFound = errors.New("supplier order not found")
	ErrStageNotFound         = errors.New("stage not found")

	ErrInvalidTransition  = errors.New("invalid workflow transition")
	ErrOrderAbandoned     = errors.New("order is abandoned")
	ErrDuplicateStage     = errors.New("duplicate stage number")
	ErrInvalidStageInput  = errors.New("invalid stage input")
	ErrInvalidOrderInput  = errors.New("invalid order input")
	ErrSupplierAssigned   = errors.New("supplier already assigned")
	ErrTrackingCodeDenied = errors.New("tracking code mismatch")
)

// 瞬态基础设施错误：调用方可重试，服务层不自动重试写入
var (
	ErrStoreUnavailable = errors.New("store unavailable")
)
