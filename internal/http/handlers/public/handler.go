package public

import "github.com/sourcebridge/internal/provider"

// Handler 公开与业务方（买家/供应商）接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
