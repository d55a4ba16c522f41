package shared

import (
	"strconv"

	"github.com/sourcebridge/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "unauthorized", nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, "invalid actor id", nil)
			return 0, false
		}
		return uint(v), true
	case float64:
		if v < 0 {
			RespondError(c, response.CodeBadRequest, "invalid actor id", nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, "invalid actor id type", nil)
		return 0, false
	}
}

// GetActorID 读取鉴权中间件写入的操作者 ID
func GetActorID(c *gin.Context) (uint, bool) {
	return GetContextUint(c, "actor_id")
}

// GetActorRole 读取鉴权中间件写入的操作者角色
func GetActorRole(c *gin.Context) string {
	value, ok := c.Get("actor_role")
	if !ok {
		return ""
	}
	if role, ok := value.(string); ok {
		return role
	}
	return ""
}

// ParseUintParam 解析路径中的 uint 参数，非法时响应 400。
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		RespondError(c, response.CodeBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return uint(value), true
}
