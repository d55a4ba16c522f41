package public

import (
	"strconv"

	handlershared "github.com/sourcebridge/internal/http/handlers/shared"
	"github.com/sourcebridge/internal/http/response"

	"github.com/gin-gonic/gin"
)

func listPagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return handlershared.NormalizePagination(page, pageSize)
}

func buildPagination(page, pageSize int, total int64) response.Pagination {
	return handlershared.BuildPagination(page, pageSize, total)
}
