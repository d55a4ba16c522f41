package public

import (
	handlershared "github.com/sourcebridge/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getActorID(c *gin.Context) (uint, bool) {
	return handlershared.GetActorID(c)
}

func getActorRole(c *gin.Context) string {
	return handlershared.GetActorRole(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	return handlershared.ParseUintParam(c, name)
}
