package admin

import (
	"errors"
	"net/http"

	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/database"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
	"github.com/gin-gonic/gin"
)

type blockRequest struct {
	UserID string `json:"userId" binding:"required"`
	Reason string `json:"reason" binding:"required,max=500"`
}

func listBlockedHandler(blocklist *database.Blocklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"blockedUsers": blocklist.List()})
	}
}

func blockHandler(blocklist *database.Blocklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blockRequest
		if !web.BindJSON(c, &req) {
			return
		}
		id, _ := auth.FromContext(c)

		entry, err := blocklist.Block(req.UserID, req.Reason, id.UserID)
		if err != nil {
			if errors.Is(err, database.ErrBlockedUserExists) {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error":   "AlreadyBlocked",
					"message": err.Error(),
					"status":  http.StatusConflict,
				})
				return
			}
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func unblockHandler(blocklist *database.Blocklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := blocklist.Unblock(c.Param("id")); err != nil {
			if errors.Is(err, database.ErrBlockedUserNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":   "NotFound",
					"message": err.Error(),
					"status":  http.StatusNotFound,
				})
				return
			}
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Usuario desbloqueado"})
	}
}
