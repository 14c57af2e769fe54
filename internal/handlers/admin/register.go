// Package admin serves administrator-only routes.
package admin

import (
	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/database"
	"github.com/gin-gonic/gin"
)

// Register adds the /admin routes
func Register(api *gin.RouterGroup, blocklist *database.Blocklist, requireUser gin.HandlerFunc) {
	group := api.Group("/admin", requireUser, auth.RequireAdmin())
	{
		group.GET("/blocked-users", listBlockedHandler(blocklist))
		group.POST("/blocked-users", blockHandler(blocklist))
		group.DELETE("/blocked-users/:id", unblockHandler(blocklist))
	}
}
