// Package business serves coupon management for business owners and
// administrators.
package business

import (
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/gin-gonic/gin"
)

// Register adds the management routes. Ownership is checked by the
// coupon service.
func Register(api *gin.RouterGroup, svc *coupons.Service, requireUser gin.HandlerFunc) {
	api.POST("/businesses/:id/coupons", requireUser, createHandler(svc))
	api.GET("/businesses/:id/usages", requireUser, businessUsagesHandler(svc))

	api.PATCH("/coupons/:id", requireUser, updateHandler(svc))
	api.PUT("/coupons/:id/active", requireUser, setActiveHandler(svc))
	api.DELETE("/coupons/:id", requireUser, deleteHandler(svc))
	api.GET("/coupons/:id/usages", requireUser, couponUsagesHandler(svc))
}
