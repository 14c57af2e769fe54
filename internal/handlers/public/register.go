// Package public serves the coupon catalog, which needs no sign-in.
package public

import (
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/gin-gonic/gin"
)

// Register adds the public catalog routes
func Register(api *gin.RouterGroup, svc *coupons.Service) {
	api.GET("/businesses/:id/coupons", listHandler(svc))
	api.GET("/coupons/:id", getHandler(svc))
	api.GET("/coupons/:id/watch", watchHandler(svc))
}
