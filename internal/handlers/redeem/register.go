// Package redeem serves coupon redemption and the signed-in user's
// redemption history.
package redeem

import (
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/gin-gonic/gin"
)

// Register adds the redemption routes. requireUser guards all of them.
func Register(api *gin.RouterGroup, svc *coupons.Service, requireUser gin.HandlerFunc) {
	api.POST("/coupons/:id/redeem", requireUser, redeemHandler(svc))
	api.POST("/businesses/:id/redeem", requireUser, redeemCodeHandler(svc))
	api.GET("/me/coupons", requireUser, historyHandler(svc))
}
