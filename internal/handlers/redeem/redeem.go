package redeem

import (
	"net/http"

	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
	"github.com/gin-gonic/gin"
)

type redeemCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func redeemed(c *gin.Context, rec *models.UsedCoupon) {
	c.JSON(http.StatusCreated, gin.H{
		"message":    "¡Cupón canjeado!",
		"usedCoupon": rec,
	})
}

// redeemHandler redeems a coupon by id for the caller
func redeemHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := auth.FromContext(c)

		rec, err := svc.Redeem(c.Request.Context(), id.UserID, c.Param("id"))
		if err != nil {
			web.RespondError(c, err)
			return
		}
		redeemed(c, rec)
	}
}

// redeemCodeHandler redeems the coupon a customer typed at a business
func redeemCodeHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := auth.FromContext(c)

		var req redeemCodeRequest
		if !web.BindJSON(c, &req) {
			return
		}

		rec, err := svc.RedeemCode(c.Request.Context(), id.UserID, c.Param("id"), req.Code)
		if err != nil {
			web.RespondError(c, err)
			return
		}
		redeemed(c, rec)
	}
}

func historyHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := auth.FromContext(c)

		history, err := svc.History(c.Request.Context(), id.UserID)
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"usedCoupons": history})
	}
}
