package business

import (
	"net/http"

	"github.com/PancyStudios/DirectorioGo/internal/handlers/public"
	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
	"github.com/gin-gonic/gin"
)

type setActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

func actor(c *gin.Context) coupons.Actor {
	id, _ := auth.FromContext(c)
	return id.Actor()
}

func createHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in coupons.CreateInput
		if !web.BindJSON(c, &in) {
			return
		}

		created, err := svc.Create(c.Request.Context(), actor(c), c.Param("id"), in)
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, public.NewCouponView(created))
	}
}

func updateHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in coupons.UpdateInput
		if !web.BindJSON(c, &in) {
			return
		}

		updated, err := svc.Update(c.Request.Context(), actor(c), c.Param("id"), in)
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, public.NewCouponView(updated))
	}
}

func setActiveHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setActiveRequest
		if !web.BindJSON(c, &req) {
			return
		}

		updated, err := svc.SetActive(c.Request.Context(), actor(c), c.Param("id"), *req.IsActive)
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, public.NewCouponView(updated))
	}
}

func deleteHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cupón eliminado"})
	}
}

func couponUsagesHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		usages, err := svc.CouponHistory(c.Request.Context(), actor(c), c.Param("id"))
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"usages": usages})
	}
}

func businessUsagesHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		usages, err := svc.BusinessHistory(c.Request.Context(), actor(c), c.Param("id"))
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"usages": usages})
	}
}
