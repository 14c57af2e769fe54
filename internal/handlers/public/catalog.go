package public

import (
	"net/http"

	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
	"github.com/gin-gonic/gin"
)

// CouponView is a coupon as shown to clients
type CouponView struct {
	*models.Coupon
	RemainingUses int `json:"remainingUses"`
}

// NewCouponView wraps c for rendering
func NewCouponView(c *models.Coupon) CouponView {
	return CouponView{Coupon: c, RemainingUses: c.RemainingUses()}
}

// listHandler lists the coupons of a business. Inactive coupons are
// only shown to whoever manages the business.
func listHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessID := c.Param("id")

		list, err := svc.ListByBusiness(c.Request.Context(), businessID)
		if err != nil {
			web.RespondError(c, err)
			return
		}

		manager := false
		if id, ok := auth.FromContext(c); ok {
			manager = id.Actor().CanManage(businessID)
		}

		views := make([]CouponView, 0, len(list))
		for _, coupon := range list {
			if !coupon.IsActive && !manager {
				continue
			}
			views = append(views, NewCouponView(coupon))
		}

		c.JSON(http.StatusOK, gin.H{"coupons": views})
	}
}

func getHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		coupon, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			web.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, NewCouponView(coupon))
	}
}
