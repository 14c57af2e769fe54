package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/gin-gonic/gin"
)

// StatusFor maps an operation error to its HTTP status
func StatusFor(err error) int {
	switch coupons.KindOf(err) {
	case coupons.KindNotFound:
		return http.StatusNotFound
	case coupons.KindUnauthenticated:
		return http.StatusUnauthorized
	case coupons.KindForbidden:
		return http.StatusForbidden
	case coupons.KindInvalid:
		return http.StatusBadRequest
	case coupons.KindTransactionConflict:
		return http.StatusServiceUnavailable
	case coupons.KindInactive, coupons.KindLimitReached, coupons.KindNotYetStarted,
		coupons.KindExpired, coupons.KindAlreadyUsed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as a JSON error body. Unknown errors are
// logged and hidden from the client.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := coupons.KindOf(err)

	if kind == 0 {
		logger.Error(fmt.Sprintf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err), "WebServer")
		c.AbortWithStatusJSON(status, gin.H{
			"error":   "Internal Server Error",
			"message": "Ocurrió un error inesperado.",
			"status":  status,
		})
		return
	}

	body := gin.H{
		"error":   kind.String(),
		"message": err.Error(),
		"status":  status,
	}

	var typed *coupons.Error
	if errors.As(err, &typed) {
		if typed.Kind == coupons.KindLimitReached {
			body["maxUses"] = typed.MaxUses
		}
		if typed.Field != "" {
			body["field"] = typed.Field
		}
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, body)
}

// BindJSON decodes the request body into dst, answering 400 on failure
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, &coupons.Error{Kind: coupons.KindInvalid, Detail: "Cuerpo de la solicitud inválido"})
		return false
	}
	return true
}
