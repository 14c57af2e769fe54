// Package auth verifies the bearer tokens issued by the directory's
// identity provider and exposes the caller's identity to handlers.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token
const (
	RoleUser     = "user"
	RoleBusiness = "business"
	RoleAdmin    = "admin"
)

const identityKey = "auth.identity"

// Claims is the token payload. Subject holds the user id.
type Claims struct {
	BusinessID string `json:"businessId,omitempty"`
	Role       string `json:"role"`

	jwt.RegisteredClaims
}

// Config holds the signing settings
type Config struct {
	Secret         []byte
	ExpireDuration time.Duration
}

// Identity is the authenticated caller
type Identity struct {
	UserID     string
	BusinessID string
	Role       string
}

// Actor converts the identity for coupon management checks
func (i *Identity) Actor() coupons.Actor {
	return coupons.Actor{
		UserID:     i.UserID,
		BusinessID: i.BusinessID,
		Admin:      i.Role == RoleAdmin,
	}
}

// IsAdmin reports whether the caller is an administrator
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Blocklist tells whether a user is barred from the API
type Blocklist interface {
	IsBlocked(userID string) bool
}

// NewToken signs a token for userID
func NewToken(cfg Config, userID, businessID, role string) (string, time.Time, error) {
	now := time.Now()
	expireAt := now.Add(cfg.ExpireDuration)

	claims := &Claims{
		BusinessID: businessID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expireAt, nil
}

// ParseToken validates tokenStr and returns its claims
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Middleware parses the bearer token when present and stores the
// identity. It never rejects; RequireUser does.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			tok = c.Query("token")
		}
		if tok == "" || len(secret) == 0 {
			c.Next()
			return
		}

		claims, err := ParseToken(secret, tok)
		if err == nil {
			c.Set(identityKey, &Identity{
				UserID:     claims.Subject,
				BusinessID: claims.BusinessID,
				Role:       claims.Role,
			})
		} else if errors.Is(err, jwt.ErrTokenExpired) {
			c.Set("auth.expired", true)
		}
		c.Next()
	}
}

// FromContext returns the identity stored by Middleware
func FromContext(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

func abort(c *gin.Context, status int, kind coupons.Kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   kind.String(),
		"message": message,
		"status":  status,
	})
}

// RequireUser rejects anonymous and blocked callers
func RequireUser(blocked Blocklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok {
			message := "Debes iniciar sesión"
			if c.GetBool("auth.expired") {
				message = "Tu sesión expiró, inicia sesión de nuevo"
			}
			abort(c, http.StatusUnauthorized, coupons.KindUnauthenticated, message)
			return
		}
		if blocked != nil && blocked.IsBlocked(id.UserID) {
			abort(c, http.StatusForbidden, coupons.KindForbidden, "Tu cuenta está bloqueada")
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers that are not administrators. It must
// run after RequireUser.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := FromContext(c)
		if !ok || !id.IsAdmin() {
			abort(c, http.StatusForbidden, coupons.KindForbidden, "No tienes permisos para esta acción")
			return
		}
		c.Next()
	}
}
