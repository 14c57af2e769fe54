package events

import (
	"context"
	"fmt"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/mqtt"
	"github.com/goccy/go-json"
)

const requestTimeout = 10 * time.Second

// RedeemRequest redeems either by coupon id or by business and code.
// Token is the user's identity token, usually scanned from their app.
type RedeemRequest struct {
	Token      string `json:"token"`
	CouponID   string `json:"couponId,omitempty"`
	BusinessID string `json:"businessId,omitempty"`
	Code       string `json:"code,omitempty"`
}

// StatusRequest asks for the current state of a coupon
type StatusRequest struct {
	CouponID string `json:"couponId"`
}

// StatusReply is the answer to a StatusRequest
type StatusReply struct {
	CouponID      string `json:"couponId"`
	Code          string `json:"code"`
	IsActive      bool   `json:"isActive"`
	CurrentUses   int    `json:"currentUses"`
	MaxUses       int    `json:"maxUses"`
	RemainingUses int    `json:"remainingUses"`
}

func invalidPayload(err error) error {
	return &coupons.Error{Kind: coupons.KindInvalid, Detail: fmt.Sprintf("Payload inválido: %v", err)}
}

// tokenUser returns the user a terminal token belongs to
func tokenUser(secret []byte, token string) (string, error) {
	if token == "" || len(secret) == 0 {
		return "", &coupons.Error{Kind: coupons.KindUnauthenticated}
	}
	claims, err := auth.ParseToken(secret, token)
	if err != nil {
		return "", &coupons.Error{Kind: coupons.KindUnauthenticated, Detail: "Token inválido o expirado", Err: err}
	}
	return claims.Subject, nil
}

func redeemHandler(svc *coupons.Service, blocked auth.Blocklist, secret []byte) mqtt.RequestHandler {
	return func(payload []byte) (interface{}, error) {
		var req RedeemRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, invalidPayload(err)
		}
		userID, err := tokenUser(secret, req.Token)
		if err != nil {
			return nil, err
		}
		if blocked != nil && blocked.IsBlocked(userID) {
			return nil, &coupons.Error{Kind: coupons.KindForbidden, Detail: "La cuenta del usuario está bloqueada"}
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if req.CouponID != "" {
			return svc.Redeem(ctx, userID, req.CouponID)
		}
		if req.BusinessID == "" || req.Code == "" {
			return nil, &coupons.Error{Kind: coupons.KindInvalid, Detail: "Se requiere couponId o businessId y code"}
		}

		logger.Debug(fmt.Sprintf("Canje por código %s desde terminal", req.Code), "Events")
		return svc.RedeemCode(ctx, userID, req.BusinessID, req.Code)
	}
}

func statusHandler(svc *coupons.Service) mqtt.RequestHandler {
	return func(payload []byte) (interface{}, error) {
		var req StatusRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, invalidPayload(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		c, err := svc.Get(ctx, req.CouponID)
		if err != nil {
			return nil, err
		}
		return StatusReply{
			CouponID:      c.ID,
			Code:          c.Code,
			IsActive:      c.IsActive,
			CurrentUses:   c.CurrentUses,
			MaxUses:       c.MaxUses,
			RemainingUses: c.RemainingUses(),
		}, nil
	}
}
