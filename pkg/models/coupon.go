package models

import (
	"strings"
	"time"
)

// Collection names used by the coupon subsystem
const (
	CouponsCollection       = "coupons"
	UsedCouponsCollection   = "used_coupons"
	NotificationsCollection = "notifications"
	FavoritesCollection     = "favorites"
	BlockedUsersCollection  = "blocked_users"
)

// Coupon is a business-issued, capped, time-windowed discount code
type Coupon struct {
	ID          string    `bson:"_id" json:"id"`
	BusinessID  string    `bson:"businessId" json:"businessId"`
	Code        string    `bson:"code" json:"code"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Discount    int       `bson:"discount" json:"discount"`       // porcentaje 1..100
	MaxUses     int       `bson:"maxUses" json:"maxUses"`         // tope total de canjes
	CurrentUses int       `bson:"currentUses" json:"currentUses"` // solo lo modifica el canje
	StartDate   time.Time `bson:"startDate" json:"startDate"`
	EndDate     time.Time `bson:"endDate" json:"endDate"`
	IsActive    bool      `bson:"isActive" json:"isActive"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	CreatedBy   string    `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// RemainingUses returns how many redemptions are still available
func (c *Coupon) RemainingUses() int {
	if c.CurrentUses >= c.MaxUses {
		return 0
	}
	return c.MaxUses - c.CurrentUses
}

// NormalizeCode returns the canonical form of a human-entered coupon code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsedCoupon is the permanent record of one redemption.
// Code, Title and Discount are snapshots taken at redemption time.
type UsedCoupon struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"userId" json:"userId"`
	CouponID   string    `bson:"couponId" json:"couponId"`
	BusinessID string    `bson:"businessId" json:"businessId"`
	Code       string    `bson:"code" json:"code"`
	Title      string    `bson:"title" json:"title"`
	Discount   int       `bson:"discount" json:"discount"`
	UsedAt     time.Time `bson:"usedAt" json:"usedAt"`
	ExpiresAt  time.Time `bson:"expiresAt" json:"expiresAt"`
}
