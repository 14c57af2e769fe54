package coupons

import (
	"fmt"
	"time"
)

// TopicRoot is the prefix of every coupon event topic
const TopicRoot = "directorio/coupons"

// RedeemedTopic is where a successful redemption is announced
func RedeemedTopic(businessID, couponID string) string {
	return fmt.Sprintf("%s/%s/%s/redeemed", TopicRoot, businessID, couponID)
}

// CreatedTopic is where new coupons of a business are announced
func CreatedTopic(businessID string) string {
	return fmt.Sprintf("%s/%s/created", TopicRoot, businessID)
}

// RedeemedEvent is published after a redemption commits
type RedeemedEvent struct {
	CouponID    string    `json:"couponId"`
	BusinessID  string    `json:"businessId"`
	UserID      string    `json:"userId"`
	Code        string    `json:"code"`
	CurrentUses int       `json:"currentUses"`
	MaxUses     int       `json:"maxUses"`
	UsedAt      time.Time `json:"usedAt"`
}

// CreatedEvent is published after a coupon and its notifications commit
type CreatedEvent struct {
	CouponID      string    `json:"couponId"`
	BusinessID    string    `json:"businessId"`
	Code          string    `json:"code"`
	Title         string    `json:"title"`
	Discount      int       `json:"discount"`
	EndDate       time.Time `json:"endDate"`
	Notifications int       `json:"notifications"`
}
