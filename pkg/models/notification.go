package models

import "time"

// NotificationType identifies what a notification is about
type NotificationType string

const (
	NotificationTypeNewCoupon NotificationType = "new_coupon"
)

// Notification is delivered to a user's bell
type Notification struct {
	ID         string           `bson:"_id" json:"id"`
	UserID     string           `bson:"userId" json:"userId"`
	Type       NotificationType `bson:"type" json:"type"`
	BusinessID string           `bson:"businessId" json:"businessId"`
	CouponID   string           `bson:"couponId,omitempty" json:"couponId,omitempty"`
	Title      string           `bson:"title" json:"title"`
	Message    string           `bson:"message" json:"message"`
	Read       bool             `bson:"read" json:"read"`
	CreatedAt  time.Time        `bson:"createdAt" json:"createdAt"`
}

// Favorite links a user to a business they follow
type Favorite struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"userId" json:"userId"`
	BusinessID string    `bson:"businessId" json:"businessId"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}
