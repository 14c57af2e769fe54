package models

import "time"

// BlockedUser is an account that may not use the authenticated API
type BlockedUser struct {
	ID        string    `bson:"_id" json:"id"`              // ID del usuario
	Reason    string    `bson:"reason" json:"reason"`       // Razón del bloqueo
	CreatedAt time.Time `bson:"created_at" json:"createdAt"` // Cuándo se creó
	CreatedBy string    `bson:"created_by" json:"createdBy"` // ID del admin que lo bloqueó
}
