package models

import (
	"time"
)

// Role of a portal user. Roles are assigned server-side by the auth service;
// the portal never trusts a role claimed by the caller.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// VolunteerUser is a local snapshot of identity data needed by the portal.
// Owned and managed solely by the volunteer portal service.
// Populated via sync worker from the auth service's user directory.
type VolunteerUser struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"` // the auth service's user UUID
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"index" json:"email,omitempty"`
	Role      Role      `gorm:"type:varchar(16);not null;default:'USER'" json:"role"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// TotalPoints is a cached sum of points_awarded over this user's APPROVED
	// proofs. Updated incrementally on approval; reconciled by the leaderboard
	// recalculation job. The approved proof set is the source of truth.
	TotalPoints int `gorm:"not null;default:0" json:"total_points"`
}

// MirroredIdentity matches the JSON shape returned by the auth service's
// directory endpoint. Consumed by the user sync worker only.
type MirroredIdentity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
