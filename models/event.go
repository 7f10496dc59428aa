package models

import (
	"time"
)

// Event is a capacity-bounded volunteer event.
type Event struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Slug        string    `json:"slug" gorm:"index"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description" gorm:"type:text"`
	Category    string    `json:"category" gorm:"index"`
	EventDate   time.Time `json:"event_date" gorm:"not null"`
	Points      int       `json:"points" gorm:"not null;default:0"`
	// MaxVolunteers caps simultaneous active registrations. 0 means unlimited.
	MaxVolunteers int       `json:"max_volunteers" gorm:"not null;default:0"`
	CreatedBy     string    `json:"created_by" gorm:"index"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Calculated fields (not stored in DB). AvailableSlots is -1 for
	// unlimited events and 0 when full, so it always serializes.
	RegisteredVolunteers int64 `json:"registered_volunteers" gorm:"-"`
	AvailableSlots       int64 `json:"available_slots" gorm:"-"`
}

// Registration binds a user to an event. Destroyed on unregister, but an
// APPROVED proof makes it unremovable.
type Registration struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"not null;uniqueIndex:idx_registrations_user_event"`
	EventID      string    `json:"event_id" gorm:"not null;uniqueIndex:idx_registrations_user_event;index"`
	RegisteredAt time.Time `json:"registered_at" gorm:"autoCreateTime"`
}

// EventCategories is the fixed category list events validate against.
var EventCategories = []string{
	"Community Service",
	"Environmental",
	"Health & Awareness",
	"Education & Teaching",
	"Blood Donation",
	"Disaster Relief",
	"Others",
}

func ValidCategory(category string) bool {
	for _, c := range EventCategories {
		if c == category {
			return true
		}
	}
	return false
}
