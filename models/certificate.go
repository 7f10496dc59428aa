package models

import (
	"time"
)

// Certificate is the publicly verifiable record minted when a proof is
// approved. The ID is derived from the proof ID, so issuing twice for the
// same proof always yields the same identity. Regeneration re-renders the
// document but never touches ID, IssuedDate or PointsAwarded.
type Certificate struct {
	ID            string    `json:"certificate_id" gorm:"primaryKey"` // e.g. CERT-3F82A1C09B
	ProofID       string    `json:"proof_id" gorm:"not null;uniqueIndex"`
	UserID        string    `json:"user_id" gorm:"index"`
	EventID       string    `json:"event_id" gorm:"index"`
	VolunteerName string    `json:"volunteer_name" gorm:"not null"`
	EventTitle    string    `json:"event_title" gorm:"not null"`
	PointsAwarded int       `json:"points_awarded" gorm:"not null"`
	IssuedDate    time.Time `json:"issued_date" gorm:"not null"`
	// CertificateURL points at the rendered document in the artifact store.
	CertificateURL string    `json:"certificate_url" gorm:"type:text"`
	RenderedAt     time.Time `json:"rendered_at"`
}

// VerificationResult is the full public response of the verify endpoint.
// Nothing beyond these fields may leak through the unauthenticated surface.
type VerificationResult struct {
	IsValid       bool       `json:"is_valid"`
	CertificateID string     `json:"certificate_id,omitempty"`
	VolunteerName string     `json:"volunteer_name,omitempty"`
	EventTitle    string     `json:"event_title,omitempty"`
	PointsAwarded int        `json:"points_awarded,omitempty"`
	IssuedDate    *time.Time `json:"issued_date,omitempty"`
}

// LeaderboardEntry is a derived row, never persisted.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	TotalPoints int    `json:"total_points"`
}
