package models

import (
	"time"
)

// ProofStatus is the review state of a submitted proof.
type ProofStatus string

const (
	ProofStatusPending  ProofStatus = "PENDING"
	ProofStatusApproved ProofStatus = "APPROVED"
	ProofStatusRejected ProofStatus = "REJECTED"
)

// Proof is evidence of attendance submitted against a registration.
// PENDING -> APPROVED is terminal. PENDING -> REJECTED keeps the row for
// audit; the user may submit a fresh proof afterwards.
type Proof struct {
	ID      string `json:"id" gorm:"primaryKey"`
	UserID  string `json:"user_id" gorm:"not null;index:idx_proofs_user_event"`
	EventID string `json:"event_id" gorm:"not null;index:idx_proofs_user_event;index"`
	// ProofURL is the stored artifact reference (R2/CDN or /uploads path).
	ProofURL    string      `json:"proof_url" gorm:"type:text"`
	Status      ProofStatus `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index"`
	SubmittedAt time.Time   `json:"submitted_at" gorm:"autoCreateTime"`
	ReviewedAt  *time.Time  `json:"reviewed_at,omitempty"`
	ReviewedBy  string      `json:"reviewed_by,omitempty"`
	// PointsAwarded is snapshotted from Event.Points at approval time and
	// never re-read from the event afterwards.
	PointsAwarded   int    `json:"points_awarded" gorm:"not null;default:0"`
	RejectionReason string `json:"rejection_reason,omitempty" gorm:"type:text"`
	CertificateID   string `json:"certificate_id,omitempty" gorm:"index"`
}
