package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"volunteer-portal/models"
	"volunteer-portal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errProofNotPending marks the loser of a concurrent approve/reject: the
// conditional update matched zero rows because the proof already left PENDING.
var errProofNotPending = errors.New("proof is not pending")

const artifactStoreAttempts = 3

type ProofService struct {
	DB           *gorm.DB
	Certificates *CertificateService
}

func NewProofService(db *gorm.DB, certificates *CertificateService) *ProofService {
	return &ProofService{DB: db, Certificates: certificates}
}

// ProofView is the response shape for proof listings and review actions.
type ProofView struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	UserName        string             `json:"user_name"`
	EventID         string             `json:"event_id"`
	EventTitle      string             `json:"event_title"`
	EventCategory   string             `json:"event_category"`
	ProofURL        string             `json:"proof_url"`
	Status          models.ProofStatus `json:"status"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	ReviewedAt      *time.Time         `json:"reviewed_at,omitempty"`
	PointsAwarded   int                `json:"points_awarded"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	CertificateID   string             `json:"certificate_id,omitempty"`
}

// proofListQuery joins user and event names and orders review-queue style:
// PENDING first, then APPROVED, then REJECTED; newest first within a group.
// Admins act on the head of the list, so the ordering is part of the contract.
const proofListQuery = `
    SELECT
        p.id, p.user_id, p.event_id, p.proof_url, p.status,
        p.submitted_at, p.reviewed_at, p.points_awarded,
        p.rejection_reason, p.certificate_id,
        COALESCE(u.name, '') AS user_name,
        COALESCE(e.title, '') AS event_title,
        COALESCE(e.category, '') AS event_category
    FROM proofs p
    LEFT JOIN volunteer_users u ON p.user_id = u.id
    LEFT JOIN events e ON p.event_id = e.id
    %s
    ORDER BY
        CASE p.status WHEN 'PENDING' THEN 0 WHEN 'APPROVED' THEN 1 ELSE 2 END,
        p.submitted_at DESC
`

// SubmitProof accepts a multipart proof file for one of the caller's
// registrations. The artifact is committed to the store before the proof row
// is created, so a storage timeout never leaves a half-created proof.
func (s *ProofService) SubmitProof(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	eventID := c.Params("event_id")

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error fetching event"})
	}

	var reg models.Registration
	if err := s.DB.Where("user_id = ? AND event_id = ?", userID, eventID).
		First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "not registered for this event",
				"code":  "not_registered",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	// One live proof per registration: a PENDING or APPROVED proof blocks a
	// new submission. REJECTED proofs stay behind for audit.
	var existing []models.Proof
	if err := s.DB.Where("user_id = ? AND event_id = ?", userID, eventID).
		Find(&existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	for _, p := range existing {
		switch p.Status {
		case models.ProofStatusApproved:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "proof already approved for this event",
				"code":  "already_completed",
			})
		case models.ProofStatusPending:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "proof is pending review for this event",
				"code":  "duplicate_pending",
			})
		}
	}

	file, err := c.FormFile("file")
	if err != nil || file.Size == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "proof file is required", "code": "validation"})
	}

	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("proofs/%s/%s%s", eventID, uuid.NewString(), ext)

	var proofURL string
	for attempt := 1; attempt <= artifactStoreAttempts; attempt++ {
		proofURL, err = utils.StoreArtifact(file, key)
		if err == nil {
			break
		}
		log.Printf("artifact store attempt %d/%d failed: %v", attempt, artifactStoreAttempts, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "artifact store unavailable",
			"code":  "unavailable",
		})
	}

	proof := models.Proof{
		ID:       uuid.NewString(),
		UserID:   userID,
		EventID:  eventID,
		ProofURL: proofURL,
		Status:   models.ProofStatusPending,
	}
	if err := s.DB.Create(&proof).Error; err != nil {
		log.Printf("DB Error creating proof: %v", err)
		// The orphaned artifact is cleaned up so retries don't accumulate blobs.
		if delErr := utils.DeleteArtifact(key); delErr != nil {
			log.Printf("orphan artifact cleanup failed for %s: %v", key, delErr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create proof"})
	}

	return c.JSON(proof)
}

// GetUserProofs lists the caller's proofs in review-queue order.
func (s *ProofService) GetUserProofs(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var views []ProofView
	query := fmt.Sprintf(proofListQuery, "WHERE p.user_id = ?")
	if err := s.DB.Raw(query, userID).Scan(&views).Error; err != nil {
		log.Printf("DB Error fetching user proofs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch proofs"})
	}
	return c.JSON(views)
}

// GetAllProofs lists every proof in review-queue order (Admin only).
func (s *ProofService) GetAllProofs(c *fiber.Ctx) error {
	var views []ProofView
	query := fmt.Sprintf(proofListQuery, "")
	if err := s.DB.Raw(query).Scan(&views).Error; err != nil {
		log.Printf("DB Error fetching proofs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch proofs"})
	}
	return c.JSON(views)
}

// DeleteProof lets the submitting user withdraw a proof while it is still
// PENDING. Reviewed proofs are audit history and can never be deleted.
func (s *ProofService) DeleteProof(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	proofID := c.Params("id")

	var proof models.Proof
	if err := s.DB.First(&proof, "id = ?", proofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "proof not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	if proof.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "you can only delete your own proofs",
			"code":  "forbidden",
		})
	}

	// The PENDING guard lives in the DELETE itself: a concurrent approval that
	// commits between the read above and this statement leaves zero rows
	// affected instead of erasing a reviewed proof.
	result := s.DB.Where("id = ? AND user_id = ? AND status = ?", proofID, userID, models.ProofStatusPending).
		Delete(&models.Proof{})
	if result.Error != nil {
		log.Printf("DB Error deleting proof: %v", result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete proof"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only pending proofs can be deleted",
			"code":  "forbidden",
		})
	}

	if key := utils.ArtifactKeyFromURL(proof.ProofURL); key != "" {
		if err := utils.DeleteArtifact(key); err != nil {
			log.Printf("artifact cleanup failed for %s: %v", key, err)
		}
	}

	return c.JSON(fiber.Map{"message": "proof deleted"})
}

// ApproveProof transitions a PENDING proof to APPROVED, snapshots the event's
// point value, mints the certificate and bumps the user's cached total, all
// in one transaction. The PENDING guard in the UPDATE makes a concurrent
// approve/reject on the same proof resolve to exactly one winner.
func (s *ProofService) ApproveProof(c *fiber.Ctx) error {
	proofID := c.Params("id")
	reviewerID := c.Locals("admin_id").(string)

	var proof models.Proof
	if err := s.DB.First(&proof, "id = ?", proofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "proof not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var event models.Event
	if err := s.DB.First(&event, "id = ?", proof.EventID).Error; err != nil {
		// A concurrent event delete cascades the proof away with it.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event not found", "code": "not_found"})
		}
		log.Printf("proof %s references missing event %s: %v", proofID, proof.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error fetching event"})
	}

	user, err := s.ensureVolunteer(proof.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error resolving volunteer"})
	}

	now := time.Now()
	var cert *models.Certificate
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Proof{}).
			Where("id = ? AND status = ?", proofID, models.ProofStatusPending).
			Updates(map[string]interface{}{
				"status":         models.ProofStatusApproved,
				"reviewed_at":    now,
				"reviewed_by":    reviewerID,
				"points_awarded": event.Points,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errProofNotPending
		}

		proof.Status = models.ProofStatusApproved
		proof.ReviewedAt = &now
		proof.PointsAwarded = event.Points

		var issueErr error
		cert, issueErr = s.Certificates.Issue(tx, &proof, &event, user)
		if issueErr != nil {
			return issueErr
		}
		if err := tx.Model(&models.Proof{}).
			Where("id = ?", proofID).
			Update("certificate_id", cert.ID).Error; err != nil {
			return err
		}

		return tx.Model(&models.VolunteerUser{}).
			Where("id = ?", proof.UserID).
			UpdateColumn("total_points", gorm.Expr("total_points + ?", event.Points)).Error
	})
	if errors.Is(err, errProofNotPending) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "proof is not pending",
			"code":  "invalid_state",
		})
	}
	if err != nil {
		log.Printf("approve transaction failed for proof %s: %v", proofID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "approval failed"})
	}

	// Document rendering happens after commit: the certificate identity is
	// already durable and a render failure is repairable via regenerate.
	if err := s.Certificates.RenderAndStore(cert); err != nil {
		log.Printf("certificate render failed for %s: %v", cert.ID, err)
	}

	s.DB.First(&proof, "id = ?", proofID)
	return c.JSON(proof)
}

// RejectProof transitions a PENDING proof to REJECTED with a mandatory
// reason. The rejected row (and its artifact) is retained for audit.
func (s *ProofService) RejectProof(c *fiber.Ctx) error {
	proofID := c.Params("id")
	reviewerID := c.Locals("admin_id").(string)

	reason := strings.TrimSpace(c.Query("reason"))
	if reason == "" {
		var body struct {
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&body); err == nil {
			reason = strings.TrimSpace(body.Reason)
		}
	}
	if reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "rejection reason cannot be empty",
			"code":  "empty_reason",
		})
	}

	var proof models.Proof
	if err := s.DB.First(&proof, "id = ?", proofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "proof not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now()
	result := s.DB.Model(&models.Proof{}).
		Where("id = ? AND status = ?", proofID, models.ProofStatusPending).
		Updates(map[string]interface{}{
			"status":           models.ProofStatusRejected,
			"reviewed_at":      now,
			"reviewed_by":      reviewerID,
			"rejection_reason": reason,
		})
	if result.Error != nil {
		log.Printf("reject failed for proof %s: %v", proofID, result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "rejection failed"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "proof is not pending",
			"code":  "invalid_state",
		})
	}

	s.DB.First(&proof, "id = ?", proofID)
	return c.JSON(proof)
}

// ensureVolunteer returns the local volunteer row, creating a minimal one if
// the sync worker has not mirrored this identity yet.
func (s *ProofService) ensureVolunteer(userID string) (*models.VolunteerUser, error) {
	var user models.VolunteerUser
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.VolunteerUser{
			ID:   userID,
			Name: "Volunteer",
			Role: models.RoleUser,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
