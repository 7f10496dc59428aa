package services

import (
	"log"

	"volunteer-portal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DashboardService struct {
	DB *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{DB: db}
}

// GetUserDashboard summarizes the caller's participation in one call so the
// portal home screen doesn't fan out across four endpoints.
func (s *DashboardService) GetUserDashboard(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var registered int64
	if err := s.DB.Model(&models.Registration{}).
		Where("user_id = ?", userID).Count(&registered).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var completed int64
	if err := s.DB.Model(&models.Proof{}).
		Where("user_id = ? AND status = ?", userID, models.ProofStatusApproved).
		Count(&completed).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var pending int64
	if err := s.DB.Model(&models.Proof{}).
		Where("user_id = ? AND status = ?", userID, models.ProofStatusPending).
		Count(&pending).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var rejected int64
	if err := s.DB.Model(&models.Proof{}).
		Where("user_id = ? AND status = ?", userID, models.ProofStatusRejected).
		Count(&rejected).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var user models.VolunteerUser
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		// Not mirrored yet: a fresh user simply has zero points.
		user.TotalPoints = 0
	}

	return c.JSON(fiber.Map{
		"registered_events": registered,
		"completed_events":  completed,
		"pending_proofs":    pending,
		"rejected_proofs":   rejected,
		"total_points":      user.TotalPoints,
	})
}

// GetAdminDashboard gives admins the portal-wide counters: inventory, review
// backlog and volunteer reach.
func (s *DashboardService) GetAdminDashboard(c *fiber.Ctx) error {
	var totalEvents int64
	if err := s.DB.Model(&models.Event{}).Count(&totalEvents).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var pendingProofs int64
	if err := s.DB.Model(&models.Proof{}).
		Where("status = ?", models.ProofStatusPending).
		Count(&pendingProofs).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var totalVolunteers int64
	if err := s.DB.Model(&models.VolunteerUser{}).
		Where("role = ?", models.RoleUser).
		Count(&totalVolunteers).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var certificatesIssued int64
	if err := s.DB.Model(&models.Certificate{}).Count(&certificatesIssued).Error; err != nil {
		return s.dashboardError(c, err)
	}

	var totalRegistrations int64
	if err := s.DB.Model(&models.Registration{}).Count(&totalRegistrations).Error; err != nil {
		return s.dashboardError(c, err)
	}

	return c.JSON(fiber.Map{
		"total_events":        totalEvents,
		"pending_proofs":      pendingProofs,
		"total_volunteers":    totalVolunteers,
		"certificates_issued": certificatesIssued,
		"total_registrations": totalRegistrations,
	})
}

func (s *DashboardService) dashboardError(c *fiber.Ctx, err error) error {
	log.Printf("DB error building dashboard: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to build dashboard"})
}
