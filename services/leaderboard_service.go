package services

import (
	"log"

	"volunteer-portal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// GetLeaderboard ranks volunteers by cached total points. Ties share the same
// point total but ranks stay ordinal, with the user ID as a stable tie-break
// so two requests never disagree on the ordering.
func (s *LeaderboardService) GetLeaderboard(c *fiber.Ctx) error {
	var users []models.VolunteerUser
	if err := s.DB.Where("role = ?", models.RoleUser).
		Order("total_points DESC, id ASC").
		Find(&users).Error; err != nil {
		log.Printf("DB error fetching leaderboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch leaderboard"})
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, models.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      u.ID,
			Name:        u.Name,
			TotalPoints: u.TotalPoints,
		})
	}
	return c.JSON(entries)
}

// GetMyRank returns the caller's own leaderboard position.
func (s *LeaderboardService) GetMyRank(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.VolunteerUser
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found", "code": "not_found"})
	}

	// Rank = 1 + users strictly ahead, counting same-points users with a
	// smaller ID as ahead (matches the listing's tie-break).
	var ahead int64
	if err := s.DB.Model(&models.VolunteerUser{}).
		Where("role = ?", models.RoleUser).
		Where("total_points > ? OR (total_points = ? AND id < ?)",
			user.TotalPoints, user.TotalPoints, user.ID).
		Count(&ahead).Error; err != nil {
		log.Printf("DB error computing rank for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute rank"})
	}

	return c.JSON(models.LeaderboardEntry{
		Rank:        int(ahead) + 1,
		UserID:      user.ID,
		Name:        user.Name,
		TotalPoints: user.TotalPoints,
	})
}

// Recalculate rebuilds every cached total from approved proofs in one
// transaction. Running it twice in a row is a no-op: the approved-proof table
// is the single source of truth and the recompute converges on it.
func (s *LeaderboardService) Recalculate() error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		type userTotal struct {
			UserID string
			Total  int
		}
		var totals []userTotal
		if err := tx.Model(&models.Proof{}).
			Select("user_id, COALESCE(SUM(points_awarded), 0) AS total").
			Where("status = ?", models.ProofStatusApproved).
			Group("user_id").
			Scan(&totals).Error; err != nil {
			return err
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Model(&models.VolunteerUser{}).
			UpdateColumn("total_points", 0).Error; err != nil {
			return err
		}

		for _, t := range totals {
			if err := tx.Model(&models.VolunteerUser{}).
				Where("id = ?", t.UserID).
				UpdateColumn("total_points", t.Total).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecalculateHandler triggers a full recompute on demand (Admin only). The
// scheduler runs the same recompute periodically.
func (s *LeaderboardService) RecalculateHandler(c *fiber.Ctx) error {
	if err := s.Recalculate(); err != nil {
		log.Printf("leaderboard recalculation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "recalculation failed"})
	}
	log.Println("✅ Leaderboard totals recalculated")
	return c.JSON(fiber.Map{"message": "leaderboard recalculated"})
}
