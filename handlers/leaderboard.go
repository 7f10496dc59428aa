// handlers/leaderboard_routes.go
package handlers

import (
	"volunteer-portal/middleware"
	"volunteer-portal/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService, dashboardService *services.DashboardService) {
	leaderboard := app.Group("/leaderboard", middleware.UserContextMiddleware())

	leaderboard.Get("/", leaderboardService.GetLeaderboard)
	leaderboard.Get("/me", leaderboardService.GetMyRank)
	leaderboard.Post("/recalculate",
		middleware.RequireAdmin(leaderboardService.DB),
		leaderboardService.RecalculateHandler)

	dashboard := app.Group("/dashboard", middleware.UserContextMiddleware())

	dashboard.Get("/user", dashboardService.GetUserDashboard)

	admin := app.Group("/admin/dashboard",
		middleware.UserContextMiddleware(),
		middleware.RequireAdmin(dashboardService.DB))

	admin.Get("/", dashboardService.GetAdminDashboard)
}
