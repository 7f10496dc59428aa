// handlers/proof_routes.go
package handlers

import (
	"volunteer-portal/middleware"
	"volunteer-portal/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProofRoutes(app *fiber.App, proofService *services.ProofService) {
	proofs := app.Group("/proof", middleware.UserContextMiddleware())

	proofs.Post("/upload/:event_id", proofService.SubmitProof)
	proofs.Get("/user", proofService.GetUserProofs)
	proofs.Delete("/:id", proofService.DeleteProof)

	// 🛡️ Review queue routes — admins only
	admin := app.Group("/admin/proofs",
		middleware.UserContextMiddleware(),
		middleware.RequireAdmin(proofService.DB))

	admin.Get("/", proofService.GetAllProofs)
	admin.Put("/:id/approve", proofService.ApproveProof)
	admin.Put("/:id/reject", proofService.RejectProof)
}
