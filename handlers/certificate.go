// handlers/certificate_routes.go
package handlers

import (
	"volunteer-portal/middleware"
	"volunteer-portal/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCertificateRoutes(app *fiber.App, certificateService *services.CertificateService) {
	// 🔓 Public — verify links are printed on certificates and must resolve
	// without any auth context (also exempted from Gateway auth). Registered
	// before the secured group so it never hits the user-context middleware.
	app.Get("/certificates/verify/:id", certificateService.VerifyCertificate)

	certs := app.Group("/certificates", middleware.UserContextMiddleware())

	certs.Get("/my", certificateService.GetUserCertificates)
	certs.Get("/:id/download", certificateService.DownloadCertificate)

	// Regeneration hangs off the proof review surface: the admin points at
	// the approved proof, not at the certificate id.
	admin := app.Group("/admin/proofs",
		middleware.UserContextMiddleware(),
		middleware.RequireAdmin(certificateService.DB))

	admin.Put("/:id/regenerate-certificate", certificateService.RegenerateCertificate)
}
