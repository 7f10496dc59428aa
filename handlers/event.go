// handlers/event_routes.go
package handlers

import (
	"volunteer-portal/middleware"
	"volunteer-portal/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEventRoutes(app *fiber.App, eventService *services.EventService) {
	// 🔐 Secured routes — require user context (userID, roles), enforced via middleware
	events := app.Group("/events", middleware.UserContextMiddleware())

	events.Get("/", eventService.GetAllEvents)
	events.Get("/available", eventService.GetAvailableEvents)
	events.Get("/registered", eventService.GetRegisteredEvents)
	events.Get("/categories", eventService.GetCategories)
	events.Post("/register/:id", eventService.RegisterForEvent)
	events.Delete("/unregister/:id", eventService.UnregisterFromEvent)

	// 🛡️ Admin routes — role re-validated against the local user table
	admin := app.Group("/admin/events",
		middleware.UserContextMiddleware(),
		middleware.RequireAdmin(eventService.DB))

	admin.Post("/", eventService.CreateEvent)
	admin.Put("/:id", eventService.UpdateEvent)
	admin.Patch("/:id", eventService.UpdateEvent)
	admin.Delete("/:id", eventService.DeleteEvent)
}
