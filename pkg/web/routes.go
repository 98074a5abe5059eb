package web

import "github.com/gofiber/fiber/v3"

// Register mounts the collaboration endpoints on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/items/:id/available-parts", h.GetAvailableParts)

	r := router.Group("/requests")
	r.Post("/", h.CreateRequest)
	r.Get("/received", h.ListReceived)
	r.Get("/sent", h.ListSent)
	r.Get("/:id", h.GetRequest)
	r.Post("/:id/respond", h.RespondRequest)
	r.Post("/:id/reopen", h.ReopenRequest)
	r.Delete("/:id", h.CancelRequest)

	b := router.Group("/batches")
	b.Post("/", h.CreateBatch)
	b.Get("/:id", h.GetBatch)
	b.Post("/:id/respond", h.RespondBatch)

	router.Get("/health", h.HealthCheck)
}
