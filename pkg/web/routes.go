package web

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Mount registers every API route on router. metrics may be nil.
func (h *APIHandlers) Mount(router fiber.Router, metrics http.Handler) {
	router.Get("/health", h.HealthCheck)

	if metrics != nil {
		router.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	router.Get("/components", h.GetComponents)
	router.Get("/components/:category/:type", h.GetComponent)
	router.Post("/catalog/refresh", h.RefreshCatalog)
	router.Post("/templates/resolve", h.ResolveTemplate)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/pause", h.PauseWorkflow)
	w.Post("/:id/archive", h.ArchiveWorkflow)
	w.Post("/:id/run", h.RunWorkflow)

	w.Post("/:id/nodes", h.CreateWorkflowNode)
	w.Get("/:id/nodes/:nodeId", h.GetWorkflowNode)
	w.Patch("/:id/nodes/:nodeId", h.UpdateWorkflowNode)
	w.Delete("/:id/nodes/:nodeId", h.DeleteWorkflowNode)
	w.Post("/:id/nodes/:nodeId/execute", h.ExecuteWorkflowNode)

	w.Post("/:id/connections", h.CreateWorkflowConnection)
	w.Delete("/:id/connections/:connectionId", h.DeleteWorkflowConnection)
}
