package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/onstechno/storefront/internal/transport/http/handler"
	"github.com/onstechno/storefront/internal/transport/http/middleware"
)

type Handlers struct {
	Product *handler.ProductHandler
	Order   *handler.OrderHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, jwtSecret string) {
	requireAuth := middleware.NewAuthMiddleware(jwtSecret)
	optionalAuth := middleware.NewOptionalAuthMiddleware(jwtSecret)
	requireAdmin := middleware.NewAdminMiddleware()

	products := app.Group("/products")
	products.Get("", h.Product.List)
	products.Get("/:id", h.Product.FindByIDOrSlug)
	products.Post("", requireAuth, requireAdmin, h.Product.Create)
	products.Put("/:id", requireAuth, requireAdmin, h.Product.Update)
	products.Delete("/:id", requireAuth, requireAdmin, h.Product.Delete)

	orders := app.Group("/orders")
	orders.Post("", optionalAuth, h.Order.Create)
	orders.Get("", requireAuth, h.Order.List)
	orders.Get("/:id", requireAuth, h.Order.FindByID)
	orders.Patch("/:id/status", requireAuth, h.Order.UpdateStatus)
	orders.Post("/:id/cancel", requireAuth, h.Order.Cancel)

	admin := app.Group("/admin", requireAuth, requireAdmin)
	admin.Get("/orders", h.Order.ListAdmin)
}
