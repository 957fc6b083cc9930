package orders

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/engine"
	"github.com/JhonesBR/go-ome/internal/store"
)

func InitializeRoutes(app *fiber.App, backend store.Backend, controller *engine.Controller) {
	app.Post("/v1/orders", PlaceOrderHandler(context.Background(), controller))
	app.Get("/v1/orders", GetOrdersHandler(context.Background(), backend))
	app.Get("/v1/orders/:id", GetOrderByIDHandler(context.Background(), backend))
	app.Post("/v1/orders/:id/cancel", CancelOrderHandler(context.Background(), backend, controller))
}
